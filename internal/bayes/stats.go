package bayes

import (
	"fmt"
	"math"
)

// Entropy returns the Shannon entropy (nats) of a discrete distribution.
// Probabilities are normalized first; zero-mass outcomes contribute nothing.
func Entropy(probs []float64) float64 {
	total := 0.0
	for _, p := range probs {
		if p > 0 {
			total += p
		}
	}
	if total == 0 {
		return 0
	}
	h := 0.0
	for _, p := range probs {
		if p <= 0 {
			continue
		}
		q := p / total
		h -= q * math.Log(q)
	}
	return h
}

// MutualInformation computes I(X;Y) from a joint distribution given as a
// row-major matrix. The joint is normalized before use.
func MutualInformation(joint [][]float64) float64 {
	total := 0.0
	for _, row := range joint {
		for _, p := range row {
			if p > 0 {
				total += p
			}
		}
	}
	if total == 0 {
		return 0
	}

	rows := len(joint)
	cols := 0
	for _, row := range joint {
		if len(row) > cols {
			cols = len(row)
		}
	}
	px := make([]float64, rows)
	py := make([]float64, cols)
	for i, row := range joint {
		for j, p := range row {
			if p <= 0 {
				continue
			}
			q := p / total
			px[i] += q
			py[j] += q
		}
	}

	mi := 0.0
	for i, row := range joint {
		for j, p := range row {
			if p <= 0 {
				continue
			}
			q := p / total
			mi += q * math.Log(q/(px[i]*py[j]))
		}
	}
	if mi < 0 {
		mi = 0
	}
	return mi
}

// TTestResult reports a two-sample Welch t-test.
type TTestResult struct {
	Statistic float64 `json:"statistic"`
	DF        float64 `json:"df"`
	PValue    float64 `json:"p_value"`
}

// WelchTTest runs a two-sample t-test with unequal variances. The p-value uses
// the normal approximation to the t distribution, adequate at the sample sizes
// the evidence stage sees.
func WelchTTest(a, b []float64) (TTestResult, error) {
	if len(a) < 2 || len(b) < 2 {
		return TTestResult{}, fmt.Errorf("t-test requires at least 2 samples per group (got %d, %d)", len(a), len(b))
	}
	ma, va := meanVariance(a)
	mb, vb := meanVariance(b)
	na, nb := float64(len(a)), float64(len(b))

	se := math.Sqrt(va/na + vb/nb)
	if se == 0 {
		return TTestResult{Statistic: 0, DF: na + nb - 2, PValue: 1}, nil
	}
	t := (ma - mb) / se

	// Welch-Satterthwaite degrees of freedom.
	num := math.Pow(va/na+vb/nb, 2)
	den := math.Pow(va/na, 2)/(na-1) + math.Pow(vb/nb, 2)/(nb-1)
	df := num / den

	p := 2 * (1 - NormalCDF(math.Abs(t)))
	return TTestResult{Statistic: t, DF: df, PValue: p}, nil
}

// ChiSquareResult reports a chi-square test of independence.
type ChiSquareResult struct {
	Statistic float64 `json:"statistic"`
	DF        int     `json:"df"`
	PValue    float64 `json:"p_value"`
}

// ChiSquareTest runs a test of independence over an observed contingency table.
func ChiSquareTest(observed [][]float64) (ChiSquareResult, error) {
	rows := len(observed)
	if rows < 2 || len(observed[0]) < 2 {
		return ChiSquareResult{}, fmt.Errorf("chi-square requires at least a 2x2 table")
	}
	cols := len(observed[0])

	rowSums := make([]float64, rows)
	colSums := make([]float64, cols)
	total := 0.0
	for i, row := range observed {
		if len(row) != cols {
			return ChiSquareResult{}, fmt.Errorf("ragged contingency table at row %d", i)
		}
		for j, o := range row {
			rowSums[i] += o
			colSums[j] += o
			total += o
		}
	}
	if total == 0 {
		return ChiSquareResult{}, fmt.Errorf("contingency table is empty")
	}

	stat := 0.0
	for i := range observed {
		for j := range observed[i] {
			expected := rowSums[i] * colSums[j] / total
			if expected > 0 {
				d := observed[i][j] - expected
				stat += d * d / expected
			}
		}
	}
	df := (rows - 1) * (cols - 1)
	return ChiSquareResult{Statistic: stat, DF: df, PValue: 1 - ChiSquareCDF(stat, df)}, nil
}

// CorrelationResult reports a Pearson correlation with its significance.
type CorrelationResult struct {
	R      float64 `json:"r"`
	PValue float64 `json:"p_value"`
}

// PearsonCorrelation computes r between paired samples and a p-value from the
// normal approximation of the Fisher z-transform.
func PearsonCorrelation(x, y []float64) (CorrelationResult, error) {
	if len(x) != len(y) {
		return CorrelationResult{}, fmt.Errorf("correlation requires paired samples (got %d, %d)", len(x), len(y))
	}
	n := len(x)
	if n < 3 {
		return CorrelationResult{}, fmt.Errorf("correlation requires at least 3 pairs, got %d", n)
	}

	mx, vx := meanVariance(x)
	my, vy := meanVariance(y)
	if vx == 0 || vy == 0 {
		return CorrelationResult{R: 0, PValue: 1}, nil
	}
	cov := 0.0
	for i := range x {
		cov += (x[i] - mx) * (y[i] - my)
	}
	cov /= float64(n - 1)
	r := cov / math.Sqrt(vx*vy)
	if r > 1 {
		r = 1
	}
	if r < -1 {
		r = -1
	}

	// Fisher z with standard error 1/sqrt(n-3).
	if math.Abs(r) >= 1 {
		return CorrelationResult{R: r, PValue: 0}, nil
	}
	z := 0.5 * math.Log((1+r)/(1-r))
	se := 1 / math.Sqrt(float64(n-3))
	p := 2 * (1 - NormalCDF(math.Abs(z)/se))
	return CorrelationResult{R: r, PValue: p}, nil
}

// CohensD computes the standardized mean difference between two samples using
// the pooled standard deviation.
func CohensD(a, b []float64) (float64, error) {
	if len(a) < 2 || len(b) < 2 {
		return 0, fmt.Errorf("effect size requires at least 2 samples per group")
	}
	ma, va := meanVariance(a)
	mb, vb := meanVariance(b)
	na, nb := float64(len(a)), float64(len(b))
	pooled := math.Sqrt(((na-1)*va + (nb-1)*vb) / (na + nb - 2))
	if pooled == 0 {
		return 0, nil
	}
	return (ma - mb) / pooled, nil
}

// ProportionCI returns the normal-approximation confidence interval for a
// proportion, clamped to [0,1]. confidence is e.g. 0.95.
func ProportionCI(successes, trials int, confidence float64) (lower, upper float64, err error) {
	if trials < 1 {
		return 0, 0, fmt.Errorf("trials must be >= 1, got %d", trials)
	}
	if successes < 0 || successes > trials {
		return 0, 0, fmt.Errorf("successes out of range: %d of %d", successes, trials)
	}
	p := float64(successes) / float64(trials)
	z := normalQuantile(1 - (1-confidence)/2)
	half := z * math.Sqrt(p*(1-p)/float64(trials))
	lower = p - half
	upper = p + half
	if lower < 0 {
		lower = 0
	}
	if upper > 1 {
		upper = 1
	}
	return lower, upper, nil
}

// NormalCDF evaluates the standard normal CDF using the Abramowitz-Stegun
// (7.1.26) polynomial approximation of erf.
func NormalCDF(x float64) float64 {
	return 0.5 * (1 + erfAS(x/math.Sqrt2))
}

// erfAS is the Abramowitz-Stegun 7.1.26 erf approximation (max error 1.5e-7).
func erfAS(x float64) float64 {
	sign := 1.0
	if x < 0 {
		sign = -1.0
		x = -x
	}
	const (
		a1 = 0.254829592
		a2 = -0.284496736
		a3 = 1.421413741
		a4 = -1.453152027
		a5 = 1.061405429
		p  = 0.3275911
	)
	t := 1 / (1 + p*x)
	y := 1 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)
	return sign * y
}

// ChiSquareCDF evaluates the chi-square CDF via the Wilson-Hilferty cube-root
// normal approximation.
func ChiSquareCDF(x float64, df int) float64 {
	if x <= 0 || df < 1 {
		return 0
	}
	k := float64(df)
	z := (math.Cbrt(x/k) - (1 - 2/(9*k))) / math.Sqrt(2/(9*k))
	return NormalCDF(z)
}

// normalQuantile inverts NormalCDF by bisection; adequate for CI bounds.
func normalQuantile(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	if p >= 1 {
		return math.Inf(1)
	}
	lo, hi := -10.0, 10.0
	for i := 0; i < 100; i++ {
		mid := (lo + hi) / 2
		if NormalCDF(mid) < p {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

func meanVariance(xs []float64) (mean, variance float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= n
	if n < 2 {
		return mean, 0
	}
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= n - 1
	return mean, variance
}
