// Package config loads the pipeline settings from YAML plus environment
// overrides. Configuration is immutable after load; stages read it through the
// session's operational parameters.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all settings for the reasoning pipeline.
type Config struct {
	// Deployment environment: "development" or "production"
	Environment string `mapstructure:"environment" yaml:"environment"`

	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	App       AppConfig       `mapstructure:"app" yaml:"app"`
	Archive   ArchiveConfig   `mapstructure:"archive" yaml:"archive"`
	Retrieval RetrievalConfig `mapstructure:"retrieval" yaml:"retrieval"`
	Resources ResourceConfig  `mapstructure:"resources" yaml:"resources"`
	Pipeline  []StageConfig   `mapstructure:"pipeline" yaml:"pipeline"`
	Defaults  DefaultsConfig  `mapstructure:"defaults" yaml:"defaults"`
}

// StoreConfig configures the graph store connection.
type StoreConfig struct {
	URI      string `mapstructure:"uri" yaml:"uri"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
}

// AppConfig configures the process-level surface.
type AppConfig struct {
	Host               string `mapstructure:"host" yaml:"host"`
	Port               int    `mapstructure:"port" yaml:"port"`
	LogLevel           string `mapstructure:"log_level" yaml:"log_level"`
	CORSAllowedOrigins string `mapstructure:"cors_allowed_origins" yaml:"cors_allowed_origins"`
	AuthToken          string `mapstructure:"auth_token" yaml:"auth_token"`
}

// ArchiveConfig configures the optional Postgres session archive.
// An empty DSN disables archiving.
type ArchiveConfig struct {
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
}

// RetrievalConfig configures the external evidence services.
type RetrievalConfig struct {
	PubMedBaseURL    string  `mapstructure:"pubmed_base_url" yaml:"pubmed_base_url"`
	PubMedAPIKey     string  `mapstructure:"pubmed_api_key" yaml:"pubmed_api_key"`
	OpenAlexBaseURL  string  `mapstructure:"openalex_base_url" yaml:"openalex_base_url"`
	OpenAlexMailto   string  `mapstructure:"openalex_mailto" yaml:"openalex_mailto"`
	WebSearchBaseURL string  `mapstructure:"web_search_base_url" yaml:"web_search_base_url"`
	WebSearchAPIKey  string  `mapstructure:"web_search_api_key" yaml:"web_search_api_key"`
	RequestTimeoutS  int     `mapstructure:"request_timeout_s" yaml:"request_timeout_s"`
	RequestsPerSec   float64 `mapstructure:"requests_per_sec" yaml:"requests_per_sec"`
	MaxConcurrent    int64   `mapstructure:"max_concurrent" yaml:"max_concurrent"`
}

// ResourceConfig bounds process resource use; the orchestrator halts the
// pipeline when a ceiling is exceeded.
type ResourceConfig struct {
	MaxMemoryPercent float64 `mapstructure:"max_memory_percent" yaml:"max_memory_percent"`
	MaxCPUPercent    float64 `mapstructure:"max_cpu_percent" yaml:"max_cpu_percent"`
}

// StageConfig is one entry of the ordered pipeline list.
type StageConfig struct {
	Name    string `mapstructure:"name" yaml:"name"`
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Module  string `mapstructure:"module_path" yaml:"module_path"`
}

// DefaultsConfig carries the tunables every stage reads.
type DefaultsConfig struct {
	InitialConfidence               []float64 `mapstructure:"initial_confidence" yaml:"initial_confidence"`
	InitialLayer                    string    `mapstructure:"initial_layer" yaml:"initial_layer"`
	DefaultDisciplinaryTags         []string  `mapstructure:"default_disciplinary_tags" yaml:"default_disciplinary_tags"`
	DefaultDecompositionDimensions  []string  `mapstructure:"default_decomposition_dimensions" yaml:"default_decomposition_dimensions"`
	DefaultPlanTypes                []string  `mapstructure:"default_plan_types" yaml:"default_plan_types"`
	HypothesesPerDimensionMin       int       `mapstructure:"hypotheses_per_dimension_min" yaml:"hypotheses_per_dimension_min"`
	HypothesesPerDimensionMax       int       `mapstructure:"hypotheses_per_dimension_max" yaml:"hypotheses_per_dimension_max"`
	HypothesisConfidence            []float64 `mapstructure:"hypothesis_confidence" yaml:"hypothesis_confidence"`
	DimensionConfidence             []float64 `mapstructure:"dimension_confidence" yaml:"dimension_confidence"`
	EvidenceMaxIterations           int       `mapstructure:"evidence_max_iterations" yaml:"evidence_max_iterations"`
	IBNSimilarityThreshold          float64   `mapstructure:"ibn_similarity_threshold" yaml:"ibn_similarity_threshold"`
	MinNodesForHyperedge            int       `mapstructure:"min_nodes_for_hyperedge" yaml:"min_nodes_for_hyperedge"`
	PruningConfidenceThreshold      float64   `mapstructure:"pruning_confidence_threshold" yaml:"pruning_confidence_threshold"`
	PruningImpactThreshold          float64   `mapstructure:"pruning_impact_threshold" yaml:"pruning_impact_threshold"`
	PruningEdgeConfidenceThreshold  float64   `mapstructure:"pruning_edge_confidence_threshold" yaml:"pruning_edge_confidence_threshold"`
	MergingSemanticOverlapThreshold float64   `mapstructure:"merging_semantic_overlap_threshold" yaml:"merging_semantic_overlap_threshold"`
	SubgraphMinConfidenceThreshold  float64   `mapstructure:"subgraph_min_confidence_threshold" yaml:"subgraph_min_confidence_threshold"`
	SubgraphMinImpactThreshold      float64   `mapstructure:"subgraph_min_impact_threshold" yaml:"subgraph_min_impact_threshold"`
	IncludeNeighborsDepth           int       `mapstructure:"include_neighbors_depth" yaml:"include_neighbors_depth"`
	HighConfidenceThreshold         float64   `mapstructure:"high_confidence_threshold" yaml:"high_confidence_threshold"`
	HighImpactThreshold             float64   `mapstructure:"high_impact_threshold" yaml:"high_impact_threshold"`
	MinFalsifiableHypothesisRatio   float64   `mapstructure:"min_falsifiable_hypothesis_ratio" yaml:"min_falsifiable_hypothesis_ratio"`
	MaxHighSeverityBiasNodes        int       `mapstructure:"max_high_severity_bias_nodes" yaml:"max_high_severity_bias_nodes"`
	MinPoweredEvidenceRatio         float64   `mapstructure:"min_powered_evidence_ratio" yaml:"min_powered_evidence_ratio"`
}

// DefaultStageNames is the declared stage order.
var DefaultStageNames = []string{
	"InitializationStage",
	"DecompositionStage",
	"HypothesisStage",
	"EvidenceStage",
	"PruningMergingStage",
	"SubgraphExtractionStage",
	"CompositionStage",
	"ReflectionStage",
}

// Default returns the built-in configuration.
func Default() *Config {
	pipeline := make([]StageConfig, 0, len(DefaultStageNames))
	for _, name := range DefaultStageNames {
		pipeline = append(pipeline, StageConfig{Name: name, Enabled: true})
	}
	return &Config{
		Environment: "development",
		Store: StoreConfig{
			URI:      "neo4j://localhost:7687",
			User:     "neo4j",
			Database: "neo4j",
		},
		App: AppConfig{
			Host:               "0.0.0.0",
			Port:               8000,
			LogLevel:           "info",
			CORSAllowedOrigins: "*",
		},
		Retrieval: RetrievalConfig{
			PubMedBaseURL:   "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
			OpenAlexBaseURL: "https://api.openalex.org",
			RequestTimeoutS: 15,
			RequestsPerSec:  3,
			MaxConcurrent:   3,
		},
		Resources: ResourceConfig{
			MaxMemoryPercent: 90,
			MaxCPUPercent:    95,
		},
		Pipeline: pipeline,
		Defaults: DefaultsConfig{
			InitialConfidence:               []float64{0.8, 0.8, 0.8, 0.8},
			InitialLayer:                    "0",
			DefaultDisciplinaryTags:         []string{"general_science"},
			DefaultDecompositionDimensions:  []string{"Scope and Definitions", "Core Mechanisms", "Methodological Approaches", "Evidence Landscape", "Open Challenges"},
			DefaultPlanTypes:                []string{"literature_review", "experiment_design", "data_analysis", "simulation"},
			HypothesesPerDimensionMin:       2,
			HypothesesPerDimensionMax:       4,
			HypothesisConfidence:            []float64{0.5, 0.5, 0.5, 0.5},
			DimensionConfidence:             []float64{0.8, 0.8, 0.8, 0.8},
			EvidenceMaxIterations:           5,
			IBNSimilarityThreshold:          0.5,
			MinNodesForHyperedge:            2,
			PruningConfidenceThreshold:      0.2,
			PruningImpactThreshold:          0.2,
			PruningEdgeConfidenceThreshold:  0.3,
			MergingSemanticOverlapThreshold: 0.8,
			SubgraphMinConfidenceThreshold:  0.6,
			SubgraphMinImpactThreshold:      0.6,
			IncludeNeighborsDepth:           1,
			HighConfidenceThreshold:         0.7,
			HighImpactThreshold:             0.7,
			MinFalsifiableHypothesisRatio:   0.6,
			MaxHighSeverityBiasNodes:        0,
			MinPoweredEvidenceRatio:         0.5,
		},
	}
}

// Load reads configuration from the given file (or the standard search paths
// when empty), layers .env files and environment overrides on top, and
// validates the result.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("environment", cfg.Environment)
	v.SetDefault("store", cfg.Store)
	v.SetDefault("app", cfg.App)
	v.SetDefault("archive", cfg.Archive)
	v.SetDefault("retrieval", cfg.Retrieval)
	v.SetDefault("resources", cfg.Resources)
	v.SetDefault("defaults", cfg.Defaults)

	v.SetEnvPrefix("REASONGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("settings")
		v.AddConfigPath(".")
		v.AddConfigPath("config")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".reasongraph"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Missing config file is fine in development; defaults apply.
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	if len(cfg.Pipeline) == 0 {
		cfg.Pipeline = Default().Pipeline
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles layers .env files, local overrides first.
func loadEnvFiles() {
	for _, file := range []string{".env.local", ".env"} {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}
}

// applyEnvOverrides applies the flat environment variables the deployment
// tooling sets. Env vars take precedence over file values.
func applyEnvOverrides(cfg *Config) {
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Store.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		cfg.Store.User = user
	}
	if password := os.Getenv("NEO4J_PASSWORD"); password != "" {
		cfg.Store.Password = password
	}
	if database := os.Getenv("NEO4J_DATABASE"); database != "" {
		cfg.Store.Database = database
	}
	if dsn := os.Getenv("ARCHIVE_POSTGRES_DSN"); dsn != "" {
		cfg.Archive.PostgresDSN = dsn
	}
	if key := os.Getenv("PUBMED_API_KEY"); key != "" {
		cfg.Retrieval.PubMedAPIKey = key
	}
	if mailto := os.Getenv("OPENALEX_MAILTO"); mailto != "" {
		cfg.Retrieval.OpenAlexMailto = mailto
	}
	if key := os.Getenv("WEB_SEARCH_API_KEY"); key != "" {
		cfg.Retrieval.WebSearchAPIKey = key
	}
	if url := os.Getenv("WEB_SEARCH_BASE_URL"); url != "" {
		cfg.Retrieval.WebSearchBaseURL = url
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.App.LogLevel = level
	}
	if port := os.Getenv("APP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.App.Port = p
		}
	}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.App.CORSAllowedOrigins = origins
	}
	if token := os.Getenv("APP_AUTH_TOKEN"); token != "" {
		cfg.App.AuthToken = token
	}
	if env := os.Getenv("APP_ENVIRONMENT"); env != "" {
		cfg.Environment = env
	}
}

// IsProduction reports whether the process runs with production strictness.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// CORSOrigins splits the configured origins CSV; "*" stays a single wildcard.
func (c *AppConfig) CORSOrigins() []string {
	if c.CORSAllowedOrigins == "" || c.CORSAllowedOrigins == "*" {
		return []string{"*"}
	}
	parts := strings.Split(c.CORSAllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
