package stages

import (
	"fmt"

	"github.com/reasongraph/reasongraph/internal/config"
	"github.com/reasongraph/reasongraph/internal/stage"
)

// constructors maps stage names to their builders.
var constructors = map[string]func(Deps) stage.Stage{
	NameInitialization:     func(d Deps) stage.Stage { return NewInitializationStage(d) },
	NameDecomposition:      func(d Deps) stage.Stage { return NewDecompositionStage(d) },
	NameHypothesis:         func(d Deps) stage.Stage { return NewHypothesisStage(d) },
	NameEvidence:           func(d Deps) stage.Stage { return NewEvidenceStage(d) },
	NamePruningMerging:     func(d Deps) stage.Stage { return NewPruningMergingStage(d) },
	NameSubgraphExtraction: func(d Deps) stage.Stage { return NewSubgraphExtractionStage(d) },
	NameComposition:        func(d Deps) stage.Stage { return NewCompositionStage(d) },
	NameReflection:         func(d Deps) stage.Stage { return NewReflectionStage(d) },
}

// BuildPipeline instantiates the enabled stages in their configured order.
// An unknown stage name is a configuration error.
func BuildPipeline(deps Deps, pipeline []config.StageConfig) ([]stage.Stage, error) {
	stages := make([]stage.Stage, 0, len(pipeline))
	for _, entry := range pipeline {
		if !entry.Enabled {
			continue
		}
		build, ok := constructors[entry.Name]
		if !ok {
			return nil, fmt.Errorf("unknown pipeline stage %q", entry.Name)
		}
		stages = append(stages, build(deps))
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("pipeline has no enabled stages")
	}
	return stages, nil
}
