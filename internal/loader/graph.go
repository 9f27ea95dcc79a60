package loader

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"tracebase/internal/platform/logger"
)

const pipelineEnv = "TRACEBASE_PIPELINE_YAML"

//go:embed pipeline.yaml
var pipelineSpecFS embed.FS

// Stage names.
const (
	StageStudy              = "study"
	StageCompounds          = "compounds"
	StageTissues            = "tissues"
	StageTreatments         = "treatments"
	StageTracers            = "tracers"
	StageInfusates          = "infusates"
	StageAnimals            = "animals"
	StageSamples            = "samples"
	StageSequences          = "sequences"
	StageAnnotationFiles    = "peak_annotation_files"
	StageAnnotationDetails  = "peak_annotation_details"
	StagePeakGroupConflicts = "peak_group_conflicts"
	StagePeakAnnotations    = "peak_annotations"
	pipelineName            = "study_doc"
	defaultVariant          = ""
)

// fallback stage graph used when YAML is missing or invalid
var fallbackStages = []Stage{
	{Name: StageStudy, Sheet: SheetStudy},
	{Name: StageCompounds, Sheet: SheetCompounds},
	{Name: StageTissues, Sheet: SheetTissues},
	{Name: StageTreatments, Sheet: SheetTreatments},
	{Name: StageTracers, Sheet: SheetTracers, DependsOn: []string{StageCompounds}},
	{Name: StageInfusates, Sheet: SheetInfusates, DependsOn: []string{StageTracers}},
	{Name: StageAnimals, Sheet: SheetAnimals, DependsOn: []string{StageInfusates, StageStudy, StageTreatments}},
	{Name: StageSamples, Sheet: SheetSamples, DependsOn: []string{StageAnimals, StageTissues}},
	{Name: StageSequences, Sheet: SheetSequences},
	{Name: StageAnnotationFiles, Sheet: SheetAnnotationFiles, DependsOn: []string{StageSequences}, RequiredWithFiles: true},
	{Name: StageAnnotationDetails, Sheet: SheetAnnotationDets, DependsOn: []string{StageAnnotationFiles, StageSamples, StageSequences}, RequiredWithFiles: true},
	{Name: StagePeakGroupConflicts, Sheet: SheetConflicts, DependsOn: []string{StageCompounds, StageAnnotationFiles, StageSamples}},
	{Name: StagePeakAnnotations, DependsOn: []string{StageCompounds, StageAnnotationDetails, StagePeakGroupConflicts}},
}

var fallbackVariants = map[string][]string{
	"metadata": {
		StageStudy, StageCompounds, StageTissues, StageTreatments, StageTracers,
		StageInfusates, StageAnimals, StageSamples, StageSequences,
	},
}

// Stage is one node of the sheet dependency graph.
type Stage struct {
	Name      string   `yaml:"name"`
	Sheet     string   `yaml:"sheet"`
	DependsOn []string `yaml:"depends_on"`
	Enabled   *bool    `yaml:"enabled"`
	// RequiredWithFiles marks sheets that must be present whenever peak
	// annotation files are submitted.
	RequiredWithFiles bool `yaml:"required_with_files"`
}

type yamlPipelineSpec struct {
	Pipeline string                 `yaml:"pipeline"`
	Version  int                    `yaml:"version"`
	Stages   []Stage                `yaml:"stages"`
	Variants map[string]yamlVariant `yaml:"variants"`
}

type yamlVariant struct {
	Stages []string `yaml:"stages"`
}

// Graph is a validated, ordered stage graph.
type Graph struct {
	order    []string
	stages   map[string]Stage
	variants map[string][]string
}

var (
	graphOnce  sync.Once
	graphCache *Graph
	graphErr   error
)

// CurrentGraph returns the configured stage graph, falling back to the
// compiled-in graph when the YAML cannot be loaded.
func CurrentGraph(log *logger.Logger) *Graph {
	graphOnce.Do(func() {
		graphCache, graphErr = loadGraph()
	})
	if graphErr != nil {
		if log != nil {
			log.Warn("loader: pipeline spec load failed; using fallback", "error", graphErr)
		}
		return fallbackGraph()
	}
	return graphCache
}

func fallbackGraph() *Graph {
	g := &Graph{stages: make(map[string]Stage, len(fallbackStages)), variants: fallbackVariants}
	for _, s := range fallbackStages {
		s.DependsOn = dedupeStrings(s.DependsOn)
		g.order = append(g.order, s.Name)
		g.stages[s.Name] = s
	}
	return g
}

func loadGraph() (*Graph, error) {
	data, err := readPipelineSpec()
	if err != nil {
		return nil, err
	}
	return ParseGraph(data)
}

// ParseGraph decodes and validates a YAML stage graph.
func ParseGraph(data []byte) (*Graph, error) {
	var spec yamlPipelineSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	if err := validatePipelineSpec(&spec); err != nil {
		return nil, err
	}

	g := &Graph{stages: make(map[string]Stage, len(spec.Stages)), variants: make(map[string][]string)}
	for _, stage := range spec.Stages {
		stage.Name = strings.TrimSpace(stage.Name)
		if stage.Enabled != nil && !*stage.Enabled {
			continue
		}
		stage.DependsOn = dedupeStrings(stage.DependsOn)
		g.order = append(g.order, stage.Name)
		g.stages[stage.Name] = stage
	}
	for key, v := range spec.Variants {
		for _, name := range v.Stages {
			if _, ok := g.stages[strings.TrimSpace(name)]; ok {
				g.variants[key] = append(g.variants[key], strings.TrimSpace(name))
			}
		}
	}
	return g, nil
}

func readPipelineSpec() ([]byte, error) {
	if path := strings.TrimSpace(os.Getenv(pipelineEnv)); path != "" {
		return os.ReadFile(path)
	}
	return pipelineSpecFS.ReadFile("pipeline.yaml")
}

func validatePipelineSpec(spec *yamlPipelineSpec) error {
	if spec == nil {
		return errors.New("missing spec")
	}
	if strings.TrimSpace(spec.Pipeline) != pipelineName {
		return fmt.Errorf("unexpected pipeline: %s", spec.Pipeline)
	}
	if len(spec.Stages) == 0 {
		return errors.New("no stages defined")
	}

	enabled := map[string]bool{}
	order := make([]string, 0, len(spec.Stages))
	for _, stage := range spec.Stages {
		name := strings.TrimSpace(stage.Name)
		if name == "" {
			return errors.New("stage name is required")
		}
		if _, exists := enabled[name]; exists {
			return fmt.Errorf("duplicate stage name: %s", name)
		}
		if stage.Enabled != nil && !*stage.Enabled {
			enabled[name] = false
			continue
		}
		enabled[name] = true
		order = append(order, name)
	}

	orderIndex := map[string]int{}
	for i, name := range order {
		orderIndex[name] = i
	}

	for _, stage := range spec.Stages {
		name := strings.TrimSpace(stage.Name)
		if !enabled[name] {
			continue
		}
		for _, dep := range stage.DependsOn {
			dep = strings.TrimSpace(dep)
			if dep == "" {
				continue
			}
			if !enabled[dep] {
				return fmt.Errorf("stage %s: unknown dependency %s", name, dep)
			}
			if orderIndex[dep] > orderIndex[name] {
				return fmt.Errorf("stage %s: dependency %s appears after stage in order", name, dep)
			}
		}
	}

	for key, variant := range spec.Variants {
		if strings.TrimSpace(key) == "" {
			return errors.New("variant name is required")
		}
		seen := map[string]bool{}
		for _, name := range variant.Stages {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if !enabled[name] {
				return fmt.Errorf("variant %s: unknown stage %s", key, name)
			}
			if seen[name] {
				return fmt.Errorf("variant %s: duplicate stage %s", key, name)
			}
			seen[name] = true
		}
	}
	return nil
}

// Order returns the stages of variant in dependency order. The empty variant
// selects every stage; an unknown variant is an error.
func (g *Graph) Order(variant string) ([]Stage, error) {
	names := g.order
	if variant != defaultVariant {
		v, ok := g.variants[variant]
		if !ok {
			return nil, fmt.Errorf("unknown pipeline variant %q", variant)
		}
		selected := make(map[string]bool, len(v))
		for _, n := range v {
			selected[n] = true
		}
		names = nil
		for _, n := range g.order {
			if selected[n] {
				names = append(names, n)
			}
		}
	}
	out := make([]Stage, 0, len(names))
	for _, n := range names {
		out = append(out, g.stages[n])
	}
	return out, nil
}

// Stage returns the named stage.
func (g *Graph) Stage(name string) (Stage, bool) {
	s, ok := g.stages[name]
	return s, ok
}

// Dependents returns every stage that transitively depends on name.
func (g *Graph) Dependents(name string) []string {
	hit := map[string]bool{name: true}
	var out []string
	for _, n := range g.order {
		for _, dep := range g.stages[n].DependsOn {
			if hit[dep] && !hit[n] {
				hit[n] = true
				out = append(out, n)
				break
			}
		}
	}
	return out
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
