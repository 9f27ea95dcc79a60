package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stageNames(stages []Stage) []string {
	out := make([]string, 0, len(stages))
	for _, s := range stages {
		out = append(out, s.Name)
	}
	return out
}

func TestEmbeddedGraphMatchesFallback(t *testing.T) {
	data, err := os.ReadFile("pipeline.yaml")
	require.NoError(t, err)
	g, err := ParseGraph(data)
	require.NoError(t, err)

	got, err := g.Order("")
	require.NoError(t, err)
	want, err := fallbackGraph().Order("")
	require.NoError(t, err)
	assert.Equal(t, stageNames(want), stageNames(got))

	details, ok := g.Stage(StageAnnotationDetails)
	require.True(t, ok)
	assert.True(t, details.RequiredWithFiles)
	assert.Equal(t, SheetAnnotationDets, details.Sheet)

	metadata, err := g.Order("metadata")
	require.NoError(t, err)
	assert.Equal(t, StageSequences, stageNames(metadata)[len(metadata)-1])
	assert.NotContains(t, stageNames(metadata), StagePeakAnnotations)
}

func TestDependentsAreTransitive(t *testing.T) {
	g := fallbackGraph()
	deps := g.Dependents(StageCompounds)
	assert.Contains(t, deps, StageTracers)
	assert.Contains(t, deps, StageSamples)
	assert.Contains(t, deps, StagePeakAnnotations)
	assert.NotContains(t, deps, StageTissues)
	assert.Empty(t, g.Dependents(StagePeakAnnotations))
}

func TestParseGraphRejectsInvalidSpecs(t *testing.T) {
	cases := map[string]string{
		"wrong pipeline": "pipeline: other\nstages:\n  - name: a\n",
		"no stages":      "pipeline: study_doc\n",
		"duplicate":      "pipeline: study_doc\nstages:\n  - name: a\n  - name: a\n",
		"unknown dep":    "pipeline: study_doc\nstages:\n  - name: a\n    depends_on: [b]\n",
		"out of order":   "pipeline: study_doc\nstages:\n  - name: a\n    depends_on: [b]\n  - name: b\n",
		"disabled dep":   "pipeline: study_doc\nstages:\n  - name: b\n    enabled: false\n  - name: a\n    depends_on: [b]\n",
		"variant stage":  "pipeline: study_doc\nstages:\n  - name: a\nvariants:\n  v:\n    stages: [c]\n",
		"variant dupe":   "pipeline: study_doc\nstages:\n  - name: a\nvariants:\n  v:\n    stages: [a, a]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseGraph([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseGraphDropsDisabledStages(t *testing.T) {
	g, err := ParseGraph([]byte("pipeline: study_doc\nstages:\n  - name: a\n  - name: b\n    enabled: false\n  - name: c\n    depends_on: [a, a]\n"))
	require.NoError(t, err)
	stages, err := g.Order("")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, stageNames(stages))
	assert.Equal(t, []string{"a"}, stages[1].DependsOn)

	_, err = g.Order("missing")
	assert.Error(t, err)
}

func TestPipelineOverrideIsReadFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline: study_doc\nstages:\n  - name: study\n"), 0o600))
	t.Setenv(pipelineEnv, path)

	data, err := readPipelineSpec()
	require.NoError(t, err)
	g, err := ParseGraph(data)
	require.NoError(t, err)
	stages, err := g.Order("")
	require.NoError(t, err)
	assert.Equal(t, []string{StageStudy}, stageNames(stages))
}
