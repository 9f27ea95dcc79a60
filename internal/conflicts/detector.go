// Package conflicts detects peak groups represented in more than one peak
// annotation file and applies the curator's Peak Group Conflicts selections.
package conflicts

import (
	"sort"
	"strings"

	"tracebase/pkg/domain"
)

// State is the representation state of one (compound set, sample) pair.
type State int

// Representation states. ConflictingRepresentations is terminal and needs a
// curator selection.
const (
	Unseen State = iota
	SingleRepresentation
	ConflictingRepresentations
)

func (s State) String() string {
	switch s {
	case SingleRepresentation:
		return "single"
	case ConflictingRepresentations:
		return "conflicting"
	default:
		return "unseen"
	}
}

type group struct {
	compounds []string
	files     map[string]map[string]struct{} // sample -> files
}

// Detector tracks which files supply each compound set for each sample.
type Detector struct {
	groups map[string]*group
}

// NewDetector constructs an empty detector.
func NewDetector() *Detector {
	return &Detector{groups: make(map[string]*group)}
}

// Observe records that file supplies peaks for compounds in every sample.
// compounds should be primary compound names so synonyms collapse.
func (d *Detector) Observe(file string, compounds []string, samples []string) {
	key := domain.CompoundSetKey(compounds)
	if key == "" {
		return
	}
	g, ok := d.groups[key]
	if !ok {
		g = &group{compounds: sortedCopy(compounds), files: make(map[string]map[string]struct{})}
		d.groups[key] = g
	}
	for _, s := range samples {
		set, ok := g.files[s]
		if !ok {
			set = make(map[string]struct{})
			g.files[s] = set
		}
		set[file] = struct{}{}
	}
}

// State reports the representation state of compounds in sample.
func (d *Detector) State(compounds []string, sample string) State {
	g, ok := d.groups[domain.CompoundSetKey(compounds)]
	if !ok {
		return Unseen
	}
	switch n := len(g.files[sample]); {
	case n == 0:
		return Unseen
	case n == 1:
		return SingleRepresentation
	default:
		return ConflictingRepresentations
	}
}

// Files returns the files supplying compounds in sample, sorted.
func (d *Detector) Files(compounds []string, sample string) []string {
	g, ok := d.groups[domain.CompoundSetKey(compounds)]
	if !ok {
		return nil
	}
	return sortedKeys(g.files[sample])
}

// Conflict is one row of the Peak Group Conflicts table: a compound set, the
// files competing to supply it, and the samples they compete over.
type Conflict struct {
	Compounds []string
	Files     []string
	Samples   []string
	Selected  string
}

// Key identifies the conflict independent of compound order and case.
func (c Conflict) Key() string {
	return domain.CompoundSetKey(c.Compounds) + "|" + strings.Join(c.Samples, ";")
}

// Conflicts returns one row per compound set and candidate file set, in
// compound then file order. Samples are sorted.
func (d *Detector) Conflicts() []Conflict {
	var out []Conflict
	for _, g := range d.groups {
		byFiles := make(map[string]*Conflict)
		for sample, files := range g.files {
			if len(files) < 2 {
				continue
			}
			names := sortedKeys(files)
			fk := strings.Join(names, "\x00")
			c, ok := byFiles[fk]
			if !ok {
				c = &Conflict{Compounds: g.compounds, Files: names}
				byFiles[fk] = c
			}
			c.Samples = append(c.Samples, sample)
		}
		for _, c := range byFiles {
			sort.Strings(c.Samples)
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ki, kj := domain.CompoundSetKey(out[i].Compounds), domain.CompoundSetKey(out[j].Compounds)
		if ki != kj {
			return ki < kj
		}
		return strings.Join(out[i].Files, ";") < strings.Join(out[j].Files, ";")
	})
	return out
}

func sortedCopy(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
