package conflicts

import (
	"sort"
	"strconv"
	"strings"

	"tracebase/internal/exceptions"
	"tracebase/internal/workbook"
	"tracebase/pkg/domain"
)

// Peak Group Conflicts sheet layout.
const (
	SheetName         = "Peak Group Conflicts"
	ColConflict       = "Peak Group Conflict"
	ColSelected       = "Selected Peak Annotation File"
	ColSampleCount    = "Common Sample Count"
	ColExampleSamples = "Example Samples"
	ColCommonSamples  = "Common Samples"
	listDelimiter     = ";"
	exampleCount      = 3
)

// Headers lists the sheet's columns in template order.
var Headers = []string{ColConflict, ColSelected, ColSampleCount, ColExampleSamples, ColCommonSamples}

// Sheet renders conflicts as the editable Peak Group Conflicts sheet.
func Sheet(conflicts []Conflict) *workbook.Sheet {
	s := workbook.NewSheet(SheetName, Headers)
	for i, c := range conflicts {
		examples := c.Samples
		if len(examples) > exampleCount {
			examples = examples[:exampleCount]
		}
		s.AppendCells(i+2, []string{
			strings.Join(c.Compounds, listDelimiter),
			c.Selected,
			strconv.Itoa(len(c.Samples)),
			strings.Join(examples, ", "),
			strings.Join(c.Samples, listDelimiter),
		})
	}
	return s
}

// Selection is one curated conflict row.
type Selection struct {
	Row       int
	Compounds []string
	Samples   []string
	Selected  string
}

func (s Selection) sampleKey() string {
	samples := append([]string(nil), s.Samples...)
	sort.Strings(samples)
	return strings.Join(samples, listDelimiter)
}

// Resolutions answers which file was selected for a (compound set, sample)
// pair.
type Resolutions struct {
	selected map[string]map[string]string // compound key -> sample -> file
}

// NewResolutions validates selections and indexes them. Rows duplicating an
// earlier row (same compound set ignoring case and order, identical sample
// set) are merged; rows that only partially overlap an earlier row are
// rejected, as are rows left without a selection. The returned errors are all
// error severity.
func NewResolutions(selections []Selection) (*Resolutions, []error) {
	r := &Resolutions{selected: make(map[string]map[string]string)}
	var (
		errs   []error
		unique []*Selection
	)
	byCompound := make(map[string][]*Selection)
	discarded := make(map[*Selection]bool)
	for i := range selections {
		sel := selections[i]
		ck := domain.CompoundSetKey(sel.Compounds)
		var prior *Selection
		rejected := false
		for _, p := range byCompound[ck] {
			if p.sampleKey() == sel.sampleKey() {
				prior = p
				break
			}
			if shared := intersect(p.Samples, sel.Samples); len(shared) > 0 {
				errs = append(errs, &exceptions.PeakGroupConflictPartialOverlapError{
					Compounds: sel.Compounds, Rows: []int{p.Row, sel.Row}, Shared: shared,
				})
				rejected = true
				break
			}
		}
		switch {
		case rejected:
		case prior == nil:
			byCompound[ck] = append(byCompound[ck], &sel)
			unique = append(unique, &sel)
		case prior.Selected == "":
			prior.Selected = sel.Selected
		case sel.Selected != "" && !strings.EqualFold(sel.Selected, prior.Selected):
			errs = append(errs, &exceptions.DuplicateValuesError{
				Sheet:   SheetName,
				Columns: []string{ColConflict, ColCommonSamples},
				Value:   strings.Join(sel.Compounds, listDelimiter),
				Rows:    []int{prior.Row, sel.Row},
			})
			discarded[prior] = true
		}
	}
	for _, sel := range unique {
		if discarded[sel] {
			continue
		}
		if sel.Selected == "" {
			errs = append(errs, &exceptions.UnresolvedPeakGroupConflictError{Compounds: sel.Compounds})
			continue
		}
		ck := domain.CompoundSetKey(sel.Compounds)
		bucket, ok := r.selected[ck]
		if !ok {
			bucket = make(map[string]string)
			r.selected[ck] = bucket
		}
		for _, s := range sel.Samples {
			bucket[s] = sel.Selected
		}
	}
	return r, errs
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	var out []string
	for _, s := range b {
		if _, ok := set[s]; ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Selected returns the file chosen for compounds in sample.
func (r *Resolutions) Selected(compounds []string, sample string) (string, bool) {
	if r == nil {
		return "", false
	}
	file, ok := r.selected[domain.CompoundSetKey(compounds)][sample]
	return file, ok
}

// Len returns the number of resolved compound sets.
func (r *Resolutions) Len() int {
	if r == nil {
		return 0
	}
	return len(r.selected)
}
