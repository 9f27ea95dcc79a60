package loader

import (
	"context"
	"strings"

	"tracebase/internal/conflicts"
	"tracebase/internal/exceptions"
	"tracebase/internal/mzxml"
	"tracebase/internal/peakannot"
	"tracebase/internal/resolve"
	"tracebase/internal/workbook"
	"tracebase/pkg/domain"
)

const defaultTemplateName = "study.xlsx"

// StartRequest is the input of template generation.
type StartRequest struct {
	// StudyDoc is an optional earlier draft. Its sheets are carried over and
	// its rows take precedence over generated ones.
	StudyDoc        *workbook.Workbook
	AnnotationFiles []AnnotationFile
	MzXML           []mzxml.Header
	// Formats declares file formats by path, overriding detection.
	Formats map[string]string
	// DefaultSequence prefills every file's Default Sequence.
	DefaultSequence string
}

// Template is a Study Doc prefilled from peak annotation files.
type Template struct {
	Workbook  *workbook.Workbook
	Conflicts []conflicts.Conflict
}

// Start extracts sample headers and compounds from the annotation files and
// builds a Study Doc with the Peak Annotation Files, Peak Annotation Details
// and Peak Group Conflicts sheets filled in. Conflicts left without a
// selection are errors in the report.
func (l *Loader) Start(ctx context.Context, req StartRequest) (Template, exceptions.Report, error) {
	agg := exceptions.New()
	view := l.store.ExportState()
	draft := req.StudyDoc
	if draft == nil {
		draft = workbook.New(defaultTemplateName)
	}
	names := newDraftNames(view, draft)

	var jobs []*fileJob
	for _, af := range req.AnnotationFiles {
		declared := req.Formats[af.Path]
		if declared == "" {
			declared = draftCell(draft, SheetAnnotationFiles, ColAnnotationFile, af.Path, ColFileFormat)
		}
		format, err := peakannot.Resolve(af.Workbook, declared)
		if err != nil {
			agg.Error(err, exceptions.Location{File: af.Path})
			continue
		}
		jobs = append(jobs, &fileJob{file: af, format: format, agg: exceptions.New()})
	}
	jobs = normalizeJobs(ctx, jobs, l.opts.ReadConcurrency, agg)
	if err := ctx.Err(); err != nil {
		return Template{}, exceptions.Report{}, err
	}

	filesSheet := workbook.NewSheet(SheetAnnotationFiles, Schemas[SheetAnnotationFiles].Headers())
	detailsSheet := workbook.NewSheet(SheetAnnotationDets, Schemas[SheetAnnotationDets].Headers())
	mz := newMzIndex(req.MzXML)
	detector := conflicts.NewDetector()
	for _, job := range jobs {
		file := job.file.Path
		def := draftCell(draft, SheetAnnotationFiles, ColAnnotationFile, file, ColDefaultSequence)
		if def == "" {
			def = req.DefaultSequence
		}
		filesSheet.AppendCells(len(filesSheet.Rows)+2, []string{file, string(job.format), def})

		samples := make([]string, 0, len(job.table.Samples))
		for _, header := range job.table.Samples {
			sample := names.sample(header)
			mzPath := ""
			if h, ok := mz.find(header); ok {
				mzPath = h.Path
			}
			if prior, ok := draftDetail(draft, file, header); ok {
				detailsSheet.AppendCells(len(detailsSheet.Rows)+2, prior)
				if name := strings.TrimSpace(prior[0]); name != "" {
					sample = name
				}
			} else {
				detailsSheet.AppendCells(len(detailsSheet.Rows)+2, []string{sample, header, mzPath, file, "", ""})
			}
			if sample == "" {
				sample = resolve.StripScanLabels(header)
			}
			samples = append(samples, sample)
		}
		seen := make(map[string]bool)
		for _, row := range job.table.Rows {
			compounds := names.compounds(row.Compound)
			key := domain.CompoundSetKey(compounds)
			if seen[key] {
				continue
			}
			seen[key] = true
			detector.Observe(file, compounds, samples)
		}
	}

	found := detector.Conflicts()
	prior := draftResolutions(draft, names)
	for i := range found {
		found[i].Selected = selectedForAll(prior, found[i])
		if found[i].Selected == "" {
			agg.Error(&exceptions.UnresolvedPeakGroupConflictError{Compounds: found[i].Compounds, Files: found[i].Files},
				exceptions.Location{File: draft.Name, Sheet: SheetConflicts})
		}
	}

	out := workbook.New(draft.Name)
	stages, err := l.graph.Order(defaultVariant)
	if err != nil {
		return Template{}, exceptions.Report{}, err
	}
	for _, st := range stages {
		switch st.Sheet {
		case "":
		case SheetAnnotationFiles:
			out.AddSheet(filesSheet)
		case SheetAnnotationDets:
			out.AddSheet(detailsSheet)
		case SheetConflicts:
			out.AddSheet(conflicts.Sheet(found))
		default:
			if s, ok := draft.Sheet(st.Sheet); ok {
				out.AddSheet(s)
			} else {
				out.AddSheet(workbook.NewSheet(st.Sheet, Schemas[st.Sheet].Headers()))
			}
		}
	}

	agg.RollUp()
	report := agg.Report()
	l.log.Info("loader: template built", "files", len(jobs), "conflicts", len(found), "errors", report.Errors)
	return Template{Workbook: out, Conflicts: found}, report, nil
}

// draftNames resolves compound and sample names against the store and the
// draft's own Compounds and Samples sheets, which may not be loaded yet.
type draftNames struct {
	index   *resolve.CompoundIndex
	known   map[string]string
	matcher *resolve.SampleMatcher
}

func newDraftNames(view domain.TransactionView, draft *workbook.Workbook) *draftNames {
	n := &draftNames{index: resolve.NewCompoundIndex(view), known: make(map[string]string)}
	if s, ok := draft.Sheet(SheetCompounds); ok {
		for _, row := range s.Rows {
			primary := row.Get(ColCompound)
			if primary == "" {
				continue
			}
			n.known[strings.ToLower(primary)] = primary
			for _, syn := range strings.Split(row.Get(ColSynonyms), ";") {
				if syn = strings.TrimSpace(syn); syn != "" {
					n.known[strings.ToLower(syn)] = primary
				}
			}
		}
	}
	samples := sampleNames(view)
	if s, ok := draft.Sheet(SheetSamples); ok {
		for _, name := range s.Column(ColSample) {
			if name != "" {
				samples = append(samples, name)
			}
		}
	}
	n.matcher = resolve.NewSampleMatcher(samples)
	return n
}

// compounds maps a peak group compound field to primary names, keeping
// unknown names as written.
func (n *draftNames) compounds(field string) []string {
	parts := peakannot.SplitCompounds(field)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, n.compound(p))
	}
	return out
}

func (n *draftNames) compound(name string) string {
	if primary, err := n.index.Resolve(name); err == nil {
		return primary
	}
	if primary, ok := n.known[strings.ToLower(strings.TrimSpace(name))]; ok {
		return primary
	}
	return strings.TrimSpace(name)
}

func (n *draftNames) sample(header string) string {
	match, err := n.matcher.Match("", header)
	if err != nil {
		return ""
	}
	return match.Sample
}

// draftCell returns the value of column in the first row of sheet whose
// keyColumn equals key.
func draftCell(draft *workbook.Workbook, sheet, keyColumn, key, column string) string {
	s, ok := draft.Sheet(sheet)
	if !ok {
		return ""
	}
	for _, row := range s.Rows {
		if cleanFile(row.Get(keyColumn)) == key {
			return row.Get(column)
		}
	}
	return ""
}

// draftDetail returns an existing detail row for (file, header) in template
// column order.
func draftDetail(draft *workbook.Workbook, file, header string) ([]string, bool) {
	s, ok := draft.Sheet(SheetAnnotationDets)
	if !ok {
		return nil, false
	}
	headers := Schemas[SheetAnnotationDets].Headers()
	for _, row := range s.Rows {
		if row.Get(ColSampleDataHeader) != header || cleanFile(row.Get(ColAnnotFileName)) != file {
			continue
		}
		cells := make([]string, len(headers))
		for i, h := range headers {
			cells[i] = row.Get(h)
		}
		return cells, true
	}
	return nil, false
}

func draftResolutions(draft *workbook.Workbook, names *draftNames) *conflicts.Resolutions {
	s, ok := draft.Sheet(SheetConflicts)
	if !ok {
		return nil
	}
	var selections []conflicts.Selection
	for _, row := range s.Rows {
		if row.Empty() {
			continue
		}
		sel := conflicts.Selection{Row: row.Number, Selected: cleanFile(row.Get(conflicts.ColSelected))}
		for _, c := range splitList(row.Get(conflicts.ColConflict)) {
			sel.Compounds = append(sel.Compounds, names.compound(c))
		}
		sel.Samples = splitList(row.Get(conflicts.ColCommonSamples))
		selections = append(selections, sel)
	}
	// Problems in the draft surface again when the finished doc is validated.
	res, _ := conflicts.NewResolutions(selections)
	return res
}

// selectedForAll returns the draft selection when it covers every sample of
// c with the same file, which must still be a candidate.
func selectedForAll(res *conflicts.Resolutions, c conflicts.Conflict) string {
	selected := ""
	for _, s := range c.Samples {
		file, ok := res.Selected(c.Compounds, s)
		if !ok || (selected != "" && file != selected) {
			return ""
		}
		selected = file
	}
	for _, f := range c.Files {
		if f == selected {
			return selected
		}
	}
	return ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ";") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
