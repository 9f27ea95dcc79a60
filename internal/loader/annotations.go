package loader

import (
	"context"
	"errors"
	"path"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"tracebase/internal/conflicts"
	"tracebase/internal/exceptions"
	"tracebase/internal/mzxml"
	"tracebase/internal/notation"
	"tracebase/internal/peakannot"
	"tracebase/internal/resolve"
	"tracebase/internal/workbook"
	"tracebase/pkg/domain"
)

func cleanFile(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" {
		return ""
	}
	return path.Clean(name)
}

// canonicalFile maps a peak annotation file reference to the name it was
// registered under, in this run or an earlier one.
func (r *run) canonicalFile(name string) (string, bool) {
	name = cleanFile(name)
	if name == "" {
		return "", false
	}
	if _, ok := r.listed[name]; ok {
		return name, true
	}
	if _, ok := r.view.Find(domain.EntityPeakAnnotationFile, name); ok {
		return name, true
	}
	var (
		match string
		n     int
	)
	base := path.Base(name)
	for listed := range r.listed {
		if path.Base(listed) == base {
			match = listed
			n++
		}
	}
	return match, n == 1
}

func (r *run) loadAnnotationFiles(sheet *workbook.Sheet) {
	rows, ok := r.rows(sheet)
	if !ok {
		return
	}
	r.listed = make(map[string]listedFile)
	resolver := r.sequenceResolver()
	for _, f := range rows {
		loc := r.sheetLoc(SheetAnnotationFiles).WithRow(f.Row)
		rec := domain.PeakAnnotationFile{Name: cleanFile(f.Str(ColAnnotationFile)), Format: f.Str(ColFileFormat)}
		supplied, has := r.sub.AnnotationFile(rec.Name)
		if has {
			rec.Name = supplied.Path
			rec.Checksum = supplied.Checksum
			format, err := peakannot.Resolve(supplied.Workbook, rec.Format)
			if err != nil {
				r.agg.Error(err, loc.WithColumn(ColFileFormat))
				r.fail(domain.EntityPeakAnnotationFile, rec.Name)
				r.outcome(SheetAnnotationFiles, false)
				continue
			}
			rec.Format = string(format)
		} else if len(r.sub.AnnotationFiles) > 0 {
			r.agg.Warnf(loc.WithColumn(ColAnnotationFile), "peak annotation file %q is listed but was not supplied", rec.Name)
		}
		if def := f.Str(ColDefaultSequence); def != "" {
			seq, ok := r.defaultSequence(def, rec.Name, loc.WithColumn(ColDefaultSequence))
			if !ok {
				r.fail(domain.EntityPeakAnnotationFile, rec.Name)
				r.outcome(SheetAnnotationFiles, false)
				continue
			}
			rec.DefaultSequence = seq
		}
		if !r.upsert(loc, rec) {
			r.outcome(SheetAnnotationFiles, false)
			continue
		}
		r.listed[rec.Name] = listedFile{Format: rec.Format, Supplied: has}
		resolver.SetFileDefault(rec.Name, rec.DefaultSequence)
		r.outcome(SheetAnnotationFiles, true)
	}
}

// defaultSequence validates a Default Sequence cell. A well formed name that
// is not stored points at the Sequences sheet, hence the dedicated class.
func (r *run) defaultSequence(raw, file string, loc exceptions.Location) (string, bool) {
	ref, err := notation.ParseSequenceName(raw)
	if err != nil {
		r.agg.Error(err, loc)
		return "", false
	}
	name := ref.Name()
	if _, ok := r.view.Find(domain.EntitySequence, name); !ok {
		r.reference(&exceptions.DefaultSequenceNotFoundError{Sequence: name, Source: "peak annotation file " + file}, domain.EntitySequence, name, loc)
		return "", false
	}
	return name, true
}

func (r *run) setDetail(file, header string, d detail) {
	byHeader, ok := r.details[file]
	if !ok {
		byHeader = make(map[string]detail)
		r.details[file] = byHeader
	}
	byHeader[header] = d
}

// mzIndex finds supplied mzXML headers by relative path or file stem.
type mzIndex struct {
	byPath map[string]mzxml.Header
	byStem map[string][]mzxml.Header
}

func newMzIndex(headers []mzxml.Header) *mzIndex {
	idx := &mzIndex{byPath: make(map[string]mzxml.Header), byStem: make(map[string][]mzxml.Header)}
	for _, h := range headers {
		idx.byPath[cleanFile(h.Path)] = h
		idx.byStem[h.Name()] = append(idx.byStem[h.Name()], h)
	}
	return idx
}

// find resolves an explicit mzXML File Name cell, or the header's own name
// when the cell is blank. Only a unique stem match counts.
func (m *mzIndex) find(ref string) (mzxml.Header, bool) {
	if h, ok := m.byPath[cleanFile(ref)]; ok {
		return h, true
	}
	candidates := m.byStem[mzxml.Stem(ref)]
	if len(candidates) == 1 {
		return candidates[0], true
	}
	return mzxml.Header{}, false
}

func sampleNames(view domain.TransactionView) []string {
	samples := domain.List[domain.Sample](view)
	out := make([]string, len(samples))
	for i, s := range samples {
		out[i] = s.Name
	}
	return out
}

func (r *run) loadAnnotationDetails(sheet *workbook.Sheet) {
	rows, rejected, ok := r.parseRows(sheet)
	if !ok {
		return
	}
	// Rejected rows still claim their sample column, so the column is not
	// reported again as missing while loading peak groups.
	for _, row := range rejected {
		if file, ok := r.canonicalFile(row.Get(ColAnnotFileName)); ok && row.Get(ColSampleDataHeader) != "" {
			r.setDetail(file, row.Get(ColSampleDataHeader), detail{Failed: true})
		}
	}
	resolver := r.sequenceResolver()
	matcher := resolve.NewSampleMatcher(sampleNames(r.view))
	mz := newMzIndex(r.sub.MzXML)
	split := r.splitSequenceRows(rows)

	// Explicit sequences feed directory inference for the rows that lack one.
	for _, f := range rows {
		seq := f.Str(ColSequence)
		if seq == "" || split[f.Row] {
			continue
		}
		file, ok := r.canonicalFile(f.Str(ColAnnotFileName))
		if !ok {
			continue
		}
		if ref, err := notation.ParseSequenceName(seq); err == nil {
			resolver.Observe(file, ref.Name())
		}
	}

	used := make(map[string]bool)
	for _, f := range rows {
		loc := r.sheetLoc(SheetAnnotationDets).WithRow(f.Row)
		header := f.Str(ColSampleDataHeader)
		raw := f.Str(ColAnnotFileName)
		file, ok := r.canonicalFile(raw)
		if !ok {
			r.reference(&exceptions.RecordDoesNotExistError{Entity: domain.EntityPeakAnnotationFile, Key: raw}, domain.EntityPeakAnnotationFile, cleanFile(raw), loc.WithColumn(ColAnnotFileName))
			r.outcome(SheetAnnotationDets, false)
			continue
		}
		if split[f.Row] {
			r.setDetail(file, header, detail{Failed: true})
			r.outcome(SheetAnnotationDets, false)
			continue
		}
		if f.Bool(ColSkip) {
			r.setDetail(file, header, detail{Skip: true})
			r.l.metrics.Row(SheetAnnotationDets, "skipped")
			continue
		}
		if !r.loadDetail(f, file, header, matcher, mz, used, loc) {
			r.setDetail(file, header, detail{Failed: true})
			r.outcome(SheetAnnotationDets, false)
			continue
		}
		r.outcome(SheetAnnotationDets, true)
	}
	r.loadOrphanMzXML(matcher, used)
}

// splitSequenceRows finds sample columns of one file listed on several rows
// that differ only in Sequence. A column holds one run, so every such row is
// rejected. The returned set holds their row numbers.
func (r *run) splitSequenceRows(rows []Fields) map[int]bool {
	byColumn := make(map[string][]int)
	var order []string
	for _, f := range rows {
		file, ok := r.canonicalFile(f.Str(ColAnnotFileName))
		if !ok {
			continue
		}
		k := f.Str(ColSampleDataHeader) + ", " + file
		if _, seen := byColumn[k]; !seen {
			order = append(order, k)
		}
		byColumn[k] = append(byColumn[k], f.Row)
	}
	out := make(map[int]bool)
	for _, k := range order {
		rows := byColumn[k]
		if len(rows) < 2 {
			continue
		}
		r.agg.Error(&exceptions.DuplicateValuesError{
			Sheet: SheetAnnotationDets, Columns: []string{ColSampleDataHeader, ColAnnotFileName}, Value: k, Rows: rows,
		}, r.sheetLoc(SheetAnnotationDets).WithRow(rows[0]))
		for _, n := range rows {
			out[n] = true
		}
	}
	return out
}

func (r *run) loadDetail(f Fields, file, header string, matcher *resolve.SampleMatcher, mz *mzIndex, used map[string]bool, loc exceptions.Location) bool {
	sample, sampleOK := r.detailSample(f, file, header, matcher, loc)

	rec := domain.MSRunSample{SampleName: sample, Header: header}
	ref := f.Str(ColMzXMLFile)
	lookup := ref
	if lookup == "" {
		lookup = header
	}
	if h, ok := mz.find(lookup); ok {
		rec.MzXML = h.Path
		rec.Polarity = h.Polarity
		rec.MzMin = h.MzMin
		rec.MzMax = h.MzMax
	} else if ref != "" {
		rec.MzXML = cleanFile(ref)
	}

	res, err := r.sequenceResolver().Resolve(f.Str(ColSequence), file, rec.MzXML)
	if err != nil {
		var missing *exceptions.RecordDoesNotExistError
		if errors.As(err, &missing) {
			r.reference(err, missing.Entity, missing.Key, loc.WithColumn(ColSequence))
		} else {
			r.agg.Error(err, loc.WithColumn(ColSequence))
		}
		return false
	}
	for _, w := range res.Warnings {
		r.agg.Warn(w, loc.WithColumn(ColSequence))
	}
	if !sampleOK {
		return false
	}
	rec.SequenceName = res.Sequence
	if !r.upsert(loc, rec) {
		return false
	}
	if rec.MzXML != "" {
		used[rec.MzXML] = true
	}
	r.setDetail(file, header, detail{Sample: sample, MSRunSample: rec.Key()})
	return true
}

// detailSample resolves the row's sample from the Sample Name cell, falling
// back to matching the header itself.
func (r *run) detailSample(f Fields, file, header string, matcher *resolve.SampleMatcher, loc exceptions.Location) (string, bool) {
	if name := f.Str(ColSampleName); name != "" {
		return name, r.exists(domain.EntitySample, name, loc.WithColumn(ColSampleName))
	}
	match, err := matcher.Match(file, header)
	if err != nil {
		r.agg.Error(err, loc.WithColumn(ColSampleDataHeader))
		return "", false
	}
	if match.Assumed {
		r.agg.Warn(&exceptions.AssumedSampleHeaderMatchWarning{File: file, Header: header, Sample: match.Sample}, loc.WithColumn(ColSampleDataHeader))
	}
	return match.Sample, true
}

// loadOrphanMzXML registers MSRunSamples for supplied mzXML files that no
// detail row claimed. Their sequence comes from directory inference or the
// study default.
func (r *run) loadOrphanMzXML(matcher *resolve.SampleMatcher, used map[string]bool) {
	for _, h := range r.sub.MzXML {
		if used[h.Path] {
			continue
		}
		loc := exceptions.Location{File: h.Path}
		match, err := matcher.Match(h.Path, h.Name())
		if err != nil {
			r.agg.Warn(err, loc)
			continue
		}
		res, err := r.sequenceResolver().Resolve("", "", h.Path)
		if err != nil {
			r.agg.Error(err, loc)
			continue
		}
		for _, w := range res.Warnings {
			r.agg.Warn(w, loc)
		}
		r.upsert(loc, domain.MSRunSample{
			SequenceName: res.Sequence,
			SampleName:   match.Sample,
			Header:       h.Name(),
			MzXML:        h.Path,
			Polarity:     h.Polarity,
			MzMin:        h.MzMin,
			MzMax:        h.MzMax,
		})
	}
}

func (r *run) loadPeakGroupConflicts(sheet *workbook.Sheet) {
	rows, ok := r.rows(sheet)
	if !ok {
		return
	}
	idx := resolve.NewCompoundIndex(r.view)
	var selections []conflicts.Selection
	for _, f := range rows {
		loc := r.sheetLoc(SheetConflicts).WithRow(f.Row)
		sel := conflicts.Selection{Row: f.Row, Samples: f.List(conflicts.ColCommonSamples)}
		valid := true
		for _, name := range f.List(conflicts.ColConflict) {
			primary, err := idx.Resolve(name)
			if err != nil {
				r.reference(err, domain.EntityCompound, name, loc.WithColumn(conflicts.ColConflict))
				valid = false
				continue
			}
			sel.Compounds = append(sel.Compounds, primary)
		}
		if raw := f.Str(conflicts.ColSelected); raw != "" {
			file, ok := r.canonicalFile(raw)
			if !ok {
				r.reference(&exceptions.RecordDoesNotExistError{Entity: domain.EntityPeakAnnotationFile, Key: raw}, domain.EntityPeakAnnotationFile, cleanFile(raw), loc.WithColumn(conflicts.ColSelected))
				valid = false
			}
			sel.Selected = file
		}
		r.outcome(SheetConflicts, valid)
		if valid {
			selections = append(selections, sel)
		}
	}
	res, errs := conflicts.NewResolutions(selections)
	for _, err := range errs {
		r.agg.Error(err, r.sheetLoc(SheetConflicts))
	}
	r.resolutions = res
}

// fileJob is one supplied peak annotation file with its settled format.
type fileJob struct {
	file   AnnotationFile
	format peakannot.Format
	table  *peakannot.Table
	agg    *exceptions.Aggregator
	err    error
}

// normalizeAll settles each supplied file's format, then normalizes the files
// concurrently. Each file reports into its own aggregator, merged in file
// order afterwards.
func (r *run) normalizeAll() []*fileJob {
	var jobs []*fileJob
	for _, af := range r.sub.AnnotationFiles {
		loc := exceptions.Location{File: af.Path}
		declared := ""
		if r.listed != nil {
			lf, ok := r.listed[af.Path]
			if !ok {
				if _, stored := r.view.Find(domain.EntityPeakAnnotationFile, af.Path); !stored {
					r.agg.Error(&exceptions.UnknownAnnotationFileError{File: af.Path}, loc)
					continue
				}
			}
			declared = lf.Format
		}
		if declared == "" {
			if rec, ok := domain.Find[domain.PeakAnnotationFile](r.view, af.Path); ok {
				declared = rec.Format
			}
		}
		format, err := peakannot.Resolve(af.Workbook, declared)
		if err != nil {
			r.agg.Error(err, loc)
			continue
		}
		jobs = append(jobs, &fileJob{file: af, format: format, agg: exceptions.New()})
	}

	return normalizeJobs(r.ctx, jobs, r.l.opts.ReadConcurrency, r.agg)
}

// normalizeJobs normalizes the jobs with at most limit in flight and returns
// the ones that produced a table.
func normalizeJobs(ctx context.Context, jobs []*fileJob, limit int, agg *exceptions.Aggregator) []*fileJob {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			job.table, job.err = peakannot.Normalize(job.file.Workbook, job.format, job.agg)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*fileJob, 0, len(jobs))
	for _, job := range jobs {
		agg.Merge(job.agg)
		if job.err != nil {
			agg.Error(job.err, exceptions.Location{File: job.file.Path})
			continue
		}
		if job.table == nil {
			continue
		}
		out = append(out, job)
	}
	return out
}

// headerPlan is one sample column of a file mapped to its MSRunSample.
type headerPlan struct {
	Header      string
	Sample      string
	MSRunSample string
}

// groupPlan is the rows of one compound set within a file.
type groupPlan struct {
	Name      string
	Compounds []string
	Formula   string
	Rows      []peakannot.Row
}

type filePlan struct {
	File    string
	Headers []headerPlan
	Groups  []*groupPlan
}

func (p *filePlan) samples() []string {
	seen := make(map[string]bool)
	var out []string
	for _, h := range p.Headers {
		if !seen[h.Sample] {
			seen[h.Sample] = true
			out = append(out, h.Sample)
		}
	}
	return out
}

func (r *run) loadPeakAnnotations(_ *workbook.Sheet) {
	if len(r.sub.AnnotationFiles) == 0 {
		return
	}
	jobs := r.normalizeAll()
	idx := resolve.NewCompoundIndex(r.view)
	matcher := resolve.NewSampleMatcher(sampleNames(r.view))
	detector := conflicts.NewDetector()

	plans := make([]*filePlan, 0, len(jobs))
	for _, job := range jobs {
		plan := r.planFile(job, idx, matcher)
		samples := plan.samples()
		for _, g := range plan.Groups {
			detector.Observe(plan.File, g.Compounds, samples)
		}
		plans = append(plans, plan)
	}

	existing := existingPeakGroups(r.view)
	multiples := newMultipleReport()
	for _, plan := range plans {
		for _, g := range plan.Groups {
			var batch []pendingPeakGroup
			for _, h := range plan.Headers {
				if p, ok := r.planPeakGroup(plan.File, g, h, detector, existing, multiples); ok {
					batch = append(batch, p)
				}
			}
			r.writePeakGroups(batch)
		}
	}
	multiples.flush(r.agg)
}

// planFile maps the sample columns and compounds of one normalized file.
func (r *run) planFile(job *fileJob, idx *resolve.CompoundIndex, matcher *resolve.SampleMatcher) *filePlan {
	file := job.file.Path
	loc := exceptions.Location{File: file}
	plan := &filePlan{File: file}

	details, hasDetails := r.details[file]
	var (
		sequence    string
		sequenceErr error
		resolved    bool
	)
	for _, header := range job.table.Samples {
		if hasDetails {
			d, ok := details[header]
			switch {
			case !ok:
				r.agg.Error(&exceptions.MissingSampleError{File: file, Header: header}, loc.WithColumn(header))
			case d.Skip, d.Failed:
			default:
				plan.Headers = append(plan.Headers, headerPlan{Header: header, Sample: d.Sample, MSRunSample: d.MSRunSample})
			}
			continue
		}
		match, err := matcher.Match(file, header)
		if err != nil {
			r.agg.Error(err, loc.WithColumn(header))
			continue
		}
		if match.Assumed {
			r.agg.Warn(&exceptions.AssumedSampleHeaderMatchWarning{File: file, Header: header, Sample: match.Sample}, loc.WithColumn(header))
		}
		if !resolved {
			res, err := r.sequenceResolver().Resolve("", file, "")
			sequence, sequenceErr, resolved = res.Sequence, err, true
			if err != nil {
				r.agg.Error(err, loc)
			}
		}
		if sequenceErr != nil {
			continue
		}
		rec := domain.MSRunSample{SequenceName: sequence, SampleName: match.Sample, Header: header}
		if r.upsert(loc.WithColumn(header), rec) {
			plan.Headers = append(plan.Headers, headerPlan{Header: header, Sample: match.Sample, MSRunSample: rec.Key()})
		}
	}

	missing := make(map[string]bool)
	byKey := make(map[string]*groupPlan)
	for _, row := range job.table.Rows {
		names := row.Compounds
		if len(names) == 0 {
			names = peakannot.SplitCompounds(row.Compound)
		}
		primaries := make([]string, 0, len(names))
		ok := true
		for _, name := range names {
			primary, err := idx.Resolve(name)
			if err != nil {
				ok = false
				if missing[name] {
					continue
				}
				missing[name] = true
				var absent *exceptions.RecordDoesNotExistError
				if errors.As(err, &absent) {
					r.agg.Error(&exceptions.MissingCompoundError{File: file, Compound: name}, loc.WithRow(row.Source))
				} else {
					r.agg.Error(err, loc.WithRow(row.Source))
				}
				continue
			}
			primaries = append(primaries, primary)
		}
		if !ok {
			continue
		}
		key := domain.CompoundSetKey(primaries)
		g, seen := byKey[key]
		if !seen {
			sort.Strings(primaries)
			g = &groupPlan{Name: row.Compound, Compounds: primaries, Formula: row.Formula}
			byKey[key] = g
			plan.Groups = append(plan.Groups, g)
		}
		g.Rows = append(g.Rows, row)
	}
	return plan
}

// existingPeakGroups indexes stored peak groups by compound set and sample.
func existingPeakGroups(view domain.TransactionView) map[string][]domain.PeakGroup {
	out := make(map[string][]domain.PeakGroup)
	for _, pg := range domain.List[domain.PeakGroup](view) {
		k := domain.CompoundSetKey(pg.Compounds) + "|" + pg.SampleName
		out[k] = append(out[k], pg)
	}
	return out
}

// pendingPeakGroup is a peak group ready to be written, with the
// representations from other files it replaces.
type pendingPeakGroup struct {
	rec      domain.PeakGroup
	previous []domain.PeakGroup
	loc      exceptions.Location
}

func (p pendingPeakGroup) apply(tx domain.Transaction) error {
	for _, pg := range p.previous {
		if _, ok := tx.Find(domain.EntityPeakGroup, pg.Key()); !ok {
			// Another sample column of the same sample replaced it already.
			continue
		}
		if err := tx.Delete(domain.EntityPeakGroup, pg.Key()); err != nil {
			return err
		}
	}
	return upsertTx(tx, p.rec)
}

// planPeakGroup decides whether the peak group of g for sample column h is
// written. Peak groups that are not written have their outcome recorded here.
func (r *run) planPeakGroup(file string, g *groupPlan, h headerPlan, detector *conflicts.Detector, existing map[string][]domain.PeakGroup, multiples *multipleReport) (pendingPeakGroup, bool) {
	loc := exceptions.Location{File: file, Column: h.Header}
	selected, resolvedHere := r.resolutions.Selected(g.Compounds, h.Sample)
	if detector.State(g.Compounds, h.Sample) == conflicts.ConflictingRepresentations {
		if !resolvedHere {
			multiples.add(g.Compounds, detector.Files(g.Compounds, h.Sample), h.Sample)
			r.l.metrics.Row(StagePeakAnnotations, "failed")
			return pendingPeakGroup{}, false
		}
		if selected != file {
			r.l.metrics.Row(StagePeakAnnotations, "skipped")
			return pendingPeakGroup{}, false
		}
	}

	var previous []domain.PeakGroup
	for _, pg := range existing[domain.CompoundSetKey(g.Compounds)+"|"+h.Sample] {
		if pg.AnnotationFile != file {
			previous = append(previous, pg)
		}
	}
	if len(previous) > 0 && (!resolvedHere || selected != file) {
		if resolvedHere {
			// A resolution kept the previously loaded file.
			r.l.metrics.Row(StagePeakAnnotations, "skipped")
			return pendingPeakGroup{}, false
		}
		files := []string{file}
		for _, pg := range previous {
			files = append(files, pg.AnnotationFile)
		}
		multiples.add(g.Compounds, files, h.Sample)
		r.l.metrics.Row(StagePeakAnnotations, "failed")
		return pendingPeakGroup{}, false
	}

	rec := domain.PeakGroup{
		Name:           g.Name,
		Compounds:      g.Compounds,
		Formula:        g.Formula,
		SampleName:     h.Sample,
		MSRunSample:    h.MSRunSample,
		AnnotationFile: file,
		Peaks:          peaksFor(g.Rows, h.Header),
	}
	return pendingPeakGroup{rec: rec, previous: previous, loc: loc}, true
}

// writePeakGroups writes the peak groups of one compound set in one file in
// a single transaction. When that fails, each is retried on its own so that
// only the failing columns are rejected and reported.
func (r *run) writePeakGroups(batch []pendingPeakGroup) {
	if len(batch) == 0 {
		return
	}
	if len(batch) > 1 {
		res, err := r.l.store.RunInTransaction(r.ctx, func(tx domain.Transaction) error {
			for _, p := range batch {
				if err := p.apply(tx); err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil {
			locs := make(map[string]exceptions.Location, len(batch))
			for _, p := range batch {
				locs[p.rec.Key()] = p.loc
			}
			for _, v := range res.Violations {
				loc, ok := locs[v.Key]
				if !ok {
					loc = batch[0].loc
				}
				r.agg.Warn(&exceptions.RuleViolationError{Violation: v}, loc)
			}
			for _, p := range batch {
				r.replaced(p)
				r.outcome(StagePeakAnnotations, true)
			}
			return
		}
		r.l.log.Debug("loader: peak group batch failed, retrying per sample", "file", batch[0].loc.File, "peak_groups", len(batch), "error", err)
	}
	for _, p := range batch {
		ok := r.write(p.loc, domain.EntityPeakGroup, p.rec.Key(), p.apply)
		if ok {
			r.replaced(p)
		}
		r.outcome(StagePeakAnnotations, ok)
	}
}

func (r *run) replaced(p pendingPeakGroup) {
	for _, pg := range p.previous {
		r.agg.Warn(&exceptions.ReplacingPeakGroupRepresentationWarning{
			Compounds: p.rec.Compounds, Sample: p.rec.SampleName, Previous: pg.AnnotationFile, Selected: p.rec.AnnotationFile,
		}, p.loc)
	}
}

func peaksFor(rows []peakannot.Row, header string) []domain.PeakData {
	var out []domain.PeakData
	for _, row := range rows {
		corrected, ok := row.Corrected[header]
		if !ok {
			continue
		}
		pd := domain.PeakData{Labels: row.Labels, CorrectedAbundance: corrected, MedMz: row.MedMz, MedRt: row.MedRt}
		if raw, ok := row.Raw[header]; ok {
			pd.RawAbundance = &raw
		}
		out = append(out, pd)
	}
	return out
}

// multipleReport collapses unresolved multiple representations into one
// exception per compound set and file set.
type multipleReport struct {
	order []string
	byKey map[string]*exceptions.MultiplePeakGroupRepresentationError
}

func newMultipleReport() *multipleReport {
	return &multipleReport{byKey: make(map[string]*exceptions.MultiplePeakGroupRepresentationError)}
}

func (m *multipleReport) add(compounds, files []string, sample string) {
	files = append([]string(nil), files...)
	sort.Strings(files)
	key := domain.CompoundSetKey(compounds) + "|" + strings.Join(files, ";")
	e, ok := m.byKey[key]
	if !ok {
		e = &exceptions.MultiplePeakGroupRepresentationError{Compounds: compounds, Files: files}
		m.byKey[key] = e
		m.order = append(m.order, key)
	}
	for _, s := range e.Samples {
		if s == sample {
			return
		}
	}
	e.Samples = append(e.Samples, sample)
}

func (m *multipleReport) flush(agg *exceptions.Aggregator) {
	for _, key := range m.order {
		e := m.byKey[key]
		sort.Strings(e.Samples)
		agg.Error(e, exceptions.Location{File: e.Files[0]})
	}
}
