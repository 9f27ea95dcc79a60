// Package loader runs the Study Doc sheet loaders in dependency order against
// a persistent store, collecting every row level problem in an exceptions
// Aggregator instead of stopping at the first one.
package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tracebase/internal/conflicts"
	"tracebase/internal/exceptions"
	"tracebase/internal/metrics"
	"tracebase/internal/platform/logger"
	"tracebase/internal/resolve"
	"tracebase/internal/workbook"
	"tracebase/pkg/domain"
)

// Options tune a pipeline run.
type Options struct {
	// SuppressDependentErrors hides reference errors whose target failed to
	// load earlier in the same run. They are counted in the stage log only.
	SuppressDependentErrors bool
	// DefaultSequence is the study wide last resort sequence name.
	DefaultSequence string
	// Variant selects a subset of stages; empty runs every stage.
	Variant string
	// ReadConcurrency bounds concurrent peak annotation file normalization.
	ReadConcurrency int
}

// Loader runs the sheet pipeline against a store.
type Loader struct {
	store   domain.PersistentStore
	opts    Options
	log     *logger.Logger
	metrics *metrics.Recorder
	graph   *Graph
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger used for stage progress.
func WithLogger(log *logger.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// WithMetrics sets the recorder for row and exception counters.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(l *Loader) { l.metrics = rec }
}

// WithGraph overrides the stage graph.
func WithGraph(g *Graph) Option {
	return func(l *Loader) {
		if g != nil {
			l.graph = g
		}
	}
}

// New constructs a Loader over store.
func New(store domain.PersistentStore, opts Options, options ...Option) *Loader {
	l := &Loader{store: store, opts: opts, log: logger.Nop()}
	for _, o := range options {
		o(l)
	}
	if l.graph == nil {
		l.graph = CurrentGraph(l.log)
	}
	if l.opts.ReadConcurrency <= 0 {
		l.opts.ReadConcurrency = 4
	}
	return l
}

type stageFunc func(r *run, sheet *workbook.Sheet)

var stageFuncs = map[string]stageFunc{
	StageStudy:              (*run).loadStudy,
	StageCompounds:          (*run).loadCompounds,
	StageTissues:            (*run).loadTissues,
	StageTreatments:         (*run).loadTreatments,
	StageTracers:            (*run).loadTracers,
	StageInfusates:          (*run).loadInfusates,
	StageAnimals:            (*run).loadAnimals,
	StageSamples:            (*run).loadSamples,
	StageSequences:          (*run).loadSequences,
	StageAnnotationFiles:    (*run).loadAnnotationFiles,
	StageAnnotationDetails:  (*run).loadAnnotationDetails,
	StagePeakGroupConflicts: (*run).loadPeakGroupConflicts,
	StagePeakAnnotations:    (*run).loadPeakAnnotations,
}

// detail is one Peak Annotation Details row, keyed by file and header.
type detail struct {
	Sample      string
	MSRunSample string
	Skip        bool
	// Failed rows are remembered so that their headers are not reported a
	// second time while loading peak groups.
	Failed bool
}

// listedFile is a Peak Annotation Files row that loaded.
type listedFile struct {
	Format   string
	Supplied bool
}

// run is the state of one pass over a submission.
type run struct {
	ctx context.Context
	l   *Loader
	sub *Submission
	agg *exceptions.Aggregator
	doc string

	stage      string
	view       domain.Snapshot
	suppressed int

	failed  map[domain.EntityType]map[string]bool
	aborted map[domain.EntityType]bool

	resolver    *resolve.SequenceResolver
	listed      map[string]listedFile
	details     map[string]map[string]detail
	resolutions *conflicts.Resolutions
}

// Run loads sub stage by stage and returns the validation report. The error
// is reserved for failures that are not submission problems: cancellation or
// a misconfigured stage graph.
func (l *Loader) Run(ctx context.Context, sub *Submission) (exceptions.Report, error) {
	if sub == nil || sub.StudyDoc == nil {
		return exceptions.Report{}, errors.New("submission has no study doc")
	}
	stages, err := l.graph.Order(l.opts.Variant)
	if err != nil {
		return exceptions.Report{}, err
	}
	for _, st := range stages {
		if _, ok := stageFuncs[st.Name]; !ok {
			return exceptions.Report{}, fmt.Errorf("no loader for stage %q", st.Name)
		}
	}

	r := &run{
		ctx:     ctx,
		l:       l,
		sub:     sub,
		agg:     exceptions.New(),
		doc:     sub.StudyDoc.Name,
		failed:  make(map[domain.EntityType]map[string]bool),
		aborted: make(map[domain.EntityType]bool),
		details: make(map[string]map[string]detail),
	}
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return exceptions.Report{}, err
		}
		r.runStage(st)
	}

	r.agg.RollUp()
	for _, e := range r.agg.Entries() {
		l.metrics.Exception(e.Class, string(e.Severity))
	}
	report := r.agg.Report()
	l.log.Info("loader: run finished", "study_doc", r.doc, "errors", report.Errors, "warnings", report.Warnings)
	return report, nil
}

func (r *run) runStage(st Stage) {
	start := time.Now()
	r.stage = st.Name
	r.suppressed = 0
	r.view = r.l.store.ExportState()
	before := r.agg.Len()

	var sheet *workbook.Sheet
	if st.Sheet != "" {
		s, ok := r.sub.StudyDoc.Sheet(st.Sheet)
		if !ok {
			if st.RequiredWithFiles && len(r.sub.AnnotationFiles) > 0 {
				r.agg.Error(&exceptions.SheetNotFoundError{File: r.doc, Sheet: st.Sheet}, exceptions.Location{File: r.doc})
				if schema, ok := Schemas[st.Sheet]; ok && schema.Entity != "" {
					r.aborted[schema.Entity] = true
				}
			}
			r.l.log.Debug("loader: sheet absent, stage skipped", "stage", st.Name, "sheet", st.Sheet)
			return
		}
		sheet = s
	}
	stageFuncs[st.Name](r, sheet)

	elapsed := time.Since(start)
	r.l.metrics.Stage(st.Name, elapsed)
	r.l.log.Info("loader: stage finished",
		"stage", st.Name,
		"sheet", st.Sheet,
		"exceptions", r.agg.Len()-before,
		"suppressed", r.suppressed,
		"duration", elapsed.String(),
	)
}

func (r *run) sheetLoc(sheet string) exceptions.Location {
	return exceptions.Location{File: r.doc, Sheet: sheet}
}

// rows validates the structure of sheet and returns its parsable rows. It
// returns false when the sheet aborted.
func (r *run) rows(sheet *workbook.Sheet) ([]Fields, bool) {
	out, _, ok := r.parseRows(sheet)
	return out, ok
}

// parseRows is rows that also returns the rows it rejected, either because a
// cell failed to parse or because the row repeats a unique key.
func (r *run) parseRows(sheet *workbook.Sheet) ([]Fields, []workbook.Row, bool) {
	schema := Schemas[sheet.Name]
	loc := r.sheetLoc(schema.Sheet)
	if errs := checkHeaders(sheet, schema); len(errs) > 0 {
		for _, err := range errs {
			r.agg.Error(err, loc)
		}
		if schema.Entity != "" {
			r.aborted[schema.Entity] = true
		}
		return nil, nil, false
	}
	skip := duplicateRows(sheet, schema, loc, r.agg)
	var (
		out      []Fields
		rejected []workbook.Row
	)
	for _, row := range sheet.Rows {
		if row.Empty() {
			continue
		}
		if skip[row.Number] {
			r.markRowFailed(schema, row)
			r.outcome(schema.Sheet, false)
			rejected = append(rejected, row)
			continue
		}
		f, ok := parseRow(schema, row, loc, r.agg)
		if !ok {
			r.markRowFailed(schema, row)
			r.outcome(schema.Sheet, false)
			rejected = append(rejected, row)
			continue
		}
		out = append(out, f)
	}
	return out, rejected, true
}

func (r *run) markRowFailed(schema Schema, row workbook.Row) {
	if schema.Entity == "" || schema.KeyColumn == "" {
		return
	}
	if key := row.Get(schema.KeyColumn); key != "" {
		r.fail(schema.Entity, key)
	}
}

func (r *run) outcome(sheet string, loaded bool) {
	if loaded {
		r.l.metrics.Row(sheet, "loaded")
		return
	}
	r.l.metrics.Row(sheet, "failed")
}

func (r *run) fail(entity domain.EntityType, key string) {
	set, ok := r.failed[entity]
	if !ok {
		set = make(map[string]bool)
		r.failed[entity] = set
	}
	set[key] = true
}

// dependent reports whether a missing reference is explained by an earlier
// failure in this run.
func (r *run) dependent(entity domain.EntityType, key string) bool {
	return r.aborted[entity] || r.failed[entity][key]
}

// reference reports a missing referenced record. When the target failed to
// load earlier and suppression is on, the error is counted but not reported.
func (r *run) reference(err error, entity domain.EntityType, key string, loc exceptions.Location) {
	if r.l.opts.SuppressDependentErrors && r.dependent(entity, key) {
		r.suppressed++
		return
	}
	r.agg.Error(err, loc)
}

// exists checks that key is stored as entity in the stage view, reporting a
// RecordDoesNotExistError at loc otherwise.
func (r *run) exists(entity domain.EntityType, key string, loc exceptions.Location) bool {
	if _, ok := r.view.Find(entity, key); ok {
		return true
	}
	r.reference(&exceptions.RecordDoesNotExistError{Entity: entity, Key: key}, entity, key, loc)
	return false
}

// upsert creates rec or additively merges it into the stored record with the
// same key, in a transaction of its own.
func (r *run) upsert(loc exceptions.Location, rec domain.Record) bool {
	return r.write(loc, rec.Entity(), rec.Key(), func(tx domain.Transaction) error {
		return upsertTx(tx, rec)
	})
}

func upsertTx(tx domain.Transaction, rec domain.Record) error {
	if _, ok := tx.Find(rec.Entity(), rec.Key()); ok {
		_, err := tx.MergeAdditive(rec)
		return err
	}
	_, err := tx.Create(rec)
	return err
}

// write runs fn in its own transaction. Failures are reported at loc and
// mark key as failed; non-blocking rule results become warnings.
func (r *run) write(loc exceptions.Location, entity domain.EntityType, key string, fn func(tx domain.Transaction) error) bool {
	res, err := r.l.store.RunInTransaction(r.ctx, fn)
	if err == nil {
		for _, v := range res.Violations {
			r.agg.Warn(&exceptions.RuleViolationError{Violation: v}, loc)
		}
		return true
	}
	r.report(loc, err)
	r.fail(entity, key)
	return false
}

func (r *run) report(loc exceptions.Location, err error) {
	var (
		conflict *domain.ConflictError
		rules    domain.RuleViolationError
	)
	switch {
	case errors.As(err, &conflict):
		if conflict.Entity == domain.EntityInfusate && concentrationsOnly(conflict.Conflicts) {
			r.agg.Error(&exceptions.InfusateNameCollisionError{Name: conflict.Key, Conflicts: conflict.Conflicts}, loc)
			return
		}
		r.agg.Error(&exceptions.ConflictingValueError{Entity: conflict.Entity, Key: conflict.Key, Conflicts: conflict.Conflicts}, loc)
	case errors.As(err, &rules):
		for _, v := range rules.Result.Violations {
			r.agg.Add(&exceptions.RuleViolationError{Violation: v}, v.Severity, loc)
		}
	default:
		r.agg.Error(err, loc)
	}
}

func concentrationsOnly(cs []domain.FieldConflict) bool {
	if len(cs) == 0 {
		return false
	}
	for _, c := range cs {
		if !strings.HasPrefix(c.Field, "concentration[") {
			return false
		}
	}
	return true
}

// sequenceResolver returns the run's resolver, built over the current view
// on first use so that it sees the sequences loaded so far.
func (r *run) sequenceResolver() *resolve.SequenceResolver {
	if r.resolver == nil {
		r.resolver = resolve.NewSequenceResolver(r.view, r.l.opts.DefaultSequence)
	}
	return r.resolver
}
