// Package core wires the loading pipeline to a store: domain rules, store
// selection and the Validate, Load and Start operations.
package core

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"tracebase/internal/blob"
	"tracebase/internal/exceptions"
	"tracebase/internal/infra/persistence/memory"
	"tracebase/internal/loader"
	"tracebase/internal/metrics"
	"tracebase/internal/platform/logger"
	"tracebase/internal/workbook"
)

// Service runs submissions against a persistent store.
type Service struct {
	store    PersistentStore
	opts     loader.Options
	graph    *loader.Graph
	log      *logger.Logger
	metrics  *metrics.Recorder
	archiver *blob.Archiver
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(log *logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics sets the recorder for operation timings and pipeline counters.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(s *Service) { s.metrics = rec }
}

// WithArchiver archives every validated or loaded submission.
func WithArchiver(a *blob.Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

// WithLoaderOptions sets the pipeline options.
func WithLoaderOptions(opts loader.Options) Option {
	return func(s *Service) { s.opts = opts }
}

// WithGraph overrides the sheet dependency graph.
func WithGraph(g *loader.Graph) Option {
	return func(s *Service) { s.graph = g }
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, options ...Option) *Service {
	s := &Service{store: store, log: logger.Nop()}
	for _, o := range options {
		o(s)
	}
	return s
}

// NewInMemoryService creates a service over an in-memory store with the
// given rules engine.
func NewInMemoryService(engine *RulesEngine, options ...Option) *Service {
	return NewService(memory.NewStore(engine), options...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

func (s *Service) loader(store PersistentStore) *loader.Loader {
	return loader.New(store, s.opts,
		loader.WithLogger(s.log),
		loader.WithMetrics(s.metrics),
		loader.WithGraph(s.graph),
	)
}

// Validate runs the pipeline against a scratch copy of the current state.
// Nothing is committed.
func (s *Service) Validate(ctx context.Context, sub *loader.Submission) (exceptions.Report, error) {
	start := time.Now()
	report, err := s.validate(ctx, sub)
	s.metrics.Observe(ctx, "validate", err == nil && !report.HasFatal(), time.Since(start))
	if err != nil {
		s.log.Error("validate failed", "error", err)
		return report, err
	}
	s.log.Info("submission validated", "study_doc", sub.StudyDoc.Name, "errors", report.Errors, "warnings", report.Warnings)
	return report, s.archive(ctx, "validate", sub, report)
}

func (s *Service) validate(ctx context.Context, sub *loader.Submission) (exceptions.Report, error) {
	scratch := memory.NewStore(s.store.RulesEngine())
	scratch.ImportState(s.store.ExportState())
	return s.loader(scratch).Run(ctx, sub)
}

// Load validates sub and, when validation raised no errors, runs the
// pipeline against the store. A failed validation report is returned as is
// and the store is left untouched.
func (s *Service) Load(ctx context.Context, sub *loader.Submission) (exceptions.Report, error) {
	start := time.Now()
	report, err := s.validate(ctx, sub)
	if err == nil && !report.HasFatal() {
		report, err = s.loader(s.store).Run(ctx, sub)
	}
	s.metrics.Observe(ctx, "load", err == nil && !report.HasFatal(), time.Since(start))
	if err != nil {
		s.log.Error("load failed", "error", err)
		return report, err
	}
	if report.HasFatal() {
		s.log.Warn("submission rejected", "study_doc", sub.StudyDoc.Name, "errors", report.Errors)
	} else {
		s.log.Info("submission loaded", "study_doc", sub.StudyDoc.Name, "warnings", report.Warnings)
	}
	return report, s.archive(ctx, "load", sub, report)
}

// Start builds a Study Doc template from the supplied annotation files.
func (s *Service) Start(ctx context.Context, req loader.StartRequest) (loader.Template, exceptions.Report, error) {
	start := time.Now()
	tmpl, report, err := s.loader(s.store).Start(ctx, req)
	s.metrics.Observe(ctx, "start", err == nil && !report.HasFatal(), time.Since(start))
	if err != nil {
		s.log.Error("start failed", "error", err)
		return tmpl, report, err
	}
	s.log.Info("template generated", "files", len(req.AnnotationFiles), "conflicts", len(tmpl.Conflicts))
	return tmpl, report, nil
}

func (s *Service) archive(ctx context.Context, op string, sub *loader.Submission, report exceptions.Report) error {
	if s.archiver == nil {
		return nil
	}
	doc := sub.StudyDocData
	if doc == nil {
		var buf bytes.Buffer
		if err := workbook.WriteXLSX(&buf, sub.StudyDoc); err != nil {
			return fmt.Errorf("encode study doc: %w", err)
		}
		doc = buf.Bytes()
	}
	bundle := blob.Bundle{
		Study:     studyName(sub.StudyDoc),
		Operation: op,
		StudyDoc:  blob.File{Path: sub.StudyDoc.Name, Data: doc},
		Report:    report,
	}
	for _, f := range sub.AnnotationFiles {
		if f.Data != nil {
			bundle.AnnotationFiles = append(bundle.AnnotationFiles, blob.File{Path: f.Path, Data: f.Data})
		}
	}
	receipt, err := s.archiver.Archive(ctx, bundle)
	if err != nil {
		return err
	}
	s.log.Debug("submission archived", "id", receipt.ID, "blobs", len(receipt.Keys))
	return nil
}

func studyName(doc *workbook.Workbook) string {
	sheet, ok := doc.Sheet(loader.SheetStudy)
	if !ok {
		return ""
	}
	for _, row := range sheet.Rows {
		if name := row.Get(loader.ColStudyName); name != "" {
			return name
		}
	}
	return ""
}
