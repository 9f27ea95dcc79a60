// Command tracebase-load validates and loads TraceBase study submissions and
// generates Study Doc templates from peak annotation files.
//
//	tracebase-load validate -dir study/ -study-doc study.xlsx
//	tracebase-load load     -dir study/ -study-doc study.xlsx
//	tracebase-load start    -dir study/ [-draft study.xlsx] -out study.xlsx
//	tracebase-load serve    -addr :8080
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tracebase/internal/adapters/submissions"
	"tracebase/internal/blob"
	"tracebase/internal/config"
	"tracebase/internal/core"
	"tracebase/internal/exceptions"
	"tracebase/internal/loader"
	"tracebase/internal/metrics"
	"tracebase/internal/platform/logger"
	"tracebase/internal/workbook"
)

var exitFunc = os.Exit

const usage = `usage: tracebase-load <validate|load|start|serve> [flags]`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, usage)
		return 2
	}
	switch args[0] {
	case "validate", "load":
		return runSubmission(ctx, args[0], args[1:], stdout, stderr)
	case "start":
		return runStart(ctx, args[1:], stdout, stderr)
	case "serve":
		return runServe(ctx, args[1:], stderr)
	case "help", "-h", "--help":
		_, _ = fmt.Fprintln(stdout, usage)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n%s\n", args[0], usage)
		return 2
	}
}

// common holds the flags every subcommand accepts.
type common struct {
	configPath      string
	suppress        bool
	defaultSequence string
	variant         string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "path to a YAML config file")
	fs.BoolVar(&c.suppress, "suppress-dependent-errors", false, "hide errors caused by rows that already failed")
	fs.StringVar(&c.defaultSequence, "default-sequence", "", "study wide fallback sequence name")
	fs.StringVar(&c.variant, "variant", "", "pipeline variant, e.g. metadata")
}

// env is a configured service and the resources it holds.
type env struct {
	cfg     config.Config
	log     *logger.Logger
	svc     *core.Service
	closeFn func() error
}

func (e *env) Close() {
	if e.closeFn != nil {
		if err := e.closeFn(); err != nil {
			e.log.Warn("close store", "error", err)
		}
	}
	e.log.Sync()
}

func setup(ctx context.Context, c common, fs *flag.FlagSet, reg prometheus.Registerer) (*env, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "suppress-dependent-errors":
			cfg.Pipeline.SuppressDependentErrors = c.suppress
		case "default-sequence":
			cfg.Pipeline.DefaultSequence = c.defaultSequence
		case "variant":
			cfg.Pipeline.Variant = c.variant
		}
	})
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, err
	}
	graph, err := cfg.Graph()
	if err != nil {
		return nil, err
	}
	rec, err := metrics.NewRecorder(reg)
	if err != nil {
		return nil, err
	}
	store, closeFn, err := core.OpenPersistentStore(ctx, cfg.StorageConfig(), core.NewDefaultRulesEngine())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	opts := []core.Option{
		core.WithLogger(log),
		core.WithMetrics(rec),
		core.WithLoaderOptions(cfg.LoaderOptions()),
		core.WithGraph(graph),
	}
	if cfg.ArchiveEnabled() {
		bs, err := blob.Open(ctx, cfg.BlobConfig())
		if err != nil {
			_ = closeFn()
			return nil, fmt.Errorf("open archive: %w", err)
		}
		opts = append(opts, core.WithArchiver(blob.NewArchiver(bs)))
	}
	return &env{cfg: cfg, log: log, svc: core.NewService(store, opts...), closeFn: closeFn}, nil
}

func runSubmission(ctx context.Context, op string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(op, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	dir := fs.String("dir", ".", "submission directory")
	studyDoc := fs.String("study-doc", "", "Study Doc path relative to -dir")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *studyDoc == "" {
		_, _ = fmt.Fprintln(stderr, "-study-doc is required")
		return 2
	}

	e, err := setup(ctx, c, fs, nil)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", op, err)
		return 1
	}
	defer e.Close()

	sub, err := loader.ReadDir(ctx, *dir, *studyDoc, e.cfg.Pipeline.ReadConcurrency)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%s: read submission: %v\n", op, err)
		return 1
	}
	run := e.svc.Validate
	if op == "load" {
		run = e.svc.Load
	}
	report, err := run(ctx, sub)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", op, err)
		return 1
	}
	if err := printReport(stdout, report, *asJSON); err != nil {
		return 1
	}
	if report.HasFatal() {
		return 1
	}
	return 0
}

// formatFlags collects repeated -format path=format pairs.
type formatFlags map[string]string

func (f formatFlags) String() string { return fmt.Sprint(map[string]string(f)) }

func (f formatFlags) Set(v string) error {
	path, format, ok := strings.Cut(v, "=")
	if !ok || path == "" || format == "" {
		return fmt.Errorf("expected path=format, got %q", v)
	}
	f[filepath.ToSlash(path)] = format
	return nil
}

func runStart(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	dir := fs.String("dir", ".", "directory of peak annotation and mzXML files")
	draft := fs.String("draft", "", "earlier Study Doc draft relative to -dir")
	out := fs.String("out", "study.xlsx", "template output path")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	formats := formatFlags{}
	fs.Var(formats, "format", "declare a file format as path=format (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	e, err := setup(ctx, c, fs, nil)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "start: %v\n", err)
		return 1
	}
	defer e.Close()

	sub, err := loader.ReadDir(ctx, *dir, *draft, e.cfg.Pipeline.ReadConcurrency)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "start: read files: %v\n", err)
		return 1
	}
	tmpl, report, err := e.svc.Start(ctx, loader.StartRequest{
		StudyDoc:        sub.StudyDoc,
		AnnotationFiles: sub.AnnotationFiles,
		MzXML:           sub.MzXML,
		Formats:         formats,
		DefaultSequence: e.cfg.Pipeline.DefaultSequence,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "start: %v\n", err)
		return 1
	}
	if err := writeTemplate(*out, tmpl.Workbook); err != nil {
		_, _ = fmt.Fprintf(stderr, "start: %v\n", err)
		return 1
	}
	if err := printReport(stdout, report, *asJSON); err != nil {
		return 1
	}
	if report.HasFatal() {
		return 1
	}
	return 0
}

func writeTemplate(path string, wb *workbook.Workbook) (err error) {
	f, err := os.Create(path) // #nosec G304 -- operator supplied output path
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close template: %w", cerr)
		}
	}()
	return workbook.WriteXLSX(f, wb)
}

func runServe(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	addr := fs.String("addr", ":8080", "listen address")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	reg := prometheus.NewRegistry()
	e, err := setup(ctx, c, fs, reg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "serve: %v\n", err)
		return 1
	}
	defer e.Close()

	mux := http.NewServeMux()
	mux.Handle("/api/v1/submissions/", submissions.NewHandler(e.svc))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	e.log.Info("serving", "addr", *addr)
	select {
	case err = <-errCh:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = srv.Shutdown(shutdownCtx)
		cancel()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		e.log.Error("server stopped", "error", err)
		return 1
	}
	return 0
}

func printReport(w io.Writer, report exceptions.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range report.Entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", strings.ToUpper(string(e.Severity)), e.Class, e.Location, e.Message)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d errors, %d warnings\n", report.Errors, report.Warnings)
	return err
}
