// Package submissions exposes Study Doc validation and loading over HTTP.
package submissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"

	"tracebase/internal/exceptions"
	"tracebase/internal/loader"
	"tracebase/internal/mzxml"
	"tracebase/internal/workbook"
)

// Form field names of a submission upload.
const (
	FieldStudyDoc       = "study_doc"
	FieldAnnotationFile = "annotation_file"
	FieldMzXML          = "mzxml"
)

const defaultMaxUpload = 256 << 20

// Pipeline runs uploaded submissions.
type Pipeline interface {
	Validate(ctx context.Context, sub *loader.Submission) (exceptions.Report, error)
	Load(ctx context.Context, sub *loader.Submission) (exceptions.Report, error)
}

// Handler accepts multipart submissions on
//
//	POST /api/v1/submissions/validate
//	POST /api/v1/submissions/load
//
// and answers with the exception report.
type Handler struct {
	Pipeline Pipeline
	// MaxUpload bounds the request body in bytes.
	MaxUpload int64
}

// NewHandler constructs a submission HTTP handler.
func NewHandler(p Pipeline) *Handler {
	return &Handler{Pipeline: p, MaxUpload: defaultMaxUpload}
}

type reportResponse struct {
	Valid  bool              `json:"valid"`
	Report exceptions.Report `json:"report"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Pipeline == nil {
		writeError(w, http.StatusInternalServerError, "submission pipeline not configured")
		return
	}
	var run func(context.Context, *loader.Submission) (exceptions.Report, error)
	switch strings.TrimSuffix(r.URL.Path, "/") {
	case "/api/v1/submissions/validate":
		run = h.Pipeline.Validate
	case "/api/v1/submissions/load":
		run = h.Pipeline.Load
	default:
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := h.MaxUpload
	if limit <= 0 {
		limit = defaultMaxUpload
	}
	if r.ContentLength > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "submission too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "submission too large")
			return
		}
		writeError(w, http.StatusBadRequest, "expected multipart form: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	sub, err := submissionFromForm(r.MultipartForm)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := run(r.Context(), sub)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{Valid: !report.HasFatal(), Report: report})
}

func submissionFromForm(form *multipart.Form) (*loader.Submission, error) {
	docs := form.File[FieldStudyDoc]
	if len(docs) != 1 {
		return nil, fmt.Errorf("exactly one %s file is required", FieldStudyDoc)
	}
	data, err := readPart(docs[0])
	if err != nil {
		return nil, err
	}
	wb, err := workbook.Decode(docs[0].Filename, data)
	if err != nil {
		return nil, fmt.Errorf("study doc: %w", err)
	}
	sub := &loader.Submission{StudyDoc: wb, StudyDocData: data}

	seen := make(map[string]bool)
	for _, fh := range form.File[FieldAnnotationFile] {
		if seen[fh.Filename] {
			return nil, fmt.Errorf("annotation file %s uploaded twice", fh.Filename)
		}
		seen[fh.Filename] = true
		data, err := readPart(fh)
		if err != nil {
			return nil, err
		}
		f, err := loader.NewAnnotationFile(fh.Filename, data)
		if err != nil {
			return nil, fmt.Errorf("annotation file %s: %w", fh.Filename, err)
		}
		sub.AnnotationFiles = append(sub.AnnotationFiles, f)
	}
	sort.Slice(sub.AnnotationFiles, func(i, j int) bool {
		return sub.AnnotationFiles[i].Path < sub.AnnotationFiles[j].Path
	})

	for _, fh := range form.File[FieldMzXML] {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		hdr, err := mzxml.ReadHeader(f, fh.Filename)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("mzxml %s: %w", fh.Filename, err)
		}
		sub.MzXML = append(sub.MzXML, hdr)
	}
	return sub, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
