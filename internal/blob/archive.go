package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"tracebase/internal/exceptions"
)

const (
	archiveRoot = "submissions"
	xlsxType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// File is one archived submission file.
type File struct {
	// Path is slash separated and relative to the submission root.
	Path string
	Data []byte
}

// Bundle is everything archived for one submission.
type Bundle struct {
	Study           string
	Operation       string
	StudyDoc        File
	AnnotationFiles []File
	Report          exceptions.Report
}

// Receipt locates an archived bundle.
type Receipt struct {
	ID     string    `json:"id"`
	Prefix string    `json:"prefix"`
	Keys   []string  `json:"keys"`
	At     time.Time `json:"archived_at"`
}

// Archiver writes submission bundles under submissions/<uuid>/.
type Archiver struct {
	store Store
	newID func() string
	now   func() time.Time
}

// NewArchiver wraps store.
func NewArchiver(store Store) *Archiver {
	return &Archiver{
		store: store,
		newID: uuid.NewString,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Archive stores the study doc, every annotation file and the JSON report.
// A failed write leaves the blobs already written in place.
func (a *Archiver) Archive(ctx context.Context, b Bundle) (Receipt, error) {
	r := Receipt{ID: a.newID(), At: a.now()}
	r.Prefix = path.Join(archiveRoot, r.ID) + "/"
	md := map[string]string{"submission": r.ID}
	if b.Study != "" {
		md["study"] = b.Study
	}
	if b.Operation != "" {
		md["operation"] = b.Operation
	}

	put := func(key string, data []byte, contentType string) error {
		if _, err := a.store.Put(ctx, key, bytes.NewReader(data), PutOptions{ContentType: contentType, Metadata: md}); err != nil {
			return fmt.Errorf("archive %s: %w", key, err)
		}
		r.Keys = append(r.Keys, key)
		return nil
	}
	if b.StudyDoc.Path != "" {
		if err := put(r.Prefix+"study/"+path.Base(b.StudyDoc.Path), b.StudyDoc.Data, contentType(b.StudyDoc.Path)); err != nil {
			return r, err
		}
	}
	for _, f := range b.AnnotationFiles {
		if err := put(r.Prefix+"files/"+path.Clean(f.Path), f.Data, contentType(f.Path)); err != nil {
			return r, err
		}
	}
	report, err := json.MarshalIndent(b.Report, "", "  ")
	if err != nil {
		return r, fmt.Errorf("encode report: %w", err)
	}
	if err := put(r.Prefix+"report.json", report, "application/json"); err != nil {
		return r, err
	}
	return r, nil
}

// Report reads back the archived report of submission id.
func (a *Archiver) Report(ctx context.Context, id string) (exceptions.Report, error) {
	_, rc, err := a.store.Get(ctx, path.Join(archiveRoot, id, "report.json"))
	if err != nil {
		return exceptions.Report{}, err
	}
	defer func() { _ = rc.Close() }()
	var report exceptions.Report
	if err := json.NewDecoder(rc).Decode(&report); err != nil {
		return exceptions.Report{}, fmt.Errorf("decode report %s: %w", id, err)
	}
	return report, nil
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".xlsx", ".xlsm":
		return xlsxType
	case ".csv":
		return "text/csv"
	case ".tsv", ".txt":
		return "text/tab-separated-values"
	default:
		return "application/octet-stream"
	}
}
