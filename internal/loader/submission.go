package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"tracebase/internal/mzxml"
	"tracebase/internal/workbook"
)

// AnnotationFile is one supplied peak annotation file.
type AnnotationFile struct {
	// Path is slash separated and relative to the submission root.
	Path     string
	Workbook *workbook.Workbook
	Checksum string
	// Data holds the file bytes as supplied, for archiving.
	Data []byte
}

// Submission is everything a pipeline run consumes: the Study Doc, the peak
// annotation files and the mzXML run headers.
type Submission struct {
	StudyDoc *workbook.Workbook
	// StudyDocData holds the Study Doc bytes as supplied, when read from disk.
	StudyDocData    []byte
	AnnotationFiles []AnnotationFile
	MzXML           []mzxml.Header
}

// NewAnnotationFile wraps decoded bytes, computing the checksum.
func NewAnnotationFile(rel string, data []byte) (AnnotationFile, error) {
	rel = filepath.ToSlash(rel)
	wb, err := workbook.Decode(path.Base(rel), data)
	if err != nil {
		return AnnotationFile{}, err
	}
	return AnnotationFile{Path: rel, Workbook: wb, Checksum: Checksum(data), Data: data}, nil
}

// Checksum returns the hex sha256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// AnnotationFile finds a supplied file by its relative path or, failing
// that, by a unique base name.
func (s *Submission) AnnotationFile(name string) (AnnotationFile, bool) {
	name = strings.TrimSpace(filepath.ToSlash(name))
	for _, f := range s.AnnotationFiles {
		if f.Path == name {
			return f, true
		}
	}
	var (
		found AnnotationFile
		n     int
	)
	base := path.Base(name)
	for _, f := range s.AnnotationFiles {
		if path.Base(f.Path) == base {
			found = f
			n++
		}
	}
	return found, n == 1
}

// ReadDir assembles a submission from a study directory. studyDoc names the
// Study Doc relative to root; every other workbook file is a peak annotation
// file. An empty studyDoc reads annotation files only, as template
// generation does. Files are decoded with at most limit in flight.
func ReadDir(ctx context.Context, root, studyDoc string, limit int) (*Submission, error) {
	if limit <= 0 {
		limit = 4
	}
	var rels []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, kerr := workbook.KindOf(d.Name()); kerr != nil {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rels = append(rels, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	studyDoc = filepath.ToSlash(studyDoc)

	sub := &Submission{}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, rel := range rels {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel))) // #nosec G304 -- walked submission path
			if err != nil {
				return err
			}
			if rel == studyDoc {
				wb, err := workbook.Decode(path.Base(rel), data)
				if err != nil {
					return err
				}
				mu.Lock()
				sub.StudyDoc, sub.StudyDocData = wb, data
				mu.Unlock()
				return nil
			}
			f, err := NewAnnotationFile(rel, data)
			if err != nil {
				return err
			}
			mu.Lock()
			sub.AnnotationFiles = append(sub.AnnotationFiles, f)
			mu.Unlock()
			return nil
		})
	}
	g.Go(func() error {
		headers, err := mzxml.ReadDir(gctx, root, limit)
		if err != nil {
			return err
		}
		mu.Lock()
		sub.MzXML = headers
		mu.Unlock()
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if studyDoc != "" && sub.StudyDoc == nil {
		return nil, fmt.Errorf("study doc %s not found under %s", studyDoc, root)
	}
	sort.Slice(sub.AnnotationFiles, func(i, j int) bool { return sub.AnnotationFiles[i].Path < sub.AnnotationFiles[j].Path })
	return sub, nil
}
