// Package mzxml reads the run level header of mzXML files: polarity and scan
// m/z range. Peak payloads are skipped, never decoded.
package mzxml

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/net/html/charset"
	"golang.org/x/sync/errgroup"
)

// Polarity values reported for a run.
const (
	PolarityPositive = "positive"
	PolarityNegative = "negative"
	PolarityMixed    = "mixed"
	PolarityUnknown  = ""
)

// Header is the (filename, polarity, scan range) tuple of one mzXML file.
type Header struct {
	// Path is slash separated and relative to the scanned root when read
	// through ReadDir.
	Path      string
	Polarity  string
	MzMin     *float64
	MzMax     *float64
	ScanCount int
}

// Name returns the file name without directory or extension, the form that
// is compared against sample data headers.
func (h Header) Name() string {
	return Stem(h.Path)
}

// Dir returns the slash separated directory of the file.
func (h Header) Dir() string {
	return dirOf(h.Path)
}

// Stem strips the directory and the .mzXML extension from a path.
func Stem(path string) string {
	base := path
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if ext := filepath.Ext(base); strings.EqualFold(ext, ".mzxml") {
		base = base[:len(base)-len(ext)]
	}
	return base
}

func dirOf(path string) string {
	p := strings.ReplaceAll(path, `\`, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[:i]
	}
	return "."
}

// IsMzXML reports whether name carries the mzXML extension.
func IsMzXML(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".mzxml")
}

// ReadHeader streams r and summarizes every <scan> element.
func ReadHeader(r io.Reader, path string) (Header, error) {
	h := Header{Path: path}
	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel

	polarities := make(map[string]struct{})
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Header{}, fmt.Errorf("parse mzXML %s: %w", path, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "scan":
			h.ScanCount++
			for _, attr := range start.Attr {
				switch attr.Name.Local {
				case "polarity":
					switch strings.TrimSpace(attr.Value) {
					case "+":
						polarities[PolarityPositive] = struct{}{}
					case "-":
						polarities[PolarityNegative] = struct{}{}
					}
				case "lowMz", "startMz":
					h.MzMin = minPtr(h.MzMin, attr.Value)
				case "highMz", "endMz":
					h.MzMax = maxPtr(h.MzMax, attr.Value)
				}
			}
		case "peaks":
			if err := d.Skip(); err != nil {
				return Header{}, fmt.Errorf("skip peaks in %s: %w", path, err)
			}
		}
	}
	switch len(polarities) {
	case 0:
		h.Polarity = PolarityUnknown
	case 1:
		for p := range polarities {
			h.Polarity = p
		}
	default:
		h.Polarity = PolarityMixed
	}
	return h, nil
}

func minPtr(cur *float64, raw string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return cur
	}
	if cur == nil || v < *cur {
		return &v
	}
	return cur
}

func maxPtr(cur *float64, raw string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return cur
	}
	if cur == nil || v > *cur {
		return &v
	}
	return cur
}

// ReadFile reads the header of one mzXML file on disk.
func ReadFile(path, rel string) (Header, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from a walked submission directory
	if err != nil {
		return Header{}, err
	}
	defer func() { _ = f.Close() }()
	return ReadHeader(f, rel)
}

// ReadDir finds every mzXML file under root and reads their headers with at
// most limit files open at once. Results are sorted by path.
func ReadDir(ctx context.Context, root string, limit int) ([]Header, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsMzXML(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	if limit <= 0 {
		limit = 4
	}
	var (
		mu      sync.Mutex
		headers = make([]Header, 0, len(paths))
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			h, err := ReadFile(path, filepath.ToSlash(rel))
			if err != nil {
				return err
			}
			mu.Lock()
			headers = append(headers, h)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(headers, func(i, j int) bool { return headers[i].Path < headers[j].Path })
	return headers, nil
}
