// Package peakannot identifies peak annotation file dialects (AccuCor,
// IsoCorr, Iso-AutoCor) and normalizes them into one format agnostic table.
package peakannot

import (
	"sort"
	"strings"

	"tracebase/internal/exceptions"
	"tracebase/internal/workbook"
)

// Format tags a peak annotation dialect.
type Format string

// Supported formats.
const (
	FormatAccucor     Format = "accucor"
	FormatIsocorr     Format = "isocorr"
	FormatIsoautocorr Format = "isoautocorr"
)

// Formats lists every supported format.
var Formats = []Format{FormatAccucor, FormatIsocorr, FormatIsoautocorr}

// ParseFormat validates a declared format string.
func ParseFormat(s string) (Format, bool) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, true
		}
	}
	return "", false
}

// signature describes what identifies a format. correctedSheets and
// originalSheets are matched case-insensitively.
type signature struct {
	format          Format
	correctedSheets []string
	originalSheets  []string
	required        []string
	labelSuffix     string
}

var isoMetadata = []string{"compound", "formula", "isotopeLabel", "medMz", "medRt"}

var signatures = []signature{
	{
		format:          FormatAccucor,
		correctedSheets: []string{"Corrected"},
		originalSheets:  []string{"Original"},
		required:        []string{"Compound"},
		labelSuffix:     "_Label",
	},
	{
		format:          FormatIsocorr,
		correctedSheets: []string{"absolte"},
		required:        isoMetadata,
	},
	{
		format:          FormatIsoautocorr,
		correctedSheets: []string{"cor_abs"},
		originalSheets:  []string{"original"},
		required:        isoMetadata,
	},
}

func signatureFor(f Format) signature {
	for _, s := range signatures {
		if s.format == f {
			return s
		}
	}
	return signature{}
}

// headersMatch reports whether sheet carries every required header, and for
// AccuCor at least one element label column.
func (s signature) headersMatch(sheet *workbook.Sheet) bool {
	for _, h := range s.required {
		if !sheet.HasHeader(h) {
			return false
		}
	}
	if s.labelSuffix != "" {
		return len(labelColumns(sheet, s.labelSuffix)) > 0
	}
	return true
}

func labelColumns(sheet *workbook.Sheet, suffix string) []string {
	var out []string
	for _, h := range sheet.Headers {
		if strings.HasSuffix(h, suffix) && len(h) > len(suffix) {
			out = append(out, h)
		}
	}
	return out
}

// correctedSheet returns the sheet holding corrected abundances. Delimited
// workbooks have exactly one sheet which is assumed to be it.
func (s signature) correctedSheet(wb *workbook.Workbook) (*workbook.Sheet, bool) {
	if wb.Delimited {
		sheets := wb.Sheets()
		if len(sheets) == 1 {
			return sheets[0], true
		}
		return nil, false
	}
	for _, name := range s.correctedSheets {
		if sheet, ok := wb.SheetFold(name); ok {
			return sheet, true
		}
	}
	return nil, false
}

func (s signature) originalSheet(wb *workbook.Workbook) (*workbook.Sheet, bool) {
	if wb.Delimited {
		return nil, false
	}
	for _, name := range s.originalSheets {
		if sheet, ok := wb.SheetFold(name); ok {
			return sheet, true
		}
	}
	return nil, false
}

// score rates how well wb matches the signature: 0 for no match, 1 for a
// header match, plus one per matching sheet name.
func (s signature) score(wb *workbook.Workbook) int {
	score := 0
	if wb.Delimited {
		sheets := wb.Sheets()
		if len(sheets) == 1 && s.headersMatch(sheets[0]) {
			score = 1
		}
		return score
	}
	for _, sheet := range wb.Sheets() {
		named := false
		for _, n := range s.correctedSheets {
			if strings.EqualFold(sheet.Name, n) {
				named = true
			}
		}
		if !s.headersMatch(sheet) {
			continue
		}
		candidate := 1
		if named {
			candidate++
			if _, ok := s.originalSheet(wb); ok {
				candidate++
			}
		}
		if candidate > score {
			score = candidate
		}
	}
	return score
}

// Detect identifies the format of wb. It fails with an AmbiguousFormatError
// when several formats tie for the best score and an UnknownFormatError when
// none match.
func Detect(wb *workbook.Workbook) (Format, error) {
	best := 0
	var leaders []string
	for _, sig := range signatures {
		sc := sig.score(wb)
		switch {
		case sc == 0:
		case sc > best:
			best = sc
			leaders = []string{string(sig.format)}
		case sc == best:
			leaders = append(leaders, string(sig.format))
		}
	}
	switch len(leaders) {
	case 0:
		return "", &exceptions.UnknownFormatError{File: wb.Name, Reason: "no sheet matches the AccuCor, IsoCorr or Iso-AutoCor column layout"}
	case 1:
		return Format(leaders[0]), nil
	default:
		sort.Strings(leaders)
		return "", &exceptions.AmbiguousFormatError{File: wb.Name, Candidates: leaders}
	}
}

// Resolve returns the declared format when supplied, verifying that the
// workbook's layout supports it; otherwise it falls back to Detect.
func Resolve(wb *workbook.Workbook, declared string) (Format, error) {
	if strings.TrimSpace(declared) == "" {
		return Detect(wb)
	}
	f, ok := ParseFormat(declared)
	if !ok {
		return "", &exceptions.UnknownFormatError{File: wb.Name, Reason: "declared format " + declared + " is not one of accucor, isocorr, isoautocorr"}
	}
	sig := signatureFor(f)
	sheet, ok := sig.correctedSheet(wb)
	if !ok || !sig.headersMatch(sheet) {
		return "", &exceptions.UnknownFormatError{File: wb.Name, Reason: "declared format " + string(f) + " does not match the file's sheets and columns"}
	}
	return f, nil
}
