package peakannot

import (
	"fmt"
	"strconv"
	"strings"

	"tracebase/internal/exceptions"
	"tracebase/internal/notation"
	"tracebase/internal/workbook"
	"tracebase/pkg/domain"
)

// DefaultMassNumbers maps AccuCor "<element>_Label" columns to the label's
// heavy isotope.
var DefaultMassNumbers = map[string]int{"C": 13, "N": 15, "H": 2, "O": 18, "S": 34}

// metadataHeaders are the non-sample columns of every dialect.
var metadataHeaders = map[string]struct{}{
	"label": {}, "metaGroupId": {}, "groupId": {}, "goodPeakCount": {},
	"medMz": {}, "medRt": {}, "maxQuality": {}, "isotopeLabel": {},
	"compound": {}, "compoundId": {}, "formula": {}, "expectedRtDiff": {},
	"ppmDiff": {}, "parent": {}, "Compound": {}, "adductName": {}, "Adduct": {},
}

// Row is one normalized ("unicorr") peak: a compound, an isotopologue label
// and its abundance in every sample column.
type Row struct {
	Source       int
	Compound     string
	Compounds    []string
	Formula      string
	IsotopeLabel string
	Labels       []domain.Label
	MedMz        *float64
	MedRt        *float64
	Corrected    map[string]float64
	Raw          map[string]float64
}

// Table is the format agnostic content of one peak annotation file.
type Table struct {
	File    string
	Format  Format
	Samples []string
	Rows    []Row
}

// Compounds returns the distinct compound fields in first seen order.
func (t *Table) Compounds() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range t.Rows {
		if _, ok := seen[r.Compound]; ok {
			continue
		}
		seen[r.Compound] = struct{}{}
		out = append(out, r.Compound)
	}
	return out
}

// SplitCompounds splits a peak group compound field such as
// "citrate/isocitrate" into its names.
func SplitCompounds(field string) []string {
	var out []string
	for _, part := range strings.Split(field, "/") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Normalize converts wb, already identified as format, into a Table. Row
// level problems (unparsable labels or abundances) are recorded in agg and
// the row is skipped; missing sheets or headers abort with an error.
func Normalize(wb *workbook.Workbook, format Format, agg *exceptions.Aggregator) (*Table, error) {
	sig := signatureFor(format)
	if sig.format == "" {
		return nil, &exceptions.UnknownFormatError{File: wb.Name, Reason: "unsupported format " + string(format)}
	}
	corrected, ok := sig.correctedSheet(wb)
	if !ok {
		return nil, &exceptions.SheetNotFoundError{File: wb.Name, Sheet: strings.Join(sig.correctedSheets, "|")}
	}
	if !sig.headersMatch(corrected) {
		return nil, &exceptions.RequiredHeadersError{Sheet: corrected.Name, Missing: missingHeaders(corrected, sig)}
	}
	table := &Table{File: wb.Name, Format: format, Samples: sampleHeaders(corrected)}
	original, hasOriginal := sig.originalSheet(wb)

	switch format {
	case FormatAccucor:
		table.Rows = normalizeAccucor(wb.Name, corrected, table.Samples, agg)
	default:
		table.Rows = normalizeIso(wb.Name, corrected, table.Samples, agg)
	}
	if hasOriginal {
		attachOriginal(wb.Name, table, original, agg)
	}
	return table, nil
}

func missingHeaders(sheet *workbook.Sheet, sig signature) []string {
	var out []string
	for _, h := range sig.required {
		if !sheet.HasHeader(h) {
			out = append(out, h)
		}
	}
	if sig.labelSuffix != "" && len(labelColumns(sheet, sig.labelSuffix)) == 0 {
		out = append(out, "<element>"+sig.labelSuffix)
	}
	return out
}

func sampleHeaders(sheet *workbook.Sheet) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, h := range sheet.Headers {
		if h == "" {
			continue
		}
		if _, meta := metadataHeaders[h]; meta {
			continue
		}
		if strings.HasSuffix(h, "_Label") {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

func normalizeAccucor(file string, sheet *workbook.Sheet, samples []string, agg *exceptions.Aggregator) []Row {
	labelCols := labelColumns(sheet, "_Label")
	var out []Row
	for _, r := range sheet.Rows {
		loc := exceptions.Location{File: file, Sheet: sheet.Name, Row: r.Number}
		compound := r.Get("Compound")
		if compound == "" {
			agg.Error(&exceptions.RequiredValueError{Sheet: sheet.Name, Column: "Compound", Row: r.Number}, loc.WithColumn("Compound"))
			continue
		}
		row := Row{Source: r.Number, Compound: compound, Compounds: SplitCompounds(compound)}
		ok := true
		for _, col := range labelCols {
			element := strings.TrimSuffix(col, "_Label")
			raw := r.Get(col)
			if raw == "" {
				continue
			}
			count, err := strconv.Atoi(strings.TrimSuffix(raw, ".0"))
			if err != nil || count < 0 {
				agg.Error(&exceptions.InvalidValueError{Column: col, Value: raw, Expected: "non-negative integer"}, loc.WithColumn(col))
				ok = false
				break
			}
			if count == 0 {
				continue
			}
			mass, known := DefaultMassNumbers[element]
			if !known {
				agg.Error(&exceptions.UnknownElementError{Input: col, Element: element}, loc.WithColumn(col))
				ok = false
				break
			}
			row.Labels = append(row.Labels, domain.Label{Element: element, MassNumber: mass, Count: count})
		}
		if !ok {
			continue
		}
		domain.SortLabels(row.Labels)
		row.IsotopeLabel = notation.RenderIsotopeString(row.Labels)
		if row.Corrected, ok = abundances(r, samples, loc, agg); ok {
			out = append(out, row)
		}
	}
	return out
}

func normalizeIso(file string, sheet *workbook.Sheet, samples []string, agg *exceptions.Aggregator) []Row {
	var out []Row
	for _, r := range sheet.Rows {
		loc := exceptions.Location{File: file, Sheet: sheet.Name, Row: r.Number}
		row, ok := isoRow(r, loc, agg)
		if !ok {
			continue
		}
		if row.Corrected, ok = abundances(r, samples, loc, agg); ok {
			out = append(out, row)
		}
	}
	return out
}

// isoRow reads the metadata columns shared by IsoCorr, Iso-AutoCor and the
// AccuCor original sheet.
func isoRow(r workbook.Row, loc exceptions.Location, agg *exceptions.Aggregator) (Row, bool) {
	compound := r.Get("compound")
	if compound == "" {
		agg.Error(&exceptions.RequiredValueError{Sheet: loc.Sheet, Column: "compound", Row: r.Number}, loc.WithColumn("compound"))
		return Row{}, false
	}
	label := r.Get("isotopeLabel")
	labels, err := notation.ParseIsotopeString(label)
	if err != nil {
		agg.Error(err, loc.WithColumn("isotopeLabel"))
		return Row{}, false
	}
	domain.SortLabels(labels)
	row := Row{
		Source:       r.Number,
		Compound:     compound,
		Compounds:    SplitCompounds(compound),
		Formula:      r.Get("formula"),
		IsotopeLabel: notation.RenderIsotopeString(labels),
		Labels:       labels,
	}
	var ok bool
	if row.MedMz, ok = optionalFloat(r, "medMz", loc, agg); !ok {
		return Row{}, false
	}
	if row.MedRt, ok = optionalFloat(r, "medRt", loc, agg); !ok {
		return Row{}, false
	}
	return row, true
}

func optionalFloat(r workbook.Row, col string, loc exceptions.Location, agg *exceptions.Aggregator) (*float64, bool) {
	raw := r.Get(col)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		agg.Error(&exceptions.InvalidValueError{Column: col, Value: raw, Expected: "number"}, loc.WithColumn(col))
		return nil, false
	}
	return &v, true
}

// abundances reads every sample column. Blank cells are zero.
func abundances(r workbook.Row, samples []string, loc exceptions.Location, agg *exceptions.Aggregator) (map[string]float64, bool) {
	out := make(map[string]float64, len(samples))
	for _, s := range samples {
		raw := r.Get(s)
		if raw == "" {
			out[s] = 0
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			agg.Error(&exceptions.InvalidValueError{Column: s, Value: raw, Expected: "abundance"}, loc.WithColumn(s))
			return nil, false
		}
		out[s] = v
	}
	return out, true
}

// attachOriginal joins the uncorrected sheet onto the corrected rows by
// (compound, label), filling formula, m/z, retention time and raw abundances.
func attachOriginal(file string, table *Table, original *workbook.Sheet, agg *exceptions.Aggregator) {
	originalSamples := sampleHeaders(original)
	index := make(map[string]int, len(table.Rows))
	for i, row := range table.Rows {
		index[joinKey(row.Compound, row.IsotopeLabel)] = i
	}
	for _, r := range original.Rows {
		loc := exceptions.Location{File: file, Sheet: original.Name, Row: r.Number}
		orig, ok := isoRow(r, loc, agg)
		if !ok {
			continue
		}
		i, found := index[joinKey(orig.Compound, orig.IsotopeLabel)]
		if !found {
			continue
		}
		raw, ok := abundances(r, originalSamples, loc, agg)
		if !ok {
			continue
		}
		target := &table.Rows[i]
		if target.Formula == "" {
			target.Formula = orig.Formula
		}
		if target.MedMz == nil {
			target.MedMz = orig.MedMz
		}
		if target.MedRt == nil {
			target.MedRt = orig.MedRt
		}
		target.Raw = raw
	}
}

func joinKey(compound, label string) string {
	return fmt.Sprintf("%s\x00%s", strings.ToLower(compound), label)
}
