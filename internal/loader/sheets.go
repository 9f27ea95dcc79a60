package loader

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"tracebase/internal/exceptions"
	"tracebase/internal/notation"
	"tracebase/internal/resolve"
	"tracebase/internal/workbook"
	"tracebase/pkg/domain"
)

func (r *run) loadStudy(sheet *workbook.Sheet) {
	rows, ok := r.rows(sheet)
	if !ok {
		return
	}
	for _, f := range rows {
		loc := r.sheetLoc(SheetStudy).WithRow(f.Row)
		rec := domain.Study{Name: f.Str(ColStudyName), Code: f.Str(ColStudyID), Description: f.Str(ColDescription)}
		r.outcome(SheetStudy, r.upsert(loc, rec))
	}
}

func (r *run) loadCompounds(sheet *workbook.Sheet) {
	rows, ok := r.rows(sheet)
	if !ok {
		return
	}
	for _, f := range rows {
		loc := r.sheetLoc(SheetCompounds).WithRow(f.Row)
		rec := domain.Compound{
			Name:     f.Str(ColCompound),
			HMDBID:   f.Str(ColHMDBID),
			Formula:  f.Str(ColFormula),
			Synonyms: f.List(ColSynonyms),
		}
		loaded := r.write(loc, domain.EntityCompound, rec.Name, func(tx domain.Transaction) error {
			if err := checkSynonyms(tx.Snapshot(), rec); err != nil {
				return err
			}
			return upsertTx(tx, rec)
		})
		r.outcome(SheetCompounds, loaded)
	}
}

// checkSynonyms rejects a compound whose name or synonyms already name a
// different compound.
func checkSynonyms(view domain.TransactionView, rec domain.Compound) error {
	idx := resolve.NewCompoundIndex(view)
	for _, name := range rec.Names() {
		existing, err := idx.Resolve(name)
		if err != nil {
			// Unknown names are fine; ambiguous ones already break the invariant.
			var multiple *exceptions.MultipleRecordsReturnedError
			if !errors.As(err, &multiple) {
				continue
			}
			return err
		}
		if !strings.EqualFold(existing, rec.Name) {
			return &exceptions.SynonymExistsAsMismatchedCompoundError{Synonym: name, Compound: rec.Name, Existing: existing}
		}
	}
	return nil
}

func (r *run) loadTissues(sheet *workbook.Sheet) {
	rows, ok := r.rows(sheet)
	if !ok {
		return
	}
	for _, f := range rows {
		loc := r.sheetLoc(SheetTissues).WithRow(f.Row)
		r.outcome(SheetTissues, r.upsert(loc, domain.Tissue{Name: f.Str(ColTissue), Description: f.Str(ColDescription)}))
	}
}

func (r *run) loadTreatments(sheet *workbook.Sheet) {
	rows, ok := r.rows(sheet)
	if !ok {
		return
	}
	for _, f := range rows {
		loc := r.sheetLoc(SheetTreatments).WithRow(f.Row)
		r.outcome(SheetTreatments, r.upsert(loc, domain.Treatment{Name: f.Str(ColTreatment), Description: f.Str(ColTreatmentDesc)}))
	}
}

// rowGroup collects the rows sharing a row group number in sheet order.
type rowGroup struct {
	id   int
	rows []Fields
}

// brokenGroups returns the row group numbers of rejected rows. A rejected
// row whose group cell is itself unreadable belongs to no group.
func brokenGroups(rejected []workbook.Row, column string) map[int]bool {
	out := make(map[int]bool)
	for _, row := range rejected {
		v, err := convert(Column{Header: column, Type: TypeInteger}, strings.TrimSpace(row.Get(column)))
		if err != nil {
			continue
		}
		out[v.(int)] = true
	}
	return out
}

// groupValues returns the distinct non-blank values of column on every row
// of sheet in row group id, rejected rows included.
func groupValues(sheet *workbook.Sheet, groupColumn, column string, id int) []string {
	var out []string
	seen := make(map[string]bool)
	for _, row := range sheet.Rows {
		v, err := convert(Column{Header: groupColumn, Type: TypeInteger}, strings.TrimSpace(row.Get(groupColumn)))
		if err != nil || v.(int) != id {
			continue
		}
		if s := strings.TrimSpace(row.Get(column)); s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func groupRows(rows []Fields, column string) []*rowGroup {
	byID := make(map[int]*rowGroup)
	var out []*rowGroup
	for _, f := range rows {
		id := *f.Int(column)
		g, ok := byID[id]
		if !ok {
			g = &rowGroup{id: id}
			byID[id] = g
			out = append(out, g)
		}
		g.rows = append(g.rows, f)
	}
	return out
}

// consistent returns the single non-blank value of column across g, or
// reports a TracerInconsistencyError.
func (r *run) consistent(sheet string, g *rowGroup, column string, loc exceptions.Location) (string, bool) {
	var values []string
	seen := make(map[string]bool)
	for _, f := range g.rows {
		v := f.Str(column)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	if len(values) > 1 {
		r.agg.Error(&exceptions.TracerInconsistencyError{Sheet: sheet, Group: strconv.Itoa(g.id), Column: column, Values: values}, loc.WithColumn(column))
		return "", false
	}
	if len(values) == 0 {
		return "", true
	}
	return values[0], true
}

func (r *run) loadTracers(sheet *workbook.Sheet) {
	rows, rejected, ok := r.parseRows(sheet)
	if !ok {
		return
	}
	idx := resolve.NewCompoundIndex(r.view)
	broken := brokenGroups(rejected, ColTracerGroup)
	for id := range broken {
		// A tracer missing one of its label rows would load as a different
		// tracer, so the whole group fails.
		for _, given := range groupValues(sheet, ColTracerGroup, ColTracerName, id) {
			r.fail(domain.EntityTracer, given)
			if name, err := canonicalTracer(idx, given); err == nil {
				r.fail(domain.EntityTracer, name)
			}
		}
	}
	for _, g := range groupRows(rows, ColTracerGroup) {
		if broken[g.id] {
			for range g.rows {
				r.outcome(SheetTracers, false)
			}
			continue
		}
		loc := r.sheetLoc(SheetTracers).WithRow(g.rows[0].Row)
		loaded := r.loadTracerGroup(idx, g, loc)
		for range g.rows {
			r.outcome(SheetTracers, loaded)
		}
	}
}

func (r *run) loadTracerGroup(idx *resolve.CompoundIndex, g *rowGroup, loc exceptions.Location) bool {
	compound, ok := r.consistent(SheetTracers, g, ColCompound, loc)
	if !ok {
		return false
	}
	given, ok := r.consistent(SheetTracers, g, ColTracerName, loc)
	if !ok {
		return false
	}
	primary, err := idx.Resolve(compound)
	if err != nil {
		r.reference(err, domain.EntityCompound, compound, loc.WithColumn(ColCompound))
		return false
	}

	labels := make([]domain.Label, 0, len(g.rows))
	valid := true
	for _, f := range g.rows {
		l := domain.Label{Element: f.Str(ColElement), MassNumber: *f.Int(ColMassNumber), Count: *f.Int(ColLabelCount)}
		for _, p := range f.List(ColLabelPositions) {
			n, err := strconv.Atoi(p)
			if err != nil {
				r.agg.Error(&exceptions.InvalidValueError{Column: ColLabelPositions, Value: p, Expected: TypeInteger.String()}, loc.WithRow(f.Row).WithColumn(ColLabelPositions))
				valid = false
				continue
			}
			l.Positions = append(l.Positions, n)
		}
		if err := notation.ValidatePositions(strings.Join(f.List(ColLabelPositions), ","), l); err != nil {
			r.agg.Error(err, loc.WithRow(f.Row).WithColumn(ColLabelPositions))
			valid = false
		}
		labels = append(labels, l)
	}
	if !valid {
		return false
	}
	domain.SortLabels(labels)
	name := notation.RenderTracer(primary, labels)

	if given != "" {
		canonical, err := canonicalTracer(idx, given)
		if err != nil {
			r.agg.Error(err, loc.WithColumn(ColTracerName))
			r.fail(domain.EntityTracer, name)
			return false
		}
		if canonical != name {
			r.agg.Error(&exceptions.TracerInconsistencyError{
				Sheet: SheetTracers, Group: strconv.Itoa(g.id), Column: ColTracerName, Values: []string{given, name},
			}, loc.WithColumn(ColTracerName))
			r.fail(domain.EntityTracer, name)
			return false
		}
	}
	return r.upsert(loc, domain.Tracer{Name: name, CompoundName: primary, Labels: labels})
}

// canonicalTracer parses a tracer name and re-renders it with the primary
// compound name.
func canonicalTracer(idx *resolve.CompoundIndex, raw string) (string, error) {
	spec, err := notation.ParseTracer(raw)
	if err != nil {
		return "", err
	}
	primary, err := idx.Resolve(spec.Compound)
	if err != nil {
		return "", err
	}
	return notation.RenderTracer(primary, spec.Labels), nil
}

// canonicalInfusate parses an infusate name and re-renders it with canonical
// tracer names.
func canonicalInfusate(idx *resolve.CompoundIndex, raw string) (string, error) {
	spec, err := notation.ParseInfusate(raw)
	if err != nil {
		return "", err
	}
	names := make([]string, len(spec.Tracers))
	concs := make([]float64, len(spec.Tracers))
	for i, t := range spec.Tracers {
		primary, err := idx.Resolve(t.Tracer.Compound)
		if err != nil {
			return "", err
		}
		names[i] = notation.RenderTracer(primary, t.Tracer.Labels)
		concs[i] = t.Concentration
	}
	return notation.RenderInfusate(spec.GroupName, names, concs), nil
}

func (r *run) loadInfusates(sheet *workbook.Sheet) {
	rows, rejected, ok := r.parseRows(sheet)
	if !ok {
		return
	}
	idx := resolve.NewCompoundIndex(r.view)
	broken := brokenGroups(rejected, ColInfusateGroup)
	for id := range broken {
		for _, given := range groupValues(sheet, ColInfusateGroup, ColInfusateName, id) {
			r.fail(domain.EntityInfusate, given)
			if name, err := canonicalInfusate(idx, given); err == nil {
				r.fail(domain.EntityInfusate, name)
			}
		}
	}
	for _, g := range groupRows(rows, ColInfusateGroup) {
		if broken[g.id] {
			for range g.rows {
				r.outcome(SheetInfusates, false)
			}
			continue
		}
		loc := r.sheetLoc(SheetInfusates).WithRow(g.rows[0].Row)
		loaded := r.loadInfusateGroup(idx, g, loc)
		for range g.rows {
			r.outcome(SheetInfusates, loaded)
		}
	}
}

func (r *run) loadInfusateGroup(idx *resolve.CompoundIndex, g *rowGroup, loc exceptions.Location) bool {
	group, ok := r.consistent(SheetInfusates, g, ColTracerGroupName, loc)
	if !ok {
		return false
	}
	given, ok := r.consistent(SheetInfusates, g, ColInfusateName, loc)
	if !ok {
		return false
	}
	var (
		tracers []domain.InfusateTracer
		names   []string
		concs   []float64
		valid   = true
	)
	for _, f := range g.rows {
		rowLoc := loc.WithRow(f.Row).WithColumn(ColTracerName)
		name, err := canonicalTracer(idx, f.Str(ColTracerName))
		if err != nil {
			var missing *exceptions.RecordDoesNotExistError
			if errors.As(err, &missing) {
				r.reference(err, missing.Entity, missing.Key, rowLoc)
			} else {
				r.agg.Error(err, rowLoc)
			}
			valid = false
			continue
		}
		if !r.exists(domain.EntityTracer, name, rowLoc) {
			valid = false
			continue
		}
		conc := *f.Num(ColConcentration)
		tracers = append(tracers, domain.InfusateTracer{TracerName: name, Concentration: conc})
		names = append(names, name)
		concs = append(concs, conc)
	}
	if !valid {
		return false
	}
	sort.Slice(tracers, func(i, j int) bool { return tracers[i].TracerName < tracers[j].TracerName })
	display := notation.RenderInfusate(group, names, concs)

	if given != "" {
		canonical, err := canonicalInfusate(idx, given)
		if err != nil {
			r.agg.Error(err, loc.WithColumn(ColInfusateName))
			r.fail(domain.EntityInfusate, display)
			return false
		}
		if canonical != display {
			r.agg.Error(&exceptions.TracerInconsistencyError{
				Sheet: SheetInfusates, Group: strconv.Itoa(g.id), Column: ColInfusateName, Values: []string{given, display},
			}, loc.WithColumn(ColInfusateName))
			r.fail(domain.EntityInfusate, display)
			return false
		}
	}
	return r.upsert(loc, domain.Infusate{Name: display, GroupName: group, Tracers: tracers})
}

func (r *run) loadAnimals(sheet *workbook.Sheet) {
	rows, ok := r.rows(sheet)
	if !ok {
		return
	}
	idx := resolve.NewCompoundIndex(r.view)
	for _, f := range rows {
		loc := r.sheetLoc(SheetAnimals).WithRow(f.Row)
		rec := domain.Animal{
			Name:          f.Str(ColAnimalName),
			AgeWeeks:      f.Num(ColAge),
			Sex:           f.Str(ColSex),
			Genotype:      f.Str(ColGenotype),
			BodyWeight:    f.Num(ColBodyWeight),
			InfusionRate:  f.Num(ColInfusionRate),
			Diet:          f.Str(ColDiet),
			FeedingStatus: f.Str(ColFeedingStatus),
			TreatmentName: f.Str(ColTreatment),
			Studies:       f.List(ColStudy),
		}
		valid := true
		if raw := f.Str(ColInfusate); raw != "" {
			name, err := canonicalInfusate(idx, raw)
			switch {
			case err != nil:
				r.agg.Error(err, loc.WithColumn(ColInfusate))
				valid = false
			case !r.exists(domain.EntityInfusate, name, loc.WithColumn(ColInfusate)):
				valid = false
			default:
				rec.InfusateName = name
			}
		}
		if rec.TreatmentName != "" && !r.exists(domain.EntityTreatment, rec.TreatmentName, loc.WithColumn(ColTreatment)) {
			valid = false
		}
		for _, study := range rec.Studies {
			if !r.exists(domain.EntityStudy, study, loc.WithColumn(ColStudy)) {
				valid = false
			}
		}
		if !valid {
			r.fail(domain.EntityAnimal, rec.Name)
			r.outcome(SheetAnimals, false)
			continue
		}
		r.outcome(SheetAnimals, r.upsert(loc, rec))
	}
}

func (r *run) loadSamples(sheet *workbook.Sheet) {
	rows, ok := r.rows(sheet)
	if !ok {
		return
	}
	for _, f := range rows {
		loc := r.sheetLoc(SheetSamples).WithRow(f.Row)
		rec := domain.Sample{
			Name:           f.Str(ColSample),
			DateCollected:  f.Date(ColDateCollected),
			Researcher:     f.Str(ColResearcher),
			TissueName:     f.Str(ColTissue),
			CollectionTime: f.Num(ColCollectionTime),
			AnimalName:     f.Str(ColAnimal),
		}
		tissueOK := r.exists(domain.EntityTissue, rec.TissueName, loc.WithColumn(ColTissue))
		animalOK := r.exists(domain.EntityAnimal, rec.AnimalName, loc.WithColumn(ColAnimal))
		if !tissueOK || !animalOK {
			r.fail(domain.EntitySample, rec.Name)
			r.outcome(SheetSamples, false)
			continue
		}
		r.outcome(SheetSamples, r.upsert(loc, rec))
	}
}

func (r *run) loadSequences(sheet *workbook.Sheet) {
	rows, ok := r.rows(sheet)
	if !ok {
		return
	}
	for _, f := range rows {
		loc := r.sheetLoc(SheetSequences).WithRow(f.Row)
		rec := domain.Sequence{
			Number:     f.Int(ColSequenceNumber),
			Operator:   f.Str(ColOperator),
			LCProtocol: f.Str(ColLCProtocol),
			Instrument: f.Str(ColInstrument),
			Date:       *f.Date(ColDate),
			Notes:      f.Str(ColNotes),
		}
		r.outcome(SheetSequences, r.upsert(loc, rec))
	}
}
