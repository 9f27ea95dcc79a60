// Package domain defines the persistent records, value types, and rule
// evaluation primitives shared by the TraceBase submission loaders.
package domain

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityStudy identifies a study record.
	EntityStudy EntityType = "study"
	// EntityCompound identifies a compound record.
	EntityCompound EntityType = "compound"
	// EntityTissue identifies a tissue record.
	EntityTissue EntityType = "tissue"
	// EntityTreatment identifies a treatment (protocol) record.
	EntityTreatment EntityType = "treatment"
	// EntityTracer identifies a labeled compound record.
	EntityTracer EntityType = "tracer"
	// EntityInfusate identifies a tracer mixture record.
	EntityInfusate EntityType = "infusate"
	// EntityAnimal identifies an animal record.
	EntityAnimal EntityType = "animal"
	// EntitySample identifies a biological sample record.
	EntitySample EntityType = "sample"
	// EntitySequence identifies a mass spec run sequence record.
	EntitySequence EntityType = "sequence"
	// EntityPeakAnnotationFile identifies a peak annotation file record.
	EntityPeakAnnotationFile EntityType = "peak_annotation_file"
	// EntityMSRunSample identifies the link between a sample and a sequence run.
	EntityMSRunSample EntityType = "msrun_sample"
	// EntityPeakGroup identifies a peak group record.
	EntityPeakGroup EntityType = "peak_group"
)

// EntityTypes lists every persisted entity in load order.
var EntityTypes = []EntityType{
	EntityStudy,
	EntityCompound,
	EntityTissue,
	EntityTreatment,
	EntityTracer,
	EntityInfusate,
	EntityAnimal,
	EntitySample,
	EntitySequence,
	EntityPeakAnnotationFile,
	EntityMSRunSample,
	EntityPeakGroup,
}

// Severity captures the outcome level of a rule or loader exception.
type Severity string

// Exception severities. Errors block submission, warnings never do.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Meta returns the record bookkeeping fields.
func (b Base) Meta() Base { return b }

// Record is implemented by every persisted entity. Records are identified by
// their natural key, never by surrogate ID, so that sheets can reference each
// other by name.
type Record interface {
	Entity() EntityType
	Key() string
	Meta() Base
	WithMeta(Base) Record
	// Merge folds incoming into the receiver. Delimited fields are unioned;
	// any other differing field is reported and left untouched.
	Merge(incoming Record) (Record, []FieldConflict)
}

// FieldConflict describes a stored value that differs from a submitted one.
type FieldConflict struct {
	Field    string `json:"field"`
	Existing string `json:"existing"`
	Incoming string `json:"incoming"`
}

// Study groups animals.
type Study struct {
	Base
	Name        string `json:"name"`
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
}

func (Study) Entity() EntityType       { return EntityStudy }
func (s Study) Key() string            { return s.Name }
func (s Study) WithMeta(b Base) Record { s.Base = b; return s }
func (s Study) Merge(in Record) (Record, []FieldConflict) {
	other := in.(Study)
	var m merger
	s.Code = m.str("code", s.Code, other.Code)
	s.Description = m.str("description", s.Description, other.Description)
	return s, m.conflicts
}

// Compound is a metabolite with a unique primary name and a set of synonyms.
type Compound struct {
	Base
	Name     string   `json:"name"`
	HMDBID   string   `json:"hmdb_id"`
	Formula  string   `json:"formula"`
	Synonyms []string `json:"synonyms,omitempty"`
}

func (Compound) Entity() EntityType       { return EntityCompound }
func (c Compound) Key() string            { return c.Name }
func (c Compound) WithMeta(b Base) Record { c.Base = b; return c }
func (c Compound) Merge(in Record) (Record, []FieldConflict) {
	other := in.(Compound)
	var m merger
	c.HMDBID = m.str("hmdb_id", c.HMDBID, other.HMDBID)
	c.Formula = m.str("formula", c.Formula, other.Formula)
	c.Synonyms = UnionStrings(c.Synonyms, other.Synonyms)
	return c, m.conflicts
}

// Names returns the primary name followed by every synonym.
func (c Compound) Names() []string {
	out := make([]string, 0, len(c.Synonyms)+1)
	out = append(out, c.Name)
	for _, syn := range c.Synonyms {
		if !strings.EqualFold(syn, c.Name) {
			out = append(out, syn)
		}
	}
	return out
}

// Tissue is a controlled vocabulary entry for sample sources.
type Tissue struct {
	Base
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (Tissue) Entity() EntityType       { return EntityTissue }
func (t Tissue) Key() string            { return t.Name }
func (t Tissue) WithMeta(b Base) Record { t.Base = b; return t }
func (t Tissue) Merge(in Record) (Record, []FieldConflict) {
	other := in.(Tissue)
	var m merger
	t.Description = m.str("description", t.Description, other.Description)
	return t, m.conflicts
}

// Treatment is a controlled vocabulary entry for animal treatments.
type Treatment struct {
	Base
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (Treatment) Entity() EntityType       { return EntityTreatment }
func (t Treatment) Key() string            { return t.Name }
func (t Treatment) WithMeta(b Base) Record { t.Base = b; return t }
func (t Treatment) Merge(in Record) (Record, []FieldConflict) {
	other := in.(Treatment)
	var m merger
	t.Description = m.str("description", t.Description, other.Description)
	return t, m.conflicts
}

// Label is one isotopic labeling spec: element, mass number, count and the
// optional labeled positions.
type Label struct {
	Element    string `json:"element"`
	MassNumber int    `json:"mass_number"`
	Count      int    `json:"count"`
	Positions  []int  `json:"positions,omitempty"`
}

// Equal reports whether two labels describe the same labeling.
func (l Label) Equal(o Label) bool {
	if l.Element != o.Element || l.MassNumber != o.MassNumber || l.Count != o.Count {
		return false
	}
	if len(l.Positions) != len(o.Positions) {
		return false
	}
	a := append([]int(nil), l.Positions...)
	b := append([]int(nil), o.Positions...)
	sort.Ints(a)
	sort.Ints(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SortLabels orders labels by element then mass number, the canonical
// rendering order.
func SortLabels(labels []Label) {
	sort.SliceStable(labels, func(i, j int) bool {
		if labels[i].Element != labels[j].Element {
			return labels[i].Element < labels[j].Element
		}
		return labels[i].MassNumber < labels[j].MassNumber
	})
}

// Tracer is a compound with a set of isotopic labels.
type Tracer struct {
	Base
	Name         string  `json:"name"`
	CompoundName string  `json:"compound_name"`
	Labels       []Label `json:"labels"`
}

func (Tracer) Entity() EntityType       { return EntityTracer }
func (t Tracer) Key() string            { return t.Name }
func (t Tracer) WithMeta(b Base) Record { t.Base = b; return t }
func (t Tracer) Merge(in Record) (Record, []FieldConflict) {
	other := in.(Tracer)
	var m merger
	t.CompoundName = m.str("compound", t.CompoundName, other.CompoundName)
	return t, m.conflicts
}

// InfusateTracer pairs a tracer with its full precision concentration in mM.
type InfusateTracer struct {
	TracerName    string  `json:"tracer_name"`
	Concentration float64 `json:"concentration"`
}

// Infusate is a mixture of tracers at given concentrations. Its key is the
// display name, which renders concentrations at 3 significant figures.
type Infusate struct {
	Base
	Name      string           `json:"name"`
	GroupName string           `json:"group_name,omitempty"`
	Tracers   []InfusateTracer `json:"tracers"`
}

func (Infusate) Entity() EntityType       { return EntityInfusate }
func (i Infusate) Key() string            { return i.Name }
func (i Infusate) WithMeta(b Base) Record { i.Base = b; return i }
func (i Infusate) Merge(in Record) (Record, []FieldConflict) {
	other := in.(Infusate)
	var m merger
	i.GroupName = m.str("group_name", i.GroupName, other.GroupName)
	m.conflicts = append(m.conflicts, i.ConcentrationDiffs(other)...)
	return i, m.conflicts
}

// ConcentrationDiffs compares full precision concentrations tracer by tracer.
func (i Infusate) ConcentrationDiffs(other Infusate) []FieldConflict {
	existing := make(map[string]float64, len(i.Tracers))
	for _, t := range i.Tracers {
		existing[t.TracerName] = t.Concentration
	}
	var out []FieldConflict
	for _, t := range other.Tracers {
		old, ok := existing[t.TracerName]
		if !ok {
			out = append(out, FieldConflict{Field: "tracer", Existing: "", Incoming: t.TracerName})
			continue
		}
		if old != t.Concentration {
			out = append(out, FieldConflict{
				Field:    "concentration[" + t.TracerName + "]",
				Existing: formatFloat(&old),
				Incoming: formatFloat(&t.Concentration),
			})
		}
	}
	return out
}

// Animal is an infused (or control) subject. Names are globally unique.
type Animal struct {
	Base
	Name          string   `json:"name"`
	AgeWeeks      *float64 `json:"age_weeks,omitempty"`
	Sex           string   `json:"sex,omitempty"`
	Genotype      string   `json:"genotype,omitempty"`
	BodyWeight    *float64 `json:"body_weight,omitempty"`
	InfusateName  string   `json:"infusate,omitempty"`
	InfusionRate  *float64 `json:"infusion_rate,omitempty"`
	Diet          string   `json:"diet,omitempty"`
	FeedingStatus string   `json:"feeding_status,omitempty"`
	TreatmentName string   `json:"treatment,omitempty"`
	Studies       []string `json:"studies,omitempty"`
}

func (Animal) Entity() EntityType       { return EntityAnimal }
func (a Animal) Key() string            { return a.Name }
func (a Animal) WithMeta(b Base) Record { a.Base = b; return a }
func (a Animal) Merge(in Record) (Record, []FieldConflict) {
	other := in.(Animal)
	var m merger
	a.AgeWeeks = m.num("age", a.AgeWeeks, other.AgeWeeks)
	a.Sex = m.str("sex", a.Sex, other.Sex)
	a.Genotype = m.str("genotype", a.Genotype, other.Genotype)
	a.BodyWeight = m.num("body_weight", a.BodyWeight, other.BodyWeight)
	a.InfusateName = m.str("infusate", a.InfusateName, other.InfusateName)
	a.InfusionRate = m.num("infusion_rate", a.InfusionRate, other.InfusionRate)
	a.Diet = m.str("diet", a.Diet, other.Diet)
	a.FeedingStatus = m.str("feeding_status", a.FeedingStatus, other.FeedingStatus)
	a.TreatmentName = m.str("treatment", a.TreatmentName, other.TreatmentName)
	a.Studies = UnionStrings(a.Studies, other.Studies)
	return a, m.conflicts
}

// Sample is a biological sample collected from an animal. Names are globally
// unique.
type Sample struct {
	Base
	Name           string     `json:"name"`
	DateCollected  *time.Time `json:"date_collected,omitempty"`
	Researcher     string     `json:"researcher,omitempty"`
	TissueName     string     `json:"tissue"`
	CollectionTime *float64   `json:"collection_time,omitempty"`
	AnimalName     string     `json:"animal"`
}

func (Sample) Entity() EntityType       { return EntitySample }
func (s Sample) Key() string            { return s.Name }
func (s Sample) WithMeta(b Base) Record { s.Base = b; return s }
func (s Sample) Merge(in Record) (Record, []FieldConflict) {
	other := in.(Sample)
	var m merger
	s.DateCollected = m.date("date_collected", s.DateCollected, other.DateCollected)
	s.Researcher = m.str("researcher", s.Researcher, other.Researcher)
	s.TissueName = m.str("tissue", s.TissueName, other.TissueName)
	s.CollectionTime = m.num("collection_time", s.CollectionTime, other.CollectionTime)
	s.AnimalName = m.str("animal", s.AnimalName, other.AnimalName)
	return s, m.conflicts
}

// SequenceDateLayout is the date rendering used in sequence names.
const SequenceDateLayout = "2006-01-02"

// SequenceName renders the canonical comma-joined sequence key.
func SequenceName(operator, lcProtocol, instrument string, date time.Time) string {
	return strings.Join([]string{operator, lcProtocol, instrument, date.Format(SequenceDateLayout)}, ", ")
}

// Sequence is one (operator, LC protocol, instrument, date) batch of runs.
type Sequence struct {
	Base
	Number     *int      `json:"number,omitempty"`
	Operator   string    `json:"operator"`
	LCProtocol string    `json:"lc_protocol"`
	Instrument string    `json:"instrument"`
	Date       time.Time `json:"date"`
	Notes      string    `json:"notes,omitempty"`
}

func (Sequence) Entity() EntityType       { return EntitySequence }
func (s Sequence) Key() string            { return s.Name() }
func (s Sequence) WithMeta(b Base) Record { s.Base = b; return s }
func (s Sequence) Merge(in Record) (Record, []FieldConflict) {
	other := in.(Sequence)
	var m merger
	s.Notes = m.str("notes", s.Notes, other.Notes)
	if other.Number != nil {
		if s.Number == nil || *s.Number != *other.Number {
			m.conflicts = append(m.conflicts, FieldConflict{Field: "number", Existing: formatInt(s.Number), Incoming: formatInt(other.Number)})
		}
	}
	return s, m.conflicts
}

// Name returns the canonical sequence name.
func (s Sequence) Name() string {
	return SequenceName(s.Operator, s.LCProtocol, s.Instrument, s.Date)
}

// PeakAnnotationFile is an AccuCor, IsoCorr or Iso-AutoCor output file.
type PeakAnnotationFile struct {
	Base
	Name            string `json:"name"`
	Format          string `json:"format"`
	DefaultSequence string `json:"default_sequence,omitempty"`
	Checksum        string `json:"checksum,omitempty"`
}

func (PeakAnnotationFile) Entity() EntityType       { return EntityPeakAnnotationFile }
func (p PeakAnnotationFile) Key() string            { return p.Name }
func (p PeakAnnotationFile) WithMeta(b Base) Record { p.Base = b; return p }
func (p PeakAnnotationFile) Merge(in Record) (Record, []FieldConflict) {
	other := in.(PeakAnnotationFile)
	var m merger
	p.Format = m.str("format", p.Format, other.Format)
	p.DefaultSequence = m.str("default_sequence", p.DefaultSequence, other.DefaultSequence)
	p.Checksum = m.str("checksum", p.Checksum, other.Checksum)
	return p, m.conflicts
}

// MSRunSample links a biological sample to the sequence it was run in and the
// raw data file (or sample data header) it produced.
type MSRunSample struct {
	Base
	SequenceName string   `json:"sequence"`
	SampleName   string   `json:"sample"`
	Header       string   `json:"header"`
	MzXML        string   `json:"mzxml,omitempty"`
	Polarity     string   `json:"polarity,omitempty"`
	MzMin        *float64 `json:"mz_min,omitempty"`
	MzMax        *float64 `json:"mz_max,omitempty"`
}

// MSRunSampleKey renders the natural key of an MSRunSample.
func MSRunSampleKey(sequence, sample, file string) string {
	return sequence + " | " + sample + " | " + file
}

func (MSRunSample) Entity() EntityType { return EntityMSRunSample }
func (m MSRunSample) Key() string {
	file := m.MzXML
	if file == "" {
		file = m.Header
	}
	return MSRunSampleKey(m.SequenceName, m.SampleName, file)
}
func (m MSRunSample) WithMeta(b Base) Record { m.Base = b; return m }
func (m MSRunSample) Merge(in Record) (Record, []FieldConflict) {
	other := in.(MSRunSample)
	var mg merger
	m.Polarity = mg.str("polarity", m.Polarity, other.Polarity)
	m.MzMin = mg.num("mz_min", m.MzMin, other.MzMin)
	m.MzMax = mg.num("mz_max", m.MzMax, other.MzMax)
	return m, mg.conflicts
}

// PeakData is one isotopologue peak of a peak group.
type PeakData struct {
	Labels             []Label  `json:"labels,omitempty"`
	RawAbundance       *float64 `json:"raw_abundance,omitempty"`
	CorrectedAbundance float64  `json:"corrected_abundance"`
	MedMz              *float64 `json:"med_mz,omitempty"`
	MedRt              *float64 `json:"med_rt,omitempty"`
}

// PeakGroup is the set of peaks for one compound (synonym set) in one sample,
// supplied by exactly one peak annotation file.
type PeakGroup struct {
	Base
	Name           string     `json:"name"`
	Compounds      []string   `json:"compounds"`
	Formula        string     `json:"formula,omitempty"`
	SampleName     string     `json:"sample"`
	MSRunSample    string     `json:"msrun_sample"`
	AnnotationFile string     `json:"peak_annotation_file"`
	Peaks          []PeakData `json:"peaks"`
}

// CompoundSetKey renders a case-insensitive, order-independent key for a set
// of compound names.
func CompoundSetKey(names []string) string {
	lowered := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		k := strings.ToLower(strings.TrimSpace(n))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		lowered = append(lowered, k)
	}
	sort.Strings(lowered)
	return strings.Join(lowered, "/")
}

// PeakGroupKey renders the natural key of a peak group: its compound set
// measured in one MSRunSample. Several scan-labeled headers of one sample
// therefore keep separate peak groups.
func PeakGroupKey(compounds []string, msrunSample string) string {
	return CompoundSetKey(compounds) + " :: " + msrunSample
}

func (PeakGroup) Entity() EntityType       { return EntityPeakGroup }
func (p PeakGroup) Key() string            { return PeakGroupKey(p.Compounds, p.MSRunSample) }
func (p PeakGroup) WithMeta(b Base) Record { p.Base = b; return p }
func (p PeakGroup) Merge(in Record) (Record, []FieldConflict) {
	other := in.(PeakGroup)
	var m merger
	p.AnnotationFile = m.str("peak_annotation_file", p.AnnotationFile, other.AnnotationFile)
	p.Formula = m.str("formula", p.Formula, other.Formula)
	if len(m.conflicts) == 0 && !samePeaks(p.Peaks, other.Peaks) {
		m.conflicts = append(m.conflicts, FieldConflict{Field: "peaks", Existing: formatInt(intPtr(len(p.Peaks))), Incoming: formatInt(intPtr(len(other.Peaks)))})
	}
	return p, m.conflicts
}

func samePeaks(a, b []PeakData) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].CorrectedAbundance != b[i].CorrectedAbundance || len(a[i].Labels) != len(b[i].Labels) {
			return false
		}
		for j := range a[i].Labels {
			if !a[i].Labels[j].Equal(b[i].Labels[j]) {
				return false
			}
		}
	}
	return true
}

// Change describes a mutation applied to a record during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before Record
	After  Record
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured in the audit trail.
const (
	ActionCreate Action = "create"
	ActionMerge  Action = "merge"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string     `json:"rule"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Entity   EntityType `json:"entity"`
	Key      string     `json:"key"`
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation `json:"violations,omitempty"`
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains error level violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityError {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	if len(e.Result.Violations) == 1 {
		return "transaction blocked by rule " + e.Result.Violations[0].Rule + ": " + e.Result.Violations[0].Message
	}
	return "transaction blocked by rules"
}

// Snapshot is a point-in-time copy of every bucket, keyed by natural key.
type Snapshot map[EntityType]map[string]Record

// Clone returns a deep enough copy for independent mutation of buckets.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for entity, bucket := range s {
		cp := make(map[string]Record, len(bucket))
		for k, v := range bucket {
			cp[k] = v
		}
		out[entity] = cp
	}
	return out
}

// Find looks a record up by entity and natural key, letting a Snapshot serve
// as a read-only TransactionView.
func (s Snapshot) Find(entity EntityType, key string) (Record, bool) {
	rec, ok := s[entity][key]
	return rec, ok
}

// List returns the records of entity sorted by natural key.
func (s Snapshot) List(entity EntityType) []Record {
	bucket := s[entity]
	keys := make([]string, 0, len(bucket))
	for k := range bucket {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, bucket[k])
	}
	return out
}

// DecodeBucket hydrates one persisted JSON bucket into records.
func DecodeBucket(entity EntityType, data []byte) (map[string]Record, error) {
	decode, ok := bucketDecoders[entity]
	if !ok {
		return nil, ErrNotFound{Entity: entity, Key: "<bucket>"}
	}
	return decode(data)
}

var bucketDecoders = map[EntityType]func([]byte) (map[string]Record, error){
	EntityStudy:              decodeBucket[Study],
	EntityCompound:           decodeBucket[Compound],
	EntityTissue:             decodeBucket[Tissue],
	EntityTreatment:          decodeBucket[Treatment],
	EntityTracer:             decodeBucket[Tracer],
	EntityInfusate:           decodeBucket[Infusate],
	EntityAnimal:             decodeBucket[Animal],
	EntitySample:             decodeBucket[Sample],
	EntitySequence:           decodeBucket[Sequence],
	EntityPeakAnnotationFile: decodeBucket[PeakAnnotationFile],
	EntityMSRunSample:        decodeBucket[MSRunSample],
	EntityPeakGroup:          decodeBucket[PeakGroup],
}

func decodeBucket[T Record](data []byte) (map[string]Record, error) {
	var typed map[string]T
	if err := json.Unmarshal(data, &typed); err != nil {
		return nil, err
	}
	out := make(map[string]Record, len(typed))
	for k, v := range typed {
		out[k] = v
	}
	return out, nil
}
