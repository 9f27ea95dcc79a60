package resolve

import (
	"path"
	"sort"
	"strings"

	"tracebase/internal/exceptions"
	"tracebase/internal/notation"
	"tracebase/pkg/domain"
)

// SequenceSource records which rule resolved a sequence.
type SequenceSource string

// Sequence resolution sources in precedence order.
const (
	SourceExplicit     SequenceSource = "explicit"
	SourceFileDefault  SequenceSource = "file_default"
	SourceDirectory    SequenceSource = "directory"
	SourceStudyDefault SequenceSource = "study_default"
)

// SequenceResolution is a resolved sequence and any warnings raised on the
// way. Warnings are exceptions whose severity was downgraded because a
// fallback resolved them.
type SequenceResolution struct {
	Sequence string
	Source   SequenceSource
	Warnings []error
}

// SequenceResolver applies explicit > file default > directory inference >
// study default precedence.
type SequenceResolver struct {
	view         domain.TransactionView
	fileDefaults map[string]string
	colocated    map[string]map[string]struct{}
	studyDefault string
}

// NewSequenceResolver builds a resolver over view. studyDefault is the
// optional study wide fallback sequence name.
func NewSequenceResolver(view domain.TransactionView, studyDefault string) *SequenceResolver {
	return &SequenceResolver{
		view:         view,
		fileDefaults: make(map[string]string),
		colocated:    make(map[string]map[string]struct{}),
		studyDefault: strings.TrimSpace(studyDefault),
	}
}

// SetFileDefault registers a peak annotation file and its default sequence.
// file is the slash separated path relative to the study root.
func (r *SequenceResolver) SetFileDefault(file, sequence string) {
	file = cleanPath(file)
	r.fileDefaults[file] = strings.TrimSpace(sequence)
	if sequence != "" {
		r.Observe(file, sequence)
	}
}

// Observe records that annotation file carries data from sequence. Directory
// inference uses these observations.
func (r *SequenceResolver) Observe(file, sequence string) {
	if sequence == "" {
		return
	}
	file = cleanPath(file)
	set, ok := r.colocated[file]
	if !ok {
		set = make(map[string]struct{})
		r.colocated[file] = set
	}
	set[sequence] = struct{}{}
}

// Resolve picks the sequence of one peak annotation detail row. explicit is
// the row's Sequence cell, annotFile its Peak Annotation File Name and mzXML
// its mzXML File Name (all optional but annotFile).
func (r *SequenceResolver) Resolve(explicit, annotFile, mzXML string) (SequenceResolution, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		name, err := r.lookup(explicit)
		if err != nil {
			return SequenceResolution{}, err
		}
		return SequenceResolution{Sequence: name, Source: SourceExplicit}, nil
	}
	if def := r.fileDefaults[cleanPath(annotFile)]; def != "" {
		name, err := r.lookup(def)
		if err != nil {
			return SequenceResolution{}, &exceptions.DefaultSequenceNotFoundError{Sequence: def, Source: "peak annotation file " + annotFile}
		}
		return SequenceResolution{Sequence: name, Source: SourceFileDefault}, nil
	}
	if mzXML != "" {
		res, found, err := r.infer(mzXML)
		if err != nil || found {
			return res, err
		}
	}
	if r.studyDefault != "" {
		name, err := r.lookup(r.studyDefault)
		if err != nil {
			return SequenceResolution{}, &exceptions.DefaultSequenceNotFoundError{Sequence: r.studyDefault, Source: "study default"}
		}
		return SequenceResolution{Sequence: name, Source: SourceStudyDefault}, nil
	}
	if mzXML == "" {
		mzXML = annotFile
	}
	return SequenceResolution{}, &exceptions.MzxmlSequenceUnknownError{MzXML: mzXML}
}

// infer walks from the mzXML directory towards the root. The first directory
// holding annotation files decides: one distinct sequence resolves, several
// are a colocation conflict that only the study default can settle.
func (r *SequenceResolver) infer(mzXML string) (SequenceResolution, bool, error) {
	dir := path.Dir(cleanPath(mzXML))
	for {
		sequences := r.sequencesIn(dir)
		switch {
		case len(sequences) == 1:
			name, err := r.lookup(sequences[0])
			if err != nil {
				return SequenceResolution{}, true, err
			}
			return SequenceResolution{Sequence: name, Source: SourceDirectory}, true, nil
		case len(sequences) > 1:
			colocated := &exceptions.MzxmlColocatedWithMultipleAnnotError{MzXML: mzXML, Directory: dir, Sequences: sequences}
			if r.studyDefault == "" {
				return SequenceResolution{}, true, colocated
			}
			name, err := r.lookup(r.studyDefault)
			if err != nil {
				return SequenceResolution{}, true, colocated
			}
			colocated.ResolvedTo = name
			return SequenceResolution{Sequence: name, Source: SourceStudyDefault, Warnings: []error{colocated}}, true, nil
		}
		if dir == "." || dir == "/" {
			return SequenceResolution{}, false, nil
		}
		dir = path.Dir(dir)
	}
}

func (r *SequenceResolver) sequencesIn(dir string) []string {
	set := make(map[string]struct{})
	for file, seqs := range r.colocated {
		if path.Dir(file) != dir {
			continue
		}
		for s := range seqs {
			set[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// lookup normalizes a sequence reference and confirms it is stored.
func (r *SequenceResolver) lookup(ref string) (string, error) {
	parsed, err := notation.ParseSequenceName(ref)
	if err != nil {
		return "", err
	}
	name := parsed.Name()
	if _, ok := r.view.Find(domain.EntitySequence, name); !ok {
		return "", &exceptions.RecordDoesNotExistError{Entity: domain.EntitySequence, Key: name}
	}
	return name, nil
}

func cleanPath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
	if p == "" {
		return p
	}
	return path.Clean(p)
}
