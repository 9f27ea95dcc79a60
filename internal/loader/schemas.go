package loader

import (
	"tracebase/internal/conflicts"
	"tracebase/internal/notation"
	"tracebase/internal/peakannot"
	"tracebase/pkg/domain"
)

// Study Doc sheet names.
const (
	SheetStudy           = "Study"
	SheetCompounds       = "Compounds"
	SheetTissues         = "Tissues"
	SheetTreatments      = "Treatments"
	SheetTracers         = "Tracers"
	SheetInfusates       = "Infusates"
	SheetAnimals         = "Animals"
	SheetSamples         = "Samples"
	SheetSequences       = "Sequences"
	SheetAnnotationFiles = "Peak Annotation Files"
	SheetAnnotationDets  = "Peak Annotation Details"
	SheetConflicts       = conflicts.SheetName
)

// Column headers shared between loaders and the template writer.
const (
	ColStudyID          = "Study ID"
	ColStudyName        = "Name"
	ColDescription      = "Description"
	ColCompound         = "Compound"
	ColHMDBID           = "HMDB ID"
	ColFormula          = "Formula"
	ColSynonyms         = "Synonyms"
	ColTissue           = "Tissue"
	ColTreatment        = "Treatment"
	ColTreatmentDesc    = "Treatment Description"
	ColTracerGroup      = "Tracer Row Group"
	ColMassNumber       = "Mass Number"
	ColElement          = "Element"
	ColLabelCount       = "Label Count"
	ColLabelPositions   = "Label Positions"
	ColTracerName       = "Tracer Name"
	ColInfusateGroup    = "Infusate Row Group"
	ColInfusateName     = "Infusate Name"
	ColTracerGroupName  = "Tracer Group Name"
	ColConcentration    = "Tracer Concentration"
	ColAnimalName       = "Animal Name"
	ColAge              = "Age"
	ColSex              = "Sex"
	ColGenotype         = "Animal Genotype"
	ColBodyWeight       = "Animal Body Weight"
	ColInfusate         = "Infusate"
	ColInfusionRate     = "Infusion Rate"
	ColDiet             = "Diet"
	ColFeedingStatus    = "Feeding Status"
	ColStudy            = "Study"
	ColSample           = "Sample"
	ColDateCollected    = "Date Collected"
	ColResearcher       = "Researcher Name"
	ColCollectionTime   = "Collection Time"
	ColAnimal           = "Animal"
	ColSequenceNumber   = "Sequence Number"
	ColOperator         = "Operator"
	ColLCProtocol       = "LC Protocol Name"
	ColInstrument       = "Instrument"
	ColDate             = "Date"
	ColNotes            = "Notes"
	ColAnnotationFile   = "Peak Annotation File"
	ColFileFormat       = "File Format"
	ColDefaultSequence  = "Default Sequence"
	ColSampleName       = "Sample Name"
	ColSampleDataHeader = "Sample Data Header"
	ColMzXMLFile        = "mzXML File Name"
	ColAnnotFileName    = "Peak Annotation File Name"
	ColSequence         = "Sequence"
	ColSkip             = "Skip"
)

// Instruments lists the accepted mass spectrometer models.
var Instruments = []string{"QE", "QE2", "QEPlus", "QEHF", "Exploris240", "Exploris480", "unknown"}

func formatNames() []string {
	out := make([]string, len(peakannot.Formats))
	for i, f := range peakannot.Formats {
		out[i] = string(f)
	}
	return out
}

// Schemas maps each Study Doc sheet to its column declarations.
var Schemas = map[string]Schema{
	SheetStudy: {
		Sheet:     SheetStudy,
		Entity:    domain.EntityStudy,
		KeyColumn: ColStudyName,
		Columns: []Column{
			{Header: ColStudyID},
			{Header: ColStudyName, HeaderRequired: true, ValueRequired: true},
			{Header: ColDescription},
		},
		UniqueKeys: [][]string{{ColStudyName}},
	},
	SheetCompounds: {
		Sheet:     SheetCompounds,
		Entity:    domain.EntityCompound,
		KeyColumn: ColCompound,
		Columns: []Column{
			{Header: ColCompound, HeaderRequired: true, ValueRequired: true},
			{Header: ColHMDBID, HeaderRequired: true, ValueRequired: true},
			{Header: ColFormula, HeaderRequired: true, ValueRequired: true},
			{Header: ColSynonyms, Type: TypeList, Delimiter: ";"},
		},
		UniqueKeys: [][]string{{ColCompound}, {ColHMDBID}},
	},
	SheetTissues: {
		Sheet:     SheetTissues,
		Entity:    domain.EntityTissue,
		KeyColumn: ColTissue,
		Columns: []Column{
			{Header: ColTissue, HeaderRequired: true, ValueRequired: true},
			{Header: ColDescription},
		},
		UniqueKeys: [][]string{{ColTissue}},
	},
	SheetTreatments: {
		Sheet:     SheetTreatments,
		Entity:    domain.EntityTreatment,
		KeyColumn: ColTreatment,
		Columns: []Column{
			{Header: ColTreatment, HeaderRequired: true, ValueRequired: true},
			{Header: ColTreatmentDesc},
		},
		UniqueKeys: [][]string{{ColTreatment}},
	},
	SheetTracers: {
		Sheet:  SheetTracers,
		Entity: domain.EntityTracer,
		Columns: []Column{
			{Header: ColTracerGroup, Type: TypeInteger, HeaderRequired: true, ValueRequired: true},
			{Header: ColCompound, HeaderRequired: true, ValueRequired: true},
			{Header: ColMassNumber, Type: TypeInteger, HeaderRequired: true, ValueRequired: true},
			{Header: ColElement, Type: TypeEnum, HeaderRequired: true, ValueRequired: true, Allowed: notation.Elements},
			{Header: ColLabelCount, Type: TypeInteger, HeaderRequired: true, ValueRequired: true},
			{Header: ColLabelPositions, Type: TypeList, Delimiter: ","},
			{Header: ColTracerName},
		},
		UniqueKeys: [][]string{{ColTracerGroup, ColElement, ColMassNumber}},
	},
	SheetInfusates: {
		Sheet:  SheetInfusates,
		Entity: domain.EntityInfusate,
		Columns: []Column{
			{Header: ColInfusateGroup, Type: TypeInteger, HeaderRequired: true, ValueRequired: true},
			{Header: ColInfusateName},
			{Header: ColTracerGroupName},
			{Header: ColTracerName, HeaderRequired: true, ValueRequired: true},
			{Header: ColConcentration, Type: TypeNumber, HeaderRequired: true, ValueRequired: true},
		},
		UniqueKeys: [][]string{{ColInfusateGroup, ColTracerName}},
	},
	SheetAnimals: {
		Sheet:     SheetAnimals,
		Entity:    domain.EntityAnimal,
		KeyColumn: ColAnimalName,
		Columns: []Column{
			{Header: ColAnimalName, HeaderRequired: true, ValueRequired: true},
			{Header: ColAge, Type: TypeNumber},
			{Header: ColSex, Type: TypeEnum, Allowed: []string{"male", "female"}},
			{Header: ColGenotype},
			{Header: ColBodyWeight, Type: TypeNumber},
			{Header: ColInfusate},
			{Header: ColInfusionRate, Type: TypeNumber},
			{Header: ColDiet},
			{Header: ColFeedingStatus, Type: TypeEnum, Allowed: []string{"fasted", "fed", "refed"}},
			{Header: ColTreatment},
			{Header: ColStudy, Type: TypeList, Delimiter: ";"},
		},
		UniqueKeys: [][]string{{ColAnimalName}},
	},
	SheetSamples: {
		Sheet:     SheetSamples,
		Entity:    domain.EntitySample,
		KeyColumn: ColSample,
		Columns: []Column{
			{Header: ColSample, HeaderRequired: true, ValueRequired: true},
			{Header: ColDateCollected, Type: TypeDate},
			{Header: ColResearcher},
			{Header: ColTissue, HeaderRequired: true, ValueRequired: true},
			{Header: ColCollectionTime, Type: TypeNumber},
			{Header: ColAnimal, HeaderRequired: true, ValueRequired: true},
		},
		UniqueKeys: [][]string{{ColSample}},
	},
	SheetSequences: {
		Sheet:  SheetSequences,
		Entity: domain.EntitySequence,
		Columns: []Column{
			{Header: ColSequenceNumber, Type: TypeInteger},
			{Header: ColOperator, HeaderRequired: true, ValueRequired: true},
			{Header: ColLCProtocol, HeaderRequired: true, ValueRequired: true},
			{Header: ColInstrument, Type: TypeEnum, HeaderRequired: true, ValueRequired: true, Allowed: Instruments},
			{Header: ColDate, Type: TypeDate, HeaderRequired: true, ValueRequired: true},
			{Header: ColNotes},
		},
		UniqueKeys: [][]string{{ColOperator, ColLCProtocol, ColInstrument, ColDate}},
	},
	SheetAnnotationFiles: {
		Sheet:     SheetAnnotationFiles,
		Entity:    domain.EntityPeakAnnotationFile,
		KeyColumn: ColAnnotationFile,
		Columns: []Column{
			{Header: ColAnnotationFile, HeaderRequired: true, ValueRequired: true},
			{Header: ColFileFormat, Type: TypeEnum, Allowed: formatNames()},
			{Header: ColDefaultSequence},
		},
		UniqueKeys: [][]string{{ColAnnotationFile}},
	},
	SheetAnnotationDets: {
		Sheet: SheetAnnotationDets,
		Columns: []Column{
			{Header: ColSampleName},
			{Header: ColSampleDataHeader, HeaderRequired: true, ValueRequired: true},
			{Header: ColMzXMLFile},
			{Header: ColAnnotFileName, HeaderRequired: true, ValueRequired: true},
			{Header: ColSequence},
			{Header: ColSkip, Type: TypeBoolean},
		},
		UniqueKeys: [][]string{{ColSampleDataHeader, ColAnnotFileName, ColSequence}},
	},
	SheetConflicts: {
		Sheet: SheetConflicts,
		Columns: []Column{
			{Header: conflicts.ColConflict, Type: TypeList, Delimiter: ";", HeaderRequired: true, ValueRequired: true},
			{Header: conflicts.ColSelected},
			{Header: conflicts.ColSampleCount, Type: TypeInteger},
			{Header: conflicts.ColExampleSamples},
			{Header: conflicts.ColCommonSamples, Type: TypeList, Delimiter: ";", HeaderRequired: true, ValueRequired: true},
		},
	},
}
