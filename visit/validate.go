package visit

import (
	"fmt"
	"strings"

	"visit-summary-service/models"
)

const (
	FieldPatientName = "patient_name"
	FieldDateOfVisit = "date_of_visit"
	FieldNotes       = "notes"
)

// Reasons a field can be rejected.
const (
	ReasonMissing        = "missing"
	ReasonEmpty          = "empty"
	ReasonWhitespaceOnly = "whitespace-only"
	ReasonWrongType      = "wrong-type"
)

// Record is a validated visit. All fields are trimmed and non-empty.
type Record struct {
	PatientName string
	DateOfVisit string
	Notes       string
}

// ValidationError identifies the first invalid field of a visit request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	label, ok := labels[e.Field]
	if !ok {
		label = e.Field
	}
	switch e.Reason {
	case ReasonMissing:
		return fmt.Sprintf("%s is required (%s: %s)", label, e.Field, e.Reason)
	case ReasonWrongType:
		return fmt.Sprintf("%s must be a string (%s: %s)", label, e.Field, e.Reason)
	default:
		return fmt.Sprintf("%s cannot be empty (%s: %s)", label, e.Field, e.Reason)
	}
}

var labels = map[string]string{
	FieldPatientName: "Patient name",
	FieldDateOfVisit: "Date of visit",
	FieldNotes:       "Notes",
}

// Normalize strips leading and trailing whitespace.
func Normalize(s string) string {
	return strings.TrimSpace(s)
}

// Validate normalizes the request fields in declaration order and returns
// the first failure as a *ValidationError.
func Validate(req models.VisitRequest) (Record, error) {
	name, err := field(FieldPatientName, req.PatientName)
	if err != nil {
		return Record{}, err
	}
	date, err := field(FieldDateOfVisit, req.DateOfVisit)
	if err != nil {
		return Record{}, err
	}
	notes, err := field(FieldNotes, req.Notes)
	if err != nil {
		return Record{}, err
	}

	return Record{
		PatientName: name,
		DateOfVisit: date,
		Notes:       notes,
	}, nil
}

func field(name string, value *string) (string, error) {
	if value == nil {
		return "", &ValidationError{Field: name, Reason: ReasonMissing}
	}
	if *value == "" {
		return "", &ValidationError{Field: name, Reason: ReasonEmpty}
	}
	v := Normalize(*value)
	if v == "" {
		return "", &ValidationError{Field: name, Reason: ReasonWhitespaceOnly}
	}
	return v, nil
}
