package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a run, record or parameter version does not exist
	ErrNotFound = errors.New("not found")
	// ErrNoActiveVersion is returned when no version of a model is active at the as-of date
	ErrNoActiveVersion = errors.New("no active parameter version")
	// ErrTransitionDenied is returned for a lifecycle move the actor may not make
	ErrTransitionDenied = errors.New("lifecycle transition denied")
	// ErrFrozen is returned when changing a parameter set that is no longer a draft
	ErrFrozen = errors.New("parameter set is frozen")
)

func location(entity string, method Method, field string) string {
	var parts []string
	if entity != "" {
		parts = append(parts, "entity="+entity)
	}
	if method != "" {
		parts = append(parts, "method="+string(method))
	}
	if field != "" {
		parts = append(parts, "field="+field)
	}
	if len(parts) == 0 {
		return ""
	}
	return " [" + strings.Join(parts, " ") + "]"
}

// InsufficientDataError means a required data series is too short or empty
type InsufficientDataError struct {
	EntityID string
	Method   Method
	Field    string
	Have     int
	Need     int
	Detail   string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %s (have %d, need %d)%s",
		e.Detail, e.Have, e.Need, location(e.EntityID, e.Method, e.Field))
}

// Violation is one failed parameter or request rule
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return v.Field + ": " + v.Message
}

// ValidationError carries every violation found; validity is all-or-nothing
type ValidationError struct {
	// Subject names what was validated when it is not a parameter set
	Subject    string
	Model      Model
	VersionID  string
	EntityID   string
	Method     Method
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	subject := "parameters"
	switch {
	case e.Subject != "":
		subject = e.Subject
	case e.VersionID != "":
		subject = fmt.Sprintf("parameter set %s/%s", e.Model, e.VersionID)
	}
	return fmt.Sprintf("validation failed for %s: %s%s",
		subject, strings.Join(msgs, "; "), location(e.EntityID, e.Method, ""))
}

// HashMismatch describes one hash that no longer matches its recomputation
type HashMismatch struct {
	Name       string `json:"name"`
	Stored     string `json:"stored"`
	Recomputed string `json:"recomputed"`
}

// IntegrityError means stored content no longer matches its recorded hash
type IntegrityError struct {
	RunID      string
	Subject    string
	Mismatches []HashMismatch
}

func (e *IntegrityError) Error() string {
	names := make([]string, len(e.Mismatches))
	for i, m := range e.Mismatches {
		names[i] = m.Name
	}
	subject := e.Subject
	if subject == "" {
		subject = "run " + e.RunID
	}
	return fmt.Sprintf("integrity check failed for %s: %s mismatch", subject, strings.Join(names, ", "))
}

// DomainComputationError means inputs violate a domain invariant
type DomainComputationError struct {
	EntityID string
	Method   Method
	Field    string
	Detail   string
}

func (e *DomainComputationError) Error() string {
	return "domain computation error: " + e.Detail + location(e.EntityID, e.Method, e.Field)
}

// Annotate fills entity and method context on typed domain errors that lack it
func Annotate(err error, entity string, method Method) error {
	var insufficient *InsufficientDataError
	var validation *ValidationError
	var computation *DomainComputationError
	switch {
	case errors.As(err, &insufficient):
		insufficient.EntityID = firstNonEmpty(insufficient.EntityID, entity)
		if insufficient.Method == "" {
			insufficient.Method = method
		}
	case errors.As(err, &validation):
		validation.EntityID = firstNonEmpty(validation.EntityID, entity)
		if validation.Method == "" {
			validation.Method = method
		}
	case errors.As(err, &computation):
		computation.EntityID = firstNonEmpty(computation.EntityID, entity)
		if computation.Method == "" {
			computation.Method = method
		}
	}
	return err
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
