package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

// ConfigurationError is raised when a rule set or resolution config is invalid.
// It is returned when configuration is assigned, never from inside a batch.
type ConfigurationError struct {
	Rule    string
	Field   string
	Setting string
	Message string
}

func NewConfigurationError(msg string) *ConfigurationError {
	return &ConfigurationError{Message: msg}
}

func NewConfigurationErrorf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	path := []string{}
	if e.Rule != "" {
		path = append(path, fmt.Sprintf("rule '%s'", e.Rule))
	}
	if e.Field != "" {
		path = append(path, fmt.Sprintf("field '%s'", e.Field))
	}
	if e.Setting != "" {
		path = append(path, fmt.Sprintf("setting '%s'", e.Setting))
	}

	if len(path) == 0 {
		return "invalid configuration: " + e.Message
	}

	return "invalid configuration: " + strings.Join(path, " -> ") + ": " + e.Message
}

func (e *ConfigurationError) WithRule(rule string) *ConfigurationError {
	e.Rule = rule
	return e
}

func (e *ConfigurationError) WithField(field string) *ConfigurationError {
	e.Field = field
	return e
}

func (e *ConfigurationError) WithSetting(setting string) *ConfigurationError {
	e.Setting = setting
	return e
}

func (e *ConfigurationError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadRequest, e.Error()).AddMetaValue("rule", e.Rule).AddMetaValue("field", e.Field).AddMetaValue("setting", e.Setting)
}

func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// MissingEntityError is raised when a lookup references an id absent from the supplied collection
type MissingEntityError struct {
	EntityID    string
	CandidateID string
	Message     string
}

func NewMissingEntityError(entityID string) *MissingEntityError {
	return &MissingEntityError{
		EntityID: entityID,
		Message:  "entity not found",
	}
}

func NewMissingCandidateError(candidateID string) *MissingEntityError {
	return &MissingEntityError{
		CandidateID: candidateID,
		Message:     "match candidate not found",
	}
}

func (e *MissingEntityError) Error() string {
	if e.CandidateID != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.CandidateID)
	}
	return fmt.Sprintf("%s: %s", e.Message, e.EntityID)
}

func (e *MissingEntityError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusNotFound, e.Error()).AddMetaValue("entity_id", e.EntityID).AddMetaValue("candidate_id", e.CandidateID)
}

func IsMissingEntityError(err error) bool {
	var target *MissingEntityError
	return errors.As(err, &target)
}

// EmptyInputError signals an operation received fewer records than it needs.
// Callers treat it as a no-op and return an empty result.
type EmptyInputError struct {
	Operation string
	Required  int
	Got       int
}

func NewEmptyInputError(operation string, required, got int) *EmptyInputError {
	return &EmptyInputError{
		Operation: operation,
		Required:  required,
		Got:       got,
	}
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("%s requires at least %d records, got %d", e.Operation, e.Required, e.Got)
}

func IsEmptyInputError(err error) bool {
	var target *EmptyInputError
	return errors.As(err, &target)
}

// ToHTTPError maps engine errors to HTTP errors. Unknown errors become a 500.
func ToHTTPError(err error) error {
	if err == nil {
		return nil
	}
	if httperror.IsHTTPError(err) {
		return err
	}

	var configErr *ConfigurationError
	if errors.As(err, &configErr) {
		return configErr.ToHTTPError()
	}
	var missingErr *MissingEntityError
	if errors.As(err, &missingErr) {
		return missingErr.ToHTTPError()
	}
	var emptyErr *EmptyInputError
	if errors.As(err, &emptyErr) {
		return httperror.NewHTTPError(http.StatusBadRequest, emptyErr.Error())
	}

	return httperror.NewHTTPError(http.StatusInternalServerError, err.Error())
}
