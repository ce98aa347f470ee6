package sdk

import (
	"errors"
	"fmt"
)

// Error codes returned by the API.
const (
	CodeIndexingConflict = "indexing_conflict"
	CodeCompanyNotFound  = "company_not_found"
	CodeNotIndexed       = "company_not_indexed"
	CodeNoFilings        = "no_filings"
	CodeProviderError    = "provider_error"
)

// APIError is a non-2xx response decoded from the API error body.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("findex: %s (%s, http %d)", e.Message, e.Code, e.StatusCode)
}

// IsConflict reports whether err is a rejected concurrent indexing run.
func IsConflict(err error) bool { return hasCode(err, CodeIndexingConflict) }

// IsNotIndexed reports whether err means the company has no filing index.
func IsNotIndexed(err error) bool { return hasCode(err, CodeNotIndexed) }

// IsNotFound reports whether err means the ticker could not be resolved.
func IsNotFound(err error) bool { return hasCode(err, CodeCompanyNotFound) }

func hasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
