package cases

import "errors"

// Stable precondition failure codes returned to API callers.
const (
	CodeRestrictionExists    = "restriction_already_exists"
	CodeAppealExists         = "appeal_already_exists"
	CodeAppealDeadlinePassed = "appeal_deadline_passed"
	CodeNotAuthorized        = "not_authorized"
	CodeInvalidState         = "invalid_state"
	CodeInsufficientWarnings = "insufficient_warnings"
)

// Failure is a typed precondition violation. Callers branch on Code rather
// than parsing messages; codes are part of the API contract.
type Failure struct {
	Code    string
	Message string
}

func (f *Failure) Error() string {
	if f.Message == "" {
		return f.Code
	}
	return f.Code + ": " + f.Message
}

func failf(code, message string) *Failure {
	return &Failure{Code: code, Message: message}
}

// AsFailure unwraps a typed precondition failure from err if present.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
