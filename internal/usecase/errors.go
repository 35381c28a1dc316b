package usecase

import "errors"

const (
	CodeInvalidInput   = "INVALID_INPUT"
	CodeLeadNotFound   = "LEAD_NOT_FOUND"
	CodeLeadProtected  = "LEAD_PROTECTED"
	CodeManualOverride = "MANUAL_OVERRIDE"
	CodeSendFailed     = "SEND_FAILED"
	CodeStoreFailure   = "STORE_FAILURE"
)

// DomainError is a rejection the caller can fix (maps to 4xx).
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func IsDomainError(err error) bool {
	var d *DomainError
	return errors.As(err, &d)
}

// TechnicalError is an upstream or infrastructure failure (maps to 5xx).
type TechnicalError struct {
	Code    string
	Message string
	Err     error
}

func (e *TechnicalError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *TechnicalError) Unwrap() error { return e.Err }

func IsTechnicalError(err error) bool {
	var t *TechnicalError
	return errors.As(err, &t)
}

// ErrorCode returns the code of a DomainError or TechnicalError, or "".
func ErrorCode(err error) string {
	var d *DomainError
	if errors.As(err, &d) {
		return d.Code
	}
	var t *TechnicalError
	if errors.As(err, &t) {
		return t.Code
	}
	return ""
}
