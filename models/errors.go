package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeSessionInit     = "SESSION_INIT_FAILED"
	ErrCodeCaptchaUnsolved = "CAPTCHA_UNSOLVED"
	ErrCodeExtractionMiss  = "EXTRACTION_MISS"
	ErrCodeNoData          = "NO_DATA"
	ErrCodeElementNotFound = "ELEMENT_NOT_FOUND"
	ErrCodeTimeout         = "SCRAPE_TIMEOUT"
	ErrCodeBrowserFault    = "BROWSER_FAULT"
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// Sentinels for errors.Is matching. A *ScrapeError matches the sentinel
// that shares its code.
var (
	ErrSessionInit     = errors.New("browser session could not be started")
	ErrCaptchaUnsolved = errors.New("captcha challenge failed")
	ErrExtractionMiss  = errors.New("no embedded product data in page")
	ErrNoData          = errors.New("no data from any endpoint")
	ErrElementNotFound = errors.New("captcha element not found")
)

var sentinelByCode = map[string]error{
	ErrCodeSessionInit:     ErrSessionInit,
	ErrCodeCaptchaUnsolved: ErrCaptchaUnsolved,
	ErrCodeExtractionMiss:  ErrExtractionMiss,
	ErrCodeNoData:          ErrNoData,
	ErrCodeElementNotFound: ErrElementNotFound,
}

// ErrorDetail is the structured error used by batch results and webhooks.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's code.
func (e *ScrapeError) Is(target error) bool {
	s, ok := sentinelByCode[e.Code]
	return ok && s == target
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// AsScrapeError unwraps err into a *ScrapeError, wrapping unknown errors
// as INTERNAL_ERROR.
func AsScrapeError(err error) *ScrapeError {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se
	}
	return NewScrapeError(ErrCodeInternal, err.Error(), err)
}
