package graph

import (
	"errors"
	"fmt"
	"strings"
)

// APIError is a failure reported by the ads platform, either through a
// non-2xx status or an error body on a 2xx response.
type APIError struct {
	StatusCode int
	Message    string
	Type       string
	Code       int
	Subcode    int
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("graph api error (status %d, code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("graph api error (status %d): %s", e.StatusCode, e.Message)
}

// apiError is the wire shape of the platform's error object.
type apiError struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
}

func (e *apiError) toAPIError(status int) *APIError {
	return &APIError{
		StatusCode: status,
		Message:    e.Message,
		Type:       e.Type,
		Code:       e.Code,
		Subcode:    e.ErrorSubcode,
	}
}

// Platform codes for throttling: app, user, account and ad-account level limits.
var rateLimitCodes = map[int]bool{4: true, 17: true, 32: true, 613: true, 80000: true, 80003: true, 80004: true, 80014: true}

// IsRateLimit reports whether the platform rejected the call for exceeding a
// rate limit.
func (e *APIError) IsRateLimit() bool {
	if rateLimitCodes[e.Code] || e.StatusCode == 429 {
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many calls") || strings.Contains(msg, "request limit")
}

// IsPermissionDenied reports whether the token lacks a permission for the resource.
func (e *APIError) IsPermissionDenied() bool {
	if e.Code == 10 || (e.Code >= 200 && e.Code <= 299) || e.StatusCode == 403 {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "permission")
}

// IsRateLimit reports whether err wraps a rate limit APIError.
func IsRateLimit(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsRateLimit()
}

// IsPermissionDenied reports whether err wraps a permission APIError.
func IsPermissionDenied(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsPermissionDenied()
}
