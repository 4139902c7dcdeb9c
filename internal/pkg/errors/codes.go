package errors

import (
	"net/http"
)

// Code represents an error code with HTTP status and default message
type Code struct {
	Code    int    // business error code
	Status  int    // HTTP status code
	Message string // default public message
}

// Error codes grouped by module
const (
	Success = 0

	// Common errors (1000-1999)
	ErrInternal        = 1000
	ErrValidation      = 1001
	ErrNotFound        = 1002
	ErrAuth            = 1003
	ErrConflict        = 1005
	ErrTooManyRequests = 1006
	ErrServiceUnavail  = 1008

	// LLM errors (2000-2999)
	ErrProvider         = 2000
	ErrModelNotFound    = 2001
	ErrProviderNotFound = 2002
	ErrMissingAPIKey    = 2003

	// Runtime / sandbox errors (3000-3999)
	ErrSandbox         = 3000
	ErrDuplicateAction = 3001
	ErrActionNotFound  = 3002

	// Persistence errors (4000-4999)
	ErrPersistence  = 4000
	ErrChatNotFound = 4001

	// Workbench export errors (5000-5999)
	ErrNoFiles     = 5000
	ErrGitHub      = 5001
	ErrSessionGone = 5002

	// Web search errors (6000-6999)
	ErrWebSearch = 6000
)

var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	ErrInternal:        {ErrInternal, http.StatusInternalServerError, "Internal Server Error"},
	ErrValidation:      {ErrValidation, http.StatusBadRequest, "Invalid request"},
	ErrNotFound:        {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrAuth:            {ErrAuth, http.StatusUnauthorized, "Unauthorized"},
	ErrConflict:        {ErrConflict, http.StatusConflict, "Resource conflict"},
	ErrTooManyRequests: {ErrTooManyRequests, http.StatusTooManyRequests, "rate limit exceeded"},
	ErrServiceUnavail:  {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},

	ErrProvider:         {ErrProvider, http.StatusInternalServerError, "Internal Server Error"},
	ErrModelNotFound:    {ErrModelNotFound, http.StatusNotFound, "Model not found"},
	ErrProviderNotFound: {ErrProviderNotFound, http.StatusNotFound, "Provider not found"},
	ErrMissingAPIKey:    {ErrMissingAPIKey, http.StatusUnauthorized, "Invalid or missing API key"},

	ErrSandbox:         {ErrSandbox, http.StatusInternalServerError, "Sandbox operation failed"},
	ErrDuplicateAction: {ErrDuplicateAction, http.StatusConflict, "Action already registered with a different type"},
	ErrActionNotFound:  {ErrActionNotFound, http.StatusNotFound, "Action not found"},

	ErrPersistence:  {ErrPersistence, http.StatusServiceUnavailable, "Chat persistence is unavailable"},
	ErrChatNotFound: {ErrChatNotFound, http.StatusNotFound, "Chat not found"},

	ErrNoFiles:     {ErrNoFiles, http.StatusBadRequest, "No files found to push."},
	ErrGitHub:      {ErrGitHub, http.StatusBadGateway, "GitHub request failed"},
	ErrSessionGone: {ErrSessionGone, http.StatusNotFound, "Session not found"},

	ErrWebSearch: {ErrWebSearch, http.StatusInternalServerError, "Failed to perform web search"},
}

// GetCode returns the Code for code, ErrInternal when unknown
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternal]
}

// GetHTTPStatus returns the HTTP status for code
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage returns the default public message for code
func GetMessage(code int) string {
	return GetCode(code).Message
}

// IsClientError reports whether code maps to a 4xx status
func IsClientError(code int) bool {
	s := GetHTTPStatus(code)
	return s >= 400 && s < 500
}
