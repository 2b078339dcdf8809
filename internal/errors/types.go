package errors

// the only error shape clients ever see
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`              // human-readable message
	ErrorCode string `json:"errorCode"`          // stable code, e.g. "DailyLimitReached"
	ResetAt   string `json:"reset_at,omitempty"` // RFC 3339, when retrying makes sense
}
