package handlers

// Common error message constants shared across handlers
const (
	ErrMsgInvalidRequestBody = "Invalid request body"
	ErrMsgEmptyRequestBody   = "Request body is required"
	ErrMsgMissingID          = "Missing resource id"
)

// API path constants
const (
	APIBasePath = "/api/v1"
)
