package errors

// Error codes for standardized error responses
const (
	// Authentication errors
	ErrCodeUnauthorized           = "unauthorized"
	ErrCodeForbidden              = "forbidden"
	ErrCodeInvalidToken           = "invalid_token"
	ErrCodeTokenExpired           = "token_expired"
	ErrCodeAuthenticationRequired = "authentication_required"
	ErrCodeLoginFailed            = "login_failed"

	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeMissingField     = "missing_field"
	ErrCodeInvalidExamID    = "invalid_exam_id"
	ErrCodeInvalidSessionID = "invalid_session_id"

	// Resource errors
	ErrCodeNotFound        = "not_found"
	ErrCodeSessionNotFound = "session_not_found"
	ErrCodeConflict        = "conflict"

	// Exam session errors
	ErrCodeLoadFailure       = "load_failure"
	ErrCodeExamUnavailable   = "exam_unavailable"
	ErrCodeAlreadyStarted    = "already_started"
	ErrCodeNotInProgress     = "not_in_progress"
	ErrCodeSubmitInFlight    = "submit_in_flight"
	ErrCodeSubmissionFailure = "submission_failure"
	ErrCodeDeadlinePassed    = "deadline_passed"
	ErrCodeIndexOutOfRange   = "index_out_of_range"
	ErrCodeUnknownQuestion   = "unknown_question"
	ErrCodeUnknownAnswer     = "unknown_answer"
	ErrCodePageOutOfRange    = "page_out_of_range"

	// WebSocket errors
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeUnknownMessageType = "unknown_message_type"
	ErrCodeConnectionError    = "connection_error"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeUpstreamError      = "upstream_error"

	// Feature availability
	ErrCodeFeatureNotAvailable = "feature_not_available"
)
