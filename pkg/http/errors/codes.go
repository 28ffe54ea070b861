package errors

// Error codes for standardized error responses
const (
	// Validation errors
	ErrCodeInvalidRequest         = "invalid_request"
	ErrCodeInvalidRoomCode        = "invalid_room_code"
	ErrCodeInsufficientVocabulary = "insufficient_vocabulary"

	// Room/Match errors
	ErrCodeRoomCreationFailed = "room_creation_failed"
	ErrCodeRoomNotFound       = "room_not_found"
	ErrCodeSelfJoin           = "self_join"
	ErrCodeJoinFailed         = "join_failed"
	ErrCodeNotAuthorized      = "not_authorized"
	ErrCodeNotReady           = "not_ready"
	ErrCodeCancelFailed       = "cancel_failed"
	ErrCodeMatchNotFound      = "match_not_found"
	ErrCodeSubmitFailed       = "submit_failed"

	// WebSocket errors
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeUnknownMessageType = "unknown_message_type"
	ErrCodeConnectionError    = "connection_error"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
)
