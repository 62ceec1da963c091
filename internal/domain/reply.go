package domain

// ConversationState tracks where a user is in the dialogue state machine.
type ConversationState string

const (
	// StateNone means no session exists; the next message cold-starts a dialogue.
	StateNone ConversationState = ""
	// StateAwaitingResponse is set after the bootstrap greeting turn.
	StateAwaitingResponse ConversationState = "awaiting_response"
	// StateResponseReceived is set after every continuing turn.
	StateResponseReceived ConversationState = "response_received"
)

// ErrorKind enumerates the reply error taxonomy.
type ErrorKind string

const (
	ErrInvalidRequest  ErrorKind = "invalid_request"
	ErrProcessingError ErrorKind = "processing_error"
	ErrServerError     ErrorKind = "server_error"
	ErrInvalidToken    ErrorKind = "invalid_token"
)

// OutboundReply is the well-formed envelope every handled message produces,
// success or failure.
type OutboundReply struct {
	Type    string         `json:"type"` // "response" or "message"
	Status  string         `json:"status"`
	Action  string         `json:"action,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Error   ErrorKind      `json:"error,omitempty"`
	Message string         `json:"message,omitempty"`
}

// SuccessReply builds a success reply carrying the bot's text.
func SuccessReply(action string, data map[string]any) OutboundReply {
	return OutboundReply{
		Type:   "response",
		Status: "success",
		Action: action,
		Data:   data,
	}
}

// ErrorReply builds an error reply of the given kind.
func ErrorReply(kind ErrorKind, message string) OutboundReply {
	return OutboundReply{
		Type:    "response",
		Status:  "error",
		Error:   kind,
		Message: message,
	}
}
