package ws

// Message types from client to server
const (
	TypeHello   = "hello"
	TypeMessage = "message"
	TypeReset   = "reset"
)

// Message types from server to client
const (
	TypeHelloAck = "hello_ack"
	TypeReply    = "reply"
	TypeResetAck = "reset_ack"
	TypeError    = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// HelloMessage binds the connection to a session. An empty session id starts a new one.
type HelloMessage struct {
	BaseMessage
}

// HelloAckMessage confirms the bound session.
type HelloAckMessage struct {
	BaseMessage
}

// ChatMessage carries one user turn.
type ChatMessage struct {
	BaseMessage
	Content string `json:"content"`
}

// ReplyMessage carries the assistant's answer to a ChatMessage.
type ReplyMessage struct {
	BaseMessage
	Content string `json:"content"`
}

// ErrorMessage is sent when a frame cannot be served.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrorCodeInvalidMessage  = "invalid_message"
	ErrorCodeInvalidInput    = "invalid_input"
	ErrorCodeSessionRequired = "session_required"
	ErrorCodeInternalError   = "internal_error"
)
