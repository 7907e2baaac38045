package agent

import "errors"

// Errors surfaced by Submit. Each wraps its cause; callers map them to
// status codes and show PoliteMessage to the user.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrServiceUnavailable = errors.New("llm service unavailable")
	ErrMalformedResponse  = errors.New("malformed llm response")
)

// User-facing answers.
const (
	MsgInvalidInput       = "I'm sorry, I didn't receive a valid message. Please try again."
	MsgServiceUnavailable = "I'm having trouble connecting to the AI service. Please try again later."
	MsgMalformedResponse  = "I encountered an error processing the response. Please try again."
	MsgEmptyAnswer        = "I don't have a response for that."
	MsgNoToolResults      = "I encountered an issue processing your request. Please try again."
	MsgIterationLimit     = "I'm having trouble processing your request. Please try again with more specific details."
	MsgGeneric            = "I'm sorry, I encountered an issue processing your request. Please try again."
)

// toolResultFallback replaces a tool payload that cannot be serialized.
const toolResultFallback = `{"error":"Failed to process tool result","success":false}`

// PoliteMessage maps an error to the answer shown to the user.
// Raw error text is never included.
func PoliteMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return MsgInvalidInput
	case errors.Is(err, ErrServiceUnavailable):
		return MsgServiceUnavailable
	case errors.Is(err, ErrMalformedResponse):
		return MsgMalformedResponse
	}
	return MsgGeneric
}
