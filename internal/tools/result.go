package tools

import (
	"fmt"
	"maps"
)

// Error codes carried by failed results.
const (
	CodeInvalidArguments = "invalid_arguments"
	CodeUnknownTool      = "unknown_tool"
	CodeNotFound         = "not_found"
	CodeStore            = "store_error"
	CodeExecution        = "execution_error"
	CodeBlocked          = "blocked"
	CodePolicy           = "policy_error"
)

// Error describes why a tool call failed.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Result is either Data (success) or Err (failure), never both.
type Result struct {
	Data map[string]any
	Err  *Error
}

// OK wraps a successful payload.
func OK(data map[string]any) Result {
	if data == nil {
		data = map[string]any{}
	}
	return Result{Data: data}
}

// Failf builds a failed result.
func Failf(code, format string, args ...any) Result {
	return Result{Err: &Error{Code: code, Message: fmt.Sprintf(format, args...)}}
}

// Failed reports whether the result is an error.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Payload renders the result as the JSON object sent back to the model.
// Successful payloads always carry "success": true; failures carry
// "success": false with "error" and "code".
func (r Result) Payload() map[string]any {
	if r.Err != nil {
		return map[string]any{
			"success": false,
			"error":   r.Err.Message,
			"code":    r.Err.Code,
		}
	}
	out := make(map[string]any, len(r.Data)+1)
	maps.Copy(out, r.Data)
	out["success"] = true
	return out
}
