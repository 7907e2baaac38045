package agent

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaot623/taskagent/internal/adapter/llm"
	"github.com/xiaot623/taskagent/internal/domain"
	"github.com/xiaot623/taskagent/internal/logging"
	"github.com/xiaot623/taskagent/internal/tools"
	"github.com/xiaot623/taskagent/policy"
	"github.com/xiaot623/taskagent/tests/helpers"
)

func noopTool(name string) tools.Tool {
	return tools.Tool{
		Schema: tools.Schema{Name: name, Description: "does nothing"},
		Handler: tools.HandlerFunc(func(ctx context.Context, args map[string]any) tools.Result {
			return tools.OK(map[string]any{"echo": args})
		}),
	}
}

func newTestConversation(t *testing.T, client llm.LLMClient, registry *tools.Registry, opts ...Option) *Conversation {
	t.Helper()
	opts = append([]Option{WithLogger(logging.Discard()), WithModel("test-model")}, opts...)
	return New(client, registry, opts...)
}

// requireWellFormed checks that every tool message answers a call of the
// nearest preceding assistant message, in request order.
func requireWellFormed(t *testing.T, transcript []llm.ChatMessage) {
	t.Helper()
	var pending []string
	for i, m := range transcript {
		switch m.Role {
		case llm.RoleAssistant:
			pending = nil
			for _, tc := range m.ToolCalls {
				pending = append(pending, tc.ID)
			}
		case llm.RoleTool:
			require.NotEmpty(t, pending, "tool message %d has no preceding call", i)
			require.Equal(t, pending[0], m.ToolCallID, "tool message %d out of order", i)
			pending = pending[1:]
		default:
			pending = nil
		}
	}
}

func toolPayload(t *testing.T, m llm.ChatMessage) map[string]any {
	t.Helper()
	require.Equal(t, llm.RoleTool, m.Role)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(m.Content), &payload))
	return payload
}

func TestSubmit_ReturnsToolFreeAnswer(t *testing.T) {
	client := llm.NewScriptedClient(llm.Reply("  Hello there!\n"))
	conv := newTestConversation(t, client, tools.MustNewRegistry(noopTool("noop")))

	answer, err := conv.Submit(context.Background(), "  hi  ")
	require.NoError(t, err)
	assert.Equal(t, "Hello there!", answer)

	transcript := conv.Transcript()
	require.Len(t, transcript, 3)
	assert.Equal(t, llm.RoleSystem, transcript[0].Role)
	assert.Equal(t, llm.ChatMessage{Role: llm.RoleUser, Content: "hi"}, transcript[1])
	assert.Equal(t, llm.ChatMessage{Role: llm.RoleAssistant, Content: "Hello there!"}, transcript[2])
	assert.Equal(t, StateIdle, conv.State())
}

func TestSubmit_RequestShape(t *testing.T) {
	client := llm.NewScriptedClient(llm.Reply("ok"))
	conv := newTestConversation(t, client, tools.MustNewRegistry(noopTool("a"), noopTool("b")))

	_, err := conv.Submit(context.Background(), "hi")
	require.NoError(t, err)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, "test-model", req.Model)
	assert.Equal(t, llm.ToolChoiceAuto, req.ToolChoice)
	require.NotNil(t, req.Temperature)
	assert.Equal(t, DefaultTemperature, *req.Temperature)
	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, DefaultMaxTokens, *req.MaxTokens)
	require.Len(t, req.Tools, 2)
	assert.Equal(t, "function", req.Tools[0].Type)
	assert.Equal(t, "a", req.Tools[0].Function.Name)
	assert.Equal(t, "b", req.Tools[1].Function.Name)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, DefaultSystemPrompt, req.Messages[0].Content)
}

func TestSubmit_EmptyAnswerFallback(t *testing.T) {
	client := llm.NewScriptedClient(llm.Reply("   "))
	conv := newTestConversation(t, client, nil)

	answer, err := conv.Submit(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, MsgEmptyAnswer, answer)
}

func TestSubmit_InvalidInput(t *testing.T) {
	client := llm.NewScriptedClient()
	conv := newTestConversation(t, client, nil)

	for _, input := range []string{"", "   ", "\n\t"} {
		answer, err := conv.Submit(context.Background(), input)
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Equal(t, MsgInvalidInput, answer)
	}
	assert.Equal(t, 0, client.Calls())
	assert.Len(t, conv.Transcript(), 1)
}

func TestSubmit_ServiceUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	client := llm.NewScriptedClient(llm.Fail(cause))
	conv := newTestConversation(t, client, nil)

	answer, err := conv.Submit(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, MsgServiceUnavailable, answer)
	assert.NotContains(t, answer, "connection refused")
	assert.Equal(t, StateIdle, conv.State())
}

func TestSubmit_MalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		step llm.ScriptedStep
	}{
		{name: "no choices", step: llm.ScriptedStep{Response: &llm.ChatCompletionResponse{}}},
		{name: "nil message", step: llm.ScriptedStep{Response: &llm.ChatCompletionResponse{Choices: []llm.Choice{{}}}}},
		{name: "nil response", step: llm.ScriptedStep{}},
		{name: "undecodable body", step: llm.Fail(llm.ErrInvalidResponse)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := newTestConversation(t, llm.NewScriptedClient(tt.step), nil)
			answer, err := conv.Submit(context.Background(), "hi")
			assert.ErrorIs(t, err, ErrMalformedResponse)
			assert.Equal(t, MsgMalformedResponse, answer)
		})
	}
}

func TestSubmit_MalformedArgumentsBecomeToolErrors(t *testing.T) {
	client := llm.NewScriptedClient(
		llm.CallTools(
			llm.NewToolCall("c1", "noop", `{not json`),
			llm.NewToolCall("c2", "noop", `[1,2]`),
			llm.NewToolCall("c3", "noop", `null`),
			llm.NewToolCall("c4", "noop", ``),
		),
		llm.Reply("Sorry, let me try that again."),
	)
	conv := newTestConversation(t, client, tools.MustNewRegistry(noopTool("noop")))

	answer, err := conv.Submit(context.Background(), "do it")
	require.NoError(t, err)
	assert.Equal(t, "Sorry, let me try that again.", answer)

	transcript := conv.Transcript()
	requireWellFormed(t, transcript)
	require.Len(t, transcript, 8) // system, user, assistant, 4 tool, assistant

	for _, m := range transcript[3:6] {
		payload := toolPayload(t, m)
		assert.Equal(t, false, payload["success"])
		assert.Equal(t, tools.CodeInvalidArguments, payload["code"])
		assert.NotEmpty(t, payload["error"])
	}
	// Empty arguments mean an empty object.
	assert.Equal(t, true, toolPayload(t, transcript[6])["success"])

	summary := conv.ToolSummary()
	assert.Equal(t, domain.ToolInvocationSummary{Total: 4, Completed: 1, Error: 3}, summary)
}

func TestSubmit_TerminatesAtIterationBound(t *testing.T) {
	for _, bound := range []int{1, 3, DefaultMaxIterations} {
		client := llm.NewScriptedClient()
		client.Fallback = func(req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
			return llm.ToolCallResponse("", llm.NewToolCall("call_1", "noop", `{}`)), nil
		}
		conv := newTestConversation(t, client, tools.MustNewRegistry(noopTool("noop")), WithMaxIterations(bound))

		answer, err := conv.Submit(context.Background(), "loop forever")
		require.NoError(t, err)
		assert.Equal(t, MsgIterationLimit, answer)
		assert.Equal(t, bound, client.Calls())
		assert.Len(t, conv.ToolInvocations(), bound)
		requireWellFormed(t, conv.Transcript())
	}
}

func TestSubmit_DefaultBoundIsFive(t *testing.T) {
	client := llm.NewScriptedClient()
	client.Fallback = func(req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
		return llm.ToolCallResponse("", llm.NewToolCall("call_1", "noop", `{}`)), nil
	}
	conv := newTestConversation(t, client, tools.MustNewRegistry(noopTool("noop")), WithMaxIterations(0))

	_, err := conv.Submit(context.Background(), "loop forever")
	require.NoError(t, err)
	assert.Equal(t, 5, client.Calls())
}

func TestSubmit_BoundUsesLastAssistantContent(t *testing.T) {
	client := llm.NewScriptedClient(
		llm.ScriptedStep{Response: llm.ToolCallResponse("Checking the first list", llm.NewToolCall("c1", "noop", `{}`))},
		llm.ScriptedStep{Response: llm.ToolCallResponse("  Still checking  ", llm.NewToolCall("c2", "noop", `{}`))},
	)
	conv := newTestConversation(t, client, tools.MustNewRegistry(noopTool("noop")), WithMaxIterations(2))

	answer, err := conv.Submit(context.Background(), "check")
	require.NoError(t, err)
	assert.Equal(t, "Still checking", answer)

	// Content from an earlier iteration is not reused.
	client.Push(
		llm.ScriptedStep{Response: llm.ToolCallResponse("Earlier text", llm.NewToolCall("c1", "noop", `{}`))},
		llm.CallTools(llm.NewToolCall("c2", "noop", `{}`)),
	)
	answer, err = conv.Submit(context.Background(), "check again")
	require.NoError(t, err)
	assert.Equal(t, MsgIterationLimit, answer)
}

func TestSubmit_DispatchesInOrder(t *testing.T) {
	var order []string
	recorder := func(name string) tools.Tool {
		return tools.Tool{
			Schema: tools.Schema{Name: name},
			Handler: tools.HandlerFunc(func(ctx context.Context, args map[string]any) tools.Result {
				order = append(order, name+":"+args["n"].(string))
				return tools.OK(nil)
			}),
		}
	}
	client := llm.NewScriptedClient(
		llm.CallTools(
			llm.NewToolCall("c1", "first", `{"n":"1"}`),
			llm.NewToolCall("c2", "second", `{"n":"2"}`),
			llm.NewToolCall("c3", "first", `{"n":"3"}`),
		),
		llm.CallTools(llm.NewToolCall("c1", "second", `{"n":"4"}`)),
		llm.Reply("done"),
	)
	conv := newTestConversation(t, client, tools.MustNewRegistry(recorder("first"), recorder("second")))

	answer, err := conv.Submit(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "done", answer)
	assert.Equal(t, []string{"first:1", "second:2", "first:3", "second:4"}, order)

	transcript := conv.Transcript()
	requireWellFormed(t, transcript)
	roles := []string{}
	for _, m := range transcript {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []string{"system", "user", "assistant", "tool", "tool", "tool", "assistant", "tool", "assistant"}, roles)

	// The second round-trip sees the first round's results.
	reqs := client.Requests()
	require.Len(t, reqs, 3)
	assert.Len(t, reqs[1].Messages, 6)
}

func TestSubmit_AddTaskScenario(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	registry := tools.NewDefaultRegistry(store, nil)
	client := llm.NewScriptedClient(
		llm.CallTools(llm.NewToolCall("call_1", "add_task", `{"title":"Buy milk"}`)),
		llm.Reply("Added 'Buy milk' to your list."),
	)
	conv := newTestConversation(t, client, registry)

	answer, err := conv.Submit(context.Background(), "Add task: Buy milk")
	require.NoError(t, err)
	assert.Equal(t, "Added 'Buy milk' to your list.", answer)

	records := conv.ToolInvocations()
	require.Len(t, records, 1)
	assert.Equal(t, "add_task", records[0].Name)
	assert.Equal(t, "call_1", records[0].CallID)
	assert.Equal(t, domain.ToolInvocationCompleted, records[0].Status)
	assert.Equal(t, map[string]any{"title": "Buy milk"}, records[0].Args)
	require.NotNil(t, records[0].EndedAt)

	transcript := conv.Transcript()
	payload := toolPayload(t, transcript[3])
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, float64(1), payload["task_id"])

	tasks, err := store.GetTasksByStatus(context.Background(), domain.TaskStatusTodo)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Buy milk", tasks[0].Title)
}

func TestSubmit_UnknownTool(t *testing.T) {
	client := llm.NewScriptedClient(
		llm.CallTools(llm.NewToolCall("call_1", "delete_everything", `{}`)),
		llm.Reply("Sorry, I can't do that."),
	)
	conv := newTestConversation(t, client, tools.MustNewRegistry(noopTool("noop")))

	answer, err := conv.Submit(context.Background(), "delete everything")
	require.NoError(t, err)
	assert.Equal(t, "Sorry, I can't do that.", answer)

	payload := toolPayload(t, conv.Transcript()[3])
	assert.Equal(t, false, payload["success"])
	assert.Equal(t, tools.CodeUnknownTool, payload["code"])

	records := conv.ToolInvocations()
	require.Len(t, records, 1)
	assert.Equal(t, domain.ToolInvocationError, records[0].Status)
	assert.Contains(t, records[0].Error, "delete_everything")
}

func TestSubmit_ToolPanicIsContained(t *testing.T) {
	panicky := tools.Tool{
		Schema: tools.Schema{Name: "explode"},
		Handler: tools.HandlerFunc(func(ctx context.Context, args map[string]any) tools.Result {
			panic("kaboom")
		}),
	}
	client := llm.NewScriptedClient(
		llm.CallTools(llm.NewToolCall("c1", "explode", `{}`), llm.NewToolCall("c2", "noop", `{}`)),
		llm.Reply("Something went wrong with one step."),
	)
	conv := newTestConversation(t, client, tools.MustNewRegistry(panicky, noopTool("noop")))

	answer, err := conv.Submit(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "Something went wrong with one step.", answer)

	transcript := conv.Transcript()
	first := toolPayload(t, transcript[3])
	assert.Equal(t, tools.CodeExecution, first["code"])
	assert.Contains(t, first["error"], "kaboom")
	assert.Equal(t, true, toolPayload(t, transcript[4])["success"])
}

func TestSubmit_UnserializableResult(t *testing.T) {
	bad := tools.Tool{
		Schema: tools.Schema{Name: "bad"},
		Handler: tools.HandlerFunc(func(ctx context.Context, args map[string]any) tools.Result {
			return tools.OK(map[string]any{"ch": make(chan int)})
		}),
	}
	client := llm.NewScriptedClient(llm.CallTools(llm.NewToolCall("c1", "bad", `{}`)), llm.Reply("ok"))
	conv := newTestConversation(t, client, tools.MustNewRegistry(bad))

	_, err := conv.Submit(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, `{"error":"Failed to process tool result","success":false}`, conv.Transcript()[3].Content)
	assert.Equal(t, domain.ToolInvocationError, conv.ToolInvocations()[0].Status)
}

func TestSubmit_CallsWithoutID(t *testing.T) {
	client := llm.NewScriptedClient(llm.CallTools(llm.NewToolCall("", "noop", `{}`), llm.NewToolCall(" ", "noop", `{}`)))
	conv := newTestConversation(t, client, tools.MustNewRegistry(noopTool("noop")))

	answer, err := conv.Submit(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, MsgNoToolResults, answer)
	assert.Equal(t, 1, client.Calls())

	transcript := conv.Transcript()
	require.Len(t, transcript, 2)
	requireWellFormed(t, transcript)
	assert.Equal(t, domain.ToolInvocationSummary{Total: 2, Error: 2}, conv.ToolSummary())

	client.Push(
		llm.CallTools(llm.NewToolCall("", "noop", `{}`), llm.NewToolCall("c2", "noop", `{}`)),
		llm.Reply("done"),
	)
	answer, err = conv.Submit(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, "done", answer)

	transcript = conv.Transcript()
	requireWellFormed(t, transcript)
	assistant := transcript[3]
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "c2", assistant.ToolCalls[0].ID)
}

func TestSubmit_PolicyBlock(t *testing.T) {
	engine, err := policy.NewDefaultEngine(context.Background())
	require.NoError(t, err)

	store := helpers.NewTestSQLiteStore(t)
	client := llm.NewScriptedClient(
		llm.CallTools(llm.NewToolCall("c1", "update_task_status", `{"task_id":0,"new_status":"done"}`)),
		llm.Reply("That task id is not valid."),
	)
	conv := newTestConversation(t, client, tools.NewDefaultRegistry(store, nil), WithGate(engine))

	answer, err := conv.Submit(context.Background(), "mark task 0 done")
	require.NoError(t, err)
	assert.Equal(t, "That task id is not valid.", answer)

	payload := toolPayload(t, conv.Transcript()[3])
	assert.Equal(t, tools.CodeBlocked, payload["code"])
	assert.Contains(t, payload["error"], "task_id must be a positive integer")
}

type failingGate struct{}

func (failingGate) Allow(ctx context.Context, toolName string, args map[string]any) (bool, string, error) {
	return false, "", errors.New("opa down")
}

func TestSubmit_PolicyError(t *testing.T) {
	client := llm.NewScriptedClient(llm.CallTools(llm.NewToolCall("c1", "noop", `{}`)), llm.Reply("ok"))
	conv := newTestConversation(t, client, tools.MustNewRegistry(noopTool("noop")), WithGate(failingGate{}))

	_, err := conv.Submit(context.Background(), "go")
	require.NoError(t, err)
	payload := toolPayload(t, conv.Transcript()[3])
	assert.Equal(t, tools.CodePolicy, payload["code"])
	assert.NotContains(t, payload["error"], "opa down")
}

func TestSubmit_StateDuringDispatch(t *testing.T) {
	var conv *Conversation
	var seen State
	probe := tools.Tool{
		Schema: tools.Schema{Name: "probe"},
		Handler: tools.HandlerFunc(func(ctx context.Context, args map[string]any) tools.Result {
			seen = conv.State()
			return tools.OK(nil)
		}),
	}
	client := llm.NewScriptedClient(llm.CallTools(llm.NewToolCall("c1", "probe", `{}`)), llm.Reply("ok"))
	conv = newTestConversation(t, client, tools.MustNewRegistry(probe))

	_, err := conv.Submit(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, StateDispatchingTools, seen)
	assert.Equal(t, StateIdle, conv.State())
	assert.Equal(t, "dispatching_tools", seen.String())
}

func TestInvokeToolDirectly(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	_, err := store.PopulateSampleTasks(context.Background())
	require.NoError(t, err)

	client := llm.NewScriptedClient()
	conv := newTestConversation(t, client, tools.NewDefaultRegistry(store, func() time.Time {
		return time.Date(2023, 12, 11, 0, 0, 0, 0, time.UTC)
	}))

	result := conv.InvokeToolDirectly(context.Background(), "generate_task_report", map[string]any{"period": "all"})
	require.False(t, result.Failed(), "%v", result.Err)
	assert.Equal(t, domain.TaskSummary{TotalTasks: 5, Todo: 3, InProgress: 1, Done: 1}, result.Data["summary"])

	result = conv.InvokeToolDirectly(context.Background(), "nope", nil)
	assert.True(t, result.Failed())

	records := conv.ToolInvocations()
	require.Len(t, records, 2)
	assert.Equal(t, "direct_1", records[0].CallID)
	assert.Equal(t, "direct_2", records[1].CallID)
	assert.Len(t, conv.Transcript(), 1)
	assert.Equal(t, 0, client.Calls())
}

func TestReset(t *testing.T) {
	client := llm.NewScriptedClient(llm.CallTools(llm.NewToolCall("c1", "noop", `{}`)), llm.Reply("ok"))
	conv := newTestConversation(t, client, tools.MustNewRegistry(noopTool("noop")), WithSystemPrompt("be brief"))

	_, err := conv.Submit(context.Background(), "go")
	require.NoError(t, err)
	require.Greater(t, len(conv.Transcript()), 1)

	conv.Reset()
	assert.Equal(t, []llm.ChatMessage{{Role: llm.RoleSystem, Content: "be brief"}}, conv.Transcript())
	assert.Len(t, conv.ToolInvocations(), 1)
}

func TestTranscriptIsACopy(t *testing.T) {
	client := llm.NewScriptedClient(llm.Reply("ok"))
	conv := newTestConversation(t, client, nil)
	_, err := conv.Submit(context.Background(), "go")
	require.NoError(t, err)

	transcript := conv.Transcript()
	transcript[1].Content = "changed"
	assert.Equal(t, "go", conv.Transcript()[1].Content)
}

func TestLoadSystemPrompt(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "prompt.txt")
	require.NoError(t, os.WriteFile(good, []byte("\n  You manage tasks.  \n"), 0o644))
	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("   \n"), 0o644))

	logger := logging.Discard()
	assert.Equal(t, "You manage tasks.", LoadSystemPrompt(good, logger))
	assert.Equal(t, DefaultSystemPrompt, LoadSystemPrompt(empty, logger))
	assert.Equal(t, DefaultSystemPrompt, LoadSystemPrompt(filepath.Join(dir, "missing.txt"), logger))
	assert.Equal(t, DefaultSystemPrompt, LoadSystemPrompt("", logger))
}

func TestPoliteMessage(t *testing.T) {
	assert.Equal(t, "", PoliteMessage(nil))
	assert.Equal(t, MsgInvalidInput, PoliteMessage(ErrInvalidInput))
	assert.Equal(t, MsgServiceUnavailable, PoliteMessage(errors.Join(errors.New("x"), ErrServiceUnavailable)))
	assert.Equal(t, MsgMalformedResponse, PoliteMessage(ErrMalformedResponse))
	assert.Equal(t, MsgGeneric, PoliteMessage(context.DeadlineExceeded))
}
