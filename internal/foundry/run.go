package foundry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qmuntal/stateless"
	"github.com/sashabaranov/go-openai"

	"github.com/aaronba/SimpleChatAgent/internal/logger"
)

// FSM states for one remote run.
type FSMState stateless.State

var (
	StateAwaitingRun    FSMState = "AwaitingRun"
	StateExecutingTools FSMState = "ExecutingTools"
	StateDone           FSMState = "Done"  // Terminal: run completed
	StateError          FSMState = "Error" // Terminal: run failed
)

// FSM triggers.
type FSMTrigger stateless.Trigger

var (
	TriggerRunPending           FSMTrigger = "RunPending"
	TriggerRunRequiresAction    FSMTrigger = "RunRequiresAction"
	TriggerRunCompleted         FSMTrigger = "RunCompleted"
	TriggerToolOutputsSubmitted FSMTrigger = "ToolOutputsSubmitted"
	TriggerRunFailed            FSMTrigger = "RunFailed"
)

// driveRun advances a run to a terminal state with a state machine:
// AwaitingRun polls the service, ExecutingTools answers requires_action via
// the tool broker, and the loop repeats until the run completes or fails.
func (c *Client) driveRun(ctx context.Context, api agentAPI, threadID string, run openai.Run) (openai.Run, error) {
	type runContext struct {
		run       openai.Run
		lastError error
		polls     int
	}
	rc := &runContext{run: run}

	fsm := stateless.NewStateMachine(StateAwaitingRun)

	// State: AwaitingRun
	// Action: inspect the run status; poll again while it is pending.
	// Transitions:
	//   - On RunRequiresAction -> StateExecutingTools
	//   - On RunCompleted -> StateDone
	//   - On RunFailed -> StateError
	fsm.Configure(StateAwaitingRun).
		PermitReentry(TriggerRunPending).
		OnEntry(func(ctx context.Context, _ ...any) error {
			logger.L.Debug("FSM: entering StateAwaitingRun", "run_id", rc.run.ID, "status", rc.run.Status, "polls", rc.polls)
			switch rc.run.Status {
			case openai.RunStatusQueued, openai.RunStatusInProgress, openai.RunStatusCancelling:
				if rc.polls >= c.maxPolls {
					rc.lastError = fmt.Errorf("run %s still %s after %d polls", rc.run.ID, rc.run.Status, rc.polls)
					return fsm.FireCtx(ctx, TriggerRunFailed)
				}
				rc.polls++
				select {
				case <-ctx.Done():
					rc.lastError = ctx.Err()
					return fsm.FireCtx(ctx, TriggerRunFailed)
				case <-time.After(c.pollInterval):
				}
				latest, err := api.RetrieveRun(ctx, threadID, rc.run.ID)
				if err != nil {
					rc.lastError = fmt.Errorf("retrieve run: %w", err)
					return fsm.FireCtx(ctx, TriggerRunFailed)
				}
				rc.run = latest
				return fsm.FireCtx(ctx, TriggerRunPending)
			case openai.RunStatusRequiresAction:
				return fsm.FireCtx(ctx, TriggerRunRequiresAction)
			case openai.RunStatusCompleted:
				return fsm.FireCtx(ctx, TriggerRunCompleted)
			default:
				rc.lastError = runFailure(rc.run)
				return fsm.FireCtx(ctx, TriggerRunFailed)
			}
		}).
		Permit(TriggerRunRequiresAction, StateExecutingTools).
		Permit(TriggerRunCompleted, StateDone).
		Permit(TriggerRunFailed, StateError)

	// State: ExecutingTools
	// Action: execute the requested tool calls and submit their outputs.
	// Transitions:
	//   - On ToolOutputsSubmitted -> StateAwaitingRun (keep polling)
	//   - On RunFailed -> StateError
	fsm.Configure(StateExecutingTools).
		OnEntry(func(ctx context.Context, _ ...any) error {
			logger.L.Debug("FSM: entering StateExecutingTools", "run_id", rc.run.ID)
			latest, err := c.submitToolOutputs(ctx, api, threadID, rc.run)
			if err != nil {
				rc.lastError = err
				return fsm.FireCtx(ctx, TriggerRunFailed)
			}
			rc.run = latest
			return fsm.FireCtx(ctx, TriggerToolOutputsSubmitted)
		}).
		Permit(TriggerToolOutputsSubmitted, StateAwaitingRun).
		Permit(TriggerRunFailed, StateError)

	// Terminal states.
	fsm.Configure(StateDone)
	fsm.Configure(StateError).
		OnEntry(func(_ context.Context, _ ...any) error {
			if rc.lastError == nil {
				rc.lastError = errors.New("run reached error state without a specific error")
			}
			return nil
		})

	// The initial reentry fire is what invokes AwaitingRun's OnEntry; the
	// FSM then drives itself to a terminal state through the nested fires.
	if err := fsm.FireCtx(ctx, TriggerRunPending); err != nil {
		if rc.lastError != nil {
			return openai.Run{}, rc.lastError
		}
		return openai.Run{}, fmt.Errorf("run state machine error: %w", err)
	}

	state, err := fsm.State(ctx)
	if err != nil {
		return openai.Run{}, fmt.Errorf("run state machine error: %w", err)
	}
	switch state {
	case StateDone:
		return rc.run, nil
	case StateError:
		return openai.Run{}, rc.lastError
	default:
		return openai.Run{}, fmt.Errorf("run state machine ended in unexpected state: %v", state)
	}
}

// submitToolOutputs answers a requires_action run by executing every
// requested tool call through the broker. Tool failures are reported back to
// the agent as output text rather than aborting the turn.
func (c *Client) submitToolOutputs(ctx context.Context, api agentAPI, threadID string, run openai.Run) (openai.Run, error) {
	if run.RequiredAction == nil || run.RequiredAction.SubmitToolOutputs == nil {
		return openai.Run{}, errors.New("run requires action but lists no tool calls")
	}

	calls := run.RequiredAction.SubmitToolOutputs.ToolCalls
	outputs := make([]openai.ToolOutput, 0, len(calls))
	for _, call := range calls {
		result := c.tools.Call(ctx, call.Function.Name, call.Function.Arguments)
		outputs = append(outputs, openai.ToolOutput{
			ToolCallID: call.ID,
			Output:     result,
		})
	}

	latest, err := api.SubmitToolOutputs(ctx, threadID, run.ID, openai.SubmitToolOutputsRequest{
		ToolOutputs: outputs,
	})
	if err != nil {
		return openai.Run{}, fmt.Errorf("submit tool outputs: %w", err)
	}
	return latest, nil
}

// readReply extracts the assistant's text answer for a completed run.
func readReply(ctx context.Context, api agentAPI, threadID, runID string) (string, error) {
	limit := 10
	order := "desc"
	list, err := api.ListMessage(ctx, threadID, &limit, &order, nil, nil, &runID)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	for _, msg := range list.Messages {
		if msg.Role != "assistant" {
			continue
		}
		for _, part := range msg.Content {
			if part.Text != nil && part.Text.Value != "" {
				return part.Text.Value, nil
			}
		}
	}
	return "", errors.New("run completed without an assistant reply")
}

func runFailure(run openai.Run) error {
	if run.LastError != nil {
		return fmt.Errorf("run ended with status %s: %s: %s", run.Status, run.LastError.Code, run.LastError.Message)
	}
	return fmt.Errorf("run ended with status %s", run.Status)
}
