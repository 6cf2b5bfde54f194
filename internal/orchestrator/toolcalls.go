package orchestrator

import (
	"context"
	"time"

	"github.com/codefionn/flowpilot/internal/consts"
	"github.com/codefionn/flowpilot/internal/llm"
	"github.com/codefionn/flowpilot/internal/logger"
	"github.com/codefionn/flowpilot/internal/retry"
	"github.com/codefionn/flowpilot/internal/stage"
	"github.com/codefionn/flowpilot/internal/tools"
)

// toolBudget bounds one tool round: a per-call timeout and a cap on how many
// of the requested calls are actually executed.
type toolBudget struct {
	Timeout  time.Duration
	MaxCalls int
}

// budgetFor returns the tool budget for the phase an operation runs in. The
// build phase tolerates slower lookups than the conversational phases.
func budgetFor(phase stage.Phase) toolBudget {
	if phase == stage.PhaseBuild {
		return toolBudget{Timeout: consts.BuildToolTimeout, MaxCalls: consts.BuildToolCallLimit}
	}
	return toolBudget{Timeout: consts.ChatToolTimeout, MaxCalls: consts.ChatToolCallLimit}
}

// completeWithTools runs a completion call and resolves any requested tool
// calls before returning the final text. Tool calls within a round run
// sequentially; requests past the round cap are recorded as failed without
// executing. After the round limit a final call without tools forces a text
// answer.
func (o *Orchestrator) completeWithTools(ctx context.Context, spec stage.PromptSpec, messages []*llm.Message, phase stage.Phase) (string, error) {
	choice := spec.ToolChoice
	if !o.registry.HasTools() {
		choice = llm.ToolChoiceNone
	}

	budget := budgetFor(phase)

	for round := 0; ; round++ {
		req := &llm.CompletionRequest{
			Messages:     messages,
			Temperature:  o.cfg.Temperature,
			MaxTokens:    o.cfg.MaxTokens,
			SystemPrompt: spec.System,
		}
		if choice != llm.ToolChoiceNone {
			req.Tools = o.registry.Specs()
			req.ToolChoice = choice
		}

		resp, err := o.completeChecked(ctx, req)
		if err != nil {
			return "", err
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		if round >= consts.MaxToolRounds {
			logger.Warn("tool round limit reached, forcing final answer")
			choice = llm.ToolChoiceNone
			continue
		}

		messages = append(messages, &llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		messages = append(messages, o.runToolRound(ctx, resp.ToolCalls, budget)...)

		// Later rounds are advisory even when the first was mandatory.
		choice = llm.ToolChoiceAuto
	}
}

// runToolRound executes the requested calls and returns their result
// messages. Every request gets exactly one result message, including the ones
// truncated by the round cap.
func (o *Orchestrator) runToolRound(ctx context.Context, calls []llm.ToolCall, budget toolBudget) []*llm.Message {
	results := make([]*llm.Message, 0, len(calls))

	for i, call := range calls {
		var res tools.Result
		if i >= budget.MaxCalls {
			logger.Warn("tool call %s dropped: round cap of %d reached", call.Name, budget.MaxCalls)
			res = tools.Result{
				ID:      call.ID,
				Name:    call.Name,
				Content: "Error: tool call budget for this round exceeded",
				Failed:  true,
			}
		} else {
			res = o.registry.Execute(ctx, call, budget.Timeout)
		}

		results = append(results, &llm.Message{
			Role:     "tool",
			Content:  tools.FormatResult(res),
			ToolID:   res.ID,
			ToolName: res.Name,
		})
	}

	return results
}

// completeChecked sends one completion request under the standard retry
// budget. An empty response counts as a failed attempt.
func (o *Orchestrator) completeChecked(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	notify := func(attempt, max int) {
		o.events.progress("Connection hiccup, retrying (%d/%d)...", attempt, max)
	}

	return retry.Execute(ctx, consts.MaxCompletionRetries, consts.CompletionRetryDelay, notify,
		func(ctx context.Context) (*llm.CompletionResponse, error) {
			resp, err := o.client.CompleteWithRequest(ctx, req)
			if err != nil {
				return nil, err
			}
			if err := llm.CheckUsable(o.client.GetModelName(), resp); err != nil {
				return nil, err
			}
			return resp, nil
		})
}
