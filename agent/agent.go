// Package agent implements the tool-selection reasoning loop: given a
// user query and a catalog of tools, it asks the model which tool to
// call, validates and executes the choice, and retries with the
// previous failure folded into the next prompt when execution fails or
// the model picked a tool name outside the catalog — but never retries
// a validation failure against a tool that was actually found.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kenny-project/kenny/llm"
	"github.com/kenny-project/kenny/tools"
)

// Config holds reasoning-loop configuration.
type Config struct {
	MaxRounds int
}

// Step records one round of the loop, grounded on the teacher's
// round/step log shape (reasoning.Step) — same fields for the same
// reasons (replayability, diagnostics), different payload (a tool
// selection instead of a refined answer).
type Step struct {
	Round     int    `json:"round"`
	Action    string `json:"action"` // select, validate, execute, succeed, retry, fail
	ToolName  string `json:"tool_name,omitempty"`
	Args      string `json:"args,omitempty"`
	Error     string `json:"error,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
}

// Result is the outcome of one Run.
type Result struct {
	Success  bool         `json:"success"`
	ToolName string       `json:"tool_name,omitempty"`
	Output   tools.Result `json:"output"`
	Rounds   int          `json:"rounds"`
	Steps    []Step       `json:"steps"`
}

// Engine runs the Select→Validate→Execute→Succeed/Retry/Fail loop.
type Engine struct {
	chat     llm.Provider
	registry *tools.Registry
	executor *tools.Executor
	cfg      Config
}

// New creates an Engine. MaxRounds <= 0 defaults to 3.
func New(chat llm.Provider, registry *tools.Registry, executor *tools.Executor, cfg Config) *Engine {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 3
	}
	return &Engine{chat: chat, registry: registry, executor: executor, cfg: cfg}
}

// Run selects and executes a tool to satisfy query, retrying execution
// failures (never validation failures) up to cfg.MaxRounds.
func (e *Engine) Run(ctx context.Context, query string) (*Result, error) {
	correlationID := tools.NewCorrelationID()
	var steps []Step
	var lastErr string

	for round := 1; round <= e.cfg.MaxRounds; round++ {
		selectStart := time.Now()
		toolName, args, err := e.selectTool(ctx, query, lastErr)
		selectElapsed := time.Since(selectStart).Milliseconds()
		if err != nil {
			steps = append(steps, Step{Round: round, Action: "select", Error: err.Error(), ElapsedMs: selectElapsed})
			return e.fail(steps, round), err
		}
		argsJSON, _ := json.Marshal(args)
		steps = append(steps, Step{Round: round, Action: "select", ToolName: toolName, Args: string(argsJSON), ElapsedMs: selectElapsed})

		tool, err := e.registry.Get(toolName)
		if err != nil {
			// An unknown tool name is a bad *selection*, not a malformed
			// call against a real tool — the model picked a name that
			// isn't in the catalog it was just shown, which a nudge
			// listing the valid alternatives can plausibly correct. This
			// is retried, unlike a validation failure against a tool that
			// does exist (see the case below).
			steps = append(steps, Step{Round: round, Action: "retry", ToolName: toolName, Error: summarize(err)})
			lastErr = fmt.Sprintf("%s. Choose one of the listed tool names exactly.", summarize(err))
			slog.Warn("agent: unknown tool selected, retrying with alternatives nudge", "tool", toolName, "round", round)
			continue
		}
		if err := tools.Validate(tool, args); err != nil {
			// Validation failures never retry: the model chose a tool call
			// that can't possibly succeed as shaped, so another round
			// wouldn't help without a different selection strategy.
			steps = append(steps, Step{Round: round, Action: "fail", ToolName: toolName, Error: summarize(err)})
			return e.fail(steps, round), err
		}
		steps = append(steps, Step{Round: round, Action: "validate", ToolName: toolName})

		planID := tools.NewPlanID()
		execStart := time.Now()
		res, err := e.executeTool(ctx, tool, args, correlationID, planID, round)
		execElapsed := time.Since(execStart).Milliseconds()
		if err != nil {
			steps = append(steps, Step{Round: round, Action: "execute", ToolName: toolName, Error: summarize(err), ElapsedMs: execElapsed})
			lastErr = summarize(err)
			slog.Warn("agent: tool execution failed, retrying", "tool", toolName, "round", round, "error", lastErr)
			continue
		}

		steps = append(steps, Step{Round: round, Action: "succeed", ToolName: toolName, ElapsedMs: execElapsed})
		return &Result{Success: true, ToolName: toolName, Output: res, Rounds: round, Steps: steps}, nil
	}

	return e.fail(steps, e.cfg.MaxRounds), fmt.Errorf("agent: exhausted %d rounds: %s", e.cfg.MaxRounds, lastErr)
}

// executeTool runs tool against args. Mutating tools go through the
// dry-run/confirm protocol transparently in one Run call: a dry run
// establishes the operation hash, then the confirmed call executes it —
// the caller never has to drive the two-step protocol by hand.
func (e *Engine) executeTool(ctx context.Context, tool *tools.Tool, args tools.Args, correlationID, planID string, round int) (tools.Result, error) {
	if tool.Mutating {
		dryReq := tools.Request{
			ToolName: tool.Name, Args: args, CorrelationID: correlationID,
			PlanID: planID, StepIndex: round, DryRun: true,
		}
		if _, err := e.executor.Execute(ctx, dryReq); err != nil {
			return tools.Result{}, err
		}
	}
	req := tools.Request{
		ToolName: tool.Name, Args: args, CorrelationID: correlationID,
		PlanID: planID, StepIndex: round,
	}
	return e.executor.Execute(ctx, req)
}

func (e *Engine) fail(steps []Step, rounds int) *Result {
	return &Result{Success: false, Rounds: rounds, Steps: steps}
}

// selectTool asks the model to choose a tool and arguments for query. If
// prevError is non-empty, it's folded into the prompt as feedback from a
// failed previous round.
func (e *Engine) selectTool(ctx context.Context, query, prevError string) (string, tools.Args, error) {
	if e.chat == nil {
		return "", nil, fmt.Errorf("agent: no chat provider configured")
	}

	var catalog strings.Builder
	for _, t := range e.registry.List() {
		fmt.Fprintf(&catalog, "- %s: %s (params: ", t.Name, t.Description)
		first := true
		for name, spec := range t.Parameters {
			if !first {
				catalog.WriteString(", ")
			}
			first = false
			fmt.Fprintf(&catalog, "%s:%s", name, spec.Type)
			if spec.Required {
				catalog.WriteString("*")
			}
		}
		catalog.WriteString(")\n")
	}

	userContent := fmt.Sprintf("Available tools:\n%s\nRequest: %s", catalog.String(), query)
	if prevError != "" {
		userContent += fmt.Sprintf("\n\nThe previous attempt failed: %s\nChoose a different tool or different arguments.", prevError)
	}

	resp, err := e.chat.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "Select exactly one tool to satisfy the request. Respond with ONLY a JSON object: {\"tool\": \"tool_name\", \"args\": {...}}. No markdown fences, no explanation."},
			{Role: "user", Content: userContent},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", nil, fmt.Errorf("tool selection: %w", err)
	}

	content := strings.TrimSpace(resp.Content)
	if idx := strings.Index(content, "{"); idx > 0 {
		content = content[idx:]
	}
	if idx := strings.LastIndex(content, "}"); idx >= 0 {
		content = content[:idx+1]
	}

	var parsed struct {
		Tool string     `json:"tool"`
		Args tools.Args `json:"args"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return "", nil, fmt.Errorf("tool selection: invalid JSON response: %w", err)
	}
	if parsed.Tool == "" {
		return "", nil, fmt.Errorf("tool selection: model did not select a tool")
	}
	return parsed.Tool, parsed.Args, nil
}

// summarize folds an error's kind and message into one line, never a
// stack trace — the loop's prompts and step log stay compact even after
// several retries.
func summarize(err error) string {
	return fmt.Sprintf("%T: %s", err, err.Error())
}
