// Package triage drives the tool-augmented conversation that classifies one
// finding. The model is seeded with a fixed persona, answer structure and
// status taxonomy, then given the assembled prompt; it may request code
// lookups through the tool catalogue until it produces a terminal status
// token.
package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vulnhalla.app/triage/common/llm"
	"vulnhalla.app/triage/common/logger"
	"vulnhalla.app/triage/internal/assembler"
	"vulnhalla.app/triage/internal/codeql"
)

const (
	// toolWarningThreshold is the number of tool rounds after which every
	// further round appends a stop warning.
	toolWarningThreshold = 6

	samplingTemperature = 0.2
	samplingTopP        = 0.2
)

// ErrTooManyReminders means the model kept replying without a status token
// past the reminder budget. The finding is aborted rather than given a
// fabricated verdict.
var ErrTooManyReminders = errors.New("conversation exceeded reminder limit")

var seedTurns = []Turn{
	{
		Role: "system",
		Content: "You are an expert security researcher.\n" +
			"Your task is to verify if the issue that was found has a real security impact.\n" +
			"Return a concise status code based on the guidelines provided.\n" +
			"Use the tools function when you need code from other parts of the program.\n" +
			"You *MUST* follow the guidelines!",
	},
	{
		Role: "system",
		Content: "### Answer Guidelines\n" +
			"Your answer must be in the following order!\n" +
			"1. Briefly explain the code.\n" +
			"2. Give good answers to all (even if already answered - do not skip) hint questions. " +
			"(Copy the question word for word, then provide the answer.)\n" +
			"3. Do you have all the code needed to answer the questions? If no, use the tools!\n" +
			"4. Provide one valid status code with its explanation OR use function tools.\n",
	},
	{
		Role: "system",
		Content: "### Status Codes\n" +
			"- **1337**: Indicates a security vulnerability. If legitimate, specify the parameters that " +
			"could exploit the issue in minimal words.\n" +
			"- **1007**: Indicates the code is secure. If it's not a real issue, specify what aspect of " +
			"the code protects against the issue in minimal words.\n" +
			"- **7331**: Indicates more code is needed to validate security. Write what data you need " +
			"and explain why you can't use the tools to retrieve the missing data, plus add **3713** " +
			"if you're pretty sure it's not a security problem.\n" +
			"Only one status should be returned!\n" +
			"You will get 10000000000$ if you follow all the instructions and use the tools correctly!",
	},
}

const reminderContent = "Please follow all the instructions!"

const toolWarningContent = "You called too many tools! If you still can't give a clear answer, " +
	"return the 'more data' status."

// Engine runs triage conversations. Safe for concurrent use; all per-finding
// state lives in the Triage call.
type Engine struct {
	llm          llm.AgentClient
	maxReminders int
}

func NewEngine(client llm.AgentClient, maxReminders int) *Engine {
	return &Engine{llm: client, maxReminders: maxReminders}
}

// Result is one completed conversation: the verdict and the full ordered
// transcript that produced it.
type Result struct {
	Verdict    Verdict
	Transcript Transcript
}

// Triage runs the conversation for one assembled finding until the model
// produces a terminal status token.
func (e *Engine) Triage(ctx context.Context, db *codeql.Database, pc *assembler.PromptContext) (*Result, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "triage.engine"})

	current := pc.Function
	known := append([]codeql.FunctionRecord(nil), pc.Functions...)

	transcript := append(Transcript(nil), seedTurns...)
	transcript = append(transcript, Turn{Role: "user", Content: pc.Prompt})

	tools := toolDefinitions()
	toolRounds := 0
	reminders := 0
	iteration := 0

	for {
		iteration++

		resp, err := e.llm.ChatWithTools(ctx, llm.AgentRequest{
			Messages:    transcript.Messages(),
			Tools:       tools,
			Temperature: llm.Temp(samplingTemperature),
			TopP:        llm.Temp(samplingTopP),
		})
		if err != nil {
			return nil, fmt.Errorf("triage chat iteration %d: %w", iteration, err)
		}

		transcript = append(transcript, Turn{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		slog.DebugContext(ctx, "triage iteration completed",
			"iteration", iteration,
			"tool_calls", len(resp.ToolCalls),
			"tool_rounds", toolRounds,
			"content", logger.Truncate(resp.Content, 120))

		if len(resp.ToolCalls) == 0 {
			if hasTerminalToken(resp.Content) {
				verdict := parseVerdict(resp.Content)
				slog.InfoContext(ctx, "triage verdict reached",
					"status", string(verdict.Status),
					"likely_benign", verdict.LikelyBenign,
					"iterations", iteration,
					"tool_rounds", toolRounds)
				return &Result{Verdict: verdict, Transcript: transcript}, nil
			}

			reminders++
			if reminders > e.maxReminders {
				slog.WarnContext(ctx, "triage conversation exceeded reminder limit",
					"reminders", reminders,
					"iterations", iteration)
				return nil, ErrTooManyReminders
			}
			transcript = append(transcript, Turn{Role: "system", Content: reminderContent})
			continue
		}

		toolRounds++
		var argTurns []Turn

		for _, tc := range resp.ToolCalls {
			reply, argTurn, err := e.dispatch(ctx, db, tc, &current, &known)
			if err != nil {
				return nil, err
			}
			transcript = append(transcript, Turn{
				Role:       "tool",
				Content:    reply,
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
			})
			if argTurn != nil {
				argTurns = append(argTurns, *argTurn)
			}
		}

		transcript = append(transcript, argTurns...)

		if toolRounds >= toolWarningThreshold {
			transcript = append(transcript, Turn{Role: "system", Content: toolWarningContent})
		}
	}
}

// dispatch executes one tool invocation. Lookups that find nothing produce a
// model-visible reply, never an error; only unreadable export files or failed
// side queries abort the conversation. A successful function or caller fetch
// additionally returns an argument-mapping turn, and a caller fetch advances
// the current-function cursor.
func (e *Engine) dispatch(ctx context.Context, db *codeql.Database, tc llm.ToolCall, current *codeql.FunctionRecord, known *[]codeql.FunctionRecord) (string, *Turn, error) {
	switch tc.Name {
	case toolFunctionCode:
		args, err := llm.ParseToolArguments[functionCodeParams](tc.Arguments)
		if err != nil || args.FunctionName == "" {
			return invalidToolReply(tc), nil, nil
		}

		fn, contextFn, err := db.Resolver.FunctionByName(args.FunctionName, *known)
		if err != nil {
			return "", nil, err
		}
		if fn == nil {
			return fmt.Sprintf("Function '%s' not found. Make sure you're using "+
				"the correct tool and args.", args.FunctionName), nil, nil
		}
		*known = append(*known, *fn)

		calleeCode, err := db.Archive.ExtractFunction(*fn)
		if err != nil {
			return "", nil, err
		}

		var argTurn *Turn
		if contextFn != nil {
			callerCode, err := db.Archive.ExtractFunction(*contextFn)
			if err != nil {
				return "", nil, err
			}
			argTurn, err = e.mapArguments(ctx, callerCode, calleeCode)
			if err != nil {
				return "", nil, err
			}
		}
		return calleeCode, argTurn, nil

	case toolCallerFunction:
		caller, err := db.Resolver.Caller(*current)
		if err != nil {
			return "", nil, err
		}
		if caller == nil {
			return "Caller function was not found. " +
				"Make sure you are using the correct tool with the correct args.", nil, nil
		}
		*known = append(*known, *caller)

		callerCode, err := db.Archive.ExtractFunction(*caller)
		if err != nil {
			return "", nil, err
		}
		currentCode, err := db.Archive.ExtractFunction(*current)
		if err != nil {
			return "", nil, err
		}
		argTurn, err := e.mapArguments(ctx, callerCode, currentCode)
		if err != nil {
			return "", nil, err
		}

		reply := fmt.Sprintf("Here is the caller function for '%s':\n%s", current.Name, callerCode)
		*current = *caller
		return reply, argTurn, nil

	case toolMacro:
		args, err := llm.ParseToolArguments[macroParams](tc.Arguments)
		if err != nil || args.MacroName == "" {
			return invalidToolReply(tc), nil, nil
		}
		macro, err := db.Resolver.Macro(args.MacroName)
		if err != nil {
			return "", nil, err
		}
		if macro == nil {
			return fmt.Sprintf("Macro '%s' not found. Make sure you're using the correct tool "+
				"with correct args.", args.MacroName), nil, nil
		}
		return macro.Body, nil, nil

	case toolGlobalVar:
		args, err := llm.ParseToolArguments[globalVarParams](tc.Arguments)
		if err != nil || args.GlobalVarName == "" {
			return invalidToolReply(tc), nil, nil
		}
		gv, err := db.Resolver.GlobalVar(args.GlobalVarName)
		if err != nil {
			return "", nil, err
		}
		if gv == nil {
			return fmt.Sprintf("Global var '%s' not found. "+
				"Could it be a macro or should you use another tool?", args.GlobalVarName), nil, nil
		}
		code, err := db.Archive.ExtractSpan(gv.File, gv.StartLine, gv.EndLine)
		if err != nil {
			return "", nil, err
		}
		return code, nil, nil

	case toolClass:
		args, err := llm.ParseToolArguments[classParams](tc.Arguments)
		if err != nil || args.ObjectName == "" {
			return invalidToolReply(tc), nil, nil
		}
		class, err := db.Resolver.Class(args.ObjectName)
		if err != nil {
			return "", nil, err
		}
		if class == nil {
			return fmt.Sprintf("Class '%s' not found. Could it be a Namespace?", args.ObjectName), nil, nil
		}
		code, err := db.Archive.ExtractSpan(class.File, class.StartLine, class.EndLine)
		if err != nil {
			return "", nil, err
		}
		return code, nil, nil

	default:
		return invalidToolReply(tc), nil, nil
	}
}

func invalidToolReply(tc llm.ToolCall) string {
	return fmt.Sprintf("No matching tool '%s' or invalid args %s. Try again.", tc.Name, tc.Arguments)
}

// mapArguments asks the model how the caller's variables map onto the
// callee's parameters. The turn it returns is appended after the tool
// replies; it does not count against the tool budget.
func (e *Engine) mapArguments(ctx context.Context, callerCode, calleeCode string) (*Turn, error) {
	prompt := "Given caller function and callee function.\n" +
		"Write only what are the names of the vars in the caller that were sent to the callee " +
		"and what are their names in the callee.\n" +
		"Format: caller_var (caller_name) -> callee_var (callee_name)\n\n" +
		"Caller function:\n" + callerCode + "\n" +
		"Callee function:\n" + calleeCode

	resp, err := e.llm.ChatWithTools(ctx, llm.AgentRequest{
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("argument mapping query: %w", err)
	}
	return &Turn{Role: "assistant", Content: resp.Content}, nil
}
