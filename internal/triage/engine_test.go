package triage_test

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"vulnhalla.app/triage/common/llm"
	"vulnhalla.app/triage/internal/assembler"
	"vulnhalla.app/triage/internal/codeql"
	"vulnhalla.app/triage/internal/triage"
)

// mockAgentClient replays a scripted sequence of responses and records every
// request it saw.
type mockAgentClient struct {
	responses []func(req llm.AgentRequest) (*llm.AgentResponse, error)
	requests  []llm.AgentRequest
}

func (m *mockAgentClient) ChatWithTools(ctx context.Context, req llm.AgentRequest) (*llm.AgentResponse, error) {
	m.requests = append(m.requests, req)
	i := len(m.requests) - 1
	if i >= len(m.responses) {
		return nil, fmt.Errorf("unexpected call %d", i+1)
	}
	return m.responses[i](req)
}

func (m *mockAgentClient) Model() string { return "test-model" }

func textResponse(content string) func(llm.AgentRequest) (*llm.AgentResponse, error) {
	return func(llm.AgentRequest) (*llm.AgentResponse, error) {
		return &llm.AgentResponse{Content: content, FinishReason: "stop"}, nil
	}
}

func toolResponse(id, name, args string) func(llm.AgentRequest) (*llm.AgentResponse, error) {
	return func(llm.AgentRequest) (*llm.AgentResponse, error) {
		return &llm.AgentResponse{
			FinishReason: "tool_calls",
			ToolCalls:    []llm.ToolCall{{ID: id, Name: name, Arguments: args}},
		}, nil
	}
}

const engineFunctionTree = `"main","/proj/app/main.c",1,"fn_main",30,"0"
"process","/proj/app/main.c",5,"fn_process",9,"fn_main"
"helper","/proj/app/util.c",3,"fn_helper",5,"fn_process"
`

func numberedSource(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	return b.String()
}

// newFixtureDatabase builds a minimal on-disk export and opens it.
func newFixtureDatabase(dir string) (*codeql.Database, error) {
	yml := "sourceLocationPrefix: /proj\nprimaryLanguage: cpp\n"
	if err := os.WriteFile(filepath.Join(dir, "codeql-database.yml"), []byte(yml), 0o644); err != nil {
		return nil, err
	}
	files := map[string]string{
		"FunctionTree.csv": engineFunctionTree,
		"Macros.csv":       "\"MAX_BUF\",\"#define MAX_BUF 1024\"\n",
		"GlobalVars.csv":   "\"g_count\",\"/proj/app/util.c\",1,1\n",
		"Classes.csv":      "\"struct\",\"Widget\",\"/proj/app/util.c\",1,2,\"Widget\"\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return nil, err
		}
	}

	f, err := os.Create(filepath.Join(dir, "src.zip"))
	if err != nil {
		return nil, err
	}
	w := zip.NewWriter(f)
	for name, content := range map[string]string{
		"proj/app/main.c": numberedSource(30),
		"proj/app/util.c": numberedSource(5),
	} {
		entry, err := w.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	return codeql.OpenDatabase(dir)
}

var _ = Describe("Engine", func() {
	var (
		ctx context.Context
		db  *codeql.Database
		pc  *assembler.PromptContext
	)

	processFn := codeql.FunctionRecord{
		Name:            "process",
		File:            "/proj/app/main.c",
		StartLine:       5,
		Identifier:      "fn_process",
		EndLine:         9,
		CallerReference: "fn_main",
	}

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		db, err = newFixtureDatabase(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { db.Close() })

		pc = &assembler.PromptContext{
			Prompt:    "Is this a real issue?",
			Function:  processFn,
			Functions: []codeql.FunctionRecord{processFn},
		}
	})

	Describe("terminal replies", func() {
		It("returns a confirmed verdict on a 1337 reply", func() {
			mock := &mockAgentClient{responses: []func(llm.AgentRequest) (*llm.AgentResponse, error){
				textResponse("Attacker-controlled length reaches memcpy. 1337"),
			}}
			engine := triage.NewEngine(mock, 10)

			result, err := engine.Triage(ctx, db, pc)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Verdict.Status).To(Equal(triage.StatusConfirmed))
			Expect(result.Verdict.LikelyBenign).To(BeFalse())
			Expect(result.Verdict.Rationale).To(ContainSubstring("memcpy"))

			// Three seed system turns, the user prompt, one assistant turn.
			Expect(result.Transcript).To(HaveLen(5))
			Expect(result.Transcript[0].Role).To(Equal("system"))
			Expect(result.Transcript[3].Role).To(Equal("user"))
			Expect(result.Transcript[3].Content).To(Equal("Is this a real issue?"))
			Expect(result.Transcript[4].Role).To(Equal("assistant"))
			Expect(result.Transcript[4].Content).To(ContainSubstring("1337"))
		})

		It("sends the tool catalogue and fixed sampling on every turn", func() {
			mock := &mockAgentClient{responses: []func(llm.AgentRequest) (*llm.AgentResponse, error){
				textResponse("1007"),
			}}
			engine := triage.NewEngine(mock, 10)

			_, err := engine.Triage(ctx, db, pc)
			Expect(err).NotTo(HaveOccurred())

			req := mock.requests[0]
			Expect(req.Tools).To(HaveLen(5))
			Expect(req.Temperature).NotTo(BeNil())
			Expect(*req.Temperature).To(Equal(0.2))
			Expect(req.TopP).NotTo(BeNil())
			Expect(*req.TopP).To(Equal(0.2))
		})

		It("classifies 7331 with 3713 as insufficient data, likely benign", func() {
			mock := &mockAgentClient{responses: []func(llm.AgentRequest) (*llm.AgentResponse, error){
				textResponse("Need the allocator's code which the tools cannot reach. 7331 3713"),
			}}
			engine := triage.NewEngine(mock, 10)

			result, err := engine.Triage(ctx, db, pc)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Verdict.Status).To(Equal(triage.StatusInsufficientData))
			Expect(result.Verdict.LikelyBenign).To(BeTrue())
		})
	})

	Describe("reminder turns", func() {
		It("appends a reminder when the reply carries no status token", func() {
			mock := &mockAgentClient{responses: []func(llm.AgentRequest) (*llm.AgentResponse, error){
				textResponse("The code reads a buffer; looks fine to me."),
				textResponse("1007"),
			}}
			engine := triage.NewEngine(mock, 10)

			result, err := engine.Triage(ctx, db, pc)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Verdict.Status).To(Equal(triage.StatusRejected))

			// The second request must include the reminder system turn.
			second := mock.requests[1].Messages
			last := second[len(second)-1]
			Expect(last.Role).To(Equal("system"))
			Expect(last.Content).To(Equal("Please follow all the instructions!"))
		})

		It("aborts once the reminder budget is exceeded", func() {
			mock := &mockAgentClient{responses: []func(llm.AgentRequest) (*llm.AgentResponse, error){
				textResponse("no token"),
				textResponse("still no token"),
				textResponse("and again"),
			}}
			engine := triage.NewEngine(mock, 2)

			_, err := engine.Triage(ctx, db, pc)

			Expect(err).To(MatchError(triage.ErrTooManyReminders))
			Expect(mock.requests).To(HaveLen(3))
		})
	})

	Describe("tool dispatch", func() {
		It("answers a macro lookup with the macro body", func() {
			mock := &mockAgentClient{responses: []func(llm.AgentRequest) (*llm.AgentResponse, error){
				toolResponse("call_1", "get_macro", `{"macro_name":"MAX_BUF"}`),
				textResponse("1007"),
			}}
			engine := triage.NewEngine(mock, 10)

			result, err := engine.Triage(ctx, db, pc)
			Expect(err).NotTo(HaveOccurred())

			var toolTurn *triage.Turn
			for i := range result.Transcript {
				if result.Transcript[i].Role == "tool" {
					toolTurn = &result.Transcript[i]
					break
				}
			}
			Expect(toolTurn).NotTo(BeNil())
			Expect(toolTurn.Content).To(Equal("#define MAX_BUF 1024"))
			Expect(toolTurn.ToolCallID).To(Equal("call_1"))
			Expect(toolTurn.ToolName).To(Equal("get_macro"))

			// The follow-up request carries the tool reply.
			second := mock.requests[1].Messages
			var sawToolMsg bool
			for _, msg := range second {
				if msg.Role == "tool" && msg.ToolCallID == "call_1" {
					sawToolMsg = true
				}
			}
			Expect(sawToolMsg).To(BeTrue())
		})

		It("reports a miss as data, not an error", func() {
			mock := &mockAgentClient{responses: []func(llm.AgentRequest) (*llm.AgentResponse, error){
				toolResponse("call_1", "get_macro", `{"macro_name":"NO_SUCH"}`),
				textResponse("7331"),
			}}
			engine := triage.NewEngine(mock, 10)

			result, err := engine.Triage(ctx, db, pc)
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Transcript).To(ContainElement(HaveField("Content",
				ContainSubstring("Macro 'NO_SUCH' not found"))))
		})

		It("answers unknown tools with an explanatory reply and keeps going", func() {
			mock := &mockAgentClient{responses: []func(llm.AgentRequest) (*llm.AgentResponse, error){
				toolResponse("call_1", "get_weather", `{"city":"x"}`),
				textResponse("1007"),
			}}
			engine := triage.NewEngine(mock, 10)

			result, err := engine.Triage(ctx, db, pc)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Verdict.Status).To(Equal(triage.StatusRejected))
			Expect(result.Transcript).To(ContainElement(HaveField("Content",
				ContainSubstring("No matching tool 'get_weather'"))))
		})

		It("fetches a function and issues an argument-mapping side query", func() {
			mock := &mockAgentClient{responses: []func(llm.AgentRequest) (*llm.AgentResponse, error){
				toolResponse("call_1", "get_function_code", `{"function_name":"helper"}`),
				textResponse("buf (process) -> p (helper)"),
				textResponse("1007"),
			}}
			engine := triage.NewEngine(mock, 10)

			result, err := engine.Triage(ctx, db, pc)
			Expect(err).NotTo(HaveOccurred())

			// The side query goes out without tools and is not part of the
			// main conversation state.
			side := mock.requests[1]
			Expect(side.Tools).To(BeEmpty())
			Expect(side.Messages).To(HaveLen(1))
			Expect(side.Messages[0].Content).To(ContainSubstring("Caller function:"))

			// Its answer lands as an assistant turn after the tool reply.
			var toolIdx, argIdx int
			for i, turn := range result.Transcript {
				if turn.Role == "tool" {
					toolIdx = i
				}
				if turn.Role == "assistant" && strings.Contains(turn.Content, "buf (process)") {
					argIdx = i
				}
			}
			Expect(toolIdx).To(BeNumerically(">", 0))
			Expect(argIdx).To(BeNumerically(">", toolIdx))

			// The tool reply itself is the callee's code.
			Expect(result.Transcript[toolIdx].Content).To(ContainSubstring("file: proj/app/util.c"))
			Expect(result.Transcript[toolIdx].Content).To(ContainSubstring("3: line 3"))
		})

		It("climbs the call chain and advances the current function", func() {
			mock := &mockAgentClient{responses: []func(llm.AgentRequest) (*llm.AgentResponse, error){
				toolResponse("call_1", "get_caller_function", `{}`),
				textResponse("x (main) -> buf (process)"),
				toolResponse("call_2", "get_caller_function", `{}`),
				textResponse("1007"),
			}}
			engine := triage.NewEngine(mock, 10)

			result, err := engine.Triage(ctx, db, pc)
			Expect(err).NotTo(HaveOccurred())

			var toolReplies []string
			for _, turn := range result.Transcript {
				if turn.Role == "tool" {
					toolReplies = append(toolReplies, turn.Content)
				}
			}
			Expect(toolReplies).To(HaveLen(2))
			Expect(toolReplies[0]).To(ContainSubstring("Here is the caller function for 'process':"))
			// main has no caller, so the second climb misses.
			Expect(toolReplies[1]).To(ContainSubstring("Caller function was not found."))
		})

		It("appends the stop warning once six tool rounds are reached", func() {
			var responses []func(llm.AgentRequest) (*llm.AgentResponse, error)
			for i := 0; i < 6; i++ {
				responses = append(responses,
					toolResponse(fmt.Sprintf("call_%d", i+1), "get_macro", `{"macro_name":"MAX_BUF"}`))
			}
			responses = append(responses, textResponse("7331"))
			mock := &mockAgentClient{responses: responses}
			engine := triage.NewEngine(mock, 10)

			result, err := engine.Triage(ctx, db, pc)
			Expect(err).NotTo(HaveOccurred())

			warnings := 0
			for _, turn := range result.Transcript {
				if turn.Role == "system" && strings.Contains(turn.Content, "You called too many tools!") {
					warnings++
				}
			}
			Expect(warnings).To(Equal(1))
		})
	})

	Describe("transport failures", func() {
		It("propagates the error without a verdict", func() {
			mock := &mockAgentClient{responses: []func(llm.AgentRequest) (*llm.AgentResponse, error){
				func(llm.AgentRequest) (*llm.AgentResponse, error) {
					return nil, &llm.TransportError{Kind: llm.TransportRateLimited, Err: errors.New("429")}
				},
			}}
			engine := triage.NewEngine(mock, 10)

			_, err := engine.Triage(ctx, db, pc)

			Expect(err).To(HaveOccurred())
			te, ok := llm.AsTransportError(err)
			Expect(ok).To(BeTrue())
			Expect(te.Kind).To(Equal(llm.TransportRateLimited))
		})
	})
})
