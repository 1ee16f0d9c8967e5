// Package agentdriver implements C4: it runs one step's bounded
// agent/tool conversation against the registry produced by C3. Grounded on
// goa-ai's runtime/agent driver loop shape (request -> tool dispatch ->
// termination check), pared down from its rich multimodal Message/Part
// model to the single prompt-in/tool-calls-out shape this domain needs.
package agentdriver

import "context"

// ToolDef describes one callable tool surfaced to the model, translated
// from a tools.Spec (name, description, required argument names).
type ToolDef struct {
	Name        string
	Description string
	Required    []string
}

// Request is the single composite payload the driver sends the agent on
// each turn (§4.4: context block + policy block + refined prompt, plus the
// text of any prior tool-call-free turn appended after the first turn; tool
// results are not folded back into the prompt).
type Request struct {
	SystemPrompt string
	Prompt       string
	Tools        []ToolDef
	MaxTokens    int
}

// ToolCall is one tool invocation the agent produced.
type ToolCall struct {
	Name      string
	Arguments map[string]any
}

// Response is a model turn: free text plus zero or more tool calls.
type Response struct {
	Text       string
	ToolCalls  []ToolCall
	TokenCount int
}

// Client is the minimal surface the driver needs from a model backend.
// Concrete adapters (Anthropic, OpenAI) wrap their respective SDK clients;
// tests use DeterministicAgent.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
