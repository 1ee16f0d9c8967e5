package agentdriver

import "context"

// ScriptedCall is one forced tool invocation in a DeterministicAgent's
// script.
type ScriptedCall struct {
	ToolName string
	Args     map[string]any
}

// DeterministicAgent is a Client test double that always emits the next
// scripted tool call first, with no LLM involved — grounded on
// original_source's reev-runner deterministic_agent_test.rs, which drives
// each benchmark with a "perfect" hand-built instruction sequence instead
// of a real model to validate the pipeline end-to-end.
type DeterministicAgent struct {
	script []ScriptedCall
	cursor int
}

// NewDeterministicAgent returns a DeterministicAgent that replays script in
// order, one call per Complete invocation.
func NewDeterministicAgent(script []ScriptedCall) *DeterministicAgent {
	return &DeterministicAgent{script: script}
}

// Complete returns the next scripted call, or an empty, tool-call-free
// response once the script is exhausted.
func (d *DeterministicAgent) Complete(context.Context, Request) (Response, error) {
	if d.cursor >= len(d.script) {
		return Response{Text: "no further scripted actions"}, nil
	}
	call := d.script[d.cursor]
	d.cursor++
	return Response{ToolCalls: []ToolCall{{Name: call.ToolName, Arguments: call.Args}}}, nil
}
