// Package benchmark decodes the benchmark YAML file format (§6) and derives
// the content fingerprint used as its sole persisted identity (§3).
package benchmark

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"reev-core/internal/flow"
	"reev-core/internal/reeverr"
)

// AccountRecord describes one entry of initial_state (§6).
type AccountRecord struct {
	Pubkey   string         `yaml:"pubkey"`
	Owner    string         `yaml:"owner"`
	Lamports uint64         `yaml:"lamports"`
	Data     *SPLAccountData `yaml:"data,omitempty"`
}

// SPLAccountData is the optional SPL-account payload on an AccountRecord.
type SPLAccountData struct {
	Mint   string `yaml:"mint"`
	Owner  string `yaml:"owner"`
	Amount uint64 `yaml:"amount"`
}

// StepSpec is one entry of the YAML flow list.
type StepSpec struct {
	Step          int              `yaml:"step"`
	Description   string           `yaml:"description"`
	Prompt        string           `yaml:"prompt"`
	DependsOn     []string         `yaml:"depends_on,omitempty"`
	Timeout       int              `yaml:"timeout,omitempty"`
	Critical      *bool            `yaml:"critical,omitempty"`
	Retry         *RetrySpec       `yaml:"retry,omitempty"`
	Recovery      *RecoverySpec    `yaml:"recovery,omitempty"`
	RequiredTools []flow.ToolName  `yaml:"required_tools,omitempty"`
}

// RetrySpec is the YAML shape of a step's retry policy.
type RetrySpec struct {
	MaxAttempts        int      `yaml:"max_attempts"`
	DelaySeconds        float64 `yaml:"delay_seconds"`
	RetryableErrorTags []string `yaml:"retryable_error_tags,omitempty"`
}

// RecoverySpec is the YAML shape of a step's recovery strategy, reinstated
// from original_source's DynamicStep.with_recovery (SPEC_FULL.md C2
// expansion). Kind selects which of the other fields applies: "retry" uses
// Attempts, "alternative_flow" uses AlternativeStep (a "step_<k>" reference
// into the same flow's step pool), "user_fulfillment" uses Questions.
type RecoverySpec struct {
	Kind            string   `yaml:"kind"`
	Attempts        int      `yaml:"attempts,omitempty"`
	AlternativeStep string   `yaml:"alternative_step,omitempty"`
	Questions       []string `yaml:"questions,omitempty"`
}

// StateAssertionSpec is the YAML shape of a ground-truth state assertion.
type StateAssertionSpec struct {
	Kind           flow.AssertionKind `yaml:"kind"`
	Pubkey         string             `yaml:"pubkey"`
	Mint           string             `yaml:"mint,omitempty"`
	Expected       int64              `yaml:"expected,omitempty"`
	ExpectedGTE    bool               `yaml:"expected_gte,omitempty"`
	ExpectedChange int64              `yaml:"expected_change,omitempty"`
	Tolerance      float64            `yaml:"tolerance,omitempty"`
	Weight         float64            `yaml:"weight"`
}

// ExpectedInstructionSpec is the YAML shape of an expected-instruction
// ground-truth entry.
type ExpectedInstructionSpec struct {
	Step                int     `yaml:"step"`
	ProgramID           string  `yaml:"program_id"`
	InstructionCount    *int    `yaml:"instruction_count,omitempty"`
	InstructionCountMin *int    `yaml:"instruction_count_min,omitempty"`
	InstructionCountMax *int    `yaml:"instruction_count_max,omitempty"`
	Weight              float64 `yaml:"weight"`
	Critical            bool    `yaml:"critical"`
}

// ExpectedToolCallSpec is the YAML shape of an expected tool call.
type ExpectedToolCallSpec struct {
	ToolName flow.ToolName `yaml:"tool_name"`
	Critical bool          `yaml:"critical"`
}

// GroundTruthSpec is the YAML shape of ground_truth (§3, §6).
type GroundTruthSpec struct {
	FinalStateAssertions []StateAssertionSpec      `yaml:"final_state_assertions,omitempty"`
	ExpectedInstructions []ExpectedInstructionSpec `yaml:"expected_instructions,omitempty"`
	ExpectedToolCalls     []ExpectedToolCallSpec    `yaml:"expected_tool_calls,omitempty"`
	MinScore              *float64                  `yaml:"min_score,omitempty"`
	ErrorTolerance        *float64                  `yaml:"error_tolerance,omitempty"`
}

// Spec is the raw YAML document shape of a benchmark file (§6).
type Spec struct {
	ID           string          `yaml:"id"`
	Description  string          `yaml:"description"`
	Tags         []string        `yaml:"tags,omitempty"`
	Prompt       string          `yaml:"prompt,omitempty"`
	InitialState []AccountRecord `yaml:"initial_state,omitempty"`
	Flow         []StepSpec      `yaml:"flow,omitempty"`
	GroundTruth  GroundTruthSpec `yaml:"ground_truth,omitempty"`
	Metadata     map[string]any  `yaml:"metadata,omitempty"`
}

// Benchmark is the persisted record (§3): fingerprint is the sole identity.
type Benchmark struct {
	ID            string
	BenchmarkName string
	Prompt        string
	YAMLContent   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

var stepIDPattern = regexp.MustCompile(`^step_(\d+)$`)

// Parse decodes raw YAML content into a Spec and validates the structural
// rules from §6 (dense step ids, well-formed depends_on, existing
// expected_instructions.step references).
func Parse(content []byte) (*Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(content, &spec); err != nil {
		return nil, reeverr.Wrap(reeverr.KindConfiguration, reeverr.TagInvalidBenchmark, "invalid benchmark yaml", err)
	}
	if spec.ID == "" {
		return nil, reeverr.New(reeverr.KindConfiguration, reeverr.TagInvalidBenchmark, "benchmark id is required")
	}
	if err := validateFlowSteps(spec.Flow); err != nil {
		return nil, err
	}
	stepIDs := make(map[int]bool, len(spec.Flow))
	for _, s := range spec.Flow {
		stepIDs[s.Step] = true
	}
	for _, ei := range spec.GroundTruth.ExpectedInstructions {
		if len(spec.Flow) > 0 && !stepIDs[ei.Step] {
			return nil, reeverr.Errorf(reeverr.KindConfiguration, reeverr.TagInvalidBenchmark,
				"expected_instructions references unknown step %d", ei.Step)
		}
	}
	return &spec, nil
}

func validateFlowSteps(steps []StepSpec) error {
	for i, s := range steps {
		if s.Step != i+1 {
			return reeverr.Errorf(reeverr.KindConfiguration, reeverr.TagInvalidBenchmark,
				"flow step ids must be dense from 1: expected %d, got %d", i+1, s.Step)
		}
		for _, dep := range s.DependsOn {
			m := stepIDPattern.FindStringSubmatch(dep)
			if m == nil {
				return reeverr.Errorf(reeverr.KindConfiguration, reeverr.TagInvalidBenchmark,
					"depends_on entry %q does not match step_<k>", dep)
			}
			k, _ := strconv.Atoi(m[1])
			if k >= s.Step {
				return reeverr.Errorf(reeverr.KindConfiguration, reeverr.TagInvalidBenchmark,
					"step %d depends_on %q, which is not strictly earlier", s.Step, dep)
			}
		}
	}
	return nil
}

// ToGroundTruth converts the decoded GroundTruthSpec into a flow.GroundTruth,
// starting from the §3 defaults and overlaying whatever the YAML declared.
// Exported so callers that synthesize a Flow by some other route (C2's
// Planner, for a bare-prompt benchmark that also declares an explicit
// ground_truth block) can overlay the same conversion C2's fixed-flow path
// uses via ToFlow.
func (s *Spec) ToGroundTruth() flow.GroundTruth {
	gt := flow.DefaultGroundTruth()
	if s.GroundTruth.MinScore != nil {
		gt.MinScore = *s.GroundTruth.MinScore
	}
	if s.GroundTruth.ErrorTolerance != nil {
		gt.ErrorTolerance = *s.GroundTruth.ErrorTolerance
	}
	for _, a := range s.GroundTruth.FinalStateAssertions {
		gt.FinalStateAssertions = append(gt.FinalStateAssertions, flow.StateAssertion{
			Kind:        a.Kind,
			Pubkey:      a.Pubkey,
			Mint:        a.Mint,
			Expected:    pickExpected(a),
			ExpectedGTE: a.ExpectedGTE,
			Tolerance:   a.Tolerance,
			Weight:      a.Weight,
		})
	}
	for _, ei := range s.GroundTruth.ExpectedInstructions {
		min, max := 1, 1
		if ei.InstructionCount != nil {
			min, max = *ei.InstructionCount, *ei.InstructionCount
		}
		if ei.InstructionCountMin != nil {
			min = *ei.InstructionCountMin
		}
		if ei.InstructionCountMax != nil {
			max = *ei.InstructionCountMax
		}
		gt.ExpectedInstructions = append(gt.ExpectedInstructions, flow.ExpectedInstruction{
			Step:                ei.Step,
			ProgramID:           ei.ProgramID,
			InstructionCountMin: min,
			InstructionCountMax: max,
			Weight:              ei.Weight,
			Critical:            ei.Critical,
		})
	}
	for _, tc := range s.GroundTruth.ExpectedToolCalls {
		gt.ExpectedToolCalls = append(gt.ExpectedToolCalls, flow.ExpectedToolCall{
			ToolName: tc.ToolName,
			Critical: tc.Critical,
		})
	}
	return gt
}

// HasExplicitGroundTruth reports whether the YAML declared any ground_truth
// content at all, as opposed to relying on defaults or C2 synthesis.
func (s *Spec) HasExplicitGroundTruth() bool {
	gt := s.GroundTruth
	return len(gt.FinalStateAssertions) > 0 || len(gt.ExpectedInstructions) > 0 ||
		len(gt.ExpectedToolCalls) > 0 || gt.MinScore != nil || gt.ErrorTolerance != nil
}

// ToFlow converts the decoded Spec into a flow.Flow ready for planning
// override or direct execution when the benchmark already ships a fixed
// flow (as opposed to C2 synthesizing one from a bare prompt).
func (s *Spec) ToFlow() (*flow.Flow, error) {
	gt := s.ToGroundTruth()

	steps := make([]flow.Step, 0, len(s.Flow))
	for _, ss := range s.Flow {
		dependsOn := make([]int, 0, len(ss.DependsOn))
		for _, dep := range ss.DependsOn {
			m := stepIDPattern.FindStringSubmatch(dep)
			k, _ := strconv.Atoi(m[1])
			dependsOn = append(dependsOn, k)
		}
		critical := true
		if ss.Critical != nil {
			critical = *ss.Critical
		}
		var retry *flow.RetryPolicy
		if ss.Retry != nil {
			tags := make([]reeverr.Tag, 0, len(ss.Retry.RetryableErrorTags))
			for _, t := range ss.Retry.RetryableErrorTags {
				tags = append(tags, reeverr.Tag(t))
			}
			retry = &flow.RetryPolicy{
				MaxAttempts:        ss.Retry.MaxAttempts,
				DelaySeconds:       ss.Retry.DelaySeconds,
				RetryableErrorTags: tags,
			}
		}
		var recovery *flow.RecoveryStrategy
		if ss.Recovery != nil {
			recovery = &flow.RecoveryStrategy{
				Kind:              flow.RecoveryKind(ss.Recovery.Kind),
				Attempts:          ss.Recovery.Attempts,
				AlternativeFlowID: ss.Recovery.AlternativeStep,
				Questions:         ss.Recovery.Questions,
			}
		}
		steps = append(steps, flow.Step{
			StepID:         ss.Step,
			Description:    ss.Description,
			Prompt:         ss.Prompt,
			DependsOn:      dependsOn,
			RequiredTools:  ss.RequiredTools,
			Critical:       critical,
			TimeoutSeconds: ss.Timeout,
			Retry:          retry,
			Recovery:       recovery,
		})
	}

	f := &flow.Flow{
		ID:            s.ID,
		RefinedPrompt: s.Prompt,
		Steps:         steps,
		GroundTruth:   gt,
	}
	if len(f.Steps) > 0 {
		if err := f.Validate(); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func pickExpected(a StateAssertionSpec) int64 {
	if a.Kind == flow.AssertSolBalanceChange || a.Kind == flow.AssertTokenAccountBalanceChange {
		return a.ExpectedChange
	}
	return a.Expected
}

// Fingerprint computes the content-derived identity of a benchmark: a hash
// of benchmarkName+prompt (§3: "Fingerprint is the sole identity; upsert is
// by fingerprint").
func Fingerprint(benchmarkName, prompt string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s", benchmarkName, prompt)))
	return hex.EncodeToString(sum[:])
}

// NewBenchmark constructs a Benchmark record with a derived fingerprint ID.
func NewBenchmark(name, prompt, yamlContent string, now time.Time) Benchmark {
	return Benchmark{
		ID:            Fingerprint(name, prompt),
		BenchmarkName: name,
		Prompt:        prompt,
		YAMLContent:   yamlContent,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
