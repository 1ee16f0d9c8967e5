package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reev-core/internal/reeverr"
)

func TestFlow_ValidateRejectsAnEmptyFlow(t *testing.T) {
	f := &Flow{}
	err := f.Validate()
	require.Error(t, err)
	require.True(t, reeverr.HasTag(err, reeverr.TagInvalidBenchmark))
}

func TestFlow_ValidateRejectsNonDenseStepIDs(t *testing.T) {
	f := &Flow{Steps: []Step{{StepID: 1}, {StepID: 3}}}
	err := f.Validate()
	require.Error(t, err)
}

func TestFlow_ValidateRejectsForwardDependsOn(t *testing.T) {
	f := &Flow{Steps: []Step{{StepID: 1, DependsOn: []int{2}}, {StepID: 2}}}
	err := f.Validate()
	require.Error(t, err)
}

func TestFlow_ValidateRejectsDependsOnUnknownStep(t *testing.T) {
	f := &Flow{Steps: []Step{{StepID: 1}, {StepID: 2, DependsOn: []int{9}}}}
	err := f.Validate()
	require.Error(t, err)
}

func TestFlow_ValidateAcceptsAWellFormedFlow(t *testing.T) {
	f := &Flow{Steps: []Step{{StepID: 1}, {StepID: 2, DependsOn: []int{1}}}}
	require.NoError(t, f.Validate())
}

func TestFlow_StepByIDFindsAnExistingStep(t *testing.T) {
	f := &Flow{Steps: []Step{{StepID: 1, Description: "swap"}, {StepID: 2, Description: "lend"}}}
	step, ok := f.StepByID(2)
	require.True(t, ok)
	require.Equal(t, "lend", step.Description)
}

func TestFlow_StepByIDReportsMissingSteps(t *testing.T) {
	f := &Flow{Steps: []Step{{StepID: 1}}}
	_, ok := f.StepByID(5)
	require.False(t, ok)
}

func TestStep_StepTimeoutConvertsSecondsToADuration(t *testing.T) {
	s := Step{TimeoutSeconds: 30}
	require.Equal(t, 30*time.Second, s.StepTimeout())
}

func TestDefaultGroundTruth_AppliesTheSpecDefaults(t *testing.T) {
	gt := DefaultGroundTruth()
	require.Equal(t, 0.7, gt.MinScore)
	require.Equal(t, 0.01, gt.ErrorTolerance)
}

func TestRetryPolicy_AllowsRetryChecksTheTagSet(t *testing.T) {
	p := RetryPolicy{RetryableErrorTags: []reeverr.Tag{reeverr.TagRPCUnreachable, reeverr.TagTimeout}}
	require.True(t, p.AllowsRetry(reeverr.TagTimeout))
	require.False(t, p.AllowsRetry(reeverr.TagInvalidAmount))
}

func TestExpectedInstruction_StringFormatsAllFields(t *testing.T) {
	e := ExpectedInstruction{Step: 1, ProgramID: "Tokenkeg...", InstructionCountMin: 1, InstructionCountMax: 2}
	require.Equal(t, "step=1 program=Tokenkeg... count=[1,2]", e.String())
}
