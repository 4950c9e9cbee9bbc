package thread

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestJoin(t *testing.T, strategy JoinStrategy, branchIDs ...string) *JoinCoordinator {
	t.Helper()
	join, err := NewJoinCoordinator("fork_1", branchIDs, strategy)
	require.NoError(t, err)
	return join
}

func TestJoinStrategyValidate(t *testing.T) {
	require.NoError(t, JoinStrategy{Policy: JoinAll}.Validate())
	require.NoError(t, JoinStrategy{Policy: JoinAny}.Validate())
	require.NoError(t, JoinStrategy{Policy: JoinMajority}.Validate())
	require.NoError(t, JoinStrategy{Policy: JoinCount, RequiredCount: 2}.Validate())

	err := JoinStrategy{Policy: JoinCount}.Validate()
	require.True(t, IsDomainError(err, ErrCodeInvalidArgument))

	err = JoinStrategy{Policy: "quorum"}.Validate()
	require.True(t, IsDomainError(err, ErrCodeInvalidArgument))
}

func TestJoinCountPolicy(t *testing.T) {
	join := newTestJoin(t, JoinStrategy{Policy: JoinCount, RequiredCount: 2}, "b1", "b2", "b3")

	require.NoError(t, join.AddResult(&BranchResult{BranchID: "b1", Success: true}))
	decision := join.CheckJoinCondition()
	require.False(t, decision.Satisfied)
	require.Equal(t, 2, decision.Required)
	require.Equal(t, 1, decision.Completed)
	require.Equal(t, 3, decision.Total)

	require.NoError(t, join.AddResult(&BranchResult{BranchID: "b2", Success: false, Error: "boom"}))
	require.True(t, join.CheckJoinCondition().Satisfied)

	// Satisfaction is idempotent as further results arrive.
	require.NoError(t, join.AddResult(&BranchResult{BranchID: "b3", Success: true}))
	require.True(t, join.CheckJoinCondition().Satisfied)
}

func TestJoinCountExceedingBranches(t *testing.T) {
	// A required count above the branch count could never be reached, so
	// the configuration is rejected up front instead of waiting forever.
	_, err := NewJoinCoordinator("fork_1", []string{"b1", "b2"},
		JoinStrategy{Policy: JoinCount, RequiredCount: 3})
	require.True(t, IsDomainError(err, ErrCodeInvalidArgument))

	// At the limit the join resolves exactly when every branch reports.
	join := newTestJoin(t, JoinStrategy{Policy: JoinCount, RequiredCount: 2}, "b1", "b2")
	require.NoError(t, join.AddResult(&BranchResult{BranchID: "b1", Success: true}))
	require.False(t, join.CheckJoinCondition().Satisfied)
	require.NoError(t, join.AddResult(&BranchResult{BranchID: "b2", Success: false, Error: "boom"}))
	require.True(t, join.CheckJoinCondition().Satisfied)
}

func TestJoinAllPolicy(t *testing.T) {
	join := newTestJoin(t, JoinStrategy{Policy: JoinAll}, "b1", "b2")

	require.NoError(t, join.AddResult(&BranchResult{BranchID: "b1", Success: true}))
	require.False(t, join.CheckJoinCondition().Satisfied)

	require.NoError(t, join.AddResult(&BranchResult{BranchID: "b2", Success: true}))
	require.True(t, join.CheckJoinCondition().Satisfied)
}

func TestJoinAnyPolicy(t *testing.T) {
	t.Run("first success satisfies", func(t *testing.T) {
		join := newTestJoin(t, JoinStrategy{Policy: JoinAny}, "b1", "b2", "b3")
		require.NoError(t, join.AddResult(&BranchResult{BranchID: "b2", Success: true}))
		decision := join.CheckJoinCondition()
		require.True(t, decision.Satisfied)
		require.Equal(t, 1, decision.Required)
	})

	t.Run("failure alone does not satisfy", func(t *testing.T) {
		join := newTestJoin(t, JoinStrategy{Policy: JoinAny}, "b1", "b2")
		require.NoError(t, join.AddResult(&BranchResult{BranchID: "b1", Success: false, Error: "x"}))
		require.False(t, join.CheckJoinCondition().Satisfied)
	})

	t.Run("all branches failed resolves unsuccessfully", func(t *testing.T) {
		join := newTestJoin(t, JoinStrategy{Policy: JoinAny}, "b1", "b2")
		require.NoError(t, join.AddResult(&BranchResult{BranchID: "b1", Success: false, Error: "x"}))
		require.NoError(t, join.AddResult(&BranchResult{BranchID: "b2", Success: false, Error: "y"}))
		require.True(t, join.CheckJoinCondition().Satisfied)

		merged, err := join.MergeBranchResults()
		require.NoError(t, err)
		require.False(t, merged.Success)
		require.Equal(t, 2, merged.FailureCount)
	})
}

func TestJoinMajorityPolicy(t *testing.T) {
	tests := []struct {
		total    int
		required int
	}{
		{1, 1},
		{2, 1},
		{3, 2},
		{4, 2},
		{5, 3},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("%d branches", tc.total), func(t *testing.T) {
			var ids []string
			for i := 0; i < tc.total; i++ {
				ids = append(ids, fmt.Sprintf("b%d", i))
			}
			join := newTestJoin(t, JoinStrategy{Policy: JoinMajority}, ids...)
			require.Equal(t, tc.required, join.CheckJoinCondition().Required)
		})
	}
}

func TestJoinRejectsUnknownAndDuplicateBranches(t *testing.T) {
	join := newTestJoin(t, JoinStrategy{Policy: JoinAll}, "b1")

	err := join.AddResult(&BranchResult{BranchID: "intruder"})
	require.True(t, IsDomainError(err, ErrCodeInvalidArgument))

	require.NoError(t, join.AddResult(&BranchResult{BranchID: "b1", Success: true}))
	err = join.AddResult(&BranchResult{BranchID: "b1", Success: true})
	require.True(t, IsDomainError(err, ErrCodeInvalidArgument))
}

func TestJoinPendingBranchIDs(t *testing.T) {
	join := newTestJoin(t, JoinStrategy{Policy: JoinAll}, "b3", "b1", "b2")
	require.NoError(t, join.AddResult(&BranchResult{BranchID: "b2", Success: true}))
	require.Equal(t, []string{"b1", "b3"}, join.PendingBranchIDs())
}

func TestJoinMergeBranchResults(t *testing.T) {
	join := newTestJoin(t, JoinStrategy{Policy: JoinAll}, "b1", "b2", "b3")
	require.NoError(t, join.AddResult(&BranchResult{BranchID: "b1", Success: true, Output: "alpha"}))
	require.NoError(t, join.AddResult(&BranchResult{BranchID: "b2", Success: false, Error: "timeout"}))
	require.NoError(t, join.AddResult(&BranchResult{BranchID: "b3", Success: true, Output: "gamma"}))

	merged, err := join.MergeBranchResults()
	require.NoError(t, err)
	require.False(t, merged.Success)
	require.Equal(t, 3, merged.BranchCount)
	require.Equal(t, 2, merged.SuccessCount)
	require.Equal(t, 1, merged.FailureCount)
	require.Equal(t, "alpha", merged.Results["b1"])
	require.Equal(t, "gamma", merged.Results["b3"])
	require.Equal(t, []string{"branch b2: timeout"}, merged.Errors)
}

func TestJoinMergeRequiresResults(t *testing.T) {
	join := newTestJoin(t, JoinStrategy{Policy: JoinAll}, "b1")
	_, err := join.MergeBranchResults()
	require.True(t, IsDomainError(err, ErrCodePrecondition))
}

func TestJoinClear(t *testing.T) {
	join := newTestJoin(t, JoinStrategy{Policy: JoinAll}, "b1")
	require.NoError(t, join.AddResult(&BranchResult{BranchID: "b1", Success: true}))
	join.Clear()
	require.Equal(t, []string{"b1"}, join.PendingBranchIDs())
}
