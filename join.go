package thread

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// JoinPolicy determines how many branches must report before the parent
// lineage may advance.
type JoinPolicy string

const (
	// JoinAll waits for every branch.
	JoinAll JoinPolicy = "all"

	// JoinAny is satisfied by the first successful branch.
	JoinAny JoinPolicy = "any"

	// JoinMajority waits for ceil(total/2) branches.
	JoinMajority JoinPolicy = "majority"

	// JoinCount waits for a caller-supplied number of branches.
	JoinCount JoinPolicy = "count"
)

// JoinStrategy configures a join point.
type JoinStrategy struct {
	Policy        JoinPolicy `json:"policy"`
	RequiredCount int        `json:"required_count,omitempty"`
	Merge         bool       `json:"merge"`
}

// Validate checks the strategy at configuration time.
func (s JoinStrategy) Validate() error {
	switch s.Policy {
	case JoinAll, JoinAny, JoinMajority:
	case JoinCount:
		if s.RequiredCount <= 0 {
			return NewInvalidArgumentError(fmt.Sprintf(
				"join policy %q requires a positive required count, got %d", s.Policy, s.RequiredCount))
		}
	default:
		return NewInvalidArgumentError(fmt.Sprintf("unknown join policy %q", s.Policy))
	}
	return nil
}

// BranchResult is the terminal outcome of one branch lineage. Results are
// consumed exclusively by the join and never retained after merge.
type BranchResult struct {
	BranchID      string        `json:"branch_id"`
	TargetNodeID  string        `json:"target_node_id,omitempty"`
	Success       bool          `json:"success"`
	Output        any           `json:"output,omitempty"`
	Error         string        `json:"error,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
}

// JoinDecision reports whether the join condition is satisfied. While
// Satisfied is false the join is waiting, which is not an error.
type JoinDecision struct {
	Satisfied bool `json:"satisfied"`
	Required  int  `json:"required"`
	Completed int  `json:"completed"`
	Total     int  `json:"total"`
}

// JoinResult is the merged outcome of a satisfied join.
type JoinResult struct {
	Success      bool           `json:"success"`
	BranchCount  int            `json:"branch_count"`
	SuccessCount int            `json:"success_count"`
	FailureCount int            `json:"failure_count"`
	Results      map[string]any `json:"results"`
	Errors       []string       `json:"errors,omitempty"`
}

// JoinCoordinator collects branch results as they complete and evaluates a
// completion policy. It must be correct under arbitrary arrival order:
// results are accumulated and the condition rechecked, never assumed ordered.
type JoinCoordinator struct {
	mutex    sync.Mutex
	forkID   string
	strategy JoinStrategy
	expected map[string]bool
	results  map[string]*BranchResult
}

// NewJoinCoordinator creates a coordinator for the given expected branch IDs.
func NewJoinCoordinator(forkID string, branchIDs []string, strategy JoinStrategy) (*JoinCoordinator, error) {
	if err := strategy.Validate(); err != nil {
		return nil, err
	}
	if len(branchIDs) == 0 {
		return nil, NewInvalidArgumentError("join requires at least one expected branch")
	}
	if strategy.Policy == JoinCount && strategy.RequiredCount > len(branchIDs) {
		return nil, NewInvalidArgumentError(fmt.Sprintf(
			"join requires %d branches but the fork only has %d", strategy.RequiredCount, len(branchIDs)))
	}
	expected := make(map[string]bool, len(branchIDs))
	for _, id := range branchIDs {
		expected[id] = true
	}
	return &JoinCoordinator{
		forkID:   forkID,
		strategy: strategy,
		expected: expected,
		results:  map[string]*BranchResult{},
	}, nil
}

// ForkID returns the originating fork's ID.
func (j *JoinCoordinator) ForkID() string {
	return j.forkID
}

// AddResult records a branch result. Results from unknown branches are
// rejected; a duplicate report for the same branch is an error.
func (j *JoinCoordinator) AddResult(result *BranchResult) error {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	if !j.expected[result.BranchID] {
		return NewInvalidArgumentError(fmt.Sprintf("branch %q does not belong to fork %q", result.BranchID, j.forkID))
	}
	if _, reported := j.results[result.BranchID]; reported {
		return NewInvalidArgumentError(fmt.Sprintf("branch %q already reported", result.BranchID))
	}
	j.results[result.BranchID] = result
	return nil
}

// CheckJoinCondition evaluates the completion policy against the results
// observed so far. Satisfaction is idempotent: once true it stays true as
// further results arrive. If every expected branch has reported, the join is
// satisfied regardless of policy, since nothing more can arrive.
func (j *JoinCoordinator) CheckJoinCondition() JoinDecision {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	total := len(j.expected)
	completed := len(j.results)

	var required int
	switch j.strategy.Policy {
	case JoinAll:
		required = total
	case JoinAny:
		required = 1
	case JoinMajority:
		required = (total + 1) / 2
	case JoinCount:
		required = j.strategy.RequiredCount
	}

	satisfied := false
	switch {
	case j.strategy.Policy == JoinAny:
		// ANY is satisfied by the first success, regardless of the others'
		// state; a fully reported fork with no successes also resolves, it
		// just resolves unsuccessfully.
		satisfied = j.successCountLocked() >= 1 || completed == total
	default:
		// A fully reported fork always resolves: nothing more can arrive,
		// so waiting further would wait forever.
		satisfied = completed >= required || completed == total
	}

	return JoinDecision{
		Satisfied: satisfied,
		Required:  required,
		Completed: completed,
		Total:     total,
	}
}

func (j *JoinCoordinator) successCountLocked() int {
	count := 0
	for _, result := range j.results {
		if result.Success {
			count++
		}
	}
	return count
}

// PendingBranchIDs returns the branches that have not reported yet.
func (j *JoinCoordinator) PendingBranchIDs() []string {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	var pending []string
	for id := range j.expected {
		if _, reported := j.results[id]; !reported {
			pending = append(pending, id)
		}
	}
	sort.Strings(pending)
	return pending
}

// MergeBranchResults aggregates the observed branch outputs. It must only be
// called once CheckJoinCondition reports satisfaction.
func (j *JoinCoordinator) MergeBranchResults() (*JoinResult, error) {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	if len(j.results) == 0 {
		return nil, NewPreconditionError("no branch results to merge")
	}

	merged := &JoinResult{
		BranchCount: len(j.expected),
		Results:     map[string]any{},
	}
	ids := make([]string, 0, len(j.results))
	for id := range j.results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		result := j.results[id]
		if result.Success {
			merged.SuccessCount++
			merged.Results[id] = result.Output
		} else {
			merged.FailureCount++
			merged.Errors = append(merged.Errors, fmt.Sprintf("branch %s: %s", id, result.Error))
		}
	}
	merged.Success = merged.FailureCount == 0
	if j.strategy.Policy == JoinAny {
		merged.Success = merged.SuccessCount > 0
	}
	return merged, nil
}

// Clear discards the accumulated results. Called after the merged result has
// been applied to the parent lineage.
func (j *JoinCoordinator) Clear() {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	j.results = map[string]*BranchResult{}
}
