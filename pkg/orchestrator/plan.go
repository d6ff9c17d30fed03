// Package orchestrator decomposes composite task descriptions into
// steps, resolves cross-step references, and executes each step locally
// through the bridge or remotely via delegation.
package orchestrator

// Step is one unit of a decomposed task. An empty Skill marks a
// natural-language step dispatched to the bridge's NLP path.
type Step struct {
	Skill  string         `json:"skill,omitempty"`
	Params map[string]any `json:"params,omitempty"`
	Label  string         `json:"label"`
	Deps   []string       `json:"deps,omitempty"` // $stepN references
}

// Plan is the decomposition of a description, with parallelism
// classification: contiguous dep-free steps form a parallel batch, a
// step with deps starts a sequential boundary.
type Plan struct {
	Steps      []Step  `json:"steps"`
	Parallel   [][]int `json:"parallel"`
	Sequential []int   `json:"sequential"`
	TotalSteps int     `json:"totalSteps"`
}

// NewPlan classifies steps into parallel batches and sequential
// positions. Indices are zero-based step positions.
func NewPlan(steps []Step) Plan {
	plan := Plan{
		Steps:      steps,
		Parallel:   [][]int{},
		Sequential: []int{},
		TotalSteps: len(steps),
	}

	var batch []int
	flush := func() {
		if len(batch) > 0 {
			plan.Parallel = append(plan.Parallel, batch)
			batch = nil
		}
	}

	for i, step := range steps {
		if len(step.Deps) == 0 {
			batch = append(batch, i)
			continue
		}
		flush()
		plan.Sequential = append(plan.Sequential, i)
	}
	flush()
	return plan
}
