package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xactions/xactions-a2a/pkg/a2a"
	"github.com/xactions/xactions-a2a/pkg/bridge"
	"github.com/xactions/xactions-a2a/pkg/discovery"
	"github.com/xactions/xactions-a2a/pkg/skills"
)

// Progress stages reported to callers.
const (
	StageStart        = "start"
	StageStepStart    = "step-start"
	StageStepComplete = "step-complete"
	StageStepError    = "step-error"
	StageComplete     = "complete"
)

// ProgressFunc receives orchestration progress. detail is the step
// result for step stages, the plan for start, and the outcome for
// complete.
type ProgressFunc func(stage string, detail any)

// StepResult is the outcome of one executed step.
type StepResult struct {
	Index    int           `json:"index"` // 1-based
	Label    string        `json:"label"`
	Skill    string        `json:"skill,omitempty"`
	Success  bool          `json:"success"`
	Output   any           `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	AgentURL string        `json:"agentUrl,omitempty"` // set when delegated
	Duration time.Duration `json:"duration"`
}

// Outcome bundles the full orchestration result.
type Outcome struct {
	Success   bool         `json:"success"`
	Results   []StepResult `json:"results"`
	Artifacts []a2a.Part   `json:"artifacts"`
	Errors    []string     `json:"errors"`
}

// Orchestrator decomposes and executes composite tasks. Local skills run
// through the bridge; foreign skills are delegated to the
// highest-trust healthy agent advertising them.
type Orchestrator struct {
	registry  *skills.Registry
	bridge    bridge.Bridge
	matcher   *discovery.Matcher
	trust     *discovery.TrustStore
	delegator *Delegator
}

// New creates an orchestrator. matcher, trust, and delegator may be nil
// when remote delegation is not configured.
func New(registry *skills.Registry, b bridge.Bridge, matcher *discovery.Matcher, trust *discovery.TrustStore, delegator *Delegator) *Orchestrator {
	return &Orchestrator{
		registry:  registry,
		bridge:    b,
		matcher:   matcher,
		trust:     trust,
		delegator: delegator,
	}
}

// Plan decomposes the description without executing anything.
func (o *Orchestrator) Plan(description string) Plan {
	return NewPlan(Decompose(description))
}

// Execute runs the full plan for the description. Steps in a contiguous
// dep-free batch run concurrently; steps with deps run after every
// earlier step has finished. stopOnError aborts remaining steps after
// the first failure. progress may be nil.
func (o *Orchestrator) Execute(ctx context.Context, description string, stopOnError bool, progress ProgressFunc) *Outcome {
	report := func(stage string, detail any) {
		if progress != nil {
			progress(stage, detail)
		}
	}

	steps := Decompose(description)
	plan := NewPlan(steps)
	report(StageStart, plan)

	outcome := &Outcome{Success: true}
	results := make(map[int]any) // 1-based step index -> output
	var mu sync.Mutex

	record := func(res StepResult, artifacts []a2a.Part) {
		mu.Lock()
		defer mu.Unlock()
		outcome.Results = append(outcome.Results, res)
		outcome.Artifacts = append(outcome.Artifacts, artifacts...)
		if res.Success {
			results[res.Index] = res.Output
		} else {
			outcome.Success = false
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("step %d (%s): %s", res.Index, res.Label, res.Error))
		}
	}

	aborted := false
	i := 0
	for i < len(steps) && !aborted {
		// Contiguous dep-free steps form one concurrent batch.
		if len(steps[i].Deps) == 0 {
			end := i
			for end < len(steps) && len(steps[end].Deps) == 0 {
				end++
			}
			g, gctx := errgroup.WithContext(ctx)
			for j := i; j < end; j++ {
				j := j
				g.Go(func() error {
					res, artifacts := o.executeStep(gctx, j+1, steps[j], results, &mu, report)
					record(res, artifacts)
					return nil
				})
			}
			_ = g.Wait()
			i = end
		} else {
			res, artifacts := o.executeStep(ctx, i+1, steps[i], results, &mu, report)
			record(res, artifacts)
			i++
		}

		if stopOnError && !outcome.Success {
			aborted = true
		}
	}

	sort.Slice(outcome.Results, func(a, b int) bool {
		return outcome.Results[a].Index < outcome.Results[b].Index
	})
	report(StageComplete, outcome)
	return outcome
}

// executeStep resolves references and runs one step, locally or
// remotely.
func (o *Orchestrator) executeStep(ctx context.Context, index int, step Step, results map[int]any, mu *sync.Mutex, report ProgressFunc) (StepResult, []a2a.Part) {
	res := StepResult{Index: index, Label: step.Label, Skill: step.Skill}
	report(StageStepStart, res)

	mu.Lock()
	resolved := resolveParams(step.Params, results)
	mu.Unlock()

	started := time.Now()
	output, artifacts, agentURL, err := o.run(ctx, step, resolved)
	res.Duration = time.Since(started)
	res.AgentURL = agentURL

	if err != nil {
		res.Error = err.Error()
		report(StageStepError, res)
		return res, nil
	}
	res.Success = true
	res.Output = output
	report(StageStepComplete, res)
	return res, artifacts
}

func (o *Orchestrator) run(ctx context.Context, step Step, params map[string]any) (output any, artifacts []a2a.Part, agentURL string, err error) {
	// Natural-language step.
	if step.Skill == "" {
		text, _ := params["text"].(string)
		result, err := o.bridge.ExecuteNatural(ctx, text)
		if err != nil {
			return nil, nil, "", err
		}
		return result.Output, result.Parts(), "", nil
	}

	// Local skill.
	if _, ok := o.registry.Get(step.Skill); ok {
		result, err := o.bridge.Execute(ctx, step.Skill, params)
		if err != nil {
			return nil, nil, "", err
		}
		return result.Output, result.Parts(), "", nil
	}

	// Remote skill: rank healthy candidates by trust.
	if o.matcher == nil || o.delegator == nil {
		return nil, nil, "", fmt.Errorf("skill %s is not available locally", step.Skill)
	}
	candidates := o.matcher.FindAgentForSkill(step.Skill)
	if len(candidates) == 0 {
		return nil, nil, "", fmt.Errorf("no agent advertises skill %s", step.Skill)
	}
	if o.trust != nil {
		sort.SliceStable(candidates, func(i, j int) bool {
			return o.trust.Score(candidates[i].URL) > o.trust.Score(candidates[j].URL)
		})
	}

	msg := a2a.NewUserMessage(a2a.NewDataPart(params))
	metadata := map[string]any{a2a.MetadataSkillKey: step.Skill}
	t, servedBy, err := o.delegator.DelegateWithFallback(ctx, candidates, msg, metadata)
	if err != nil {
		return nil, nil, "", err
	}
	if t.Status.State != a2a.TaskStateCompleted {
		return nil, nil, servedBy, fmt.Errorf("remote task ended %s: %s", t.Status.State, t.Status.Message)
	}

	for _, part := range t.Artifacts {
		if part.Type == a2a.PartTypeData && output == nil {
			output = part.Data
		}
	}
	return output, t.Artifacts, servedBy, nil
}
