package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/xactions/xactions-a2a/pkg/skills"
)

// Runner executes one tool. Implementations live outside the core; the
// bridge only routes to them.
type Runner func(ctx context.Context, params map[string]any) (*Result, error)

// LocalBridge routes skill executions to in-process runners. Parameters
// are validated against the skill's input schema before the runner is
// invoked, so runners can trust required fields exist.
type LocalBridge struct {
	registry *skills.Registry

	mu      sync.RWMutex
	runners map[string]Runner // keyed by tool name, without namespace

	schemaMu sync.Mutex
	schemas  map[string]*jsonschema.Schema
}

// NewLocalBridge creates a bridge over the skill registry with no runners
// registered.
func NewLocalBridge(registry *skills.Registry) *LocalBridge {
	return &LocalBridge{
		registry: registry,
		runners:  make(map[string]Runner),
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

// Register binds a runner to a tool name.
func (b *LocalBridge) Register(toolName string, runner Runner) {
	b.mu.Lock()
	b.runners[toolName] = runner
	b.mu.Unlock()
}

// Execute validates params against the skill schema and invokes the
// runner.
func (b *LocalBridge) Execute(ctx context.Context, skillID string, params map[string]any) (*Result, error) {
	skill, ok := b.registry.Get(skillID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSkill, skillID)
	}

	toolName := strings.TrimPrefix(skillID, skills.Namespace)
	b.mu.RLock()
	runner, ok := b.runners[toolName]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no runner for %s", ErrUnknownSkill, skillID)
	}

	if skill.InputSchema != nil {
		if err := b.validate(skillID, skill.InputSchema, params); err != nil {
			return nil, skillError(skillID, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := runner(ctx, params)
	if err != nil {
		return nil, skillError(skillID, err)
	}
	return result, nil
}

// ExecuteNatural has no local implementation; natural-language dispatch
// belongs to the remote executor.
func (b *LocalBridge) ExecuteNatural(ctx context.Context, text string) (*Result, error) {
	return nil, fmt.Errorf("%w: natural-language dispatch requires the HTTP bridge", ErrUnknownSkill)
}

// validate compiles (and caches) the skill input schema and validates
// params against it.
func (b *LocalBridge) validate(skillID string, schema map[string]any, params map[string]any) error {
	b.schemaMu.Lock()
	compiled, ok := b.schemas[skillID]
	if !ok {
		compiler := jsonschema.NewCompiler()
		url := "xactions://skills/" + skillID + ".json"
		if err := compiler.AddResource(url, normalizeSchema(schema)); err != nil {
			b.schemaMu.Unlock()
			return fmt.Errorf("register input schema: %w", err)
		}
		var err error
		compiled, err = compiler.Compile(url)
		if err != nil {
			b.schemaMu.Unlock()
			return fmt.Errorf("compile input schema: %w", err)
		}
		b.schemas[skillID] = compiled
	}
	b.schemaMu.Unlock()

	if err := compiled.Validate(normalizeValue(params)); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

// normalizeSchema converts nested map values to the json-generic form the
// schema compiler expects.
func normalizeSchema(schema map[string]any) any {
	return normalizeValue(schema)
}

func normalizeValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, val := range vv {
			out[k] = normalizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(vv))
		for i, val := range vv {
			out[i] = normalizeValue(val)
		}
		return out
	case []string:
		out := make([]any, len(vv))
		for i, val := range vv {
			out[i] = val
		}
		return out
	case int:
		return float64(vv)
	case int64:
		return float64(vv)
	default:
		return v
	}
}
