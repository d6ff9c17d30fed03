// Package bridge is the narrow contract between the A2A core and the
// tool executor that actually performs social-platform work. The core
// never learns how a skill is implemented; it hands the bridge a skill id
// and parameters and receives output parts back.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/xactions/xactions-a2a/pkg/a2a"
)

// ErrUnknownSkill is returned when no executor serves the skill id.
var ErrUnknownSkill = errors.New("unknown skill")

// Result is the output of one skill execution.
type Result struct {
	// Output is the primary structured result.
	Output any
	// Artifacts are additional parts beyond the primary output.
	Artifacts []a2a.Part
}

// Parts returns the result as output parts: the primary output as a data
// part followed by any extra artifacts.
func (r *Result) Parts() []a2a.Part {
	var parts []a2a.Part
	if r.Output != nil {
		parts = append(parts, a2a.NewDataPart(r.Output))
	}
	parts = append(parts, r.Artifacts...)
	return parts
}

// Bridge executes skills. Implementations must honor ctx cancellation at
// I/O boundaries.
type Bridge interface {
	// Execute runs the skill with the given parameters.
	Execute(ctx context.Context, skillID string, params map[string]any) (*Result, error)

	// ExecuteNatural dispatches a free-form instruction to the executor's
	// natural-language path.
	ExecuteNatural(ctx context.Context, text string) (*Result, error)
}

// ParamsFromMessage extracts execution parameters from a message: the
// first data part wins; otherwise text parts become {"text": ...}.
func ParamsFromMessage(msg a2a.Message) map[string]any {
	for _, part := range msg.Parts {
		if part.Type == a2a.PartTypeData {
			if m, ok := part.Data.(map[string]any); ok {
				return m
			}
		}
	}
	if text := a2a.ExtractText(msg); text != "" {
		return map[string]any{"text": text}
	}
	return map[string]any{}
}

// skillError annotates a bridge failure with the skill id.
func skillError(skillID string, err error) error {
	return fmt.Errorf("skill %s: %w", skillID, err)
}

// artifactPart maps an executor artifact to a part. File artifacts carry
// a URI; everything else becomes a data part.
func artifactPart(typ, name, mimeType, uri string, data any) a2a.Part {
	if typ == "file" || uri != "" {
		return a2a.NewFileURIPart(name, mimeType, uri)
	}
	return a2a.NewDataPartWithMime(data, mimeType)
}
