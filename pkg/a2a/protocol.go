// Package a2a implements the Agent-to-Agent (A2A) protocol types used by
// the XActions runtime: tasks and their state machine, messages and
// message parts, agent cards, and the JSON-RPC 2.0 envelope.
package a2a

import (
	"fmt"
	"time"
)

const (
	// ProtocolVersion is the A2A protocol version advertised by this runtime.
	ProtocolVersion = "1.0"

	// WellKnownCardPath is where an agent publishes its card.
	WellKnownCardPath = "/.well-known/agent.json"
)

// ============================================================================
// TASK STATE MACHINE
// ============================================================================

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateFailed        TaskState = "failed"
	TaskStateCanceled      TaskState = "canceled"
)

// TaskStates lists every valid task state.
var TaskStates = []TaskState{
	TaskStateSubmitted,
	TaskStateWorking,
	TaskStateInputRequired,
	TaskStateCompleted,
	TaskStateFailed,
	TaskStateCanceled,
}

// validTransitions is the static transition table. Terminal states have no
// successors.
var validTransitions = map[TaskState][]TaskState{
	TaskStateSubmitted:     {TaskStateWorking, TaskStateCanceled},
	TaskStateWorking:       {TaskStateCompleted, TaskStateFailed, TaskStateCanceled, TaskStateInputRequired},
	TaskStateInputRequired: {TaskStateWorking, TaskStateCanceled},
	TaskStateCompleted:     {},
	TaskStateFailed:        {},
	TaskStateCanceled:      {},
}

// IsValidState reports whether s is a known task state.
func IsValidState(s TaskState) bool {
	_, ok := validTransitions[s]
	return ok
}

// IsTerminalState reports whether s is absorbing.
func IsTerminalState(s TaskState) bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the transition table permits from -> to.
func CanTransition(from, to TaskState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ============================================================================
// TASK
// ============================================================================

// TaskStatus carries the current state with a human-readable message.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryEntry records one committed transition.
type HistoryEntry struct {
	State     TaskState `json:"state"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Task is the unit of work exchanged over A2A.
type Task struct {
	ID        string         `json:"id"`
	ContextID string         `json:"contextId,omitempty"`
	Status    TaskStatus     `json:"status"`
	Messages  []Message      `json:"messages"`
	Artifacts []Part         `json:"artifacts,omitempty"`
	History   []HistoryEntry `json:"history"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// MetadataSkillKey is the conventional metadata key carrying the selected
// skill id.
const MetadataSkillKey = "skillId"

// SkillID returns the skill id recorded in task metadata, if any.
func (t *Task) SkillID() string {
	if t.Metadata == nil {
		return ""
	}
	if id, ok := t.Metadata[MetadataSkillKey].(string); ok {
		return id
	}
	return ""
}

// ============================================================================
// MESSAGE & PARTS
// ============================================================================

// MessageRole identifies the sender of a message.
type MessageRole string

const (
	MessageRoleUser  MessageRole = "user"
	MessageRoleAgent MessageRole = "agent"
)

// Message is a structured message exchanged during a task.
type Message struct {
	Role     MessageRole    `json:"role"`
	Parts    []Part         `json:"parts"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PartType discriminates the Part union.
type PartType string

const (
	PartTypeText PartType = "text"
	PartTypeData PartType = "data"
	PartTypeFile PartType = "file"
)

// Part is a tagged sum: text, structured data, or file.
type Part struct {
	Type PartType `json:"type"`

	Text string `json:"text,omitempty"`

	Data     any    `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`

	File *FilePart `json:"file,omitempty"`
}

// FilePart carries a file by URI or by inline base64 bytes, never both.
type FilePart struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	URI      string `json:"uri,omitempty"`
	Bytes    string `json:"bytes,omitempty"` // base64-encoded
}

// Validate checks the structural invariants of a part.
func (p Part) Validate() error {
	switch p.Type {
	case PartTypeText:
		return nil
	case PartTypeData:
		if p.Data == nil {
			return fmt.Errorf("data part has no data")
		}
		return nil
	case PartTypeFile:
		if p.File == nil {
			return fmt.Errorf("file part has no file")
		}
		hasURI := p.File.URI != ""
		hasBytes := p.File.Bytes != ""
		if hasURI == hasBytes {
			return fmt.Errorf("file part must carry exactly one of uri or bytes")
		}
		return nil
	default:
		return fmt.Errorf("unknown part type %q", p.Type)
	}
}

// ============================================================================
// FACTORIES
// ============================================================================

// NewTextPart creates a text part.
func NewTextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

// NewDataPart creates a structured data part.
func NewDataPart(data any) Part {
	return Part{Type: PartTypeData, Data: data}
}

// NewDataPartWithMime creates a structured data part with an explicit MIME type.
func NewDataPartWithMime(data any, mimeType string) Part {
	return Part{Type: PartTypeData, Data: data, MimeType: mimeType}
}

// NewFileURIPart creates a file part referencing external content.
func NewFileURIPart(name, mimeType, uri string) Part {
	return Part{Type: PartTypeFile, File: &FilePart{Name: name, MimeType: mimeType, URI: uri}}
}

// NewFileBytesPart creates a file part with inline base64 content.
func NewFileBytesPart(name, mimeType, b64 string) Part {
	return Part{Type: PartTypeFile, File: &FilePart{Name: name, MimeType: mimeType, Bytes: b64}}
}

// NewUserMessage creates a user message from parts.
func NewUserMessage(parts ...Part) Message {
	return Message{Role: MessageRoleUser, Parts: parts}
}

// NewAgentMessage creates an agent message from parts.
func NewAgentMessage(parts ...Part) Message {
	return Message{Role: MessageRoleAgent, Parts: parts}
}

// NewUserTextMessage creates a user message with a single text part.
func NewUserTextMessage(text string) Message {
	return NewUserMessage(NewTextPart(text))
}

// NewAgentTextMessage creates an agent message with a single text part.
func NewAgentTextMessage(text string) Message {
	return NewAgentMessage(NewTextPart(text))
}

// ExtractText returns the concatenation of a message's text parts.
func ExtractText(msg Message) string {
	var out string
	for _, part := range msg.Parts {
		if part.Type == PartTypeText {
			if out != "" {
				out += "\n"
			}
			out += part.Text
		}
	}
	return out
}

// ============================================================================
// STREAM EVENT PAYLOADS (SSE wire format)
// ============================================================================

// StatusEvent is the payload of an SSE "status" frame.
type StatusEvent struct {
	TaskID        string    `json:"taskId"`
	State         TaskState `json:"state"`
	PreviousState TaskState `json:"previousState,omitempty"`
	Message       string    `json:"message,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// DoneEvent is the payload of an SSE "done" frame, emitted once a task
// reaches a terminal state.
type DoneEvent struct {
	TaskID     string    `json:"taskId"`
	FinalState TaskState `json:"finalState"`
}

// ArtifactEvent is the payload of an SSE "artifact" frame.
type ArtifactEvent struct {
	TaskID        string `json:"taskId"`
	ArtifactIndex int    `json:"artifactIndex"`
	Part          Part   `json:"part"`
}

// MessageEvent is the payload of an SSE "message" frame.
type MessageEvent struct {
	TaskID string      `json:"taskId"`
	Role   MessageRole `json:"role"`
	Parts  []Part      `json:"parts"`
}
