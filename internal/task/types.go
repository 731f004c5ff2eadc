// File: internal/task/types.go
package task

import (
	"fmt"
	"strings"
)

// Type selects the handler the orchestrator dispatches a task to.
type Type string

const (
	TypeNavigation Type = "navigation"
	TypeFormFill   Type = "form_fill"
	TypeSubmit     Type = "submit"
	TypeGeneric    Type = "generic"
)

// ParseType maps a plan-file string onto a Type.
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeNavigation:
		return TypeNavigation, nil
	case TypeFormFill:
		return TypeFormFill, nil
	case TypeSubmit:
		return TypeSubmit, nil
	case TypeGeneric, "":
		return TypeGeneric, nil
	default:
		return "", fmt.Errorf("unknown task type %q", s)
	}
}

// Status is the lifecycle state of a task. Transitions only move forward:
// pending -> in_progress -> completed | failed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transition is expected.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Result is the payload a successful handler leaves on its task. Which fields
// are populated depends on the task type; the navigation keys are always
// encoded, even when empty.
type Result struct {
	// VisionAnalysis holds the parsed page elements (navigation) or the vision model's page analysis (generic).
	VisionAnalysis string `json:"visionAnalysis"`
	AnnotatedImage string `json:"annotatedImage"`
	NavigationPlan string `json:"navigationPlan"`
	TaskPlan       string `json:"taskPlan,omitempty"`
	PageContent    string `json:"pageContent"`
	PageTitle      string `json:"pageTitle,omitempty"`
}

// DiscoveredURL is a link noted while a task ran.
type DiscoveredURL struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

// Snapshot is a detached, serialisable copy of a task's state.
type Snapshot struct {
	ID             string            `json:"id"`
	ParentID       string            `json:"parent_id,omitempty"`
	Type           Type              `json:"type"`
	Status         Status            `json:"status"`
	URL            string            `json:"url,omitempty"`
	InitialPrompt  string            `json:"initial_prompt"`
	Result         *Result           `json:"result,omitempty"`
	Error          string            `json:"error,omitempty"`
	DiscoveredURLs []DiscoveredURL   `json:"discovered_urls,omitempty"`
	Commands       []string          `json:"commands,omitempty"`
	FormData       map[string]string `json:"form_data,omitempty"`
	SubtaskIDs     []string          `json:"subtask_ids,omitempty"`
}

// Command is a follow-up instruction that becomes a subtask of the task it is
// issued against.
type Command struct {
	Task     string            `json:"task" yaml:"task"`
	URL      string            `json:"url,omitempty" yaml:"url,omitempty"`
	FormData map[string]string `json:"formData,omitempty" yaml:"form_data,omitempty"`
}
