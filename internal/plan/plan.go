// File: internal/plan/plan.go
// Description: Decodes plan files. A plan names the root task and the
// follow-up commands that become its subtasks.

package plan

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/pilot-cli/internal/task"
)

// ErrEmptyPlan is returned for a plan file without any document.
var ErrEmptyPlan = errors.New("plan file is empty")

// Plan is the on-disk description of a run.
type Plan struct {
	ID       string            `yaml:"id"`
	Type     string            `yaml:"type"`
	URL      string            `yaml:"url"`
	Prompt   string            `yaml:"prompt"`
	FormData map[string]string `yaml:"form_data"`
	Commands []task.Command    `yaml:"commands"`
}

// Load reads and validates the plan at path.
func Load(path string) (*Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan file: %w", err)
	}
	defer f.Close()

	p, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	return p, nil
}

// Decode parses a single YAML plan document. Unknown keys are rejected.
func Decode(r io.Reader) (*Plan, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p Plan
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyPlan
		}
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the root task type and that every command has text.
func (p *Plan) Validate() error {
	if _, err := task.ParseType(p.Type); err != nil {
		return err
	}
	for i, cmd := range p.Commands {
		if strings.TrimSpace(cmd.Task) == "" {
			return fmt.Errorf("command %d has no task text", i+1)
		}
	}
	return nil
}

// RootTask builds the root task described by the plan. defaultID is used when
// the plan does not name one.
func (p *Plan) RootTask(defaultID string) (*task.Task, error) {
	typ, err := task.ParseType(p.Type)
	if err != nil {
		return nil, err
	}
	id := p.ID
	if id == "" {
		id = defaultID
	}

	root := task.New(id, typ, p.Prompt, task.WithURL(p.URL))
	if len(p.FormData) > 0 {
		root.SetFormData(p.FormData)
	}
	return root, nil
}
