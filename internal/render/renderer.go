package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"git.home.luguber.info/inful/sitegen/internal/content"
)

// ModuleRenderer server-renders one component module. It is the seam to
// the external UI-rendering runtime: sitegen composes and extracts, the
// renderer owns VDOM semantics.
type ModuleRenderer interface {
	// RenderModule renders the module at modulePath with the given props
	// and returns its HTML markup. Props always include the page
	// frontmatter fields; layout invocations additionally carry the
	// pre-rendered child markup under "children".
	RenderModule(ctx context.Context, modulePath string, props map[string]any) (string, error)
}

// ExecRenderer invokes an external SSR helper command. The module path is
// appended as the final argument, props are written as JSON to stdin and
// the rendered HTML is read from stdout.
type ExecRenderer struct {
	command []string
}

// NewExecRenderer creates an ExecRenderer for the given command line.
func NewExecRenderer(command []string) (*ExecRenderer, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("ssr command is empty")
	}
	return &ExecRenderer{command: command}, nil
}

func (r *ExecRenderer) RenderModule(ctx context.Context, modulePath string, props map[string]any) (string, error) {
	payload, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("marshal render props: %w", err)
	}

	args := append(append([]string{}, r.command[1:]...), modulePath)
	cmd := exec.CommandContext(ctx, r.command[0], args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ssr command failed: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// PropsFrom builds the props object passed to the SSR helper from the
// ambient frontmatter. Custom fields are flattened alongside title and
// description so components see one plain object.
func PropsFrom(fm content.Frontmatter) map[string]any {
	props := map[string]any{
		"title":       fm.Title,
		"description": fm.Description,
	}
	for k, v := range fm.Extra {
		if _, reserved := props[k]; !reserved {
			props[k] = v
		}
	}
	return props
}
