package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/donuts/internal/command"
	"github.com/danmuck/donuts/internal/store"
	"github.com/danmuck/donuts/internal/workspace"
	"github.com/rs/zerolog"
)

const (
	SetCore      = "core"
	SetWorkspace = "workspace"
	SetKV        = "kv"
)

var (
	ErrUnknownCommandSet = errors.New("commands: unknown command set")
	ErrMissingDependency = errors.New("commands: missing dependency")
)

// Deps are the host resources command sets bind to.
type Deps struct {
	Workspace *workspace.Workspace
	Store     *store.Store
	Logger    zerolog.Logger
}

// Builtin resolves set ids into commands, in id order. Blank and "none" ids
// are ignored; repeated ids are registered once.
func Builtin(ids []string, deps Deps) ([]command.Command, error) {
	var out []command.Command
	seen := make(map[string]struct{})
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" || id == "none" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		switch id {
		case SetCore:
			out = append(out, Core(deps.Logger)...)
		case SetWorkspace:
			if deps.Workspace == nil {
				return nil, fmt.Errorf("%w: %s needs a workspace", ErrMissingDependency, id)
			}
			out = append(out, Workspace(deps.Workspace)...)
		case SetKV:
			if deps.Store == nil {
				return nil, fmt.Errorf("%w: %s needs a store", ErrMissingDependency, id)
			}
			out = append(out, KV(deps.Store)...)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownCommandSet, id)
		}
	}
	return out, nil
}

func argString(args any, name string) string {
	obj, _ := args.(map[string]any)
	s, _ := obj[name].(string)
	return s
}

func argBool(args any, name string) bool {
	obj, _ := args.(map[string]any)
	b, _ := obj[name].(bool)
	return b
}

func argStrings(args any, name string) []string {
	obj, _ := args.(map[string]any)
	raw, _ := obj[name].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
