package commands

import (
	"context"
	"sync"
	"testing"

	"github.com/danmuck/donuts/internal/command"
	"github.com/danmuck/donuts/internal/store"
	"github.com/danmuck/donuts/internal/testutil/testlog"
	"github.com/danmuck/donuts/internal/workspace"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	mu     sync.Mutex
	chunks []string
}

func (c *capture) send(data string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, data)
	return nil
}

type harness struct {
	t  *testing.T
	d  *command.Dispatcher
	ws *workspace.Workspace
}

func newHarness(t *testing.T, ids ...string) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ws := workspace.New(ctx, workspace.WithResponder(workspace.FirstItem))
	t.Cleanup(ws.Close)
	st, err := store.Open(store.Config{Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cmds, err := Builtin(ids, Deps{Workspace: ws, Store: st, Logger: zerolog.Nop()})
	require.NoError(t, err)
	d := command.NewDispatcher(command.WithStrictRegistration())
	require.NoError(t, d.Register(cmds...))
	return &harness{t: t, d: d, ws: ws}
}

// run executes name with args, feeding input as closed inbox content.
func (h *harness) run(name string, args any, input ...string) ([]string, error) {
	h.t.Helper()
	out := &capture{}
	pipe := command.NewPipe(out.send)
	for _, data := range input {
		require.NoError(h.t, pipe.In.Push(data))
	}
	pipe.In.Close()
	err := h.d.Execute(context.Background(), name, args, pipe)
	pipe.Close()
	return out.chunks, err
}

func TestBuiltinSets(t *testing.T) {
	testlog.Start(t)
	cmds, err := Builtin([]string{"core", " core ", "none", ""}, Deps{})
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "echo", cmds[0].Name)

	_, err = Builtin([]string{"editor"}, Deps{})
	assert.ErrorIs(t, err, ErrUnknownCommandSet)

	_, err = Builtin([]string{SetKV}, Deps{})
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestEcho(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, SetCore)
	chunks, err := h.run("echo", map[string]any{"a": 1.0}, "x", "y")
	require.NoError(t, err)
	assert.Equal(t, []string{`{"a":1}`, "x", "y"}, chunks)
}

func TestNewFileThenEditText(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, SetWorkspace)

	_, err := h.run("get-text", map[string]any{})
	assert.ErrorIs(t, err, workspace.ErrNoActiveDocument)

	_, err = h.run("new-file", nil, "hello ", "world")
	require.NoError(t, err)

	chunks, err := h.run("get-text", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, []string{"hello world"}, chunks)

	doc, err := h.ws.Active()
	require.NoError(t, err)
	require.NoError(t, doc.Select(workspace.Selection{Start: 6, End: 11}))

	chunks, err = h.run("get-text", map[string]any{"selected": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"world"}, chunks)

	_, err = h.run("insert-text", map[string]any{"replace": true}, "there")
	require.NoError(t, err)
	chunks, err = h.run("get-text", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, []string{"hello there"}, chunks)
}

func TestShowMessage(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, SetWorkspace)

	chunks, err := h.run("show-message", map[string]any{
		"message": "pick one",
		"items":   []any{"yes", "no"},
		"wait":    true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"yes"}, chunks)

	_, err = h.run("show-message", map[string]any{"message": "x", "severity": "fatal"})
	assert.ErrorIs(t, err, command.ErrInvalidArguments)

	_, err = h.run("show-message", map[string]any{"severity": "warning"})
	assert.ErrorIs(t, err, command.ErrInvalidArguments)

	msgs := h.ws.Messages(0)
	require.Len(t, msgs, 1)
	assert.Equal(t, workspace.SeverityInformation, msgs[0].Severity)
}

func TestTerminals(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, SetWorkspace)

	_, err := h.run("rename-terminal", map[string]any{"terminal": "7", "name": "x"})
	require.Error(t, err)
	assert.Equal(t, "terminal not found.", err.Error())

	_, err = h.run("register-terminal", map[string]any{"terminal": "7", "name": "shell"})
	require.NoError(t, err)
	_, err = h.run("rename-terminal", map[string]any{"terminal": "7", "name": "build"})
	require.NoError(t, err)

	chunks, err := h.run("get-terminal-name", map[string]any{"terminal": "7"})
	require.NoError(t, err)
	assert.Equal(t, []string{"build"}, chunks)

	cmd, ok := h.d.Lookup("get-terminal-name")
	require.True(t, ok)
	term, ok := cmd.Args.Property("terminal")
	require.True(t, ok)
	require.Len(t, term.Meta.Default, 2)
}

func TestKV(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, SetKV)

	_, err := h.run("kv-put", map[string]any{"key": "a/1", "value": "one"})
	require.NoError(t, err)
	_, err = h.run("kv-put", map[string]any{"key": "a/2", "value": "two"})
	require.NoError(t, err)

	chunks, err := h.run("kv-get", map[string]any{"key": "a/2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"two"}, chunks)

	chunks, err = h.run("kv-list", map[string]any{"prefix": "a/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1\na/2\n"}, chunks)

	_, err = h.run("kv-delete", map[string]any{"key": "a/1"})
	require.NoError(t, err)
	_, err = h.run("kv-get", map[string]any{"key": "a/1"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}
