package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/donuts/internal/command"
	"github.com/danmuck/donuts/internal/host"
	"github.com/danmuck/donuts/internal/protocol/frame"
	"github.com/danmuck/donuts/internal/protocol/schema"
	"github.com/danmuck/donuts/internal/testutil/testlog"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// argsCommand replies with the JSON of the arguments it received.
func argsCommand(name string, s *schema.Schema) command.Command {
	return command.Command{
		Name: name,
		Args: s,
		Handler: func(_ context.Context, args any, pipe *command.Pipe) error {
			if args == nil {
				return pipe.Out.Send("<nil>")
			}
			raw, err := json.Marshal(args)
			if err != nil {
				return err
			}
			return pipe.Out.Send(string(raw))
		},
	}
}

func testDispatcher(t *testing.T) *command.Dispatcher {
	t.Helper()
	d := command.NewDispatcher(command.WithStrictRegistration())
	require.NoError(t, d.Register(
		command.Command{
			Name: "upper",
			Args: schema.Null(),
			Handler: func(ctx context.Context, _ any, pipe *command.Pipe) error {
				in, err := pipe.In.ReadAll(ctx)
				if err != nil {
					return err
				}
				return pipe.Out.Send(strings.ToUpper(in))
			},
		},
		argsCommand("nothing", schema.Null()),
		argsCommand("free", schema.Any()),
		argsCommand("greet", schema.Object([]schema.Property{
			schema.Prop("name", schema.String()),
			schema.Prop("count", schema.Number()),
			schema.Prop("loud", schema.Bool()),
			schema.Prop("tags", schema.Array(schema.String())),
		}, "name")),
		argsCommand("whoami", schema.Object([]schema.Property{
			schema.Prop("terminal", schema.String().WithDefault(schema.FromEnv("TERM_ID"), schema.FromPID())),
		}, "terminal")),
		argsCommand("tricky", schema.Object([]schema.Property{
			schema.Prop("either", schema.Union(schema.String(), schema.Number())),
		})),
		command.Command{
			Name:    "fail",
			Args:    schema.Null(),
			Handler: func(context.Context, any, *command.Pipe) error { return errors.New("it broke") },
		},
	))
	return d
}

type result struct {
	stdout string
	stderr string
	state  State
	err    error
}

func runClient(t *testing.T, stdin string, env map[string]string, args ...string) result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := host.NewServer(testDispatcher(t), zerolog.Nop(), frame.DefaultLimits())
	serveCtx, stopServe := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(serveCtx, ln) }()
	defer func() {
		stopServe()
		<-served
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	d := &Driver{
		Conn:   conn,
		Args:   args,
		Stdin:  strings.NewReader(stdin),
		Stdout: &stdout,
		Stderr: &stderr,
		Env:    func(k string) string { return env[k] },
		PPID:   4242,
		Logger: zerolog.Nop(),
	}
	err = d.Run(ctx)
	return result{stdout: stdout.String(), stderr: stderr.String(), state: d.State(), err: err}
}

func TestStreamsStdinThroughCommand(t *testing.T) {
	testlog.Start(t)
	res := runClient(t, "hello donuts", nil, "upper")
	require.NoError(t, res.err)
	assert.Equal(t, "HELLO DONUTS", res.stdout)
	assert.Equal(t, Done, res.state)
}

func TestNullSchemaSendsNoArgs(t *testing.T) {
	testlog.Start(t)
	res := runClient(t, "", nil, "nothing")
	require.NoError(t, res.err)
	assert.Equal(t, "<nil>", res.stdout)
}

func TestObjectFlags(t *testing.T) {
	testlog.Start(t)
	res := runClient(t, "", nil, "greet", "--name", "ana", "--count", "2", "--tags", "a,b")
	require.NoError(t, res.err)
	assert.JSONEq(t, `{"name":"ana","count":2,"tags":["a","b"]}`, res.stdout)

	res = runClient(t, "", nil, "greet", "--count", "2")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "name")
}

func TestFreeFormArgs(t *testing.T) {
	testlog.Start(t)
	res := runClient(t, "", nil, "free", "--a", "1", "--b=two", "--flag")
	require.NoError(t, res.err)
	assert.JSONEq(t, `{"a":"1","b":"two","flag":true}`, res.stdout)

	res = runClient(t, "", nil, "free")
	require.NoError(t, res.err)
	assert.Equal(t, "{}", res.stdout)
}

func TestDefaultsFromEnvThenPID(t *testing.T) {
	testlog.Start(t)
	res := runClient(t, "", map[string]string{"DONUTS_TERM_ID": "t9"}, "whoami")
	require.NoError(t, res.err)
	assert.JSONEq(t, `{"terminal":"t9"}`, res.stdout)

	res = runClient(t, "", nil, "whoami")
	require.NoError(t, res.err)
	assert.JSONEq(t, `{"terminal":"4242"}`, res.stdout)

	res = runClient(t, "", nil, "whoami", "--terminal", "explicit")
	require.NoError(t, res.err)
	assert.JSONEq(t, `{"terminal":"explicit"}`, res.stdout)
}

func TestRemoteErrorsAreFatal(t *testing.T) {
	testlog.Start(t)
	res := runClient(t, "", nil, "does-not-exist")
	var remote *RemoteError
	require.ErrorAs(t, res.err, &remote)
	assert.Equal(t, "command not found.", remote.Message)
	require.NotNil(t, remote.Context)
	assert.Equal(t, uint64(1), *remote.Context)

	res = runClient(t, "", nil, "fail")
	require.ErrorAs(t, res.err, &remote)
	assert.Equal(t, "it broke", remote.Message)
	assert.Equal(t, Done, res.state)
}

func TestHelpSendsNothing(t *testing.T) {
	testlog.Start(t)
	res := runClient(t, "", nil, "--help")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "greet")
	assert.Equal(t, Done, res.state)

	res = runClient(t, "", nil)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Usage")

	res = runClient(t, "", nil, "greet", "--help")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "--tags")
}

func TestUnsupportedSchemaFailsOnlyWhenInvoked(t *testing.T) {
	testlog.Start(t)
	res := runClient(t, "", nil, "tricky")
	assert.ErrorIs(t, res.err, ErrUnsupportedSchema)
	assert.Equal(t, Discovering, res.state)

	res = runClient(t, "", nil, "nothing")
	require.NoError(t, res.err)
}

func TestValidPrefix(t *testing.T) {
	testlog.Start(t)
	euro := []byte("€")
	assert.Equal(t, 3, validPrefix([]byte("abc")))
	assert.Equal(t, 1, validPrefix(append([]byte("a"), euro[:2]...)))
	assert.Equal(t, 4, validPrefix(append([]byte("a"), euro...)))
	assert.Equal(t, 0, validPrefix(nil))
}
