package host

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danmuck/donuts/internal/commands"
	"github.com/danmuck/donuts/internal/protocol"
	"github.com/danmuck/donuts/internal/protocol/frame"
	"github.com/danmuck/donuts/internal/testutil/testlog"
	"github.com/danmuck/donuts/internal/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServiceConfig() ServiceConfig {
	cfg := DefaultServiceConfig()
	cfg.Address = "tcp:127.0.0.1:0"
	cfg.HeartbeatInterval = time.Hour
	cfg.CommandSets = []string{commands.SetCore, commands.SetWorkspace, commands.SetKV}
	return cfg
}

func TestBootstrapValidation(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()

	cfg := testServiceConfig()
	cfg.HeartbeatInterval = 0
	assert.ErrorIs(t, NewServiceWithConfig(cfg).RunContext(ctx), ErrInvalidHeartbeatInterval)

	cfg = testServiceConfig()
	cfg.Address = " "
	assert.ErrorIs(t, NewServiceWithConfig(cfg).RunContext(ctx), ErrAddressRequired)

	cfg = testServiceConfig()
	cfg.CommandSets = []string{"editor"}
	assert.ErrorIs(t, NewServiceWithConfig(cfg).RunContext(ctx), commands.ErrUnknownCommandSet)
}

func TestServiceServesCommandsUntilCancelled(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	svc := NewServiceWithConfig(testServiceConfig()).WithLogger(zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- svc.RunContext(ctx) }()

	var addr string
	select {
	case a := <-svc.Listening():
		addr = a.String()
	case <-time.After(3 * time.Second):
		t.Fatal("service did not start listening")
	}
	assert.ErrorIs(t, svc.RunContext(ctx), ErrAlreadyStarted)

	conn, err := transport.Dial(ctx, "tcp:"+addr, transport.DefaultDialConfig())
	require.NoError(t, err)
	defer conn.Close()
	ch := frame.NewChannel(conn, frame.DefaultLimits())

	read := func(n int) []protocol.Envelope {
		var got []protocol.Envelope
		for len(got) < n {
			v, err := ch.ReadObject()
			require.NoError(t, err)
			env, err := protocol.DecodeValue(v)
			require.NoError(t, err)
			got = append(got, env)
		}
		return got
	}

	require.NoError(t, ch.WriteObject(protocol.NewCommand("kv-put", map[string]any{"key": "k", "value": "v"})))
	assert.Equal(t, []protocol.Envelope{protocol.NewCommandResponse(0), protocol.NewCommandComplete(0)}, read(2))

	require.NoError(t, ch.WriteObject(protocol.NewCommand("kv-get", map[string]any{"key": "k"})))
	assert.Equal(t, []protocol.Envelope{
		protocol.NewCommandResponse(1),
		protocol.NewChunk(1, "v"),
		protocol.NewCommandComplete(1),
	}, read(3))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestAdminRoutes(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := NewServiceWithConfig(testServiceConfig()).WithLogger(zerolog.Nop())
	require.NoError(t, svc.bootstrap(ctx))
	defer svc.shutdown()
	router := svc.HTTPRouter()
	assert.Same(t, router, svc.HTTPRouter())
	assert.Equal(t, "donuts.local", svc.NodeID())
	assert.Equal(t, "host", svc.Kind())

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusOK, get("/health").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get("/ready").Code)
	assert.Equal(t, http.StatusOK, get("/metrics").Code)

	rr := get("/commands")
	require.Equal(t, http.StatusOK, rr.Code)
	var catalogue struct {
		Commands []struct {
			Name string `json:"name"`
		} `json:"commands"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &catalogue))
	require.NotEmpty(t, catalogue.Commands)
	assert.Equal(t, "get-help", catalogue.Commands[0].Name)

	rr = get("/commands/show-message/schema")
	require.Equal(t, http.StatusOK, rr.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	assert.Equal(t, "object", doc["type"])
	assert.Equal(t, []any{"message"}, doc["required"])

	assert.Equal(t, http.StatusNotFound, get("/commands/nope/schema").Code)

	svc.workspace.RegisterTerminal("3", "shell")
	rr = get("/terminals")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"shell"`)

	rr = get("/connections")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"active_contexts":0`)
}
