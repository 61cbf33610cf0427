package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portmap-ai/pkg/api"
	"portmap-ai/pkg/logging"
	"portmap-ai/pkg/model"
	"portmap-ai/pkg/store"
)

func TestParseValue(t *testing.T) {
	assert.Equal(t, 30, parseValue("30"))
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, "fast", parseValue("fast"))
}

func TestPrintNodes(t *testing.T) {
	var buf bytes.Buffer
	now := time.Unix(1000, 0)
	printNodes(&buf, []model.Node{
		{NodeID: "w2", Role: "worker", Status: "online", LastSeen: 990},
		{NodeID: "m1", Role: "master", Address: "10.0.0.1", Status: "registered", LastSeen: 1000},
	}, now)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "m1"))
	assert.Contains(t, lines[2], "10s ago")
	assert.Contains(t, lines[2], "-")
}

func TestEnqueueAgainstOrchestrator(t *testing.T) {
	st := store.NewMemoryStore(store.WithLogger(logging.Discard()))
	_, _ = st.Register("w1", model.RoleWorker, "", nil)
	mux := http.NewServeMux()
	api.RegisterRoutes(mux, st, api.Options{Auth: api.NewAuthenticator("tok", "", ""), Logger: logging.Discard()})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--url", srv.URL, "--token", "tok", "enqueue", "w1", "set_interval", "30"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Queued set_interval for w1")

	_, cmds, err := st.Heartbeat("w1", "online", nil)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, float64(30), cmds[0]["value"])
}
