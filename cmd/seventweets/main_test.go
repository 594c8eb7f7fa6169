package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"seventweets/pkg/config"
	"seventweets/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLoadServeConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.json")
	data := `{"name": "alice", "address": "alice:8000", "storage": {"backend": "badger"}}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	configFile = path
	t.Cleanup(func() { configFile = "" })

	cmd := serveCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--name", "bob", "--peer-timeout", "2s", "--protect-registry"}))

	var f serveFlags
	f.name = "bob"
	f.peerTimeout = 2 * time.Second
	f.protectRegistry = true
	f.listen = "ignored:1"

	cfg, err := loadServeConfig(cmd, &f)
	require.NoError(t, err)

	assert.Equal(t, "bob", cfg.Name)
	assert.Equal(t, "alice:8000", cfg.Address)
	assert.Equal(t, 2*time.Second, cfg.PeerTimeout.Duration)
	assert.True(t, cfg.ProtectRegistry)
	assert.Equal(t, config.BackendBadger, cfg.Storage.Backend)
	// --listen was not passed
	assert.Equal(t, config.DefaultListenAddress, cfg.ListenAddress)
}

func TestLoadServeConfig_Env(t *testing.T) {
	t.Setenv("ST_NODE_NAME", "carol")
	t.Setenv("ST_NODE_ADDRESS", "carol:8000")

	cmd := serveCmd()
	require.NoError(t, cmd.ParseFlags(nil))

	cfg, err := loadServeConfig(cmd, &serveFlags{})
	require.NoError(t, err)
	assert.Equal(t, "carol", cfg.Name)
	assert.NoError(t, cfg.Validate())
}

func TestRenderPeersTable(t *testing.T) {
	self := types.PeerIdentity{Name: "A", Address: "a:8000"}
	out := renderPeersTable([]types.PeerIdentity{{Name: "B", Address: "b:8000"}, self}, self)

	assert.Contains(t, out, "b:8000")
	assert.Contains(t, out, "SELF")
	assert.Contains(t, out, "PEER")

	assert.Contains(t, renderPeersTable(nil, self), "No known nodes")
}

func TestRenderTweetsTable(t *testing.T) {
	out := renderTweetsTable([]types.Tweet{{ID: 42, Name: "A", Tweet: "hello network"}})
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "hello network")

	assert.Contains(t, renderTweetsTable(nil), "No tweets found")
}

func TestVersionAndAlertRules(t *testing.T) {
	var buf bytes.Buffer
	cmd := versionCmd()
	cmd.SetOut(&buf)
	cmd.Run(cmd, nil)
	assert.Contains(t, buf.String(), Version)

	buf.Reset()
	cmd = alertRulesCmd()
	cmd.SetOut(&buf)
	cmd.Run(cmd, nil)
	assert.Contains(t, buf.String(), "seventweets")
}

type fakeRunner struct {
	startErr error
	block    chan struct{}
	stopped  int
}

func (r *fakeRunner) Start() error {
	if r.startErr != nil {
		return r.startErr
	}
	<-r.block
	return nil
}

func (r *fakeRunner) Stop(ctx context.Context) error {
	r.stopped++
	if r.block != nil {
		close(r.block)
	}
	return errors.New("store close failed")
}

func TestRunUntilDone_StopsAfterServeFailure(t *testing.T) {
	r := &fakeRunner{startErr: errors.New("address in use")}

	err := runUntilDone(context.Background(), r, time.Second, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Equal(t, 1, r.stopped)
	assert.Contains(t, err.Error(), "address in use")
	assert.Contains(t, err.Error(), "store close failed")
}

func TestRunUntilDone_StopsOnCancel(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runUntilDone(ctx, r, time.Second, zaptest.NewLogger(t))
	assert.EqualError(t, err, "store close failed")
	assert.Equal(t, 1, r.stopped)
}
