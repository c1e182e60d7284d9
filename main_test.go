package main

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runSession(t *testing.T, args ...string) error {
	t.Helper()
	cmd := sessionCmd()
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.Execute()
}

func TestSessionRevokeRejectsBadDuration(t *testing.T) {
	err := runSession(t, "revoke", "sess-1", "--for", "0s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--for")
}

func TestSessionRevokeRequiresSharedRedis(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-test-secret")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.toml"))

	err := runSession(t, "revoke", "sess-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestSessionRevokeNeedsID(t *testing.T) {
	assert.Error(t, runSession(t, "revoke"))
}
