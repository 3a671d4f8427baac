package integration

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildBinary(t *testing.T) string {
	t.Helper()
	goModPathBytes, err := exec.Command("go", "env", "GOMOD").Output()
	require.NoError(t, err, "go env GOMOD")
	goModPath := strings.TrimSpace(string(goModPathBytes))
	require.NotEmpty(t, goModPath, "go env GOMOD returned empty")
	repoRoot := filepath.Dir(goModPath)

	binaryPath := filepath.Join(t.TempDir(), "ratewatch")
	build := exec.Command("go", "build", "-o", binaryPath, "./cmd/ratewatch")
	build.Dir = repoRoot
	build.Env = os.Environ()
	out, err := build.CombinedOutput()
	require.NoError(t, err, "go build:\n%s", string(out))
	return binaryPath
}

func TestStandaloneBinaryWorksOutsideRepo(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("standalone binary copy/exec test is unix-focused")
	}
	binaryPath := buildBinary(t)

	outside := t.TempDir()
	copiedBinary := filepath.Join(outside, "ratewatch")
	data, err := os.ReadFile(binaryPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(copiedBinary, data, 0o755))

	env := append(os.Environ(), "HOME="+outside, "XDG_CONFIG_HOME="+filepath.Join(outside, ".config"))

	version := exec.Command(copiedBinary, "version")
	version.Dir = outside
	version.Env = env
	out, err := version.CombinedOutput()
	require.NoError(t, err, "version:\n%s", string(out))
	assert.Contains(t, string(out), "ratewatch")

	help := exec.Command(copiedBinary, "--help")
	help.Dir = outside
	help.Env = env
	out, err = help.CombinedOutput()
	require.NoError(t, err, "--help:\n%s", string(out))

	inspect := exec.Command(copiedBinary, "inspect",
		"--url", "https://claude.ai/api/organizations/org-1/chat_conversations/conv-1/completion",
		"--body", `{"error":{"resets_at":1700000000}}`)
	inspect.Dir = outside
	inspect.Env = env
	stdout, err := inspect.Output()
	require.NoError(t, err)

	var result struct {
		Event struct {
			Domain         string `json:"domain"`
			ResetAt        *int64 `json:"resetAt"`
			OrganizationID string `json:"organizationId"`
		} `json:"event"`
		Completion bool   `json:"isCompletionEndpoint"`
		Source     string `json:"resetSource"`
	}
	require.NoError(t, json.Unmarshal(stdout, &result), string(stdout))
	assert.Equal(t, "claude.ai", result.Event.Domain)
	require.NotNil(t, result.Event.ResetAt)
	assert.Equal(t, int64(1700000000), *result.Event.ResetAt)
	assert.Equal(t, "org-1", result.Event.OrganizationID)
	assert.True(t, result.Completion)
	assert.Equal(t, "body", result.Source)
}
