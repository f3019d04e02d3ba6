// Package testutil provides utilities for testing usedotnet in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// AgentEnv describes an isolated build-agent environment.
type AgentEnv struct {
	Root     string
	ToolsDir string
	TempDir  string
	PathFile string
}

// SetupAgentEnv creates isolated agent directories for each test and points
// the agent variables at them. The process PATH is reset to a single
// placeholder entry and any GitHub/agent task inputs are cleared, so tests
// never touch real installations or inherit settings from the CI runner.
//
// Cleanup is handled by t.TempDir and t.Setenv.
func SetupAgentEnv(t *testing.T) *AgentEnv {
	t.Helper()

	tmpDir := t.TempDir()
	env := &AgentEnv{
		Root:     tmpDir,
		ToolsDir: filepath.Join(tmpDir, "_tools"),
		TempDir:  filepath.Join(tmpDir, "_temp"),
		PathFile: filepath.Join(tmpDir, "github_path"),
	}

	for _, dir := range []string{env.ToolsDir, env.TempDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}

	t.Setenv("AGENT_TOOLSDIRECTORY", env.ToolsDir)
	t.Setenv("AGENT_TEMPDIRECTORY", env.TempDir)
	t.Setenv("PATH", filepath.Join(tmpDir, "bin"))
	t.Setenv("GITHUB_PATH", "")
	t.Setenv("TF_BUILD", "")

	for _, name := range []string{
		"INPUT_PACKAGETYPE", "INPUT_VERSION", "INPUT_ARCHITECTURE",
		"INPUT_PROXY", "INPUT_PROXYURL", "INPUT_PROXYUSERNAME", "INPUT_PROXYPASSWORD",
		"INPUT_AUTHTOKEN", "INPUT_FEEDTYPE", "INPUT_RESOLVERSCRIPT",
	} {
		t.Setenv(name, "")
	}

	return env
}
