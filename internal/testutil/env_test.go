package testutil_test

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZebulonRouseFrantzich/usedotnet/internal/testutil"
)

func TestSetupAgentEnv(t *testing.T) {
	env := testutil.SetupAgentEnv(t)

	assert.Equal(t, env.ToolsDir, os.Getenv("AGENT_TOOLSDIRECTORY"))
	assert.Equal(t, env.TempDir, os.Getenv("AGENT_TEMPDIRECTORY"))
	assert.Empty(t, os.Getenv("GITHUB_PATH"))
	assert.Empty(t, os.Getenv("INPUT_VERSION"))

	for _, dir := range []string{env.ToolsDir, env.TempDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		assert.True(t, strings.HasPrefix(dir, env.Root), "%s should be under %s", dir, env.Root)
	}

	assert.True(t, strings.HasPrefix(os.Getenv("PATH"), env.Root))
}

func TestFiles(t *testing.T) {
	entries := testutil.Files(map[string]string{"b": "2", "a": "1"})
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Name)
	assert.Equal(t, "2", entries[1].Content)
}

func TestWriteZip(t *testing.T) {
	path := testutil.WriteZip(t, t.TempDir(), "a.zip", []testutil.Entry{
		{Name: "dir/", Dir: true},
		{Name: "dir/dotnet.exe", Content: "exe"},
		{Name: "link", Link: "dir/dotnet.exe"},
	})

	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	require.Len(t, r.File, 3)
	assert.True(t, r.File[0].Mode().IsDir())
	assert.NotZero(t, r.File[2].Mode()&os.ModeSymlink)
}

func TestWriteTarGz(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteTarGz(t, dir, "a.tar.gz", testutil.Files(map[string]string{"dotnet": "bin"}))

	assert.Equal(t, filepath.Join(dir, "a.tar.gz"), path)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}
