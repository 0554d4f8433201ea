package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const upperYAML = `id: upper
name: Upper
widgets:
  - id: a
    role: input
    kind: text
  - id: b
    role: output
    kind: text
handler: |
  function handler(input) {
    return { b: (input.a || "").toUpperCase() };
  }
`

const brokenYAML = `id: broken
widgets:
  - id: a
    role: input
    kind: hologram
handler: "function handler( {"
`

func execute(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(input))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func toolsDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "toolbake version "))
}

func TestToolsCommand(t *testing.T) {
	dir := toolsDir(t, map[string]string{"upper.yaml": upperYAML})

	out, err := execute(t, "", "tools", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "upper")
	assert.Contains(t, out, "Upper")

	out, err = execute(t, "", "tools", "show", "upper", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "id: upper")
	assert.Contains(t, out, "toUpperCase")

	_, err = execute(t, "", "tools", "show", "nope", "--dir", dir)
	assert.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	dir := toolsDir(t, map[string]string{"upper.yaml": upperYAML})
	out, err := execute(t, "", "validate", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ upper")

	dir = toolsDir(t, map[string]string{"upper.yaml": upperYAML, "broken.yaml": brokenYAML})
	out, err = execute(t, "", "validate", "--dir", dir)
	assert.ErrorIs(t, err, errInvalidTools)
	assert.Contains(t, out, "✗ broken")
	assert.Contains(t, out, "✓ upper")
}

func TestRunAndSessionCommands(t *testing.T) {
	dir := toolsDir(t, map[string]string{"upper.yaml": upperYAML})

	out, err := execute(t, "a=hello\n", "run", "upper", "--dir", dir, "--headless", "--session", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "b: HELLO")

	out, err = execute(t, "", "session", "ls", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "- s1")

	out, err = execute(t, "", "session", "inspect", "s1", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, `"tool_id": "upper"`)
	assert.Contains(t, out, `"HELLO"`)

	out, err = execute(t, "", "session", "rm", "s1", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Session 's1' removed.")

	out, err = execute(t, "", "session", "ls", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions found.")
}

func TestConfigFile(t *testing.T) {
	dir := toolsDir(t, map[string]string{
		"upper.yaml":    upperYAML,
		"toolbake.yaml": "sessions:\n  store: memory\n",
	})
	out, err := execute(t, "a=x\n", "run", "upper", "--dir", dir, "--headless", "--session", "")
	require.NoError(t, err)
	assert.Contains(t, out, "b: X")
}

func TestGraphCommand(t *testing.T) {
	dir := toolsDir(t, map[string]string{"upper.yaml": upperYAML})

	out, err := execute(t, "", "graph", "upper", "--dir", dir, "--session", "")
	require.NoError(t, err)
	assert.Contains(t, out, "graph LR")
	assert.Contains(t, out, "w_a --> handler")
	assert.NotContains(t, out, "classDef")

	_, err = execute(t, "a=q\n", "run", "upper", "--dir", dir, "--headless", "--session", "g1")
	require.NoError(t, err)
	out, err = execute(t, "", "graph", "upper", "--dir", dir, "--session", "g1")
	require.NoError(t, err)
	assert.Contains(t, out, "class w_a filled;")
	assert.Contains(t, out, "class w_b filled;")
}
