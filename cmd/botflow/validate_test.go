package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunValidate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.yaml"), []byte(`
id: ok
trigger: /start
entry_step: hello
steps:
  hello:
    action: send_message
    params: {text: hi}
`), 0o644))

	require.NoError(t, runValidate(dir, "acme"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(`
id: bad
trigger: /bad
entry_step: a
steps:
  a: {action: launch_rocket}
`), 0o644))
	assert.ErrorContains(t, runValidate(dir, "acme"), "1 of 2")

	assert.Error(t, runValidate(t.TempDir(), "acme"), "empty directory")
}

func TestRunValidate_ShippedExamples(t *testing.T) {
	require.NoError(t, runValidate(filepath.Join("..", "..", "examples", "blueprints"), "demo"))
}
