package blueprint_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/botflow/pkg/blueprint"
	"github.com/aretw0/botflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const welcomeYAML = `
id: welcome
name: Welcome
trigger: /start
entry_step: hello
steps:
  hello:
    action: send_buttons
    params:
      text: "hi {{user_name}}"
      buttons:
        - label: "Yes"
          value: "yes"
    next_step: ask
  ask:
    action: collect_input
    params:
      variable: email
      validator: email
`

const bundleJSON = `{
  "blueprints": [
    {"id": "promo", "tenant_id": "globex", "trigger": "/promo", "version": 3, "entry_step": "a",
     "steps": {"a": {"action": "send_message", "params": {"text": "sale"}}}},
    {"id": "bye", "trigger": "/bye", "entry_step": "a",
     "steps": {"a": {"action": "send_message"}}}
  ]
}`

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile_YAML(t *testing.T) {
	path := write(t, t.TempDir(), "welcome.yaml", welcomeYAML)

	bps, err := blueprint.LoadFile(path, "acme")
	require.NoError(t, err)
	require.Len(t, bps, 1)

	bp := bps[0]
	assert.Equal(t, "acme", bp.TenantID)
	assert.Equal(t, 1, bp.Version)
	assert.Equal(t, "hello", bp.Steps["hello"].ID)
	assert.Equal(t, "hi {{user_name}}", bp.Steps["hello"].Params["text"])

	buttons, ok := bp.Steps["hello"].Params["buttons"].([]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"label": "Yes", "value": "yes"}, buttons[0])
}

func TestLoadFile_JSONBundle(t *testing.T) {
	path := write(t, t.TempDir(), "bundle.json", bundleJSON)

	bps, err := blueprint.LoadFile(path, "acme")
	require.NoError(t, err)
	require.Len(t, bps, 2)
	assert.Equal(t, "globex", bps[0].TenantID, "declared tenant wins")
	assert.Equal(t, 3, bps[0].Version)
	assert.Equal(t, "acme", bps[1].TenantID)
}

func TestLoadFile_Invalid(t *testing.T) {
	dir := t.TempDir()

	path := write(t, dir, "broken.yaml", `
id: broken
trigger: /x
entry_step: a
steps:
  a: {action: send_message, next_step: ghost}
`)
	_, err := blueprint.LoadFile(path, "acme")
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.CodeInvalidBlueprint))

	empty := write(t, dir, "empty.yaml", "# nothing\n")
	_, err = blueprint.LoadFile(empty, "acme")
	assert.ErrorContains(t, err, "no blueprint found")

	_, err = blueprint.LoadFile(filepath.Join(dir, "missing.yaml"), "acme")
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "b-welcome.yml", welcomeYAML)
	write(t, dir, "a-bundle.json", bundleJSON)
	write(t, dir, "README.md", "not a blueprint")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	bps, err := blueprint.LoadDir(dir, "acme")
	require.NoError(t, err)
	ids := make([]string, 0, len(bps))
	for _, bp := range bps {
		ids = append(ids, bp.ID)
	}
	assert.Equal(t, []string{"promo", "bye", "welcome"}, ids)
}

func TestLoadDir_DuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "one.yaml", welcomeYAML)
	write(t, dir, "two.yaml", welcomeYAML)

	bps, err := blueprint.LoadDir(dir, "acme")
	assert.ErrorContains(t, err, "already defined")
	assert.Len(t, bps, 1)
}
