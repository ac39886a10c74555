package catalog

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStdio(t *testing.T) {
	t.Parallel()

	def := ServerDefinition{Name: "fs", Transport: TransportStdio, Command: "npx"}
	assert.NoError(t, def.Validate())

	def.Command = ""
	assert.ErrorIs(t, def.Validate(), ErrStdioMissingCommand)

	def.Name = ""
	assert.ErrorIs(t, def.Validate(), ErrEmptyName)
}

func TestValidateHTTP(t *testing.T) {
	t.Parallel()

	def := ServerDefinition{Name: "remote", Transport: TransportHTTP, Command: "http"}
	assert.ErrorIs(t, def.Validate(), ErrHTTPMissingURL)

	def.Args = []string{"relative/path"}
	assert.ErrorIs(t, def.Validate(), ErrHTTPInvalidURL)

	def.Args = []string{"http://127.0.0.1:9999/mcp"}
	assert.NoError(t, def.Validate())
}

func TestValidateUnknownTransport(t *testing.T) {
	t.Parallel()

	def := ServerDefinition{Name: "x", Transport: "grpc", Command: "x"}
	assert.ErrorIs(t, def.Validate(), ErrUnknownTransport)
}

func TestParseCatalogWithComments(t *testing.T) {
	t.Parallel()

	raw := []byte(`[
		// bundled default entries
		{
			"name": "everything",
			"transport": "stdio",
			"command": "npx",
			"args": ["-y", "@modelcontextprotocol/server-everything"],
		},
	]`)

	entries, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "everything", entries[0].Name)
	assert.Equal(t, TransportStdio, entries[0].Transport)
}

func TestParseLegacyHTTPCommandSentinel(t *testing.T) {
	t.Parallel()

	raw := []byte(`[{"name": "remote", "command": "http", "args": ["http://127.0.0.1:9999/mcp"]}]`)

	entries, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, TransportHTTP, entries[0].Transport)
}

func TestParseRejectsInvalidEntry(t *testing.T) {
	t.Parallel()

	raw := []byte(`[{"name": "", "transport": "stdio", "command": "npx"}]`)
	_, err := Parse(raw)
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestMergeOverlaysNonZeroFields(t *testing.T) {
	t.Parallel()

	base := ServerDefinition{
		Name:      "github",
		Transport: TransportStdio,
		Command:   "npx",
		Args:      []string{"-y", "@modelcontextprotocol/server-github"},
		Env:       map[string]string{"GITHUB_TOKEN": "old", "KEEP": "yes"},
	}
	patch := ServerDefinition{
		Env: map[string]string{"GITHUB_TOKEN": "new"},
	}

	merged, err := base.Merge(context.Background(), patch)
	require.NoError(t, err)

	want := ServerDefinition{
		Name:      "github",
		Transport: TransportStdio,
		Command:   "npx",
		Args:      []string{"-y", "@modelcontextprotocol/server-github"},
		Env:       map[string]string{"GITHUB_TOKEN": "new", "KEEP": "yes"},
	}
	if diff := cmp.Diff(want, merged); diff != "" {
		t.Errorf("merged definition mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeNeverRenames(t *testing.T) {
	t.Parallel()

	base := ServerDefinition{Name: "github", Transport: TransportStdio, Command: "npx"}
	patch := ServerDefinition{Name: "renamed"}

	merged, err := base.Merge(context.Background(), patch)
	require.NoError(t, err)
	assert.Equal(t, "github", merged.Name)
}

func TestValidateSchemaCatchesShape(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateSchema(ServerDefinition{
		Name: "ok", Transport: TransportStdio, Command: "npx",
	}))

	err := ValidateSchema(ServerDefinition{Transport: "carrier-pigeon", Command: "x", Name: "bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation")
}
