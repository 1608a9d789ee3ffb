package jobs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgconley/memento/internal/store"
)

func TestNormalizeToMarkdown_MarkdownPassesThrough(t *testing.T) {
	v := &store.MemoryVersion{ContentFormat: store.ContentFormatMarkdown, ContentText: "# Title\n\nbody"}
	out, err := normalizeToMarkdown(v)
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nbody", out)
}

func TestNormalizeToMarkdown_PlainPassesThrough(t *testing.T) {
	v := &store.MemoryVersion{ContentFormat: store.ContentFormatPlain, ContentText: "just text"}
	out, err := normalizeToMarkdown(v)
	require.NoError(t, err)
	assert.Equal(t, "just text", out)
}

func TestNormalizeToMarkdown_JSONWithTextPassesThrough(t *testing.T) {
	v := &store.MemoryVersion{
		ContentFormat: store.ContentFormatJSON,
		ContentText:   "already rendered",
		ContentJSON:   json.RawMessage(`{"a":1}`),
	}
	out, err := normalizeToMarkdown(v)
	require.NoError(t, err)
	assert.Equal(t, "already rendered", out)
}

func TestNormalizeToMarkdown_JSONWithEmptyTextIsPrettyPrinted(t *testing.T) {
	v := &store.MemoryVersion{
		ContentFormat: store.ContentFormatJSON,
		ContentText:   "",
		ContentJSON:   json.RawMessage(`{"a":1,"b":[2,3]}`),
	}
	out, err := normalizeToMarkdown(v)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1,\n  \"b\": [\n    2,\n    3\n  ]\n}", out)
}

func TestNormalizeToMarkdown_JSONWithEmptyTextAndEmptyJSONYieldsEmptyString(t *testing.T) {
	v := &store.MemoryVersion{ContentFormat: store.ContentFormatJSON, ContentText: ""}
	out, err := normalizeToMarkdown(v)
	require.NoError(t, err)
	assert.Equal(t, "", out)
}
