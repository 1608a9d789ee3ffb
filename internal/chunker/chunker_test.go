package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnchor_StabilityExample(t *testing.T) {
	assert.Equal(t, "h2:myapp.auth", Anchor([]string{"MyApp", "Auth"}))
}

func TestAnchor_EmptyPathIsRoot(t *testing.T) {
	assert.Equal(t, "root", Anchor(nil))
}

func TestAnchor_TruncatesLongSlugs(t *testing.T) {
	long := strings.Repeat("a", 60)
	anchor := Anchor([]string{long})
	assert.Equal(t, "h1:"+strings.Repeat("a", 40), anchor)
}

func TestChunk_ByteExactOffsetsAndIndex(t *testing.T) {
	src := "# MyApp\n\n## Auth\nToken refresh uses rotating refresh tokens.\n\n## Troubleshooting\nIf ECONNRESET_42 occurs, retry the request.\n"
	chunks := Chunk(src, Defaults())
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, src[c.Start:c.End], c.Text)
	}
}

func TestChunk_SectionFetchFindsAnchor(t *testing.T) {
	src := "# MyApp\n\n## Auth\nToken refresh uses rotating refresh tokens.\n\n## Troubleshooting\nIf ECONNRESET_42 occurs, retry the request.\n"
	chunks := Chunk(src, Defaults())
	var found bool
	for _, c := range chunks {
		if c.SectionAnchor == "h2:myapp.auth" {
			found = true
			assert.Contains(t, c.Text, "Token refresh uses")
		}
	}
	assert.True(t, found, "expected a chunk anchored at h2:myapp.auth")
}

func TestChunk_HeadingArrivalFlushesPriorContent(t *testing.T) {
	src := "# One\npara one\n\n# Two\npara two\n"
	chunks := Chunk(src, Defaults())
	require.Len(t, chunks, 2)
	assert.Equal(t, []string{"One"}, chunks[0].HeadingPath)
	assert.Equal(t, []string{"Two"}, chunks[1].HeadingPath)
}

func TestChunk_OversizeBlockSplitIntoEqualSpans(t *testing.T) {
	opts := Options{TargetTokens: 50, MaxTokens: 10, OverlapTokens: 0}
	body := strings.Repeat("x", 200)
	chunks := Chunk(body, opts)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, c.End-c.Start, 4*opts.MaxTokens)
	}
}

func TestChunk_OverlapStartsNextChunkBeforePriorEnd(t *testing.T) {
	opts := Options{TargetTokens: 8, MaxTokens: 40, OverlapTokens: 4}
	src := "## Section\npara-one-here\n\npara-two-here\n\npara-three-here\n\npara-four-here\n"
	chunks := Chunk(src, opts)
	require.GreaterOrEqual(t, len(chunks), 2)
	// With overlap enabled, the next chunk's span starts at or before the
	// prior chunk's end (trailing blocks are duplicated across the boundary).
	assert.Less(t, chunks[1].Start, chunks[0].End)
}

func TestChunk_DisableOverlapForCanonicalDocClasses(t *testing.T) {
	opts := Options{TargetTokens: 8, MaxTokens: 40, OverlapTokens: 4, DisableOverlap: true}
	src := "## Section\npara-one-here\n\npara-two-here\n\npara-three-here\n"
	chunks := Chunk(src, opts)
	require.GreaterOrEqual(t, len(chunks), 1)
	// With overlap disabled, no chunk after the first starts with carried-over
	// content predating its own Start offset.
	for i := 1; i < len(chunks); i++ {
		assert.GreaterOrEqual(t, chunks[i].Start, chunks[i-1].End)
	}
}

func TestChunk_EmptyInputProducesNoChunks(t *testing.T) {
	assert.Empty(t, Chunk("   \n\n  ", Defaults()))
}

func TestChunk_CodeFenceNeverSplitByOtherRules(t *testing.T) {
	src := "# Title\n\n```go\nfunc main() {\n\tprintln(\"hi\")\n}\n```\n\nafter\n"
	chunks := Chunk(src, Defaults())
	joined := ""
	for _, c := range chunks {
		joined += c.Text + "\n"
	}
	assert.Contains(t, joined, "```go\nfunc main() {\n\tprintln(\"hi\")\n}\n```")
}
