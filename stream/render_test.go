package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReplaceRange(t *testing.T) {
	assert.Equal(t, "see ([a](b)) now", ReplaceRange("see 【1】 now", 4, 7, "([a](b))"))
	assert.Equal(t, "abcX", ReplaceRange("abc", 10, 20, "X"))
	assert.Equal(t, "Xabc", ReplaceRange("abc", -1, 0, "X"))
	assert.Equal(t, "aXbc", ReplaceRange("abc", 1, 0, "X"))
}

func TestRenderer_SentinelFlushesSegment(t *testing.T) {
	r := NewRenderer()

	assert.Equal(t, "Use TLS ", r.Handle(Markdown("t", "Use TLS ")))
	assert.Equal(t, "[1]", r.Handle(Markdown("t", "[1]")))
	assert.Empty(t, r.Handle(URLAnnotation("t", 8, 11, "https://example.com/tls", "TLS")))

	footer := r.Handle(Sentinel("t"))
	assert.Contains(t, footer, "Sources:")
	assert.Contains(t, footer, "[TLS](https://example.com/tls)")

	assert.Equal(t, []string{"Use TLS ([TLS](https://example.com/tls))"}, r.Segments())

	r.Handle(Markdown("t", "second"))
	r.Handle(Sentinel("t"))
	assert.Equal(t, "second", r.Segments()[1])
}

func TestRenderer_FilesAndTrailingFlush(t *testing.T) {
	r := NewRenderer()

	assert.Contains(t, r.Handle(FileReference("t", "file-1")), "file-1")
	r.Handle(Markdown("t", "\n***\n**Error**\nboom\n"))

	assert.Equal(t, "\n", r.Flush())
	assert.Empty(t, r.Flush())
	assert.Equal(t, []string{"file-1"}, r.Files())
	assert.Len(t, r.Segments(), 1)
}

func TestRenderer_HeaderExcludedFromCitationRanges(t *testing.T) {
	r := NewRenderer()

	header := HeaderPrefix + "Internal security recommendations\n\n"
	assert.Equal(t, header, r.Handle(Markdown("t", header)))
	r.Handle(Markdown("t", "Use TLS [1]"))
	r.Handle(URLAnnotation("t", 8, 11, "https://x/tls", "TLS"))
	r.Handle(Sentinel("t"))

	assert.Equal(t, []string{header + "Use TLS ([TLS](https://x/tls))"}, r.Segments())

	r.Handle(Markdown("t", HeaderPrefix+"Only header\n\n"))
	r.Flush()
	assert.Equal(t, HeaderPrefix+"Only header\n\n", r.Segments()[1])
}
