package stream

import (
	"fmt"
	"sort"
	"strings"
)

// HeaderPrefix starts the markdown block that opens a step's segment.
// Citation ranges never count it.
const HeaderPrefix = "\n***\n## "

type citation struct {
	start, end  int
	replacement string
	source      string
}

// Renderer turns a decoded event stream back into markdown. Markdown deltas
// accumulate into the current segment; a sentinel finalizes the segment by
// substituting citation ranges with inline links. Ranges are relative to the
// agent's answer, so a leading header block is kept apart from it.
type Renderer struct {
	header    string
	current   strings.Builder
	citations []citation
	segments  []string
	files     []string
}

// NewRenderer creates an empty renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Handle consumes one event and returns the text to display immediately.
func (r *Renderer) Handle(ev Event) string {
	switch ev.ContentType {
	case ContentTypeMarkdown:
		if r.header == "" && r.current.Len() == 0 && strings.HasPrefix(ev.Text, HeaderPrefix) {
			r.header = ev.Text
			return ev.Text
		}
		r.current.WriteString(ev.Text)
		return ev.Text
	case ContentTypeAnnotationURL:
		r.citations = append(r.citations, citation{
			start:       ev.StartIndex,
			end:         ev.EndIndex,
			replacement: fmt.Sprintf("([%s](%s))", ev.Title, ev.URL),
			source:      fmt.Sprintf("[%s](%s)", ev.Title, ev.URL),
		})
		return ""
	case ContentTypeAnnotationFile:
		r.citations = append(r.citations, citation{
			start:       ev.StartIndex,
			end:         ev.EndIndex,
			replacement: fmt.Sprintf("([%s](%s))", ev.FileID, ev.FileID),
			source:      fmt.Sprintf("%s: %q", ev.FileID, ev.Quote),
		})
		return ""
	case ContentTypeFile:
		r.files = append(r.files, ev.FileID)
		return fmt.Sprintf("\n[file: %s]\n", ev.FileID)
	case ContentTypeSentinel:
		return r.flush()
	}
	return ""
}

// Flush finalizes a trailing segment that was not terminated by a sentinel
// (e.g. after an error block) and returns its footer.
func (r *Renderer) Flush() string {
	if r.header == "" && r.current.Len() == 0 && len(r.citations) == 0 {
		return ""
	}
	return r.flush()
}

// Segments returns the finalized segments with citations substituted.
func (r *Renderer) Segments() []string {
	out := make([]string, len(r.segments))
	copy(out, r.segments)
	return out
}

// Files returns the ids of all file events seen so far.
func (r *Renderer) Files() []string {
	out := make([]string, len(r.files))
	copy(out, r.files)
	return out
}

func (r *Renderer) flush() string {
	text := r.current.String()

	cites := append([]citation(nil), r.citations...)
	sort.SliceStable(cites, func(i, j int) bool { return cites[i].start > cites[j].start })
	for _, c := range cites {
		text = ReplaceRange(text, c.start, c.end, c.replacement)
	}
	r.segments = append(r.segments, r.header+text)

	var footer strings.Builder
	footer.WriteString("\n")
	if len(r.citations) > 0 {
		footer.WriteString("\nSources:\n")
		for _, c := range r.citations {
			footer.WriteString("- " + c.source + "\n")
		}
	}

	r.header = ""
	r.current.Reset()
	r.citations = nil

	return footer.String()
}

// ReplaceRange replaces the runes [start, end) of s with repl. Out of range
// indices are clamped; an inverted range inserts repl at start.
func ReplaceRange(s string, start, end int, repl string) string {
	runes := []rune(s)
	if start < 0 {
		start = 0
	}
	if start > len(runes) {
		start = len(runes)
	}
	if end < start {
		end = start
	}
	if end > len(runes) {
		end = len(runes)
	}
	return string(runes[:start]) + repl + string(runes[end:])
}
