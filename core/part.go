package core

import "strings"

// Part is one typed chunk of agent output. Concrete part types implement the
// unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text delta.
type TextPart struct {
	Text string
}

func (TextPart) isPart() {}

// URLCitationPart cites a web source for the text range [StartIndex, EndIndex)
// of the answer produced so far.
type URLCitationPart struct {
	StartIndex int
	EndIndex   int
	URL        string
	Title      string
}

func (URLCitationPart) isPart() {}

// FileCitationPart cites a quote from an uploaded or generated file.
type FileCitationPart struct {
	StartIndex int
	EndIndex   int
	FileID     string
	Quote      string
}

func (FileCitationPart) isPart() {}

// FileReferencePart points at a file produced during the run (e.g. an image
// or a generated policy document).
type FileReferencePart struct {
	FileID string
}

func (FileReferencePart) isPart() {}

// Content holds role + ordered parts. It is the normalized unit exchanged with
// model adapters.
type Content struct {
	Role  string `json:"role,omitempty"` // user, assistant or system
	Parts []Part `json:"parts"`
}

// NewTextContent builds a single text part Content for role.
func NewTextContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{TextPart{Text: text}}}
}

// Text concatenates all text parts of the content.
func (c Content) Text() string {
	return TextOf(c.Parts)
}

// TextOf concatenates the text of every TextPart in parts.
func TextOf(parts []Part) string {
	var sb strings.Builder
	for _, p := range parts {
		if tp, ok := p.(TextPart); ok {
			sb.WriteString(tp.Text)
		}
	}
	return sb.String()
}
