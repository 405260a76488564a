package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownContentType is returned when encoding or decoding an event
	// whose content type is not one of the known tags.
	ErrUnknownContentType = errors.New("unknown content type")

	// ErrSinkClosed is returned when sending to (or closing) a closed sink.
	ErrSinkClosed = errors.New("sink closed")
)

// ContentType discriminates the payload of an Event.
type ContentType string

const (
	ContentTypeMarkdown       ContentType = "markdown"
	ContentTypeAnnotationURL  ContentType = "annotation_url"
	ContentTypeAnnotationFile ContentType = "annotation_file"
	ContentTypeFile           ContentType = "file"
	ContentTypeSentinel       ContentType = "sentinel"
)

// Valid reports whether c is a known content type.
func (c ContentType) Valid() bool {
	switch c {
	case ContentTypeMarkdown, ContentTypeAnnotationURL, ContentTypeAnnotationFile, ContentTypeFile, ContentTypeSentinel:
		return true
	}
	return false
}

// Event is one progress event. Only the fields belonging to ContentType are
// serialized.
type Event struct {
	ContentType ContentType
	ThreadID    string

	// markdown
	Text string

	// annotation_url, annotation_file
	StartIndex int
	EndIndex   int

	// annotation_url
	URL   string
	Title string

	// annotation_file, file
	FileID string
	Quote  string
}

// Markdown creates a markdown text event.
func Markdown(threadID, text string) Event {
	return Event{ContentType: ContentTypeMarkdown, ThreadID: threadID, Text: text}
}

// URLAnnotation creates a web citation event for [start, end) of the current segment.
func URLAnnotation(threadID string, start, end int, url, title string) Event {
	return Event{ContentType: ContentTypeAnnotationURL, ThreadID: threadID, StartIndex: start, EndIndex: end, URL: url, Title: title}
}

// FileAnnotation creates a file citation event for [start, end) of the current segment.
func FileAnnotation(threadID string, start, end int, fileID, quote string) Event {
	return Event{ContentType: ContentTypeAnnotationFile, ThreadID: threadID, StartIndex: start, EndIndex: end, FileID: fileID, Quote: quote}
}

// FileReference creates an event pointing at a produced file.
func FileReference(threadID, fileID string) Event {
	return Event{ContentType: ContentTypeFile, ThreadID: threadID, FileID: fileID}
}

// Sentinel creates an end-of-segment marker.
func Sentinel(threadID string) Event {
	return Event{ContentType: ContentTypeSentinel, ThreadID: threadID}
}

type markdownWire struct {
	ContentType ContentType `json:"content_type"`
	ThreadID    string      `json:"thread_id"`
	Text        string      `json:"text"`
}

type annotationURLWire struct {
	ContentType ContentType `json:"content_type"`
	ThreadID    string      `json:"thread_id"`
	StartIndex  int         `json:"start_index"`
	EndIndex    int         `json:"end_index"`
	URL         string      `json:"url"`
	Title       string      `json:"title"`
}

type annotationFileWire struct {
	ContentType ContentType `json:"content_type"`
	ThreadID    string      `json:"thread_id"`
	StartIndex  int         `json:"start_index"`
	EndIndex    int         `json:"end_index"`
	FileID      string      `json:"file_id"`
	Quote       string      `json:"quote"`
}

type fileWire struct {
	ContentType ContentType `json:"content_type"`
	ThreadID    string      `json:"thread_id"`
	FileID      string      `json:"file_id"`
}

type sentinelWire struct {
	ContentType ContentType `json:"content_type"`
	ThreadID    string      `json:"thread_id"`
}

// anyWire accepts every field of every content type on decode.
type anyWire struct {
	ContentType ContentType `json:"content_type"`
	ThreadID    string      `json:"thread_id"`
	Text        string      `json:"text"`
	StartIndex  int         `json:"start_index"`
	EndIndex    int         `json:"end_index"`
	URL         string      `json:"url"`
	Title       string      `json:"title"`
	FileID      string      `json:"file_id"`
	Quote       string      `json:"quote"`
}

// MarshalJSON implements json.Marshaler. Unknown content types fail with
// ErrUnknownContentType.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.ContentType {
	case ContentTypeMarkdown:
		return json.Marshal(markdownWire{e.ContentType, e.ThreadID, e.Text})
	case ContentTypeAnnotationURL:
		return json.Marshal(annotationURLWire{e.ContentType, e.ThreadID, e.StartIndex, e.EndIndex, e.URL, e.Title})
	case ContentTypeAnnotationFile:
		return json.Marshal(annotationFileWire{e.ContentType, e.ThreadID, e.StartIndex, e.EndIndex, e.FileID, e.Quote})
	case ContentTypeFile:
		return json.Marshal(fileWire{e.ContentType, e.ThreadID, e.FileID})
	case ContentTypeSentinel:
		return json.Marshal(sentinelWire{e.ContentType, e.ThreadID})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownContentType, e.ContentType)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w anyWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	if !w.ContentType.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownContentType, w.ContentType)
	}

	*e = Event{
		ContentType: w.ContentType,
		ThreadID:    w.ThreadID,
		Text:        w.Text,
		StartIndex:  w.StartIndex,
		EndIndex:    w.EndIndex,
		URL:         w.URL,
		Title:       w.Title,
		FileID:      w.FileID,
		Quote:       w.Quote,
	}

	return nil
}

// Encode serializes the event as one NDJSON line (terminated by "\n").
func (e Event) Encode() ([]byte, error) {
	b, err := e.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Decode parses one NDJSON line (with or without the trailing newline).
func Decode(line []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(bytes.TrimSpace(line), &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}
