package pipeline

import "github.com/hupe1980/secboard/stream"

// BeginBlock is the markdown header posted before a step's first output.
func BeginBlock(title string) string {
	return stream.HeaderPrefix + title + "\n\n"
}

// ErrorBlock is the markdown block posted when a step or run fails.
func ErrorBlock(title, msg string) string {
	return "\n***\n**" + title + "**\n" + msg + "\n"
}
