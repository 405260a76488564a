package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/secboard/client"
	"github.com/hupe1980/secboard/stream"
)

type chatOptions struct {
	ServerURL string
	ThreadID  string
	Content   string
	OutDir    string
}

// runChat streams a pipeline run to out and optionally downloads the
// generated files.
func runChat(ctx context.Context, out io.Writer, opts chatOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c := client.New(opts.ServerURL)
	r := stream.NewRenderer()

	threadID := opts.ThreadID
	res, err := c.Chat(ctx, opts.ThreadID, opts.Content, func(ev stream.Event) error {
		if threadID == "" {
			threadID = ev.ThreadID
		}
		_, werr := io.WriteString(out, r.Handle(ev))
		return werr
	})
	if rest := r.Flush(); rest != "" {
		fmt.Fprint(out, rest)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\nthread: %s  run: %s  events: %d\n", threadID, res.RunID, res.Events)

	if opts.OutDir == "" || len(r.Files()) == 0 {
		return nil
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return err
	}
	for _, fileID := range r.Files() {
		f, err := c.GetFile(ctx, threadID, fileID)
		if err != nil {
			return fmt.Errorf("download %s: %w", fileID, err)
		}
		path := filepath.Join(opts.OutDir, filepath.Base(f.Name))
		if err := os.WriteFile(path, f.Data, 0o600); err != nil {
			return err
		}
		fmt.Fprintf(out, "saved %s\n", path)
	}

	return nil
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
