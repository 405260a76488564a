// Package client talks to a secboard server: it creates threads, streams
// chat runs as decoded events and fetches generated files.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hupe1980/secboard/core"
	"github.com/hupe1980/secboard/stream"
)

// ErrStatus is wrapped by errors for non-2xx responses.
var ErrStatus = errors.New("unexpected status")

// Options configures a Client.
type Options struct {
	HTTPClient *http.Client
	// MaxLineBytes bounds a single event line.
	MaxLineBytes int
}

// Client is a secboard HTTP client. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	maxLine int
}

// New creates a client for the server at baseURL.
func New(baseURL string, optFns ...func(o *Options)) *Client {
	opts := Options{
		// no overall timeout: chat streams run for minutes
		HTTPClient:   &http.Client{Timeout: 0},
		MaxLineBytes: 4 << 20,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    opts.HTTPClient,
		maxLine: opts.MaxLineBytes,
	}
}

// Thread is a conversation as returned by the server.
type Thread struct {
	ThreadID string         `json:"thread_id"`
	Messages []core.Message `json:"messages"`
}

// CreateThread starts a new conversation and returns its id.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var th Thread
	if err := c.doJSON(ctx, http.MethodPost, "/v1/create_thread", nil, &th); err != nil {
		return "", err
	}
	return th.ThreadID, nil
}

// GetThread returns the conversation history.
func (c *Client) GetThread(ctx context.Context, threadID string) (*Thread, error) {
	var th Thread
	if err := c.doJSON(ctx, http.MethodGet, "/v1/get_thread?"+url.Values{"thread_id": {threadID}}.Encode(), nil, &th); err != nil {
		return nil, err
	}
	return &th, nil
}

// ChatResult describes a finished chat stream.
type ChatResult struct {
	RunID  string
	Events int
}

// Chat posts content to the thread (empty creates one) and calls fn for every
// event in order. Returning an error from fn stops reading and closes the
// stream.
func (c *Client) Chat(ctx context.Context, threadID, content string, fn func(stream.Event) error) (*ChatResult, error) {
	body, err := json.Marshal(map[string]string{"thread_id": threadID, "content": content})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/jsonlines")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	res := &ChatResult{RunID: resp.Header.Get("X-Run-Id")}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), c.maxLine)
	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		ev, err := stream.Decode(line)
		if err != nil {
			return res, fmt.Errorf("decode event %d: %w", res.Events+1, err)
		}
		res.Events++
		if err := fn(ev); err != nil {
			return res, err
		}
	}
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("read stream: %w", err)
	}

	return res, nil
}

// File is a downloaded artifact.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// GetFile downloads a generated file.
func (c *Client) GetFile(ctx context.Context, threadID, fileID string) (*File, error) {
	q := url.Values{"thread_id": {threadID}, "file_id": {fileID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/get_image?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	name, err := c.GetFileName(ctx, threadID, fileID)
	if err != nil {
		return nil, err
	}

	return &File{Name: name, ContentType: resp.Header.Get("Content-Type"), Data: data}, nil
}

// GetFileName returns the name of a generated file.
func (c *Client) GetFileName(ctx context.Context, threadID, fileID string) (string, error) {
	var out struct {
		FileName string `json:"file_name"`
	}
	q := url.Values{"thread_id": {threadID}, "file_id": {fileID}}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/get_file_name?"+q.Encode(), nil, &out); err != nil {
		return "", err
	}
	return out.FileName, nil
}

// ListFiles returns the files generated in a thread.
func (c *Client) ListFiles(ctx context.Context, threadID string) ([]core.File, error) {
	var out struct {
		Files []core.File `json:"files"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/get_image_contents?"+url.Values{"thread_id": {threadID}}.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// Cancel stops a running chat.
func (c *Client) Cancel(ctx context.Context, runID string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/cancel_run?"+url.Values{"run_id": {runID}}.Encode(), nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var e struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&e)
	if e.Error != "" {
		return fmt.Errorf("%w %d: %s", ErrStatus, resp.StatusCode, e.Error)
	}
	return fmt.Errorf("%w %d", ErrStatus, resp.StatusCode)
}
