package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/secboard/agent"
	"github.com/hupe1980/secboard/artifact"
	"github.com/hupe1980/secboard/internal/server"
	"github.com/hupe1980/secboard/internal/testutil"
	"github.com/hupe1980/secboard/onboarding"
	"github.com/hupe1980/secboard/runner"
	"github.com/hupe1980/secboard/stream"
)

func newTestClient(t *testing.T, stub *testutil.StubAgent) *Client {
	t.Helper()

	reg, err := agent.NewRegistry(stub)
	require.NoError(t, err)
	def, err := onboarding.Build(reg)
	require.NoError(t, err)

	r := runner.New(def, func(o *runner.Options) {
		o.ArtifactStore = artifact.NewInMemoryStore()
	})

	ts := httptest.NewServer(server.New(r).Handler())
	t.Cleanup(ts.Close)

	return New(ts.URL + "/")
}

func TestClient_ChatStreamsEvents(t *testing.T) {
	stub := testutil.NewStubAgent(onboarding.DefaultAgentName).
		Respond("Build an Azure Policy", "```json\n{\"mode\":\"All\"}\n```")
	c := newTestClient(t, stub)

	var evs []stream.Event
	res, err := c.Chat(context.Background(), "", "Azure Storage", func(ev stream.Event) error {
		evs = append(evs, ev)
		return nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, len(evs), res.Events)

	sentinels := 0
	var fileID string
	for _, ev := range evs {
		switch ev.ContentType {
		case stream.ContentTypeSentinel:
			sentinels++
		case stream.ContentTypeFile:
			if fileID == "" {
				fileID = ev.FileID
			}
		}
	}
	assert.Equal(t, 5, sentinels)
	require.NotEmpty(t, fileID)

	threadID := evs[0].ThreadID
	th, err := c.GetThread(context.Background(), threadID)
	require.NoError(t, err)
	assert.Equal(t, threadID, th.ThreadID)
	assert.Equal(t, "Azure Storage", th.Messages[0].Content)

	files, err := c.ListFiles(context.Background(), threadID)
	require.NoError(t, err)
	assert.NotEmpty(t, files)

	f, err := c.GetFile(context.Background(), threadID, fileID)
	require.NoError(t, err)
	assert.Equal(t, onboarding.PolicyFileName, f.Name)
	assert.Contains(t, string(f.Data), `"mode"`)
}

func TestClient_CreateThreadThenChat(t *testing.T) {
	c := newTestClient(t, testutil.NewStubAgent(onboarding.DefaultAgentName))

	id, err := c.CreateThread(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	r := stream.NewRenderer()
	var out strings.Builder
	_, err = c.Chat(context.Background(), id, "Key Vault", func(ev stream.Event) error {
		assert.Equal(t, id, ev.ThreadID)
		out.WriteString(r.Handle(ev))
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, r.Segments(), 5)
	assert.Contains(t, out.String(), "OK")
}

func TestClient_CallbackErrorStopsReading(t *testing.T) {
	c := newTestClient(t, testutil.NewStubAgent(onboarding.DefaultAgentName))

	stop := errors.New("stop")
	res, err := c.Chat(context.Background(), "", "Cosmos DB", func(stream.Event) error {
		return stop
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 1, res.Events)
}

func TestClient_ErrorStatus(t *testing.T) {
	c := newTestClient(t, testutil.NewStubAgent(onboarding.DefaultAgentName))

	_, err := c.GetThread(context.Background(), "missing")
	require.ErrorIs(t, err, ErrStatus)
	assert.Contains(t, err.Error(), "404")

	_, err = c.Chat(context.Background(), "", "  ", func(stream.Event) error { return nil })
	require.ErrorIs(t, err, ErrStatus)
	assert.Contains(t, err.Error(), "400")

	err = c.Cancel(context.Background(), "nope")
	require.ErrorIs(t, err, ErrStatus)
}
