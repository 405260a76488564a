package runner

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/secboard/agent"
	"github.com/hupe1980/secboard/artifact"
	"github.com/hupe1980/secboard/core"
	"github.com/hupe1980/secboard/internal/testutil"
	"github.com/hupe1980/secboard/onboarding"
	"github.com/hupe1980/secboard/pipeline"
	"github.com/hupe1980/secboard/stream"
	"github.com/hupe1980/secboard/thread"
)

func newRunner(t *testing.T, a core.Agent, optFns ...func(o *Options)) *Runner {
	t.Helper()
	reg, err := agent.NewRegistry(a)
	require.NoError(t, err)
	def, err := onboarding.Build(reg)
	require.NoError(t, err)
	return New(def, optFns...)
}

type recordingObserver struct {
	core.NoOpObserver
	mu   sync.Mutex
	runs []string
}

func (o *recordingObserver) ObserveRun(status string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, status)
}

func TestRunAllStepsOK(t *testing.T) {
	a := testutil.NewStubAgent(onboarding.DefaultAgentName)
	obs := &recordingObserver{}
	r := newRunner(t, a, func(o *Options) { o.Observer = obs })
	sink := testutil.NewRecordingSink()

	res, err := r.Run(context.Background(), Request{Content: "Azure Storage Account"}, sink)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusCompleted, res.Status)

	evs := sink.Events()
	require.Len(t, evs, 15)
	for i := 0; i < 5; i++ {
		begin, text, end := evs[3*i], evs[3*i+1], evs[3*i+2]
		assert.Equal(t, stream.ContentTypeMarkdown, begin.ContentType)
		assert.True(t, strings.HasPrefix(begin.Text, "\n***\n## "), begin.Text)
		assert.Equal(t, "OK", text.Text)
		assert.Equal(t, stream.ContentTypeSentinel, end.ContentType)
	}
	for _, md := range sink.Markdown() {
		assert.NotContains(t, md, "**Error")
	}

	assert.Equal(t, 1, sink.Closes())
	assert.Equal(t, []string{"completed"}, obs.runs)
	assert.Empty(t, r.ActiveRuns())
}

func TestRunHaltsOnSecondStepTimeout(t *testing.T) {
	a := testutil.NewStubAgent(onboarding.DefaultAgentName).
		Fail("public security documentation", errors.New("timeout"))
	obs := &recordingObserver{}
	r := newRunner(t, a, func(o *Options) { o.Observer = obs })
	sink := testutil.NewRecordingSink()

	res, err := r.Run(context.Background(), Request{Content: "Azure Storage Account"}, sink)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusHalted, res.Status)
	assert.Equal(t, "timeout", res.Params.ErrorMessage)

	evs := sink.Events()
	require.Len(t, evs, 4)
	assert.Equal(t, "OK", evs[1].Text)
	assert.Equal(t, stream.ContentTypeSentinel, evs[2].ContentType)
	assert.Contains(t, evs[3].Text, "timeout")
	assert.Equal(t, 1, sink.Closes())

	assert.Zero(t, a.Calls("Make security recommendations"))
	assert.Zero(t, a.Calls("Build an Azure Policy"))
	assert.Zero(t, a.Calls("Write Terraform"))
	assert.Equal(t, []string{"halted"}, obs.runs)
}

func TestRunUnknownThread(t *testing.T) {
	a := testutil.NewStubAgent(onboarding.DefaultAgentName)
	obs := &recordingObserver{}
	r := newRunner(t, a, func(o *Options) { o.Observer = obs })
	sink := testutil.NewRecordingSink()

	_, err := r.Run(context.Background(), Request{ThreadID: "missing", Content: "x"}, sink)
	require.ErrorIs(t, err, core.ErrThreadNotFound)

	md := sink.Markdown()
	require.Len(t, md, 1)
	assert.True(t, strings.HasPrefix(md[0], "\n***\n**"+ErrorTitle+"**\n"))
	assert.Equal(t, 1, sink.Closes())
	assert.Empty(t, a.Invocations())
	assert.Equal(t, []string{StatusFailed}, obs.runs)
}

func TestRunAppendsToExistingThread(t *testing.T) {
	store := thread.NewInMemoryStore()
	th, err := store.Create(context.Background())
	require.NoError(t, err)

	a := testutil.NewStubAgent(onboarding.DefaultAgentName)
	r := newRunner(t, a, func(o *Options) { o.ThreadStore = store })

	_, err = r.Run(context.Background(), Request{ThreadID: th.ID, Content: "Key Vault"}, testutil.NewRecordingSink())
	require.NoError(t, err)

	got, err := store.Get(context.Background(), th.ID)
	require.NoError(t, err)
	msgs := got.GetMessages()
	require.Len(t, msgs, 11)
	assert.Equal(t, "Key Vault", msgs[0].Content)
	assert.Equal(t, core.RoleAssistant, msgs[10].Role)
}

func TestRunWithArtifacts(t *testing.T) {
	a := testutil.NewStubAgent(onboarding.DefaultAgentName).
		Respond("Build an Azure Policy", "```json\n{\"mode\":\"All\"}\n```").
		Respond("Write Terraform", "```hcl\nresource \"azurerm_key_vault\" \"kv\" {}\n```")
	files := artifact.NewInMemoryStore()
	r := newRunner(t, a, func(o *Options) { o.ArtifactStore = files })
	sink := testutil.NewRecordingSink()

	_, err := r.Run(context.Background(), Request{Content: "Key Vault"}, sink)
	require.NoError(t, err)

	assert.Equal(t, 2, sink.Count(stream.ContentTypeFile))

	threadID := sink.Events()[0].ThreadID
	list, err := files.List(context.Background(), threadID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	names := []string{list[0].Name, list[1].Name}
	assert.ElementsMatch(t, []string{onboarding.PolicyFileName, onboarding.TerraformFileName}, names)
}

func TestRunCancel(t *testing.T) {
	a := testutil.NewStubAgent(onboarding.DefaultAgentName).Block()
	r := newRunner(t, a)
	sink := testutil.NewRecordingSink()

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), Request{Content: "x", RunID: "run-1"}, sink)
		done <- err
	}()

	require.Eventually(t, func() bool { return len(a.Invocations()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"run-1"}, r.ActiveRuns())
	require.NoError(t, r.Cancel("run-1"))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancel")
	}

	assert.Equal(t, 1, sink.Closes())
	assert.ErrorIs(t, r.Cancel("run-1"), ErrRunNotFound)
}

func TestRunClientContextCancelled(t *testing.T) {
	a := testutil.NewStubAgent(onboarding.DefaultAgentName)
	r := newRunner(t, a)
	sink := testutil.NewRecordingSink()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, Request{Content: "x"}, sink)
	require.Error(t, err)
	assert.Equal(t, 1, sink.Closes())
	assert.Empty(t, a.Invocations())
}

type panicAgent struct{}

func (panicAgent) Name() string { return onboarding.DefaultAgentName }

func (panicAgent) Invoke(context.Context, core.Invocation) (<-chan core.Part, <-chan error) {
	panic("boom")
}

func TestRunRecoversPanic(t *testing.T) {
	r := newRunner(t, panicAgent{})
	sink := testutil.NewRecordingSink()

	_, err := r.Run(context.Background(), Request{Content: "x"}, sink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	md := sink.Markdown()
	require.NotEmpty(t, md)
	assert.Contains(t, md[len(md)-1], ErrorTitle)
	assert.Equal(t, 1, sink.Closes())
	assert.Empty(t, r.ActiveRuns())
}

func TestRunSinkFailure(t *testing.T) {
	a := testutil.NewStubAgent(onboarding.DefaultAgentName)
	r := newRunner(t, a)
	sink := testutil.NewRecordingSink().FailAfter(2)

	_, err := r.Run(context.Background(), Request{Content: "x"}, sink)
	require.ErrorIs(t, err, testutil.ErrSinkBroken)
	assert.Len(t, sink.Events(), 2)
	assert.Equal(t, 1, sink.Closes())
	assert.Zero(t, a.Calls("public security documentation"))
}

func TestRunStreamsNDJSON(t *testing.T) {
	a := testutil.NewStubAgent(onboarding.DefaultAgentName)
	r := newRunner(t, a)
	q := stream.NewQueueSink()

	go func() {
		_, _ = r.Run(context.Background(), Request{Content: "Azure Storage Account"}, q)
	}()

	var lines []string
	for {
		line, err := q.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		lines = append(lines, string(line))
	}

	require.Len(t, lines, 15)
	assert.Contains(t, lines[1], `"content_type":"markdown"`)
	assert.Contains(t, lines[1], `"text":"OK"`)
	assert.Contains(t, lines[2], `"content_type":"sentinel"`)
	for _, l := range lines {
		assert.True(t, strings.HasSuffix(l, "\n"))
	}
}

func TestRunCitationsRenderAgainstAnswer(t *testing.T) {
	a := testutil.NewStubAgent(onboarding.DefaultAgentName).
		RespondParts("Retrieve the internal security",
			core.TextPart{Text: "Use TLS [1]"},
			core.URLCitationPart{StartIndex: 8, EndIndex: 11, URL: "https://x/tls", Title: "TLS"},
		)
	r := newRunner(t, a)
	sink := testutil.NewRecordingSink()

	_, err := r.Run(context.Background(), Request{Content: "Azure Storage Account"}, sink)
	require.NoError(t, err)

	rd := stream.NewRenderer()
	for _, ev := range sink.Events() {
		rd.Handle(ev)
	}

	segs := rd.Segments()
	require.Len(t, segs, 5)
	assert.Equal(t, pipeline.BeginBlock(stepTitle(t, r, onboarding.StepRetrieveInternalSecurityRecommendations))+"Use TLS ([TLS](https://x/tls))", segs[0])
	assert.Equal(t, pipeline.BeginBlock(stepTitle(t, r, onboarding.StepWriteTerraform))+"OK", segs[4])
}

func stepTitle(t *testing.T, r *Runner, name string) string {
	t.Helper()
	step, ok := r.Definition().Step(name)
	require.True(t, ok)
	return step.Title
}
