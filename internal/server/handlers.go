package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/secboard/core"
	"github.com/hupe1980/secboard/runner"
	"github.com/hupe1980/secboard/stream"
)

// ContentTypeJSONLines is the media type of the chat stream.
const ContentTypeJSONLines = "application/jsonlines"

// HeaderRunID carries the id of the run started by a chat request.
const HeaderRunID = "X-Run-Id"

const maxBodyBytes = 1 << 20

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	ThreadID string `json:"thread_id"`
	Content  string `json:"content"`
}

// ThreadResponse is returned by create_thread and get_thread.
type ThreadResponse struct {
	ThreadID string         `json:"thread_id"`
	Messages []core.Message `json:"messages"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	if req.ThreadID != "" {
		if _, err := s.runner.ThreadStore().Get(r.Context(), req.ThreadID); err != nil {
			writeStoreError(w, err)
			return
		}
	}

	flusher, _ := w.(http.Flusher)

	runID := core.NewID()
	w.Header().Set("Content-Type", ContentTypeJSONLines)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set(HeaderRunID, runID)
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}

	// a disconnecting client cancels the run through r.Context()
	ctx := r.Context()
	sink := stream.NewQueueSink()

	go func() {
		_, _ = s.runner.Run(ctx, runner.Request{ThreadID: req.ThreadID, Content: req.Content, RunID: runID}, sink)
	}()

	for {
		line, err := sink.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("chat stream ended", "run_id", runID, "error", err)
			}
			return
		}
		if _, err := w.Write(line); err != nil {
			s.logger.Warn("writing chat stream", "run_id", runID, "error", err)
			_ = s.runner.Cancel(runID)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	th, err := s.runner.ThreadStore().Create(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ThreadResponse{ThreadID: th.ID, Messages: th.GetMessages()})
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	id, ok := requireQuery(w, r, "thread_id")
	if !ok {
		return
	}

	th, err := s.runner.ThreadStore().Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ThreadResponse{ThreadID: th.ID, Messages: th.GetMessages()})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	threadID, fileID, ok := fileQuery(w, r)
	if !ok {
		return
	}

	store := s.runner.ArtifactStore()
	if store == nil {
		writeStoreError(w, core.ErrNoArtifactStore)
		return
	}

	f, data, err := store.Get(r.Context(), threadID, fileID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", `attachment; filename="`+f.Name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	threadID, ok := requireQuery(w, r, "thread_id")
	if !ok {
		return
	}

	store := s.runner.ArtifactStore()
	if store == nil {
		writeStoreError(w, core.ErrNoArtifactStore)
		return
	}

	files, err := store.List(r.Context(), threadID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"thread_id": threadID, "files": files})
}

func (s *Server) handleGetFileName(w http.ResponseWriter, r *http.Request) {
	threadID, fileID, ok := fileQuery(w, r)
	if !ok {
		return
	}

	store := s.runner.ArtifactStore()
	if store == nil {
		writeStoreError(w, core.ErrNoArtifactStore)
		return
	}

	f, err := store.Stat(r.Context(), threadID, fileID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file_id": f.ID, "file_name": f.Name})
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id, ok := requireQuery(w, r, "run_id")
	if !ok {
		return
	}
	if err := s.runner.Cancel(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"service": s.service, "status": "ok"})
}

func (s *Server) handleStartup(w http.ResponseWriter, _ *http.Request) {
	if !s.started.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"service": s.service, "status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": s.service,
		"status":  "started",
		"steps":   s.runner.Definition().Steps(),
	})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	type checkResult struct {
		Name       string `json:"name"`
		Status     string `json:"status"`
		DurationMs int64  `json:"duration_ms"`
		Error      string `json:"error,omitempty"`
	}

	results := make([]checkResult, 0, len(s.readiness))
	ready := true

	for _, c := range s.readiness {
		start := time.Now()
		res := checkResult{Name: c.Name, Status: "ok"}
		if err := c.Check(r.Context()); err != nil {
			ready = false
			res.Status = "fail"
			res.Error = err.Error()
		}
		res.DurationMs = time.Since(start).Milliseconds()
		results = append(results, res)
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"service": s.service, "status": status, "checks": results})
}

func requireQuery(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		writeError(w, http.StatusBadRequest, key+" is required")
		return "", false
	}
	return v, true
}

func fileQuery(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	threadID, ok := requireQuery(w, r, "thread_id")
	if !ok {
		return "", "", false
	}
	fileID, ok := requireQuery(w, r, "file_id")
	if !ok {
		return "", "", false
	}
	return threadID, fileID, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrThreadNotFound), errors.Is(err, core.ErrFileNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrNoArtifactStore):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
