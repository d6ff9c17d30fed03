package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xactions/xactions-a2a/pkg/a2a"
	"github.com/xactions/xactions-a2a/pkg/push"
	"github.com/xactions/xactions-a2a/pkg/task"
)

const maxBodySize = 10 << 20

// handleCreateTask is the JSON-RPC entrypoint: tasks/send runs the task
// to completion and returns the final object; tasks/sendSubscribe
// returns the submitted task immediately for SSE attachment.
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeRPCError(w, http.StatusBadRequest, nil, a2a.CodeParseError, "cannot read request body")
		return
	}

	var req a2a.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeRPCError(w, http.StatusBadRequest, nil, a2a.CodeParseError, "malformed JSON")
		return
	}
	if err := req.Validate(); err != nil {
		writeRPCError(w, http.StatusBadRequest, req.ID, a2a.CodeInvalidRequest, err.Error())
		return
	}

	switch req.Method {
	case a2a.MethodTasksSend, a2a.MethodTasksSendSubscribe:
	default:
		writeRPCError(w, http.StatusBadRequest, req.ID, a2a.CodeMethodNotFound, "unknown method "+req.Method)
		return
	}

	var params a2a.TaskSendParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			writeRPCError(w, http.StatusBadRequest, req.ID, a2a.CodeInvalidParams, "malformed params")
			return
		}
	}
	if len(params.Message.Parts) == 0 {
		writeRPCError(w, http.StatusBadRequest, req.ID, a2a.CodeInvalidParams, "params.message is required")
		return
	}
	for _, part := range params.Message.Parts {
		if err := part.Validate(); err != nil {
			writeRPCError(w, http.StatusBadRequest, req.ID, a2a.CodeInvalidParams, err.Error())
			return
		}
	}

	metadata := params.Metadata
	if params.ContextID != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["contextId"] = params.ContextID
	}
	if skillID, ok := metadata[a2a.MetadataSkillKey].(string); ok && skillID != "" {
		if _, found := s.Registry.Get(skillID); !found {
			writeRPCError(w, http.StatusNotFound, req.ID, a2a.CodeSkillNotFound, "unknown skill "+skillID)
			return
		}
	}

	t := s.Store.Create(params.Message, metadata)
	if params.PushCallback != "" {
		s.Subs.Subscribe(t.ID, params.PushCallback)
	}

	if req.Method == a2a.MethodTasksSend {
		s.Executor.Execute(t.ID)
		final, err := s.Store.Get(t.ID)
		if err != nil {
			writeRPCError(w, http.StatusInternalServerError, req.ID, a2a.CodeInternalError, "task vanished during execution")
			return
		}
		writeJSON(w, http.StatusOK, a2a.Success(req.ID, final))
		return
	}

	s.Executor.Start(t.ID)
	writeJSON(w, http.StatusOK, a2a.Success(req.ID, t))
}

// handleGetTask returns the bare task object.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.Store.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeRPCError(w, http.StatusNotFound, nil, a2a.CodeTaskNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleListTasks lists stored tasks, newest first.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	state := a2a.TaskState(r.URL.Query().Get("state"))
	if state != "" && !a2a.IsValidState(state) {
		writeRPCError(w, http.StatusBadRequest, nil, a2a.CodeInvalidParams, "unknown state "+string(state))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	tasks := s.Store.List(state, limit)
	if tasks == nil {
		tasks = []*a2a.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "total": len(tasks)})
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := s.Executor.Cancel(id, "Canceled by caller")
	if err != nil {
		if task.IsInvalidTransition(err) {
			writeRPCError(w, http.StatusConflict, nil, a2a.CodeTaskInvalidState, err.Error())
			return
		}
		writeRPCError(w, http.StatusNotFound, nil, a2a.CodeTaskNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleStream attaches the caller as an SSE client on the task. The
// manager resolves the terminal-vs-live race itself: a task already
// terminal gets a single done frame instead of a long-lived stream.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.Store.Get(id); err != nil {
		writeRPCError(w, http.StatusNotFound, nil, a2a.CodeTaskNotFound, "task not found")
		return
	}
	if err := s.Streams.AddClient(r.Context(), id, w); err != nil {
		slog.Warn("SSE attach failed", "taskId", id, "error", err)
	}
}

// handleTaskMessage appends an inbound message from a remote agent to
// the task's conversation log.
func (s *Server) handleTaskMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var msg a2a.Message
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&msg); err != nil {
		writeRPCError(w, http.StatusBadRequest, nil, a2a.CodeParseError, "malformed JSON")
		return
	}
	if msg.Role != a2a.MessageRoleUser && msg.Role != a2a.MessageRoleAgent {
		writeRPCError(w, http.StatusBadRequest, nil, a2a.CodeInvalidParams, "unknown role")
		return
	}
	if len(msg.Parts) == 0 {
		writeRPCError(w, http.StatusBadRequest, nil, a2a.CodeInvalidParams, "message has no parts")
		return
	}
	for _, part := range msg.Parts {
		if err := part.Validate(); err != nil {
			writeRPCError(w, http.StatusBadRequest, nil, a2a.CodeInvalidParams, err.Error())
			return
		}
	}

	if err := s.Store.AppendMessage(id, msg); err != nil {
		if task.IsTerminalTask(err) {
			writeRPCError(w, http.StatusConflict, nil, a2a.CodeTaskInvalidState, err.Error())
			return
		}
		writeRPCError(w, http.StatusNotFound, nil, a2a.CodeTaskNotFound, "task not found")
		return
	}
	t, _ := s.Store.Get(id)
	writeJSON(w, http.StatusOK, t)
}

// handleCallback accepts a push notification from a remote agent,
// validating the HMAC token minted into the callback URL.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	token := r.URL.Query().Get("token")
	if !push.VerifyCallbackToken(s.PushSecret, id, token) {
		writeRPCError(w, http.StatusUnauthorized, nil, a2a.CodeAuthRequired, "invalid callback token")
		return
	}

	var notification push.Notification
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&notification); err != nil {
		writeRPCError(w, http.StatusBadRequest, nil, a2a.CodeParseError, "malformed JSON")
		return
	}

	slog.Info("push callback received", "callbackId", id, "taskId", notification.TaskID, "state", notification.State)

	// A notification for a locally tracked task lands in its
	// conversation log so listeners observe the remote progress.
	if notification.TaskID != "" {
		if _, err := s.Store.Get(notification.TaskID); err == nil {
			msg := a2a.NewAgentMessage(a2a.NewDataPart(notification))
			if err := s.Store.AppendMessage(notification.TaskID, msg); err != nil {
				slog.Warn("failed to record callback", "taskId", notification.TaskID, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
