package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/caption/internal/hermes"
	"github.com/MikeSquared-Agency/caption/internal/label"
	"github.com/MikeSquared-Agency/caption/internal/notify"
	"github.com/MikeSquared-Agency/caption/internal/session"
	"github.com/MikeSquared-Agency/caption/internal/store"
)

type createSessionRequest struct {
	OwnerID string `json:"owner_id"`
}

type renameRequest struct {
	Label string `json:"label"`
}

type appendMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type appendMessageResponse struct {
	SessionID    string `json:"session_id"`
	MessageCount int    `json:"message_count"`
}

type listResponse struct {
	Sessions []session.Summary `json:"sessions"`
	Count    int               `json:"count"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if _, err := uuid.Parse(req.OwnerID); err != nil {
		writeError(w, http.StatusBadRequest, "owner_id must be a uuid")
		return
	}

	sess, err := s.store.CreateSession(r.Context(), req.OwnerID, s.cfg.Placeholder)
	if err != nil {
		s.logger.Error("create session failed", "owner_id", req.OwnerID, "error", err)
		writeError(w, http.StatusInternalServerError, "create session failed")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := s.store.GetSession(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error("get session failed", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "get session failed")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// renameSession is the manual label write path. The pipeline never overwrites its result.
func (s *Server) renameSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	text := label.Truncate(strings.Join(strings.Fields(req.Label), " "), label.MaxLength)
	if text == "" {
		writeError(w, http.StatusBadRequest, "label must not be empty")
		return
	}

	found, err := s.store.RenameSession(r.Context(), id, text)
	if err != nil {
		s.logger.Error("rename session failed", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "rename session failed")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		s.logger.Error("get session after rename failed", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "get session failed")
		return
	}
	if sess.Label == text {
		s.bus.Publish(notify.Event{
			SessionID: sess.ID,
			OwnerID:   sess.OwnerID,
			NewLabel:  sess.Label,
			EmittedAt: time.Now().UTC(),
		})
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := s.store.GetSession(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error("get session failed", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete session failed")
		return
	}

	if _, err := s.store.DeleteSession(r.Context(), id); err != nil {
		s.logger.Error("delete session failed", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete session failed")
		return
	}
	s.trigger.OnSessionDeleted(hermes.SessionDeletedEvent{SessionID: id, OwnerID: sess.OwnerID})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) appendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req appendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if !session.ValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "role must be user, assistant or system")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content must not be empty")
		return
	}

	sess, err := s.store.GetSession(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error("get session failed", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "append message failed")
		return
	}

	count, err := s.store.AppendMessage(r.Context(), id, req.Role, req.Content)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error("append message failed", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "append message failed")
		return
	}

	s.trigger.OnMessageStored(hermes.MessageStoredEvent{
		SessionID:    id,
		OwnerID:      sess.OwnerID,
		MessageCount: count,
	})
	writeJSON(w, http.StatusCreated, appendMessageResponse{SessionID: id, MessageCount: count})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerID(w, r)
	if !ok {
		return
	}
	sessions, err := s.store.ListSessions(r.Context(), ownerID)
	if err != nil {
		s.logger.Error("list sessions failed", "owner_id", ownerID, "error", err)
		writeError(w, http.StatusInternalServerError, "list sessions failed")
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Sessions: sessions, Count: len(sessions)})
}

func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "session id must be a uuid")
		return "", false
	}
	return id, true
}

func ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "ownerID")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "owner id must be a uuid")
		return "", false
	}
	return id, true
}
