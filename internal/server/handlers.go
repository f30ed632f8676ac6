package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/contestops/contestfeed/internal/broadcast"
	"github.com/contestops/contestfeed/internal/feed"
	"github.com/contestops/contestfeed/internal/gateway"
	"github.com/contestops/contestfeed/internal/model"
	"github.com/contestops/contestfeed/internal/snapshot"
	"github.com/contestops/contestfeed/internal/ws"
)

func (s *Server) checkContest(w http.ResponseWriter, r *http.Request) bool {
	if chi.URLParam(r, "contestID") != s.contestID {
		writeError(w, http.StatusNotFound, "unknown contest")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// handleEventFeed serves the long-lived NDJSON stream: full replay through
// the subscriber's filter, then live delivery until disconnect or contest
// finalization.
func (s *Server) handleEventFeed(w http.ResponseWriter, r *http.Request) {
	if !s.checkContest(w, r) {
		return
	}

	filter, err := feed.NewFilter(r.URL.Query().Get("types"), r.URL.Query().Get("since"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := newStreamSink(w)
	// The sink pump writes to w from its own goroutine; do not hand the
	// response back to the server until it has stopped.
	defer sink.wait()

	session := broadcast.NewSession(sink, filter)
	if err := s.engine.Attach(session); err != nil {
		s.logger.Debug("feed attach failed", zap.Error(err))
		return
	}
	defer s.engine.Detach(session)

	s.logger.Info("feed subscriber connected",
		zap.String("sessionID", session.ID),
		zap.String("remoteAddr", r.RemoteAddr),
	)

	select {
	case <-r.Context().Done():
		s.logger.Info("feed subscriber disconnected",
			zap.String("sessionID", session.ID),
		)
	case <-session.Done():
		s.logger.Info("feed session closed",
			zap.String("sessionID", session.ID),
		)
	}
}

// handleEventFeedWS serves the same feed over a WebSocket connection.
func (s *Server) handleEventFeedWS(w http.ResponseWriter, r *http.Request) {
	if !s.checkContest(w, r) {
		return
	}

	filter, err := feed.NewFilter(r.URL.Query().Get("types"), r.URL.Query().Get("since"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	client, err := ws.Accept(w, r, s.logger)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	session := broadcast.NewSession(client, filter)
	if err := s.engine.Attach(session); err != nil {
		client.Close()
		return
	}
	defer s.engine.Detach(session)

	s.logger.Info("websocket feed subscriber connected",
		zap.String("sessionID", session.ID),
		zap.String("connID", client.ConnID()),
	)

	select {
	case <-client.Disconnected():
	case <-session.Done():
	case <-r.Context().Done():
	}
}

// draftLine is the wire form of a snapshot event: no id, since one-shot
// snapshots consume no positions in the feed sequence.
type draftLine struct {
	Type feed.EntityType `json:"type"`
	Op   feed.Op         `json:"op"`
	Data json.RawMessage `json:"data"`
}

// handleSnapshot returns the complete current contest state as one NDJSON
// document, with no live component.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !s.checkContest(w, r) {
		return
	}

	types, err := feed.ParseTypeList(r.URL.Query().Get("types"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := snapshot.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	drafts, err := s.builder.Build(s.contest, snapshot.Options{Mode: mode, Types: types})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "snapshot build failed")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)
	for _, d := range drafts {
		if err := enc.Encode(draftLine{Type: d.Type, Op: d.Op, Data: d.Data}); err != nil {
			s.logger.Debug("snapshot write failed", zap.Error(err))
			return
		}
	}
}

// handleArchive streams the full event log as zstd-compressed NDJSON,
// for offline mirrors and reporting.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if !s.checkContest(w, r) {
		return
	}

	lines, err := s.log.ReadAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reading event log failed")
		return
	}

	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s-events.ndjson.zst"`, s.contestID))

	zw, err := zstd.NewWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "compressor init failed")
		return
	}
	defer zw.Close()

	for _, line := range lines {
		if _, err := zw.Write(append(line, '\n')); err != nil {
			s.logger.Debug("archive write failed", zap.Error(err))
			return
		}
	}
}

type clarificationRequest struct {
	FromTeamID string `json:"from_team_id"`
	ProblemID  string `json:"problem_id"`
	Text       string `json:"text"`
}

type clarificationResponse struct {
	ID      string `json:"id"`
	EventID string `json:"event_id"`
}

// handleSubmitClarification triggers the asynchronous clarification
// mutation and blocks until the resulting feed event confirms it, then
// returns the assigned identity.
func (s *Server) handleSubmitClarification(w http.ResponseWriter, r *http.Request) {
	if !s.checkContest(w, r) {
		return
	}

	if !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "submission rate exceeded")
		return
	}

	var req clarificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	trigger := func() {
		s.mutator.SubmitClarification(req.FromTeamID, req.ProblemID, req.Text)
	}
	match := func(ev feed.Event) bool {
		if ev.Type != feed.TypeClarifications || ev.Op != feed.OpCreate {
			return false
		}
		var clar model.Clarification
		if err := json.Unmarshal(ev.Data, &clar); err != nil {
			return false
		}
		if clar.Text != req.Text {
			return false
		}
		if req.FromTeamID == "" {
			return clar.FromTeamID == nil
		}
		return clar.FromTeamID != nil && *clar.FromTeamID == req.FromTeamID
	}

	ev, err := s.gw.SubmitAndWait(r.Context(), trigger, match, s.cfg.Feed.ConfirmTimeout())
	if err != nil {
		if errors.Is(err, gateway.ErrTimedOut) {
			writeError(w, http.StatusGatewayTimeout, "clarification not confirmed in time")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var clar model.Clarification
	if err := json.Unmarshal(ev.Data, &clar); err != nil {
		writeError(w, http.StatusInternalServerError, "unreadable confirmation payload")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(clarificationResponse{ID: clar.ID, EventID: ev.ID})
}

type statusResponse struct {
	ContestID     string                  `json:"contest_id"`
	Events        int                     `json:"events"`
	LastBroadcast time.Time               `json:"last_broadcast"`
	Sessions      []broadcast.SessionInfo `json:"sessions"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statusResponse{
		ContestID:     s.contestID,
		Events:        s.log.Len(),
		LastBroadcast: s.engine.LastBroadcast(),
		Sessions:      s.engine.SessionInfos(),
	})
}
