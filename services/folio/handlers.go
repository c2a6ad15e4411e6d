// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package folio

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/folio/services/folio/engine"
	"github.com/AleutianAI/folio/services/folio/kb"
)

const (
	// maxQueryRunes matches the max binding on AskRequest.Query.
	maxQueryRunes = 1000

	// maxFrameBytes bounds one WebSocket frame. Larger frames close the
	// connection with 1009 (message too big).
	maxFrameBytes = 8 << 10
)

var errQueryTooLong = errors.New("query must be at most 1000 characters")

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// AskRequest is the body of POST /sessions/:id/ask and of each WebSocket
// frame sent as JSON.
type AskRequest struct {
	Query string `json:"query" binding:"required,max=1000"`
}

// SelectRequest is the body of POST /sessions/:id/select.
type SelectRequest struct {
	DocumentID string `json:"document_id" binding:"required,max=200"`
}

// SessionResponse is returned when a session is created.
type SessionResponse struct {
	SessionID string `json:"session_id"`
	TTL       string `json:"ttl"`
}

// Suggestion is one numbered did-you-mean entry.
type Suggestion struct {
	Number     int    `json:"number"`
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
}

// AnswerResponse is the reply to one resolved turn.
type AnswerResponse struct {
	Outcome    string       `json:"outcome"`
	Text       string       `json:"text"`
	FollowUps  []string     `json:"follow_ups"`
	DidYouMean []Suggestion `json:"did_you_mean,omitempty"`
	DocumentID string       `json:"document_id,omitempty"`
	Rule       string       `json:"rule,omitempty"`
	Prompt     string       `json:"prompt,omitempty"`
}

// DocumentSummary describes one indexed document.
type DocumentSummary struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Kind     string `json:"kind"`
	Name     string `json:"name"`
}

// DocumentsResponse lists indexed documents.
type DocumentsResponse struct {
	Documents []DocumentSummary `json:"documents"`
	Count     int               `json:"count"`
}

// HealthResponse is the body of GET /health and GET /ready.
type HealthResponse struct {
	Status    string `json:"status"`
	Ready     bool   `json:"ready"`
	Documents int    `json:"documents"`
	LoadedAt  string `json:"loaded_at,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// Handlers serves the folio HTTP API.
//
// Thread Safety: Safe for concurrent use.
type Handlers struct {
	svc      *Service
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandlers creates handlers over svc.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{
		svc:    svc,
		logger: svc.logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// HandleCreateSession handles POST /v1/folio/sessions.
//
// Response:
//
//	201 Created: SessionResponse
func (h *Handlers) HandleCreateSession(c *gin.Context) {
	id, err := h.svc.CreateSession(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, SessionResponse{SessionID: id, TTL: h.svc.sessions.TTL().String()})
}

// HandleAsk handles POST /v1/folio/sessions/:id/ask.
//
// Response:
//
//	200 OK: AnswerResponse
//	400 Bad Request: Missing or empty query
//	404 Not Found: Unknown or expired session
//	503 Service Unavailable: Index not built
func (h *Handlers) HandleAsk(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	res, err := h.svc.Ask(c.Request.Context(), c.Param("id"), req.Query)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, answerResponse(res))
}

// HandleSelect handles POST /v1/folio/sessions/:id/select.
//
// Response:
//
//	200 OK: AnswerResponse
//	404 Not Found: Unknown session or document
func (h *Handlers) HandleSelect(c *gin.Context) {
	var req SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	res, err := h.svc.Select(c.Request.Context(), c.Param("id"), req.DocumentID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, answerResponse(res))
}

// HandleDeleteSession handles DELETE /v1/folio/sessions/:id.
func (h *Handlers) HandleDeleteSession(c *gin.Context) {
	if err := h.svc.EndSession(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleChatSocket handles GET /v1/folio/sessions/:id/ws.
//
// Description:
//
//	Upgrades to a WebSocket. Each text frame is one query, either plain
//	text or an AskRequest JSON object. Each reply is an AnswerResponse, or
//	an ErrorResponse when the turn fails; the connection stays open after
//	a failed turn. Queries over maxQueryRunes get an INVALID_REQUEST frame;
//	frames over maxFrameBytes close the connection.
func (h *Handlers) HandleChatSocket(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")
	if _, err := h.svc.sessions.Get(ctx, sessionID); err != nil {
		h.writeError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)
	wsConnections.Inc()
	defer wsConnections.Dec()

	logger := h.logger.With(slog.String("session_id", sessionID))
	logger.Debug("chat socket opened")
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				logger.Warn("chat frame too large", slog.Int("limit", maxFrameBytes))
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("chat socket read failed", slog.String("error", err.Error()))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var reply any
		query, err := frameQuery(data)
		if err == nil {
			var res engine.Result
			if res, err = h.svc.Ask(ctx, sessionID, query); err == nil {
				reply = answerResponse(res)
			}
		}
		if err != nil {
			_, code := errorStatus(err)
			reply = ErrorResponse{Error: err.Error(), Code: code}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(reply); err != nil {
			logger.Warn("chat socket write failed", slog.String("error", err.Error()))
			return
		}
	}
}

// HandleDocuments handles GET /v1/folio/documents?category=.
func (h *Handlers) HandleDocuments(c *gin.Context) {
	docs, err := h.svc.Documents(c.Query("category"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := DocumentsResponse{Documents: make([]DocumentSummary, 0, len(docs)), Count: len(docs)}
	for _, d := range docs {
		resp.Documents = append(resp.Documents, summarize(d))
	}
	c.JSON(http.StatusOK, resp)
}

// HandleHealth handles GET /v1/folio/health. It always returns 200.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse(h.svc.Status(), "ok"))
}

// HandleReady handles GET /v1/folio/ready.
//
// Response:
//
//	200 OK: Index built
//	503 Service Unavailable: INDEX_NOT_READY
func (h *Handlers) HandleReady(c *gin.Context) {
	st := h.svc.Status()
	if !st.Ready {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "knowledge base index not ready",
			Code:  "INDEX_NOT_READY",
		})
		return
	}
	c.JSON(http.StatusOK, healthResponse(st, "ready"))
}

func (h *Handlers) writeError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("path", c.Request.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

// errorStatus maps service errors to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND"
	case errors.Is(err, engine.ErrUnknownDocument):
		return http.StatusNotFound, "DOCUMENT_NOT_FOUND"
	case errors.Is(err, engine.ErrNotReady):
		return http.StatusServiceUnavailable, "INDEX_NOT_READY"
	case errors.Is(err, errQueryTooLong):
		return http.StatusBadRequest, "INVALID_REQUEST"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// frameQuery reads a WebSocket frame as an AskRequest object, falling back
// to the raw text. Queries longer than maxQueryRunes are rejected.
func frameQuery(data []byte) (string, error) {
	query := string(data)
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var req AskRequest
		if err := json.Unmarshal(trimmed, &req); err == nil && req.Query != "" {
			query = req.Query
		}
	}
	if utf8.RuneCountInString(query) > maxQueryRunes {
		return "", errQueryTooLong
	}
	return query, nil
}

func answerResponse(res engine.Result) AnswerResponse {
	resp := AnswerResponse{
		Outcome:   string(res.Outcome),
		Text:      res.Text,
		FollowUps: res.FollowUps,
		Rule:      res.Rule,
		Prompt:    res.Prompt,
	}
	if resp.FollowUps == nil {
		resp.FollowUps = []string{}
	}
	if res.Document != nil {
		resp.DocumentID = res.Document.ID
	}
	if res.Outcome == engine.OutcomeFallback {
		for i, d := range res.Conversation.DidYouMean {
			resp.DidYouMean = append(resp.DidYouMean, Suggestion{
				Number:     i + 1,
				DocumentID: d.ID,
				Name:       d.DisplayName(),
			})
		}
	}
	return resp
}

func summarize(d kb.Document) DocumentSummary {
	return DocumentSummary{
		ID:       d.ID,
		Category: d.Category,
		Kind:     d.Kind.String(),
		Name:     d.DisplayName(),
	}
}

func healthResponse(st Status, status string) HealthResponse {
	resp := HealthResponse{Status: status, Ready: st.Ready, Documents: st.Documents}
	if !st.LoadedAt.IsZero() {
		resp.LoadedAt = st.LoadedAt.UTC().Format(time.RFC3339)
	}
	if st.LastError != nil {
		resp.LastError = st.LastError.Error()
	}
	return resp
}
