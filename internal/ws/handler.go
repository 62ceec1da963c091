// Package ws is the websocket delivery boundary: it feeds raw records into
// the orchestrator and pushes formatted replies back to the client.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ValentinKim531/Em-Guide-backend/internal/auth"
	"github.com/ValentinKim531/Em-Guide-backend/internal/domain"
	"github.com/ValentinKim531/Em-Guide-backend/internal/store"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Orchestrator is the message-processing pipeline the boundary feeds.
type Orchestrator interface {
	Handle(ctx context.Context, record domain.InboundRecord) domain.OutboundReply
}

// Handler upgrades client connections and relays messages.
type Handler struct {
	orchestrator  Orchestrator
	repo          store.Repository
	verifier      auth.Verifier
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a websocket delivery handler.
func NewHandler(orchestrator Orchestrator, repo store.Repository, verifier auth.Verifier, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		orchestrator:  orchestrator,
		repo:          repo,
		verifier:      verifier,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// clientFrame is the wire shape of one inbound websocket message. user_id
// carries the client's bearer token; the stable user key comes from the
// auth server.
type clientFrame struct {
	UserID    string                `json:"user_id"`
	Content   domain.InboundContent `json:"content"`
	MessageID string                `json:"message_id,omitempty"`
	FrontID   string                `json:"front_id,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	slog.Info("WebSocket connection established", "ip", r.RemoteAddr)

	ctx := r.Context()
	for {
		_, raw, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client")
			} else {
				slog.Warn("WebSocket read error", "error", err)
			}
			return
		}

		reply := h.handleFrame(ctx, raw)
		if err := h.writeJSON(ctx, ws, reply); err != nil {
			slog.Warn("Failed to write reply", "error", err)
			return
		}
	}
}

// handleFrame decodes one frame, verifies the token, persists the inbound
// message and runs the pipeline. Every outcome is a well-formed reply.
func (h *Handler) handleFrame(ctx context.Context, raw []byte) domain.OutboundReply {
	var frame clientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		slog.Warn("Malformed client frame", "error", err)
		return domain.ErrorReply(domain.ErrInvalidRequest, "malformed message payload")
	}
	if frame.UserID == "" {
		return domain.ErrorReply(domain.ErrInvalidToken, "missing token")
	}

	userKey, err := h.verifier.Verify(ctx, frame.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			slog.Info("Token rejected")
			return domain.ErrorReply(domain.ErrInvalidToken, "invalid token")
		}
		slog.Error("Token verification failed", "error", err)
		return domain.ErrorReply(domain.ErrServerError, "internal error")
	}

	messageID := frame.MessageID
	if messageID == "" {
		messageID = uuid.NewString()
	}

	contentJSON, err := json.Marshal(frame.Content)
	if err != nil {
		return domain.ErrorReply(domain.ErrInvalidRequest, "malformed message payload")
	}
	inbound := &domain.Message{
		ID:              messageID,
		UserID:          userKey,
		Content:         string(contentJSON),
		IsCreatedByUser: true,
		FrontID:         frame.FrontID,
		CreatedAt:       time.Now(),
	}
	// A redelivered frame reuses its message id; the orchestrator answers
	// the duplicate without re-running the turn.
	if err := h.repo.CreateMessage(ctx, inbound); err != nil {
		if !errors.Is(err, store.ErrDuplicateMessage) {
			slog.Error("Failed to persist inbound message", "user_id", userKey, "error", err)
			return domain.ErrorReply(domain.ErrServerError, "internal error")
		}
		slog.Info("Inbound message already stored", "user_id", userKey, "message_id", messageID)
	}

	return h.orchestrator.Handle(ctx, domain.InboundRecord{
		UserID:    userKey,
		Content:   frame.Content,
		MessageID: messageID,
		FrontID:   frame.FrontID,
	})
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
