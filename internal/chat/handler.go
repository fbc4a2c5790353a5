// ABOUTME: Websocket handler for chat rooms
// ABOUTME: One session per connection; echoes user lines and publishes bot replies to the room

package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/2389/teller/internal/config"
	"github.com/2389/teller/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192

	// AnonymousName labels inbound messages without a username.
	AnonymousName = "Anonymous"

	// SlowDownReply is sent to a connection that exceeds its message rate.
	SlowDownReply = "You're sending messages too quickly. Please slow down."
)

// MessageHandler produces the reply to one user message within a session.
type MessageHandler interface {
	HandleMessage(ctx context.Context, sess *session.Session, text string) string
}

// inbound is the frame clients send.
type inbound struct {
	Message  string `json:"message"`
	Username string `json:"username"`
}

// Handler upgrades requests on /ws/chat/{room} and runs the conversation.
type Handler struct {
	hub          *Hub
	messages     MessageHandler
	upgrader     websocket.Upgrader
	greeting     string
	historyLimit int
	rateLimit    rate.Limit
	burst        int
	now          func() time.Time
	logger       *slog.Logger
}

// NewHandler creates a websocket chat handler.
func NewHandler(hub *Hub, messages MessageHandler, cfg config.ChatConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		hub:          hub,
		messages:     messages,
		greeting:     cfg.Greeting,
		historyLimit: cfg.HistoryLimit,
		rateLimit:    rate.Limit(cfg.RateLimit),
		burst:        cfg.Burst,
		now:          time.Now,
		logger:       logger.With("component", "chat"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

// originChecker allows the listed origins, or any origin for "*". With no
// list, gorilla's same-origin check applies.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

func (h *Handler) envelope(message, username string) *Envelope {
	return &Envelope{Message: message, Username: username, Timestamp: h.now().UTC()}
}

// ServeHTTP handles one websocket connection until the client leaves or
// the hub is closed.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")
	if room == "" {
		http.Error(w, "room is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn("websocket upgrade failed", "room", room, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	sess := session.New(room,
		session.WithHistoryLimit(h.historyLimit),
		session.WithGreeting(h.greeting),
	)
	logger := h.logger.With("room", room, "session", sess.ID)

	outbox, subID := h.hub.Subscribe(ctx, room)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(conn, outbox, logger)
	}()
	defer func() {
		cancel()
		h.hub.Unsubscribe(room, subID)
		<-writerDone
		conn.Close()
		logger.Info("participant left")
	}()

	logger.Info("participant joined")
	if h.greeting != "" {
		h.hub.Publish(room, h.envelope(h.greeting, BotName), "")
	}

	var limiter *rate.Limiter
	if h.rateLimit > 0 {
		limiter = rate.NewLimiter(h.rateLimit, max(h.burst, 1))
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			logger.Debug("ignoring malformed frame", "error", err)
			continue
		}
		text := strings.TrimSpace(in.Message)
		if text == "" {
			continue
		}
		username := strings.TrimSpace(in.Username)
		if username == "" {
			username = AnonymousName
		}

		if limiter != nil && !limiter.Allow() {
			h.hub.Send(room, subID, h.envelope(SlowDownReply, BotName))
			continue
		}

		h.hub.Publish(room, h.envelope(text, username), "")
		reply := h.messages.HandleMessage(ctx, sess, text)
		h.hub.Publish(room, h.envelope(reply, BotName), "")
	}
}

// writeLoop is the connection's only writer. It exits when outbox closes
// or a write fails.
func (h *Handler) writeLoop(conn *websocket.Conn, outbox <-chan *Envelope, logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-outbox:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(writeWait))
				// Unblocks the reader when the hub shuts down first.
				conn.Close()
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				logger.Debug("websocket write failed", "error", err)
				conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				conn.Close()
				return
			}
		}
	}
}
