package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/argosight/livetrack/pkg/model"
	"github.com/argosight/livetrack/pkg/store"
)

// StatusAuthRejected is the policy-defined close code sent to clients
// presenting invalid credentials.
const StatusAuthRejected websocket.StatusCode = 4401

// streamTokenProtocolPrefix carries a signed token inside the negotiated
// subprotocol for clients that cannot set headers (browsers).
const streamTokenProtocolPrefix = "livetrack-token."

// Push interval bounds; requested intervals are clamped into this range.
const (
	minStreamInterval     = 1 * time.Second
	maxStreamInterval     = 60 * time.Second
	defaultStreamInterval = 5 * time.Second
	streamWriteTimeout    = 10 * time.Second
)

// StreamMeta is the envelope attached to every pushed snapshot.
type StreamMeta struct {
	Route     string    `json:"route"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	Warnings  []string  `json:"warnings"`
}

// StreamMessage is one pushed frame: the snapshot shape plus meta.
type StreamMessage struct {
	model.Snapshot
	Meta StreamMeta `json:"meta"`
}

// StreamHandler owns the persistent push-stream endpoint. Each accepted
// connection runs its own loop pulling snapshots from the shared store; the
// handler never queues frames, so a slow client only ever receives the most
// recent snapshot.
type StreamHandler struct {
	store  *store.Store
	secret string
	logger zerolog.Logger

	active atomic.Int64
}

// NewStreamHandler creates a StreamHandler. An empty secret disables
// authentication.
func NewStreamHandler(st *store.Store, secret string, logger zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		store:  st,
		secret: secret,
		logger: logger.With().Str("handler", "stream").Logger(),
	}
}

// ClientCount returns the number of connections currently streaming.
func (h *StreamHandler) ClientCount() int {
	return int(h.active.Load())
}

// ServeHTTP upgrades the connection and drives the per-client state machine:
// Connecting -> Authenticated -> Streaming -> Closed.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := uuid.New().String()
	logger := h.logger.With().Str("client_id", clientID).Logger()

	// Echo the client's offered subprotocols so a token-bearing protocol
	// negotiates successfully before we validate it.
	offered := offeredSubprotocols(r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   offered,
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to accept stream connection")
		return
	}

	if !h.authorized(r, offered) {
		logger.Warn().Msg("Stream connection rejected: invalid credentials")
		conn.Close(StatusAuthRejected, "invalid credentials")
		return
	}

	mode := model.ParseMode(r.URL.Query().Get("mode"))
	interval := clampInterval(r.URL.Query().Get("interval"))

	h.active.Add(1)
	defer h.active.Add(-1)
	logger.Info().Str("mode", string(mode)).Dur("interval", interval).Msg("Stream client connected")

	// CloseRead cancels the context on client disconnect, ending the loop
	// before the next scheduled push.
	ctx := conn.CloseRead(r.Context())
	h.streamLoop(ctx, conn, mode, interval, logger)

	conn.Close(websocket.StatusNormalClosure, "")
	logger.Info().Msg("Stream client disconnected")
}

// streamLoop pushes one snapshot immediately, then one per tick. Ticker
// semantics drop missed ticks, so frames skipped during a slow write are
// never queued.
func (h *StreamHandler) streamLoop(ctx context.Context, conn *websocket.Conn, mode model.Mode, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := h.push(ctx, conn, mode); err != nil {
			if ctx.Err() == nil {
				logger.Debug().Err(err).Msg("Stream push failed")
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *StreamHandler) push(ctx context.Context, conn *websocket.Conn, mode model.Mode) error {
	snap := h.store.GetSnapshot(ctx, mode)

	status := "ok"
	if len(snap.Warnings) > 0 {
		status = "degraded"
	}
	msg := StreamMessage{
		Snapshot: snap,
		Meta: StreamMeta{
			Route:     "/ws",
			Source:    "tracker-gateway",
			Timestamp: time.Now().UTC(),
			Status:    status,
			Warnings:  snap.Warnings,
		},
	}

	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, msg)
}

// authorized validates credentials when a shared secret is configured: an
// X-API-Key header matching the secret, or a subprotocol-embedded HS256 JWT
// signed with it.
func (h *StreamHandler) authorized(r *http.Request, offered []string) bool {
	if h.secret == "" {
		return true
	}
	if r.Header.Get("X-API-Key") == h.secret {
		return true
	}
	for _, proto := range offered {
		if !strings.HasPrefix(proto, streamTokenProtocolPrefix) {
			continue
		}
		raw := strings.TrimPrefix(proto, streamTokenProtocolPrefix)
		if h.validToken(raw) {
			return true
		}
	}
	return false
}

func (h *StreamHandler) validToken(raw string) bool {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return []byte(h.secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	return err == nil && token.Valid
}

func offeredSubprotocols(r *http.Request) []string {
	raw := r.Header.Get("Sec-WebSocket-Protocol")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func clampInterval(raw string) time.Duration {
	interval := defaultStreamInterval
	if raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil {
			interval = time.Duration(secs) * time.Second
		}
	}
	if interval < minStreamInterval {
		interval = minStreamInterval
	}
	if interval > maxStreamInterval {
		interval = maxStreamInterval
	}
	return interval
}
