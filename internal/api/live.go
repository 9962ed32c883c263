package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tempo/storefront-service/internal/domain"
	"github.com/tempo/storefront-service/internal/metrics"
	"github.com/tempo/storefront-service/internal/view"
)

const (
	livePingInterval  = 30 * time.Second
	livePongWait      = 60 * time.Second
	liveWriteWait     = 10 * time.Second
	liveMaxFrameBytes = 8 * 1024
)

// clientFrame is a message sent by the browser over the live connection.
type clientFrame struct {
	Type    string `json:"type"`
	Token   string `json:"token,omitempty"`
	PriceID string `json:"price_id,omitempty"`
}

// serverFrame is a message pushed to the browser.
type serverFrame struct {
	Type     string         `json:"type"`
	Snapshot *view.Snapshot `json:"snapshot,omitempty"`
	URL      string         `json:"url,omitempty"`
	Message  string         `json:"message,omitempty"`
}

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r.Header.Get("Origin"), r.Host, h.cfg.LiveAllowedOrigins)
		},
	}
}

// originAllowed accepts same-host requests, requests without an Origin header,
// and origins matching one of the patterns. A pattern may contain one "*".
func originAllowed(origin, host string, patterns []string) bool {
	if origin == "" {
		return true
	}
	if strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://") == host {
		return true
	}
	for _, pattern := range patterns {
		if pattern == "*" || pattern == origin {
			return true
		}
		if prefix, suffix, ok := strings.Cut(pattern, "*"); ok &&
			len(origin) >= len(prefix)+len(suffix) &&
			strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
			return true
		}
	}
	return false
}

// handleLive upgrades to a WebSocket and runs one checkout view for the
// lifetime of the connection.
func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("live upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	metrics.LiveSessions.Inc()
	defer metrics.LiveSessions.Dec()

	identity, known := domain.IdentityState{}, false
	if user, ok := UserFromContext(r.Context()); ok {
		identity, known = domain.SignedIn(user), true
	}
	h.serveLive(r.Context(), conn, identity, known)
}

func (h *Handler) serveLive(ctx context.Context, conn *websocket.Conn, identity domain.IdentityState, known bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	session := newLiveSession(conn)
	v := h.newView(session, view.NavigatorFunc(session.navigate), session)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		// Closing unblocks the reader once writes stop.
		defer conn.Close()
		session.writeLoop(ctx)
	}()

	if err := v.Mount(ctx); err != nil {
		h.logger.Error("failed to mount live view", "error", err)
		return
	}
	defer v.Unmount()
	// Without a session on the upgrade request, identity stays loading until
	// the browser reports what its identity provider knows.
	if known {
		session.pushIdentity(ctx, identity)
	}

	stopKeepalive := startLiveKeepalive(conn)
	defer stopKeepalive()

	var checkouts sync.WaitGroup
	h.readLoop(ctx, conn, v, session, &checkouts)
	cancel()
	checkouts.Wait()
	<-writerDone
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, v *view.View, session *liveSession, checkouts *sync.WaitGroup) {
	conn.SetReadLimit(liveMaxFrameBytes)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("live connection closed unexpectedly", "error", err)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			session.send(ctx, serverFrame{Type: "error", Message: "malformed message"})
			continue
		}

		switch frame.Type {
		case "identity":
			user, err := h.verifier.Verify(ctx, frame.Token)
			if err != nil {
				session.send(ctx, serverFrame{Type: "error", Message: "invalid session"})
				session.pushIdentity(ctx, domain.SignedOut())
				continue
			}
			session.pushIdentity(ctx, domain.SignedIn(*user))
		case "signed_out":
			session.pushIdentity(ctx, domain.SignedOut())
		case "checkout":
			checkouts.Add(1)
			go func(priceID string) {
				defer checkouts.Done()
				if err := v.Checkout(ctx, priceID); errors.Is(err, view.ErrNotAuthenticated) {
					session.send(ctx, serverFrame{Type: "error", Message: "sign in to subscribe"})
				}
			}(frame.PriceID)
		default:
			session.send(ctx, serverFrame{Type: "error", Message: "unknown message type"})
		}
	}
}

// liveSession is the identity source of its view and serializes all writes
// to one connection. Snapshots are latest-wins so a slow client only ever
// receives the newest render.
type liveSession struct {
	conn *websocket.Conn

	mu         sync.Mutex
	pending    *view.Snapshot
	wake       chan struct{}
	frames     chan serverFrame
	identities chan domain.IdentityState
}

func newLiveSession(conn *websocket.Conn) *liveSession {
	return &liveSession{
		conn:       conn,
		wake:       make(chan struct{}, 1),
		frames:     make(chan serverFrame, 8),
		identities: make(chan domain.IdentityState, 4),
	}
}

// WatchIdentity streams the identities reported over the connection in order.
func (s *liveSession) WatchIdentity(ctx context.Context) <-chan domain.IdentityState {
	return s.identities
}

func (s *liveSession) pushIdentity(ctx context.Context, state domain.IdentityState) {
	select {
	case s.identities <- state:
	case <-ctx.Done():
	}
}

// Render is called with the view locked and never blocks.
func (s *liveSession) Render(snapshot view.Snapshot) {
	s.mu.Lock()
	s.pending = &snapshot
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *liveSession) navigate(ctx context.Context, url string) error {
	return s.send(ctx, serverFrame{Type: "navigate", URL: url})
}

func (s *liveSession) send(ctx context.Context, frame serverFrame) error {
	select {
	case s.frames <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *liveSession) takePending() *view.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.pending
	s.pending = nil
	return snapshot
}

func (s *liveSession) writeLoop(ctx context.Context) {
	for {
		var frame serverFrame
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			snapshot := s.takePending()
			if snapshot == nil {
				continue
			}
			frame = serverFrame{Type: "snapshot", Snapshot: snapshot}
		case frame = <-s.frames:
		}

		_ = s.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
		if err := s.conn.WriteJSON(frame); err != nil {
			return
		}
	}
}

// startLiveKeepalive pings the peer and extends the read deadline on every pong.
func startLiveKeepalive(conn *websocket.Conn) (cancel func()) {
	_ = conn.SetReadDeadline(time.Now().Add(livePongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(livePongWait))
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(livePingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }
}
