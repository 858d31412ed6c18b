// Package realtime implements the Real-Time Hub (SPEC_FULL §4.9/§4.9.bis):
// authenticated bidirectional websocket connections, bound to an
// organization and a role-derived subscription profile, fanned out across
// API process instances via Redis pub/sub.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"

	"github.com/shadowtrace/discovery-platform/internal/discoveryengine"
	"github.com/shadowtrace/discovery-platform/internal/domain/user"
	"github.com/shadowtrace/discovery-platform/internal/platform/authtoken"
	"github.com/shadowtrace/discovery-platform/internal/platform/logging"
	"github.com/shadowtrace/discovery-platform/internal/platform/metrics"
	"github.com/shadowtrace/discovery-platform/internal/system"
)

// Ensure Hub satisfies both the generic service lifecycle contract and the
// Discovery Engine's narrow publisher contract.
var _ system.Service = (*Hub)(nil)
var _ discoveryengine.EventPublisher = (*Hub)(nil)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub owns every locally-connected websocket client and the Redis pub/sub
// subscription that makes Publish correct across more than one API process
// instance (§4.9.bis): a publish always goes out to Redis, and the
// subscribe loop below is what actually fans a published event out to this
// instance's local connections, including the instance that published it.
type Hub struct {
	redis       *redis.Client
	log         *logging.Logger
	metrics     *metrics.Metrics
	signer      *authtoken.Signer
	idleTimeout time.Duration

	mu    sync.RWMutex
	conns map[string]map[*connection]struct{} // organizationID -> connections

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Hub. idleTimeout is how long a connection may go silent
// (no pong, no client message) before it is reaped; pass 0 for the default
// of 120s (REALTIME_IDLE_TIMEOUT_SEC's default).
func New(redisClient *redis.Client, signer *authtoken.Signer, log *logging.Logger, m *metrics.Metrics, idleTimeout time.Duration) *Hub {
	if idleTimeout <= 0 {
		idleTimeout = 120 * time.Second
	}
	return &Hub{
		redis:       redisClient,
		log:         log,
		metrics:     m,
		signer:      signer,
		idleTimeout: idleTimeout,
		conns:       make(map[string]map[*connection]struct{}),
	}
}

func (h *Hub) Name() string { return "realtime-hub" }

// Descriptor advertises this service's placement in the architecture.
func (h *Hub) Descriptor() system.Descriptor {
	return system.Descriptor{
		Name:         "realtime-hub",
		Domain:       "realtime",
		Layer:        system.LayerIngress,
		Capabilities: []string{"websocket-fanout", "redis-pubsub"},
	}
}

// Start subscribes to every organization's Redis channel via a single
// pattern subscription and runs the fan-out loop until ctx is canceled.
func (h *Hub) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	pubsub := h.redis.PSubscribe(runCtx, "org:*")
	if _, err := pubsub.Receive(runCtx); err != nil {
		cancel()
		return fmt.Errorf("subscribe to realtime fanout channel: %w", err)
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-runCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				h.handleRedisMessage(msg)
			}
		}
	}()

	if h.log != nil {
		h.log.Info(ctx, "realtime hub: started", nil)
	}
	return nil
}

// Stop cancels the Redis fan-out loop and closes every local connection.
func (h *Hub) Stop(ctx context.Context) error {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()

	h.mu.Lock()
	for _, set := range h.conns {
		for c := range set {
			c.close()
		}
	}
	h.conns = make(map[string]map[*connection]struct{})
	h.mu.Unlock()

	if h.log != nil {
		h.log.Info(ctx, "realtime hub: stopped", nil)
	}
	return nil
}

func (h *Hub) handleRedisMessage(msg *redis.Message) {
	var env eventEnvelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		if h.log != nil {
			h.log.Warn(context.Background(), "realtime hub: malformed fanout payload", map[string]interface{}{"error": err.Error()})
		}
		return
	}
	h.mu.RLock()
	conns := h.conns[env.OrganizationID]
	targets := make([]*connection, 0, len(conns))
	for c := range conns {
		if c.wantsEventType(env.Topic) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	out := serverMessage{
		Type:           env.Topic,
		OrganizationID: env.OrganizationID,
		Payload:        env.Payload,
		Timestamp:      env.PublishedAt,
	}
	for _, c := range targets {
		c.deliver(out)
	}
	if h.metrics != nil {
		h.metrics.WebsocketMessagesSent.WithLabelValues(env.Topic).Add(float64(len(targets)))
	}
}

// Publish implements discoveryengine.EventPublisher: it never delivers to
// local connections directly, always routing through Redis so every API
// instance — including this one — fans out identically (§4.9.bis).
func (h *Hub) Publish(ctx context.Context, organizationID, topic string, payload map[string]any) error {
	env := eventEnvelope{
		OrganizationID: organizationID,
		Topic:          topic,
		Payload:        payload,
		PublishedAt:    time.Now().UTC(),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal realtime event: %w", err)
	}
	return h.redis.Publish(ctx, redisChannelFor(organizationID), raw).Err()
}

// HandleWebSocket upgrades the request and runs the §4.9 handshake: the
// first client message must carry a bearer token, which the hub verifies
// before binding the connection to an organization and subscription
// profile. Any handshake failure sends a typed error and closes.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.log != nil {
			h.log.Warn(r.Context(), "realtime hub: upgrade failed", map[string]interface{}{"error": err.Error()})
		}
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(15 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return
	}

	var first clientMessage
	if err := json.Unmarshal(raw, &first); err != nil || first.Type != clientMsgAuthenticate {
		h.sendHandshakeError(conn, ErrTokenMissing, "first message must be an authenticate frame")
		return
	}
	var payload authenticatePayload
	if err := json.Unmarshal(first.Data, &payload); err != nil || payload.Token == "" {
		h.sendHandshakeError(conn, ErrTokenMissing, "token is required")
		return
	}

	claims, err := h.signer.Verify(payload.Token)
	if err != nil {
		h.sendHandshakeError(conn, ErrInvalidToken, "token is invalid or expired")
		return
	}
	if claims.OrganizationID == "" {
		h.sendHandshakeError(conn, ErrOrgMismatch, "token is missing an organization claim")
		return
	}

	profile := user.ProfileForRole(claims.Role)
	c := newConnection(h, conn, claims.UserID, claims.OrganizationID, profile)

	ackErr := conn.WriteJSON(serverMessage{
		Type:           msgAuthenticated,
		OrganizationID: claims.OrganizationID,
		Payload: connectedPayload{
			UserID:              claims.UserID,
			OrganizationID:      claims.OrganizationID,
			SubscriptionProfile: profile,
		},
		Timestamp: time.Now().UTC(),
	})
	if ackErr != nil {
		_ = conn.Close()
		return
	}

	h.register(c)
	defer h.unregister(c)

	go c.writePump()
	c.readPump()
}

func (h *Hub) sendHandshakeError(conn *websocket.Conn, code ErrorCode, message string) {
	_ = conn.WriteJSON(serverMessage{
		Type:      msgAuthenticationError,
		Payload:   errorPayload{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	})
	_ = conn.Close()
}

func (h *Hub) register(c *connection) {
	h.mu.Lock()
	set, ok := h.conns[c.organizationID]
	if !ok {
		set = make(map[*connection]struct{})
		h.conns[c.organizationID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.WebsocketConnections.Inc()
	}
}

func (h *Hub) unregister(c *connection) {
	h.mu.Lock()
	if set, ok := h.conns[c.organizationID]; ok {
		if _, present := set[c]; present {
			delete(set, c)
			if len(set) == 0 {
				delete(h.conns, c.organizationID)
			}
			if h.metrics != nil {
				h.metrics.WebsocketConnections.Dec()
			}
		}
	}
	h.mu.Unlock()
}

// ConnectionCount returns the number of locally-bound connections for an
// organization, used by the analytics/performance surfaces and tests.
func (h *Hub) ConnectionCount(organizationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[organizationID])
}
