package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shadowtrace/discovery-platform/internal/domain/user"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageBytes = 32 * 1024
)

// connection is one authenticated, organization-bound websocket client, the
// read-pump/write-pump pair following the shape the pack's agentexec
// server uses for its agent websocket connections, adapted to §4.9's
// auth-then-subscribe handshake instead of an agent-registration handshake.
type connection struct {
	hub  *Hub
	conn *websocket.Conn

	userID         string
	organizationID string
	profile        user.SubscriptionProfile

	send chan serverMessage

	mu           sync.Mutex
	subscribed   map[Topic]bool
	closeOnce    sync.Once
	done         chan struct{}
}

func newConnection(hub *Hub, conn *websocket.Conn, userID, organizationID string, profile user.SubscriptionProfile) *connection {
	subscribed := make(map[Topic]bool)
	for _, t := range []Topic{TopicAnalysisProgress, TopicChainDetection, TopicRiskAlerts, TopicExecutiveUpdates, TopicPerformanceMetrics} {
		if allowed(profile, string(t)) {
			subscribed[t] = true
		}
	}
	return &connection{
		hub:            hub,
		conn:           conn,
		userID:         userID,
		organizationID: organizationID,
		profile:        profile,
		send:           make(chan serverMessage, 64),
		subscribed:     subscribed,
		done:           make(chan struct{}),
	}
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// wantsEventType reports whether this connection's current (possibly
// narrowed) subscription set includes the category that gates eventType.
func (c *connection) wantsEventType(eventType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed[categoryForEventType(eventType)]
}

// narrow applies a client-requested update_subscriptions, always clamped to
// the connection's role-granted profile, and returns the topics actually
// granted so the caller can acknowledge with what took effect.
func (c *connection) narrow(topics []string) []string {
	next := make(map[Topic]bool)
	granted := make([]string, 0, len(topics))
	for _, raw := range topics {
		t := Topic(raw)
		if allowed(c.profile, raw) {
			next[t] = true
			granted = append(granted, raw)
		}
	}
	c.mu.Lock()
	c.subscribed = next
	c.mu.Unlock()
	return granted
}

// readPump processes client frames until the connection closes. It owns the
// only reader of c.conn, per gorilla/websocket's single-reader requirement.
func (c *connection) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageBytes)
	idleTimeout := c.hub.idleTimeout
	_ = c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case clientMsgUpdateSubscriptions:
			var payload updateSubscriptionsPayload
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				continue
			}
			granted := c.narrow(payload.Topics)
			c.deliver(serverMessage{
				Type:           msgSubscriptionsUpdated,
				OrganizationID: c.organizationID,
				Payload:        subscriptionsUpdatedPayload{Topics: granted},
				Timestamp:      time.Now().UTC(),
			})
		case clientMsgPing:
			c.deliver(serverMessage{Type: msgPong, Timestamp: time.Now().UTC()})
		}
	}
}

// writePump owns the only writer of c.conn, flushing queued server messages
// and periodic heartbeat pings.
func (c *connection) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// deliver enqueues msg for this connection, dropping it (never blocking the
// hub's fan-out loop) if the connection's outbound buffer is saturated —
// a slow or dead peer gets reaped by the idle read deadline instead.
func (c *connection) deliver(msg serverMessage) {
	select {
	case c.send <- msg:
	default:
	}
}
