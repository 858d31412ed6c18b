package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/shadowtrace/discovery-platform/internal/domain/user"
	"github.com/shadowtrace/discovery-platform/internal/platform/authtoken"
)

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func newTestHub(t *testing.T) (*Hub, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	signer, err := authtoken.NewSigner("test-session-secret")
	require.NoError(t, err)
	hub := New(client, signer, nil, nil, 2*time.Second)
	return hub, mr
}

func dialAndAuthenticate(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(clientMessage{Type: clientMsgAuthenticate, Data: mustJSON(t, authenticatePayload{Token: token})}))
	return conn
}

func TestHandshakeRejectsMissingToken(t *testing.T) {
	hub, mr := newTestHub(t)
	defer mr.Close()
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(clientMessage{Type: clientMsgAuthenticate, Data: mustJSON(t, authenticatePayload{Token: ""})}))

	var resp serverMessage
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, msgAuthenticationError, resp.Type)
}

func TestHandshakeRejectsInvalidToken(t *testing.T) {
	hub, mr := newTestHub(t)
	defer mr.Close()
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	conn := dialAndAuthenticate(t, server, "not-a-real-token")
	var resp serverMessage
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, msgAuthenticationError, resp.Type)
}

func TestHandshakeAcceptsValidTokenAndBindsProfile(t *testing.T) {
	hub, mr := newTestHub(t)
	defer mr.Close()
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	token, err := hub.signer.Issue(user.User{ID: "u1", OrganizationID: "org1", Role: user.RoleSecurityAnalyst})
	require.NoError(t, err)

	conn := dialAndAuthenticate(t, server, token)
	defer conn.Close()

	var resp serverMessage
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, msgAuthenticated, resp.Type)
	require.Equal(t, "org1", resp.OrganizationID)
	require.False(t, resp.Timestamp.IsZero())

	require.Eventually(t, func() bool { return hub.ConnectionCount("org1") == 1 }, time.Second, 10*time.Millisecond)
}

func TestPublishFansOutOnlyToSubscribedTopic(t *testing.T) {
	hub, mr := newTestHub(t)
	defer mr.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, hub.Start(ctx))
	defer hub.Stop(context.Background())

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	// A viewer's profile grants chainDetection and riskAlerts, but not
	// analysisProgress (§4.9's subscription table).
	token, err := hub.signer.Issue(user.User{ID: "u2", OrganizationID: "org2", Role: user.RoleViewer})
	require.NoError(t, err)
	conn := dialAndAuthenticate(t, server, token)
	defer conn.Close()

	var ack serverMessage
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, msgAuthenticated, ack.Type)
	require.Eventually(t, func() bool { return hub.ConnectionCount("org2") == 1 }, time.Second, 10*time.Millisecond)

	// "discovery.completed" gates on analysisProgress, which this viewer's
	// profile does not grant, so only the "risk.changed" publish (gated on
	// riskAlerts) should reach the client.
	require.NoError(t, hub.Publish(context.Background(), "org2", "discovery.completed", map[string]any{"run_id": "r1"}))
	require.NoError(t, hub.Publish(context.Background(), "org2", "risk.changed", map[string]any{"run_id": "r2"}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event serverMessage
	require.NoError(t, conn.ReadJSON(&event))
	require.Equal(t, "risk.changed", event.Type)
	payload, ok := event.Payload.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "r2", payload["run_id"])
}

func TestUpdateSubscriptionsAcknowledgesGrantedTopics(t *testing.T) {
	hub, mr := newTestHub(t)
	defer mr.Close()
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	// A viewer's profile does not grant analysisProgress, so requesting it
	// alongside riskAlerts should only grant the latter.
	token, err := hub.signer.Issue(user.User{ID: "u3", OrganizationID: "org3", Role: user.RoleViewer})
	require.NoError(t, err)
	conn := dialAndAuthenticate(t, server, token)
	defer conn.Close()

	var ack serverMessage
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, msgAuthenticated, ack.Type)

	require.NoError(t, conn.WriteJSON(clientMessage{
		Type: clientMsgUpdateSubscriptions,
		Data: mustJSON(t, updateSubscriptionsPayload{Topics: []string{string(TopicRiskAlerts), string(TopicAnalysisProgress)}}),
	}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp serverMessage
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, msgSubscriptionsUpdated, resp.Type)
	require.Equal(t, "org3", resp.OrganizationID)

	raw, err := json.Marshal(resp.Payload)
	require.NoError(t, err)
	var payload subscriptionsUpdatedPayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.Equal(t, []string{string(TopicRiskAlerts)}, payload.Topics)
}
