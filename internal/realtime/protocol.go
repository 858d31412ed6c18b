package realtime

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shadowtrace/discovery-platform/internal/domain/user"
)

// Topic is one of the five subscription channels a connection's role
// profile (user.SubscriptionProfile) may grant access to (§4.9).
type Topic string

const (
	TopicAnalysisProgress   Topic = "analysisProgress"
	TopicChainDetection     Topic = "chainDetection"
	TopicRiskAlerts         Topic = "riskAlerts"
	TopicExecutiveUpdates   Topic = "executiveUpdates"
	TopicPerformanceMetrics Topic = "performanceMetrics"
)

// allowed reports whether profile grants subscription to topic. An unknown
// topic is never allowed.
func allowed(profile user.SubscriptionProfile, topic string) bool {
	switch Topic(topic) {
	case TopicAnalysisProgress:
		return profile.AnalysisProgress
	case TopicChainDetection:
		return profile.ChainDetection
	case TopicRiskAlerts:
		return profile.RiskAlerts
	case TopicExecutiveUpdates:
		return profile.ExecutiveUpdates
	case TopicPerformanceMetrics:
		return profile.PerformanceMetrics
	default:
		return false
	}
}

// categoryForEventType maps a published message's type (§6's event
// vocabulary, e.g. "discovery.completed", "risk.changed") onto the
// subscription category that gates its delivery. A connection subscribes to
// one of the five Topic categories; a message's own type names the specific
// event within that category, so the two are deliberately distinct axes.
// An event type that matches no category is never delivered.
func categoryForEventType(eventType string) Topic {
	switch {
	case strings.HasPrefix(eventType, "discovery."):
		return TopicAnalysisProgress
	case strings.HasPrefix(eventType, "correlation"):
		return TopicChainDetection
	case eventType == msgDetectionNew, eventType == msgRiskChanged:
		return TopicRiskAlerts
	default:
		return ""
	}
}

// ErrorCode is one of the three typed handshake failures §4.9 names.
type ErrorCode string

const (
	ErrInvalidToken ErrorCode = "INVALID_TOKEN"
	ErrOrgMismatch  ErrorCode = "ORG_MISMATCH"
	ErrTokenMissing ErrorCode = "TOKEN_MISSING"
)

// clientMessage is the envelope for every message a client sends.
type clientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	clientMsgAuthenticate        = "authenticate"
	clientMsgUpdateSubscriptions = "update_subscriptions"
	clientMsgPing                = "ping"
)

// authenticatePayload is the handshake's required first message.
type authenticatePayload struct {
	Token string `json:"token"`
}

// updateSubscriptionsPayload narrows a connection's active topic set,
// always intersected with its role's allowed profile (§4.9: "may later
// narrow subscriptions within its role's allowed set").
type updateSubscriptionsPayload struct {
	Topics []string `json:"topics"`
}

// serverMessage is the envelope for every message the hub sends, §6's exact
// wire contract: {type, organizationId, payload, ts}.
type serverMessage struct {
	Type           string      `json:"type"`
	OrganizationID string      `json:"organizationId,omitempty"`
	Payload        interface{} `json:"payload,omitempty"`
	Timestamp      time.Time   `json:"ts"`
}

// Connection-lifecycle message types this package constructs directly.
// Business event types are published verbatim through Publish and pass
// straight through as serverMessage.Type. discoveryengine publishes
// discovery.started, correlation:started, discovery.completed and
// discovery.failed; nothing in the module publishes discovery.progress,
// detection.new or risk.changed.
const (
	msgAuthenticated        = "authenticated"
	msgAuthenticationError  = "authentication_error"
	msgSubscriptionsUpdated = "subscriptions_updated"
	msgPong                 = "pong"

	msgCorrelationStarted = "correlation:started"
	msgDiscoveryProgress  = "discovery.progress"
	msgDetectionNew       = "detection.new"
	msgRiskChanged        = "risk.changed"
	msgDiscoveryCompleted = "discovery.completed"
)

type connectedPayload struct {
	UserID              string                   `json:"userId"`
	OrganizationID      string                   `json:"organizationId"`
	SubscriptionProfile user.SubscriptionProfile `json:"subscriptionProfile"`
}

type subscriptionsUpdatedPayload struct {
	Topics []string `json:"topics"`
}

type errorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// eventEnvelope is the wire shape Publish fans out, and what is carried over
// the Redis pub/sub channel between API instances.
type eventEnvelope struct {
	OrganizationID string                 `json:"organization_id"`
	Topic          string                 `json:"topic"`
	Payload        map[string]interface{} `json:"payload"`
	PublishedAt    time.Time              `json:"published_at"`
}

func redisChannelFor(organizationID string) string {
	return "org:" + organizationID
}
