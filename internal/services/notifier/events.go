package notifier

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rescuemesh/notification-service/internal/dispatch"
	"github.com/rescuemesh/notification-service/internal/domain/notification"
	"github.com/rescuemesh/notification-service/internal/profile"
)

const actionURLBase = "https://app.rescuemesh.com/requests/"

// Envelope is the inbound queue message: event selects the mapping,
// data is the event payload.
type Envelope struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// Mapper turns inbound events into dispatch requests. Unrecognized events
// fall back to a generic dispatch of the raw data.
type Mapper struct {
	sos *profile.SOSClient
	log *zap.Logger
}

func NewMapper(sos *profile.SOSClient, log *zap.Logger) *Mapper {
	if log == nil {
		log = zap.L()
	}
	return &Mapper{sos: sos, log: log.With(zap.String("component", "notifier.mapper"))}
}

func (m *Mapper) MapEvent(ctx context.Context, env Envelope) dispatch.Request {
	switch env.Event {
	case "match.created":
		return m.mapMatchCreated(ctx, env.Data)
	case "sos_request":
		return dispatch.Request{
			RecipientID:    str(env.Data, "recipientId"),
			RecipientPhone: str(env.Data, "recipientPhone"),
			Channels:       channels(env.Data),
			Type:           notification.TypeSOSRequest,
			Priority:       priorityFromUrgency(str(env.Data, "urgency")),
			Payload:        env.Data,
		}
	case "disaster_alert":
		return dispatch.Request{
			RecipientID:    str(env.Data, "recipientId"),
			RecipientPhone: str(env.Data, "recipientPhone"),
			Channels:       notification.DefaultChannels(),
			Type:           notification.TypeDisasterAlert,
			Priority:       notification.PriorityHigh,
			Payload:        env.Data,
		}
	case "match_accepted":
		return dispatch.Request{
			RecipientID: str(env.Data, "recipientId"),
			Channels:    []notification.Channel{notification.ChannelPush},
			Type:        notification.TypeMatchAccepted,
			Priority:    notification.PriorityMedium,
			Payload:     env.Data,
		}
	default:
		// generic dispatch: data is the request
		return dispatch.Request{
			RecipientID:    str(env.Data, "recipientId"),
			RecipientPhone: str(env.Data, "recipientPhone"),
			Channels:       channels(env.Data),
			Type:           notification.Type(str(env.Data, "type")),
			Priority:       notification.Priority(str(env.Data, "priority")),
			Payload:        payloadOf(env.Data),
		}
	}
}

// mapMatchCreated enriches the volunteer notification with the SOS
// request's urgency and location. The lookup is best-effort.
func (m *Mapper) mapMatchCreated(ctx context.Context, data map[string]any) dispatch.Request {
	requestID := str(data, "requestId")

	var urgency string
	location := "location"
	var details *profile.SOSRequest
	if m.sos != nil && requestID != "" {
		var err error
		details, err = m.sos.GetRequest(ctx, requestID)
		if err != nil {
			m.log.Warn("could not fetch request details", zap.String("request_id", requestID), zap.Error(err))
		}
	}
	if details != nil {
		urgency = details.Urgency
		if details.Location != nil {
			location = fmt.Sprintf("%v, %v", details.Location.Latitude, details.Location.Longitude)
		}
	}
	if urgency == "" {
		urgency = "high"
	}

	need := str(data, "skillType")
	if need == "" {
		need = str(data, "resourceType")
	}
	message := fmt.Sprintf("You have been matched to an emergency request. %s needed at %s. Urgency: %s", need, location, urgency)

	payload := map[string]any{
		"matchId":   data["matchId"],
		"requestId": requestID,
		"message":   message,
		"actionUrl": actionURLBase + requestID,
	}
	if details != nil && details.Location != nil {
		payload["location"] = map[string]any{
			"latitude":  details.Location.Latitude,
			"longitude": details.Location.Longitude,
		}
	}

	return dispatch.Request{
		RecipientID: str(data, "volunteerId"),
		Channels:    notification.DefaultChannels(),
		Type:        notification.TypeSOSMatch,
		Priority:    priorityFromUrgency(urgency),
		Payload:     payload,
	}
}

func priorityFromUrgency(urgency string) notification.Priority {
	if urgency == "critical" {
		return notification.PriorityHigh
	}
	return notification.PriorityMedium
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func channels(m map[string]any) []notification.Channel {
	raw, ok := m["channels"].([]any)
	if !ok {
		return nil
	}
	out := make([]notification.Channel, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, notification.Channel(s))
		}
	}
	return out
}

func payloadOf(m map[string]any) map[string]any {
	if p, ok := m["data"].(map[string]any); ok {
		return p
	}
	return m
}
