package notifier_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rescuemesh/notification-service/internal/domain/notification"
	"github.com/rescuemesh/notification-service/internal/profile"
	"github.com/rescuemesh/notification-service/internal/services/notifier"
)

func TestMapEvent_SOSRequest(t *testing.T) {
	m := notifier.NewMapper(nil, zap.NewNop())

	req := m.MapEvent(context.Background(), notifier.Envelope{
		Event: "sos_request",
		Data: map[string]any{
			"recipientId":    "vol-1",
			"recipientPhone": "+15550002222",
			"urgency":        "critical",
			"channels":       []any{"sms", "whatsapp"},
		},
	})

	assert.Equal(t, "vol-1", req.RecipientID)
	assert.Equal(t, "+15550002222", req.RecipientPhone)
	assert.Equal(t, notification.TypeSOSRequest, req.Type)
	assert.Equal(t, notification.PriorityHigh, req.Priority)
	assert.Equal(t, []notification.Channel{notification.ChannelSMS, notification.ChannelWhatsApp}, req.Channels)
}

func TestMapEvent_DisasterAlertIsAlwaysHigh(t *testing.T) {
	m := notifier.NewMapper(nil, zap.NewNop())

	req := m.MapEvent(context.Background(), notifier.Envelope{
		Event: "disaster_alert",
		Data:  map[string]any{"recipientId": "user-9"},
	})

	assert.Equal(t, notification.TypeDisasterAlert, req.Type)
	assert.Equal(t, notification.PriorityHigh, req.Priority)
	assert.Equal(t, notification.DefaultChannels(), req.Channels)
}

func TestMapEvent_MatchAcceptedIsPushOnly(t *testing.T) {
	m := notifier.NewMapper(nil, zap.NewNop())

	req := m.MapEvent(context.Background(), notifier.Envelope{
		Event: "match_accepted",
		Data:  map[string]any{"recipientId": "req-owner"},
	})

	assert.Equal(t, notification.TypeMatchAccepted, req.Type)
	assert.Equal(t, []notification.Channel{notification.ChannelPush}, req.Channels)
	assert.Equal(t, notification.PriorityMedium, req.Priority)
}

func TestMapEvent_UnknownEventIsGenericDispatch(t *testing.T) {
	m := notifier.NewMapper(nil, zap.NewNop())

	req := m.MapEvent(context.Background(), notifier.Envelope{
		Event: "user.updated",
		Data: map[string]any{
			"recipientId": "user-1",
			"type":        "account_update",
			"priority":    "low",
			"channels":    []any{"push"},
			"data":        map[string]any{"message": "Profile changed"},
		},
	})

	assert.Equal(t, "user-1", req.RecipientID)
	assert.Equal(t, notification.Type("account_update"), req.Type)
	assert.Equal(t, notification.Priority("low"), req.Priority)
	assert.Equal(t, []notification.Channel{notification.ChannelPush}, req.Channels)
	assert.Equal(t, map[string]any{"message": "Profile changed"}, req.Payload)
}

func TestMapEvent_MatchCreatedWithoutLookupDegrades(t *testing.T) {
	m := notifier.NewMapper(nil, zap.NewNop())

	req := m.MapEvent(context.Background(), notifier.Envelope{
		Event: "match.created",
		Data: map[string]any{
			"matchId":     "match-7",
			"requestId":   "req-7",
			"volunteerId": "vol-7",
			"skillType":   "medical",
		},
	})

	assert.Equal(t, "vol-7", req.RecipientID)
	assert.Equal(t, notification.TypeSOSMatch, req.Type)
	assert.Equal(t, notification.DefaultChannels(), req.Channels)

	msg, _ := req.Payload["message"].(string)
	assert.Equal(t, "You have been matched to an emergency request. medical needed at location. Urgency: high", msg)
	assert.Equal(t, "https://app.rescuemesh.com/requests/req-7", req.Payload["actionUrl"])
	_, hasLocation := req.Payload["location"]
	assert.False(t, hasLocation)
}

func TestMapEvent_MatchCreatedEnrichedFromSOSService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/sos/requests/req-42", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"urgency":"critical","location":{"latitude":48.85,"longitude":2.35}}`))
	}))
	defer srv.Close()

	sos := profile.NewSOSClient(profile.Config{BaseURL: srv.URL}, srv.Client())
	m := notifier.NewMapper(sos, zap.NewNop())

	req := m.MapEvent(context.Background(), notifier.Envelope{
		Event: "match.created",
		Data: map[string]any{
			"matchId":      "match-42",
			"requestId":    "req-42",
			"volunteerId":  "vol-42",
			"resourceType": "water",
		},
	})

	assert.Equal(t, notification.PriorityHigh, req.Priority)
	msg, _ := req.Payload["message"].(string)
	assert.Equal(t, "You have been matched to an emergency request. water needed at 48.85, 2.35. Urgency: critical", msg)
	loc, ok := req.Payload["location"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 48.85, loc["latitude"])
	assert.Equal(t, 2.35, loc["longitude"])
}

func TestMapEvent_MatchCreatedLookupFailureFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sos := profile.NewSOSClient(profile.Config{BaseURL: srv.URL}, srv.Client())
	m := notifier.NewMapper(sos, zap.NewNop())

	req := m.MapEvent(context.Background(), notifier.Envelope{
		Event: "match.created",
		Data:  map[string]any{"requestId": "req-1", "volunteerId": "vol-1", "skillType": "rescue"},
	})

	assert.Equal(t, notification.PriorityMedium, req.Priority)
	msg, _ := req.Payload["message"].(string)
	assert.Contains(t, msg, "Urgency: high")
}
