package api

import (
	"github.com/rescuemesh/notification-service/internal/dispatch"
	"github.com/rescuemesh/notification-service/internal/domain/notification"
)

type SendRequest struct {
	RecipientID    string         `json:"recipientId" validate:"required"`
	RecipientPhone string         `json:"recipientPhone"`
	Channels       []string       `json:"channels" validate:"omitempty,dive,oneof=sms push whatsapp"`
	Type           string         `json:"type" validate:"required,oneof=sos_match sos_request disaster_alert match_accepted"`
	Priority       string         `json:"priority" validate:"omitempty,oneof=high medium low"`
	Data           map[string]any `json:"data"`
}

type BatchRecipient struct {
	RecipientID    string `json:"recipientId" validate:"required"`
	RecipientPhone string `json:"recipientPhone"`
}

type BatchRequest struct {
	Recipients []BatchRecipient `json:"recipients" validate:"required,min=1,dive"`
	Channels   []string         `json:"channels" validate:"omitempty,dive,oneof=sms push whatsapp"`
	Type       string           `json:"type" validate:"required,oneof=sos_match sos_request disaster_alert match_accepted"`
	Data       map[string]any   `json:"data"`
}

func (r *SendRequest) ToDispatch() dispatch.Request {
	return dispatch.Request{
		RecipientID:    r.RecipientID,
		RecipientPhone: r.RecipientPhone,
		Channels:       toChannels(r.Channels),
		Type:           notification.Type(r.Type),
		Priority:       notification.Priority(r.Priority),
		Payload:        r.Data,
	}
}

func (r *BatchRequest) ToDispatch() []dispatch.Request {
	out := make([]dispatch.Request, 0, len(r.Recipients))
	for _, rec := range r.Recipients {
		out = append(out, dispatch.Request{
			RecipientID:    rec.RecipientID,
			RecipientPhone: rec.RecipientPhone,
			Channels:       toChannels(r.Channels),
			Type:           notification.Type(r.Type),
			Payload:        r.Data,
		})
	}
	return out
}

func toChannels(in []string) []notification.Channel {
	if len(in) == 0 {
		return nil
	}
	out := make([]notification.Channel, 0, len(in))
	for _, s := range in {
		out = append(out, notification.Channel(s))
	}
	return out
}
