package dispatch

import "github.com/rescuemesh/notification-service/internal/domain/notification"

const genericMessage = "Notification from RescueMesh"

var messageTemplates = map[notification.Type]struct {
	prefix   string
	fallback string
}{
	notification.TypeSOSMatch:      {"Emergency Match: ", "You have been matched to an emergency request"},
	notification.TypeSOSRequest:    {"New SOS Request: ", "Emergency assistance needed"},
	notification.TypeDisasterAlert: {"Disaster Alert: ", "New disaster in your area"},
	notification.TypeMatchAccepted: {"Match Accepted: ", "A volunteer has accepted your match"},
}

// BuildMessage renders the human-readable text for a notification. It is
// total: unknown types and missing payload fields degrade to fallback
// wording, never an error.
func BuildMessage(t notification.Type, payload map[string]any) string {
	body, _ := payload["message"].(string)

	tpl, ok := messageTemplates[t]
	if !ok {
		if body != "" {
			return body
		}
		return genericMessage
	}
	if body == "" {
		body = tpl.fallback
	}
	return tpl.prefix + body
}
