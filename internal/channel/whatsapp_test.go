package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescuemesh/notification-service/internal/domain/notification"
)

func TestWhatsAppSender_Send(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody waRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer srv.Close()

	s := NewWhatsAppSender(WhatsAppConfig{BaseURL: srv.URL, Token: "tok", PhoneID: "12345"}, srv.Client())
	ref, err := s.Send(context.Background(),
		notification.Target{RecipientID: "u1", Phone: "+15550003333"},
		"Emergency Match: shelter needed", nil)
	require.NoError(t, err)

	assert.Equal(t, "wamid.1", ref)
	assert.Equal(t, "/12345/messages", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "whatsapp", gotBody.MessagingProduct)
	assert.Equal(t, "+15550003333", gotBody.To)
	assert.Equal(t, "text", gotBody.Type)
	assert.Equal(t, "Emergency Match: shelter needed", gotBody.Text.Body)
}

func TestWhatsAppSender_NoPhoneIsTargetMissing(t *testing.T) {
	s := NewWhatsAppSender(WhatsAppConfig{BaseURL: "http://wa.local", Token: "tok", PhoneID: "1"}, nil)
	_, err := s.Send(context.Background(), notification.Target{RecipientID: "u1"}, "msg", nil)
	require.Error(t, err)
	assert.Equal(t, notification.FailTargetMissing, Classify(err))
}

func TestWhatsAppSender_APIErrorIsProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewWhatsAppSender(WhatsAppConfig{BaseURL: srv.URL, Token: "bad", PhoneID: "1"}, srv.Client())
	_, err := s.Send(context.Background(), notification.Target{Phone: "+15550003333"}, "msg", nil)
	require.Error(t, err)
	assert.Equal(t, notification.FailProvider, Classify(err))
}
