package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medication-reminder/internal/notify"
)

func TestSender_Send(t *testing.T) {
	var got deviceCommand
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/devices/esp32-01/notify", r.URL.Path)
		assert.Equal(t, "gw-key", r.Header.Get("X-Api-Key"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s, err := New(Config{BaseURL: srv.URL, APIKey: "gw-key"})
	require.NoError(t, err)

	err = s.Send(context.Background(), notify.Notification{
		ID:              "n1",
		Kind:            notify.KindLowSupply,
		MedicationID:    "m1",
		MedicationName:  "Levothyroxine",
		InventoryStatus: "below_threshold",
		Recipient:       notify.Recipient{DeviceID: "esp32-01"},
	})
	require.NoError(t, err)

	assert.Equal(t, "low_supply", got.Kind)
	assert.True(t, got.Alert)
	assert.Equal(t, "Levothyroxine is running low", got.Message)
}

func TestSender_GatewayDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	err = s.Send(context.Background(), notify.Notification{Recipient: notify.Recipient{DeviceID: "d1"}})
	assert.ErrorContains(t, err, "status=502")
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
