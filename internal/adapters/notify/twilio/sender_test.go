package twilio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medication-reminder/internal/notify"
)

func TestSender_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "tok", pass)

		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "+5491100000000", r.PostForm.Get("To"))
		assert.Equal(t, "+15550001111", r.PostForm.Get("From"))
		assert.Contains(t, r.PostForm.Get("Body"), "Amoxicillin")

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer srv.Close()

	s, err := New(Config{BaseURL: srv.URL, AccountSID: "AC123", AuthToken: "tok", From: "+15550001111"})
	require.NoError(t, err)

	err = s.Send(context.Background(), notify.Notification{
		Kind:           notify.KindDoseDue,
		MedicationName: "Amoxicillin",
		Recipient:      notify.Recipient{Phone: "+5491100000000"},
	})
	require.NoError(t, err)
}

func TestSender_FailedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sid":"SM2","status":"failed"}`))
	}))
	defer srv.Close()

	s, err := New(Config{BaseURL: srv.URL, AccountSID: "AC1", AuthToken: "tok", From: "MGservice"})
	require.NoError(t, err)

	err = s.Send(context.Background(), notify.Notification{Recipient: notify.Recipient{Phone: "+1"}})
	assert.ErrorContains(t, err, "failed")
}

func TestSender_NoPhone(t *testing.T) {
	s, err := New(Config{AccountSID: "AC1", AuthToken: "tok", From: "+1"})
	require.NoError(t, err)
	assert.ErrorIs(t, s.Send(context.Background(), notify.Notification{}), notify.ErrNoRecipient)
}
