package odin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier_Verify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, verifyPath, r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-Api-Key"))

		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["token"] != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"user_id":" u1 ","email":"a@b.c","phone":"+5491100000000","timezone":"America/Argentina/Buenos_Aires"}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)
	v := NewVerifier(c)

	claims, err := v.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "a@b.c", claims.Email)
	assert.Equal(t, "+5491100000000", claims.Phone)
	assert.Equal(t, "America/Argentina/Buenos_Aires", claims.Timezone)

	_, err = v.Verify(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrOdinUnauthorized)

	_, err = v.Verify(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrTokenEmpty)
}
