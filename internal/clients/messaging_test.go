package clients

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendMessageToMember(t *testing.T) {
	memberID := uuid.New()
	var got messageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewMessagingClient(srv.URL, discardLogger())
	require.NoError(t, client.SendMessageToMember(context.Background(), memberID, "Votre adhésion a été validée."))
	assert.Equal(t, memberID, got.MemberID)
	assert.Equal(t, "Votre adhésion a été validée.", got.Text)
}

func TestSendMessageToMemberOpensBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewMessagingClient(srv.URL, discardLogger())
	ctx := context.Background()
	for range 3 {
		err := client.SendMessageToMember(ctx, uuid.New(), "bonjour")
		require.ErrorContains(t, err, "unexpected status code: 502")
		assert.NotErrorIs(t, err, ErrUnavailable)
	}

	err := client.SendMessageToMember(ctx, uuid.New(), "bonjour")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(3), calls.Load(), "open breaker must not reach the service")
}
