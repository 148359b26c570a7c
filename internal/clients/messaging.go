// internal/clients/messaging.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned while the messaging service is considered down.
var ErrUnavailable = errors.New("messaging service unavailable")

// MessagingClient posts messages to members through the mosque messaging
// service. Calls go through a circuit breaker so a dead messaging service does
// not slow down the admin actions that trigger them.
type MessagingClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

func NewMessagingClient(baseURL string, logger *slog.Logger) *MessagingClient {
	return &MessagingClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "messaging",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
		}),
	}
}

type messageRequest struct {
	MemberID uuid.UUID `json:"member_id"`
	Text     string    `json:"text"`
}

// SendMessageToMember delivers text to the member's inbox.
func (c *MessagingClient) SendMessageToMember(ctx context.Context, memberID uuid.UUID, text string) error {
	body, err := json.Marshal(messageRequest{MemberID: memberID, Text: text})
	if err != nil {
		return err
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.post(ctx, "/messages", body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func (c *MessagingClient) post(ctx context.Context, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}
