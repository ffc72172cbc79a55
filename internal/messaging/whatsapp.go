package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// WhatsAppGateway sends messages through the clinic platform's WhatsApp
// HTTP gateway. Calls run behind a circuit breaker so a dead gateway
// fails fast instead of stalling every promotion attempt.
type WhatsAppGateway struct {
	baseURL string
	token   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
	log     *zap.Logger
}

func NewWhatsAppGateway(baseURL, token string, log *zap.Logger) *WhatsAppGateway {
	g := &WhatsAppGateway{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}

	g.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "whatsapp-gateway",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return g
}

type sendRequest struct {
	Phone    string `json:"phone"`
	Message  string `json:"message"`
	ClinicID string `json:"clinic_id"`
	Type     string `json:"type"`
}

type sendResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (g *WhatsAppGateway) Send(ctx context.Context, m Message) error {
	_, err := g.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, g.post(ctx, m)
	})
	return err
}

func (g *WhatsAppGateway) post(ctx context.Context, m Message) error {
	body, err := json.Marshal(sendRequest{
		Phone:    m.Phone,
		Message:  m.Body,
		ClinicID: m.ClinicID.String(),
		Type:     m.Kind,
	})
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.token)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp gateway returned %d: %s", resp.StatusCode, raw)
	}

	var parsed sendResponse
	if err := json.Unmarshal(raw, &parsed); err == nil && !parsed.Success && parsed.Error != "" {
		return fmt.Errorf("whatsapp gateway rejected message: %s", parsed.Error)
	}

	return nil
}
