package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SMSConfig holds the HTTP gateway settings.
type SMSConfig struct {
	URL      string
	APIKey   string
	Type     string
	SenderID string
}

// smsAccepted is the gateway's response_code for a queued message.
const smsAccepted = 202

type smsRequest struct {
	APIKey   string `json:"api_key"`
	Type     string `json:"type"`
	Number   string `json:"number"`
	SenderID string `json:"senderid"`
	Message  string `json:"message"`
}

type smsResponse struct {
	ResponseCode   int    `json:"response_code"`
	SuccessMessage string `json:"success_message"`
	ErrorMessage   string `json:"error_message"`
}

// SMSGateway posts messages to a JSON-over-HTTP SMS provider.
type SMSGateway struct {
	cfg    SMSConfig
	client *http.Client
}

// NewSMSGateway uses a client with a 10s timeout when client is nil.
func NewSMSGateway(cfg SMSConfig, client *http.Client) *SMSGateway {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SMSGateway{cfg: cfg, client: client}
}

func (g *SMSGateway) Send(ctx context.Context, to string, msg Message) error {
	body, err := json.Marshal(smsRequest{
		APIKey:   g.cfg.APIKey,
		Type:     g.cfg.Type,
		Number:   to,
		SenderID: g.cfg.SenderID,
		Message:  msg.Body,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway status %d", resp.StatusCode)
	}
	var out smsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode sms gateway response: %w", err)
	}
	if out.ResponseCode != smsAccepted {
		return fmt.Errorf("sms gateway rejected message (code %d): %s", out.ResponseCode, out.ErrorMessage)
	}
	return nil
}
