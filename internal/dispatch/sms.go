package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/matchguard/matchguard/params"
)

// HTTPSMSSender posts one-time codes to an SMS gateway.
type HTTPSMSSender struct {
	client     *http.Client
	gatewayURL string
	apiKey     string
	senderID   string
}

type smsGatewayRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Message string `json:"message"`
}

func (s *HTTPSMSSender) Send(ctx context.Context, destination string, code string, purpose string) (Receipt, error) {
	receipt := Receipt{
		MaskedDestination: MaskDestination(destination),
		ExpiresAt:         time.Now().Add(params.TwoFactorSMSCodeTTL),
	}

	payload, err := json.Marshal(smsGatewayRequest{
		To:      destination,
		From:    s.senderID,
		Message: fmt.Sprintf("%s is your verification code. It expires in %d minutes.", code, int(params.TwoFactorSMSCodeTTL.Minutes())),
	})
	if err != nil {
		return receipt, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.gatewayURL, bytes.NewReader(payload))
	if err != nil {
		return receipt, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return receipt, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return receipt, fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}

	receipt.Success = true
	return receipt, nil
}

func NewHTTPSMSSender(gatewayURL, apiKey, senderID string) *HTTPSMSSender {
	return &HTTPSMSSender{
		client:     &http.Client{Timeout: 10 * time.Second},
		gatewayURL: gatewayURL,
		apiKey:     apiKey,
		senderID:   senderID,
	}
}
