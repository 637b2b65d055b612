package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"finance_notification_service/internal/domain/delivery"
)

// HTTPPushSender posts multicast push messages to an FCM-compatible
// gateway and maps per-token results back to the caller. Tokens the
// gateway reports as unregistered are flagged invalid so the device
// registry can drop them.
type HTTPPushSender struct {
	endpoint  string
	serverKey string
	client    *http.Client
}

func NewHTTPPushSender(endpoint, serverKey string) *HTTPPushSender {
	return &HTTPPushSender{
		endpoint:  endpoint,
		serverKey: serverKey,
		client:    &http.Client{},
	}
}

type pushRequest struct {
	RegistrationIDs []string          `json:"registration_ids"`
	Notification    pushNotification  `json:"notification"`
	Data            map[string]string `json:"data,omitempty"`
}

type pushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type pushResponse struct {
	Results []struct {
		MessageID string `json:"message_id,omitempty"`
		Error     string `json:"error,omitempty"`
	} `json:"results"`
}

func (s *HTTPPushSender) Send(ctx context.Context, tokens []string, title, body string, data map[string]string) ([]delivery.PushResult, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(pushRequest{
		RegistrationIDs: tokens,
		Notification:    pushNotification{Title: title, Body: body},
		Data:            data,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+s.serverKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("push gateway returned status %d", resp.StatusCode)
	}

	var parsed pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding push response: %w", err)
	}

	results := make([]delivery.PushResult, 0, len(tokens))
	for i, token := range tokens {
		res := delivery.PushResult{Token: token}
		if i < len(parsed.Results) && parsed.Results[i].Error != "" {
			gatewayErr := parsed.Results[i].Error
			res.Err = fmt.Errorf("push gateway error: %s", gatewayErr)
			res.Invalid = gatewayErr == "NotRegistered" || gatewayErr == "InvalidRegistration"
		}
		results = append(results, res)
	}
	return results, nil
}
