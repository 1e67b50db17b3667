// Package docstore adapts the remote document-store message API to the
// queue's DeliveryTransport interface. Error classification happens here, at
// the boundary where the backend's responses are understood, so the retry
// policy upstream never inspects error text.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"sendqueue/internal/constants"
	"sendqueue/pkg/queue/types"
)

type Client struct {
	baseURL string
	client  *http.Client
}

type sendMessageRequest struct {
	SenderID   string               `json:"senderId"`
	SenderName string               `json:"senderName"`
	Payload    types.MessagePayload `json:"payload"`
	ReplyTo    *string              `json:"replyTo,omitempty"`
}

type sendMessageResponse struct {
	MessageID string `json:"messageId"`
	Error     string `json:"error,omitempty"`
}

// NewClient creates a transport against the document-store API at baseURL.
// The backend writes the message document and updates the conversation's
// last-message pointer in one call, so the write is atomic from our side.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: constants.DefaultHTTPTimeoutSec * time.Second,
		},
	}
}

// Send hands one queued message to the backend and returns the remote id it
// assigned.
func (c *Client) Send(ctx context.Context, msg *types.QueuedMessage) (string, error) {
	payload := sendMessageRequest{
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Payload:    msg.Payload,
		ReplyTo:    msg.ReplyTo,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", types.WrapPermanent(err, types.ErrCodeValidation, "failed to marshal message payload")
	}

	endpoint := fmt.Sprintf("%s/v1/conversations/%s/messages", c.baseURL, url.PathEscape(msg.ConversationID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", types.WrapPermanent(err, types.ErrCodeValidation, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", classifyRequestError(err)
	}
	defer resp.Body.Close()

	var result sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil && resp.StatusCode == http.StatusOK {
		return "", types.WrapTransient(err, types.ErrCodeNetwork, "failed to decode response")
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, result.Error)
	}

	if result.MessageID == "" {
		return "", types.NewTransient(types.ErrCodeNetwork, "backend accepted the write but returned no message id")
	}

	return result.MessageID, nil
}

// classifyRequestError maps connection-level failures: DNS errors, refused
// connections, and timeouts are all transient.
func classifyRequestError(err error) *types.DeliveryError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.WrapTransient(err, types.ErrCodeTimeout, "request timed out")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.WrapTransient(err, types.ErrCodeTimeout, "request timed out")
	}
	return types.WrapTransient(err, types.ErrCodeNetwork, "request failed")
}

// classifyStatus maps the backend's HTTP status codes onto the delivery error
// taxonomy. Anything unrecognized stays transient so a surprising backend
// response never drops a user's message.
func classifyStatus(status int, backendMessage string) *types.DeliveryError {
	if backendMessage == "" {
		backendMessage = http.StatusText(status)
	}
	message := fmt.Sprintf("backend returned %d: %s", status, backendMessage)

	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return types.NewPermanent(types.ErrCodeValidation, message)
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.NewPermanent(types.ErrCodeUnauthorized, message)
	case http.StatusPaymentRequired:
		return types.NewPermanent(types.ErrCodeQuota, message)
	case http.StatusRequestTimeout:
		return types.NewTransient(types.ErrCodeTimeout, message)
	case http.StatusTooManyRequests:
		return types.NewTransient(types.ErrCodeUnavailable, message)
	}

	if status >= 500 {
		return types.NewTransient(types.ErrCodeUnavailable, message)
	}

	return types.NewTransient(types.ErrCodeNetwork, message)
}
