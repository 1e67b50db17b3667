package types

import (
	"time"
)

// ItemStatus tracks a queued message through its delivery lifecycle.
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusInFlight  ItemStatus = "in_flight"
	ItemStatusDelivered ItemStatus = "delivered"
	ItemStatusExhausted ItemStatus = "exhausted"
)

// PayloadKind discriminates the message payload variants.
type PayloadKind string

const (
	PayloadKindText   PayloadKind = "text"
	PayloadKindImage  PayloadKind = "image"
	PayloadKindSystem PayloadKind = "system"
)

// ImageMeta carries the remote-ready image data populated by the upload step,
// or a local file reference when the upload has not happened yet.
type ImageMeta struct {
	URL          string `json:"url,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	LocalPath    string `json:"localPath,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	SizeBytes    int64  `json:"sizeBytes,omitempty"`
	MimeType     string `json:"mimeType,omitempty"`
}

// MessagePayload is a tagged variant: exactly one of the optional fields is
// populated according to Kind. System messages carry their text in Text.
type MessagePayload struct {
	Kind  PayloadKind `json:"kind"`
	Text  string      `json:"text,omitempty"`
	Image *ImageMeta  `json:"image,omitempty"`
}

// QueuedMessage is the unit of work: an outbound message that has not yet been
// confirmed by the backend.
type QueuedMessage struct {
	LocalID        string         `json:"localId"`
	ConversationID string         `json:"conversationId"`
	SenderID       string         `json:"senderId"`
	SenderName     string         `json:"senderName"`
	Payload        MessagePayload `json:"payload"`
	ReplyTo        *string        `json:"replyTo,omitempty"`
	EnqueuedAt     time.Time      `json:"enqueuedAt"`
	AttemptCount   int            `json:"attemptCount"`
	LastAttemptAt  time.Time      `json:"lastAttemptAt"`
	MaxAttempts    int            `json:"maxAttempts"`
	Status         ItemStatus     `json:"status"`
}

// ConnectivityState is the normalized view of the OS reachability signal.
// It is ephemeral and recomputed on every signal change, never persisted.
type ConnectivityState struct {
	Connected         bool  `json:"connected"`
	InternetReachable *bool `json:"internetReachable,omitempty"`
}

// IsOnline reports whether the device is usable for delivery attempts.
// Unknown internet reachability is treated as reachable.
func (s ConnectivityState) IsOnline() bool {
	return s.Connected && (s.InternetReachable == nil || *s.InternetReachable)
}

// DeliveryEvent is published to subscribers when a queued message settles
// terminally: either delivered (RemoteID set) or failed (Err set).
type DeliveryEvent struct {
	LocalID  string
	RemoteID string
	Err      error
}

// Delivered reports whether the event is a successful delivery.
func (e DeliveryEvent) Delivered() bool {
	return e.Err == nil
}
