package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestConnectivityState_IsOnline(t *testing.T) {
	tests := []struct {
		name   string
		state  ConnectivityState
		online bool
	}{
		{"disconnected", ConnectivityState{Connected: false}, false},
		{"connected, reachability unknown", ConnectivityState{Connected: true}, true},
		{"connected and reachable", ConnectivityState{Connected: true, InternetReachable: boolPtr(true)}, true},
		{"connected but not reachable", ConnectivityState{Connected: true, InternetReachable: boolPtr(false)}, false},
		{"disconnected but reachable flag set", ConnectivityState{Connected: false, InternetReachable: boolPtr(true)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.online, tt.state.IsOnline())
		})
	}
}

func TestQueuedMessage_ImagePayloadRoundTrip(t *testing.T) {
	replyTo := "msg-42"
	msg := QueuedMessage{
		LocalID:        "local-1",
		ConversationID: "conv-1",
		SenderID:       "user-7",
		SenderName:     "Ada",
		Payload: MessagePayload{
			Kind: PayloadKindImage,
			Image: &ImageMeta{
				URL:          "https://cdn.example.com/img.jpg",
				ThumbnailURL: "https://cdn.example.com/img_thumb.jpg",
				Width:        1024,
				Height:       768,
				SizeBytes:    204800,
				MimeType:     "image/jpeg",
			},
		},
		ReplyTo:       &replyTo,
		EnqueuedAt:    time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
		LastAttemptAt: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
		MaxAttempts:   5,
		Status:        ItemStatusPending,
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded QueuedMessage
	require.NoError(t, json.Unmarshal(data, &decoded))

	// Image metadata must survive the queued path in full.
	assert.Equal(t, msg, decoded)
	require.NotNil(t, decoded.Payload.Image)
	assert.Equal(t, "https://cdn.example.com/img_thumb.jpg", decoded.Payload.Image.ThumbnailURL)
	assert.Equal(t, 1024, decoded.Payload.Image.Width)
}

func TestDeliveryEvent_Delivered(t *testing.T) {
	assert.True(t, DeliveryEvent{LocalID: "a", RemoteID: "r"}.Delivered())
	assert.False(t, DeliveryEvent{LocalID: "a", Err: NewPermanent(ErrCodeValidation, "bad")}.Delivered())
}
