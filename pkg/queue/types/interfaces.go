package types

import (
	"context"
	"time"
)

// QueueStore is the durable queue of unconfirmed outbound messages. Every
// mutating call persists the full queue before returning, so a crash between
// a mutation and the next read never loses or duplicates an item.
type QueueStore interface {
	// Append adds a new item. The local id must be unique; appending a
	// duplicate is an error.
	Append(ctx context.Context, msg *QueuedMessage) error
	// Remove deletes an item. Removing an unknown id is a no-op.
	Remove(ctx context.Context, localID string) error
	// Update applies mutate to the item and persists the result.
	Update(ctx context.Context, localID string, mutate func(*QueuedMessage)) error
	// ListAll returns all items ordered by enqueue time.
	ListAll(ctx context.Context) ([]QueuedMessage, error)
	// ListForConversation returns the items for one conversation, ordered by
	// enqueue time.
	ListForConversation(ctx context.Context, conversationID string) ([]QueuedMessage, error)
	// Clear removes every item.
	Clear(ctx context.Context) error
}

// DeliveryTransport hands one message to the remote system. On success it
// returns the backend-assigned remote id; on failure the error must be
// classified (see DeliveryError) at this boundary.
type DeliveryTransport interface {
	Send(ctx context.Context, msg *QueuedMessage) (string, error)
}

// Reachability is the OS-level network reachability source consumed by the
// connectivity monitor.
type Reachability interface {
	// Current returns the present reachability state.
	Current(ctx context.Context) (ConnectivityState, error)
	// Subscribe registers a change listener and returns an unsubscribe
	// function.
	Subscribe(listener func(ConnectivityState)) func()
}

// Timer is an armed wake-up that can be stopped before it fires.
type Timer interface {
	Stop() bool
}

// Clock abstracts wall-clock time and timer arming so tests can simulate
// time passing without real delays.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}
