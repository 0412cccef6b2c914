package engine

import (
	"fmt"

	"github.com/antigcast/antigcast/automod/countstore"
)

const (
	// per-chat count of classified (non-empty) messages
	CounterChatMessages = "chat-messages"
	// per-chat count of suppressed messages; the counter value is "<chat>/<reason>"
	CounterChatSuppressed = "chat-suppressed"
	// distinct senders per chat
	CounterChatSenders = "chat-senders"
)

// Request to remove a message from its chat. The engine only describes the deletion; the caller carries it out.
type DeleteMessage struct {
	ChatID    int64
	MessageID int
	Reason    Reason
}

// Mutable container for the side-effects of processing a single message.
type Effects struct {
	Decision Decision
	// Counters which should be incremented as part of processing this message. Collected during processing and persisted in bulk at the end.
	CounterIncrements []countstore.Ref
	// Similar to "CounterIncrements", but for "distinct" style counters
	CounterDistinctIncrements []countstore.DistinctRef
	// Set when the message should be deleted
	Delete *DeleteMessage
}

// Enqueues the named counter to be incremented at the end of processing. Will automatically increment for all time periods.
func (e *Effects) Increment(name, val string) {
	e.CounterIncrements = append(e.CounterIncrements, countstore.Ref{Name: name, Val: val})
}

// Enqueues the named "distinct value" counter based on the supplied string value ("val") to be incremented at the end of processing.
func (e *Effects) IncrementDistinct(name, bucket, val string) {
	e.CounterDistinctIncrements = append(e.CounterDistinctIncrements, countstore.DistinctRef{Name: name, Bucket: bucket, Val: val})
}

func chatKey(chatID int64) string {
	return fmt.Sprintf("%d", chatID)
}

func suppressedKey(chatID int64, reason Reason) string {
	return fmt.Sprintf("%d/%s", chatID, reason)
}
