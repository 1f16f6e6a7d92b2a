// Package store provides the DedupRepo interface for inbound message deduplication.
package store

// DedupRepo defines the interface for inbound message deduplication. Channel
// providers may deliver the same webhook more than once; only the provider's
// message ID is kept.
type DedupRepo interface {
	// IsDuplicate checks if a message ID has already been recorded.
	IsDuplicate(messageID string) (bool, error)

	// RecordInbound inserts a new inbound message record. Returns false if the
	// message was already recorded (duplicate).
	RecordInbound(messageID string) (bool, error)

	// MarkProcessed sets the processed_at timestamp for a message.
	MarkProcessed(messageID string) error
}
