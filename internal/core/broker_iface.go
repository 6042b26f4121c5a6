package core

// WorkHandler processes one delivered work message. Returning an error (or
// panicking) leaves the message unacknowledged and it will be redelivered,
// so handlers must tolerate duplicates.
type WorkHandler func(payload []byte) error

// TopicHandler receives one fan-out message. Delivery is at-most-once; a
// subscriber that is down or slow simply misses the message.
type TopicHandler func(payload []byte)

// Broker abstracts for a messaging substrate with two primitives: a work
// queue (competing consumers, at-least-once to exactly one of them) and a
// topic (fan-out to every active subscriber). All cross-instance
// coordination goes through it; instances never call each other directly.
type Broker interface {
	// PublishWork appends a message to the named queue. An error means the
	// message was never enqueued and the caller must surface that
	// immediately instead of waiting on a reply that cannot come.
	PublishWork(queue string, payload []byte) error
	// ConsumeWork registers a competing consumer on the named queue.
	ConsumeWork(queue string, h WorkHandler)

	PublishTopic(topic string, payload []byte) error
	SubscribeTopic(topic string, h TopicHandler)

	// Claims exposes the shared room-claim registry riding on the same
	// substrate.
	Claims() ClaimRegistry

	// Stop releases consumer handles. Safe to call twice.
	Stop()
}

// ClaimRegistry is a compare-and-set ownership table shared by all worker
// instances. Exactly one worker wins the claim for a room id; the losers
// forward their requests to the winner instead of creating a second copy.
type ClaimRegistry interface {
	// Claim tries to bind roomID to ownerID. It returns the current owner
	// and whether the caller holds the claim (also true when the caller
	// already owned it).
	Claim(roomID, ownerID string) (owner string, won bool)
	// Release drops the claim if ownerID still holds it.
	Release(roomID, ownerID string)
}
