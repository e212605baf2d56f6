package publisher

// Publisher defines the interface for fanning collected promotions out to
// downstream consumers
type Publisher interface {
	// Publish publishes a message under the given key
	Publish(key string, message []byte) error

	// TrimStreams trims the backing streams to their configured maximum length
	TrimStreams() error

	// Close closes the publisher
	Close() error
}
