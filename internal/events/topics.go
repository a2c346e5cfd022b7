package events

// Topic constants for domain events emitted by the platform.
const (
	TopicQuoteSubmitted     = "quote.submitted"
	TopicQuoteStatusChanged = "quote.status_changed"
	TopicFormulaUpdated     = "formula.updated"
	TopicFormulaDeleted     = "formula.deleted"
)

// DefaultTopics returns the canonical list of topics webhook endpoints may subscribe to.
func DefaultTopics() []string {
	return []string{
		TopicQuoteSubmitted,
		TopicQuoteStatusChanged,
		TopicFormulaUpdated,
		TopicFormulaDeleted,
	}
}

// IsKnownTopic reports whether topic is one of DefaultTopics.
func IsKnownTopic(topic string) bool {
	for _, t := range DefaultTopics() {
		if t == topic {
			return true
		}
	}
	return false
}
