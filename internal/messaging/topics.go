package messaging

// Topic suffixes, joined to the configured prefix
const (
	TopicBlocks      = "blocks"      // block opened and closed
	TopicSubmissions = "submissions" // every submit outcome
	TopicNotices     = "notices"     // wins, payments, failovers, connectivity
)

// DefaultTopicPrefix is used when none is configured
const DefaultTopicPrefix = "noso2m"

// Topic joins prefix and suffix
func Topic(prefix, suffix string) string {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + "." + suffix
}
