package domain

// FeedFormat selects the parser used for a feed body.
type FeedFormat string

const (
	// FeedFormatHosts is "<ip> <hostname> [<hostname> ...] [# comment]" per line.
	FeedFormatHosts FeedFormat = "hosts"
	// FeedFormatPlain is one hostname per line; entries get the null IPv4 address.
	FeedFormatPlain FeedFormat = "plain"
)

// BlocklistFeed is a remote list of hostnames for one category.
type BlocklistFeed struct {
	Category Category
	URL      string
	Enabled  bool
	Format   FeedFormat
}

// IngestResult reports the outcome of ingesting one feed. Err is nil on success.
type IngestResult struct {
	Category Category
	Inserted int
	Err      error
}

// Failed reports whether the feed could not be ingested.
func (r IngestResult) Failed() bool { return r.Err != nil }
