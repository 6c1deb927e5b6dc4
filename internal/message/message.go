package message

// Kind classifies a chat event. Only text events carry a prayer request.
type Kind string

const (
	KindText  Kind = "text"
	KindOther Kind = "other"
)

// ChatMessage represents a raw chat message from any source (YouTube, Twitch, Kick)
type ChatMessage struct {
	Kind        Kind   `json:"kind"`
	Author      string `json:"author"`       // Author's display name
	Text        string `json:"text"`         // Message content as displayed in chat
	PublishedAt string `json:"published_at"` // ISO-8601 timestamp (UTC)
	Platform    string `json:"platform,omitempty"`
}

// PrayerRequest is a chat message that was flagged as a prayer request.
// Field order matches the remote sheet column contract.
type PrayerRequest struct {
	Timestamp       string `json:"timestamp"` // "2006-01-02 15:04:05" in the configured fixed offset
	Author          string `json:"author"`
	Content         string `json:"content"`
	OriginalContent string `json:"original_content"`
	Probability     string `json:"probability"`
}

// Row returns the record as the five ordered sheet columns
func (r PrayerRequest) Row() []string {
	return []string{r.Timestamp, r.Author, r.Content, r.OriginalContent, r.Probability}
}
