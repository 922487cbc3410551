package models

// ConversationMessage is one turn of a chat session as supplied by the
// conversation source.
type ConversationMessage struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Timestamp *int64            `json:"timestamp,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ConversationSession is a finished chat session handed to the indexer.
type ConversationSession struct {
	SessionID string                `json:"sessionId"`
	UserID    string                `json:"userId"`
	Messages  []ConversationMessage `json:"messages"`
	StartedAt *int64                `json:"startedAt,omitempty"`
	EndedAt   *int64                `json:"endedAt,omitempty"`
	Metadata  map[string]string     `json:"metadata,omitempty"`
}

// IndexingResult reports the outcome of indexing one session.
type IndexingResult struct {
	SessionID              string `json:"sessionId"`
	Indexed                bool   `json:"indexed"`
	SkipReason             string `json:"skipReason,omitempty"`
	FilePath               string `json:"filePath,omitempty"`
	FileID                 string `json:"fileId,omitempty"`
	ChunksCreated          int    `json:"chunksCreated"`
	ConsolidationTriggered bool   `json:"consolidationTriggered"`
}

// IndexingStats aggregates a user's indexed sessions.
type IndexingStats struct {
	UserID            string `json:"userId"`
	TotalSessions     int    `json:"totalSessions"`
	PendingSessions   int    `json:"pendingSessions"`
	CompletedSessions int    `json:"completedSessions"`
	TotalMessages     int    `json:"totalMessages"`
	TotalFacts        int    `json:"totalFacts"`
}
