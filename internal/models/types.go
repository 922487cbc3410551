package models

// FileSource tags where a memory file came from.
type FileSource string

const (
	SourceMemory       FileSource = "memory"
	SourceSession      FileSource = "session"
	SourceConversation FileSource = "conversation"
)

func (s FileSource) IsValid() bool {
	return s == SourceMemory || s == SourceSession || s == SourceConversation
}

// FactType classifies what kind of durable knowledge a fact represents.
type FactType string

const (
	FactPreference FactType = "preference"
	FactFact       FactType = "fact"
	FactDecision   FactType = "decision"
	FactContext    FactType = "context"
	FactGoal       FactType = "goal"
	FactSkill      FactType = "skill"
)

var ValidFactTypes = map[FactType]bool{
	FactPreference: true,
	FactFact:       true,
	FactDecision:   true,
	FactContext:    true,
	FactGoal:       true,
	FactSkill:      true,
}

func (t FactType) IsValid() bool {
	return ValidFactTypes[t]
}

// ConsolidationStatus tracks whether an indexed session has been distilled.
type ConsolidationStatus string

const (
	ConsolidationPending   ConsolidationStatus = "pending"
	ConsolidationCompleted ConsolidationStatus = "completed"
)

// JobStatus is the consolidation job state machine:
// pending -> running -> {completed | failed}.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// MemoryFile is a virtual document identified by (user, path).
type MemoryFile struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	FilePath    string     `json:"filePath"`
	Source      FileSource `json:"source"`
	ContentHash string     `json:"contentHash"`
	SizeBytes   int        `json:"sizeBytes"`
	ChunkCount  int        `json:"chunkCount"`
	CreatedAt   int64      `json:"createdAt"`
	UpdatedAt   int64      `json:"updatedAt"`
}

// MemoryChunk is a contiguous line range of a memory file, the unit of
// embedding and retrieval. ChunkRef is the stable "path:start-end" id.
type MemoryChunk struct {
	ID          string `json:"id"`
	FileID      string `json:"fileId"`
	UserID      string `json:"userId"`
	ChunkRef    string `json:"chunkRef"`
	StartLine   int    `json:"startLine"`
	EndLine     int    `json:"endLine"`
	TokenCount  int    `json:"tokenCount"`
	Content     string `json:"content"`
	ContentHash string `json:"contentHash"`
	Embedding   []byte `json:"-"`
	CreatedAt   int64  `json:"createdAt"`
}

// EmbeddingCacheEntry is keyed by (provider, model, content hash).
type EmbeddingCacheEntry struct {
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	ContentHash    string `json:"contentHash"`
	Embedding      []byte `json:"-"`
	Dimension      int    `json:"dimension"`
	TokenCount     int    `json:"tokenCount"`
	AccessCount    int64  `json:"accessCount"`
	LastAccessedAt int64  `json:"lastAccessedAt"`
	CreatedAt      int64  `json:"createdAt"`
}

// IndexedSession records one indexed conversation per (user, session).
type IndexedSession struct {
	ID                  string              `json:"id"`
	UserID              string              `json:"userId"`
	SessionID           string              `json:"sessionId"`
	FileID              string              `json:"fileId"`
	MessageCount        int                 `json:"messageCount"`
	ConsolidationStatus ConsolidationStatus `json:"consolidationStatus"`
	FactsExtracted      int                 `json:"factsExtracted"`
	IndexedAt           int64               `json:"indexedAt"`
	UpdatedAt           int64               `json:"updatedAt"`
}

// MemoryFact is a structured, durable statement belonging to a user.
type MemoryFact struct {
	ID             string   `json:"id"`
	UserID         string   `json:"userId"`
	FactType       FactType `json:"factType"`
	Content        string   `json:"content"`
	Confidence     float64  `json:"confidence"`
	Importance     float64  `json:"importance"`
	Embedding      []byte   `json:"-"`
	SourceFileID   string   `json:"sourceFileId,omitempty"`
	AccessCount    int64    `json:"accessCount"`
	LastAccessedAt *int64   `json:"lastAccessedAt,omitempty"`
	ExpiresAt      *int64   `json:"expiresAt,omitempty"`
	CreatedAt      int64    `json:"createdAt"`
	UpdatedAt      int64    `json:"updatedAt"`
}

// ConsolidationJob is one row per consolidation run. Terminal once
// completed or failed.
type ConsolidationJob struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	Status          JobStatus `json:"status"`
	FactsExtracted  int       `json:"factsExtracted"`
	FactsMerged     int       `json:"factsMerged"`
	ChunksProcessed int       `json:"chunksProcessed"`
	TotalChunks     int       `json:"totalChunks"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
	StartedAt       *int64    `json:"startedAt,omitempty"`
	CompletedAt     *int64    `json:"completedAt,omitempty"`
	CreatedAt       int64     `json:"createdAt"`
}

// UserIndexingConfig is the per-user indexing policy, created lazily with
// defaults on first access.
type UserIndexingConfig struct {
	UserID                     string `json:"userId"`
	AutoIndex                  bool   `json:"autoIndex"`
	MinMessagesToIndex         int    `json:"minMessagesToIndex"`
	IndexOnSessionEnd          bool   `json:"indexOnSessionEnd"`
	ConsolidateOnIndex         bool   `json:"consolidateOnIndex"`
	ConsolidationIntervalHours int    `json:"consolidationIntervalHours"`
	LastConsolidatedAt         *int64 `json:"lastConsolidatedAt,omitempty"`
	CreatedAt                  int64  `json:"createdAt"`
	UpdatedAt                  int64  `json:"updatedAt"`
}
