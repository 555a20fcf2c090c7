package ragapi

import "time"

// MatchedChunk is one retrieved context snippet returned by the RAG service.
type MatchedChunk struct {
	ChunkID        string  `json:"chunk_id"`
	Text           string  `json:"text"`
	RelevanceScore float64 `json:"relevance_score"`
}

// AskRequest is the payload of POST /ask.
type AskRequest struct {
	Query string `json:"query" validate:"required,max=1000"`
}

// AskResponse is the success payload of POST /ask.
type AskResponse struct {
	Answer        string         `json:"answer"`
	Sources       []string       `json:"sources"`
	MatchedChunks []MatchedChunk `json:"matched_chunks"`
}

// HealthStatus is the payload of GET /health.
type HealthStatus struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

const (
	DefaultBaseURL = "https://afiabakr-deploy-chatbot.hf.space"
	DefaultTimeout = 10 * time.Second

	MinQueryLength = 1
	MaxQueryLength = 1000
)

func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
}
