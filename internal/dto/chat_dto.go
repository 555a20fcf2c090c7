package dto

import (
	"time"
)

type SendMessageRequest struct {
	Query string `json:"query" validate:"required"`
}

type SetOpenRequest struct {
	Open *bool `json:"open" validate:"required"`
}

type MatchedChunkResponse struct {
	ChunkId        string  `json:"chunk_id"`
	Text           string  `json:"text"`
	RelevanceScore float64 `json:"relevance_score"`
}

type ChatMessageResponse struct {
	Id            string                 `json:"id"`
	Role          string                 `json:"role"`
	Content       string                 `json:"content"`
	Timestamp     time.Time              `json:"timestamp"`
	Sources       []string               `json:"sources,omitempty"`
	MatchedChunks []MatchedChunkResponse `json:"matched_chunks,omitempty"`
}

type ChatErrorResponse struct {
	Message   string `json:"message"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
	LastQuery string `json:"last_query,omitempty"`
}

type ChatStateResponse struct {
	Messages  []ChatMessageResponse `json:"messages"`
	IsLoading bool                  `json:"is_loading"`
	Error     *ChatErrorResponse    `json:"error"`
	IsOpen    bool                  `json:"is_open"`
}

type UpstreamHealth struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

type HealthResponse struct {
	Status   string         `json:"status"`
	Upstream UpstreamHealth `json:"upstream"`
}
