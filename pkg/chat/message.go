package chat

import (
	"time"

	"textbook-chat-be/pkg/ragapi"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation. Messages are immutable once
// appended to a session.
type Message struct {
	ID            string                `json:"id"`
	Role          Role                  `json:"role"`
	Content       string                `json:"content"`
	Timestamp     time.Time             `json:"timestamp"`
	Sources       []string              `json:"sources,omitempty"`
	MatchedChunks []ragapi.MatchedChunk `json:"matchedChunks,omitempty"`
}

func newUserMessage(id string, now time.Time, content string) Message {
	return Message{
		ID:        id,
		Role:      RoleUser,
		Content:   content,
		Timestamp: now,
	}
}

// newAssistantMessage keeps sources and chunks only when the response has any.
func newAssistantMessage(id string, now time.Time, resp *ragapi.AskResponse) Message {
	msg := Message{
		ID:        id,
		Role:      RoleAssistant,
		Content:   resp.Answer,
		Timestamp: now,
	}
	if len(resp.Sources) > 0 {
		msg.Sources = append([]string(nil), resp.Sources...)
	}
	if len(resp.MatchedChunks) > 0 {
		msg.MatchedChunks = append([]ragapi.MatchedChunk(nil), resp.MatchedChunks...)
	}
	return msg
}
