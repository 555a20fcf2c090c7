package events

import "time"

const (
	ChatMessageSent    = "CHAT_MESSAGE_SENT"
	ChatAnswerReceived = "CHAT_ANSWER_RECEIVED"
	ChatRequestFailed  = "CHAT_REQUEST_FAILED"
)

// NewChatMessageSent records a question leaving a session. Query text is
// reduced to its length.
func NewChatMessageSent(sessionID, messageID string, queryLength int, at time.Time) BaseEvent {
	return BaseEvent{
		Type: ChatMessageSent,
		Data: map[string]interface{}{
			"session_id":   sessionID,
			"message_id":   messageID,
			"query_length": queryLength,
		},
		OccurredAt: at,
	}
}

func NewChatAnswerReceived(sessionID, messageID string, sources, matchedChunks int, at time.Time) BaseEvent {
	return BaseEvent{
		Type: ChatAnswerReceived,
		Data: map[string]interface{}{
			"session_id":     sessionID,
			"message_id":     messageID,
			"sources":        sources,
			"matched_chunks": matchedChunks,
		},
		OccurredAt: at,
	}
}

func NewChatRequestFailed(sessionID, code string, retryable bool, at time.Time) BaseEvent {
	return BaseEvent{
		Type: ChatRequestFailed,
		Data: map[string]interface{}{
			"session_id": sessionID,
			"code":       code,
			"retryable":  retryable,
		},
		OccurredAt: at,
	}
}
