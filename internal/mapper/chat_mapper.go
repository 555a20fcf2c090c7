package mapper

import (
	"textbook-chat-be/internal/dto"
	"textbook-chat-be/pkg/chat"
	"textbook-chat-be/pkg/ragapi"
)

func ToChatStateResponse(state chat.State) *dto.ChatStateResponse {
	messages := make([]dto.ChatMessageResponse, 0, len(state.Messages))
	for _, m := range state.Messages {
		messages = append(messages, ToChatMessageResponse(m))
	}

	return &dto.ChatStateResponse{
		Messages:  messages,
		IsLoading: state.IsLoading,
		Error:     ToChatErrorResponse(state.Error),
		IsOpen:    state.IsOpen,
	}
}

func ToChatMessageResponse(m chat.Message) dto.ChatMessageResponse {
	res := dto.ChatMessageResponse{
		Id:        m.ID,
		Role:      string(m.Role),
		Content:   m.Content,
		Timestamp: m.Timestamp,
		Sources:   m.Sources,
	}
	if len(m.MatchedChunks) > 0 {
		res.MatchedChunks = make([]dto.MatchedChunkResponse, len(m.MatchedChunks))
		for i, c := range m.MatchedChunks {
			res.MatchedChunks[i] = dto.MatchedChunkResponse{
				ChunkId:        c.ChunkID,
				Text:           c.Text,
				RelevanceScore: c.RelevanceScore,
			}
		}
	}
	return res
}

func ToChatErrorResponse(err *ragapi.ChatError) *dto.ChatErrorResponse {
	if err == nil {
		return nil
	}
	return &dto.ChatErrorResponse{
		Message:   err.Message,
		Code:      string(err.Code),
		Retryable: err.Retryable,
		LastQuery: err.LastQuery,
	}
}
