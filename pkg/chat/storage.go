package chat

import (
	"context"
	"encoding/json"
	"errors"

	"textbook-chat-be/internal/pkg/logger"
)

const (
	StorageKey     = "rag-chat-history"
	StorageVersion = 1
)

var ErrNotFound = errors.New("chat: storage key not found")

// Storage is a key/value store scoped to one browser session. Every method
// reports failure through its error; the Manager treats all failures as
// non-fatal.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// StorageRecord is the persisted form of a session's history.
type StorageRecord struct {
	Version  int       `json:"version"`
	Messages []Message `json:"messages"`
}

func loadHistory(ctx context.Context, storage Storage, log logger.ILogger) []Message {
	if storage == nil {
		return nil
	}

	raw, err := storage.Get(ctx, StorageKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Warn("ChatStorage", "Failed to read history, starting empty", map[string]interface{}{"error": err.Error()})
		}
		return nil
	}

	var record StorageRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		log.Warn("ChatStorage", "Stored history is corrupt, starting empty", map[string]interface{}{"error": err.Error()})
		return nil
	}

	if record.Version != StorageVersion {
		log.Info("ChatStorage", "Discarding history with stale schema version", map[string]interface{}{
			"stored_version":  record.Version,
			"current_version": StorageVersion,
		})
		if err := storage.Remove(ctx, StorageKey); err != nil {
			log.Warn("ChatStorage", "Failed to remove stale history", map[string]interface{}{"error": err.Error()})
		}
		return nil
	}

	return record.Messages
}

func saveHistory(ctx context.Context, storage Storage, messages []Message, log logger.ILogger) {
	if storage == nil || len(messages) == 0 {
		return
	}

	data, err := json.Marshal(StorageRecord{Version: StorageVersion, Messages: messages})
	if err != nil {
		log.Error("ChatStorage", "Failed to encode history", map[string]interface{}{"error": err.Error()})
		return
	}

	if err := storage.Set(ctx, StorageKey, data); err != nil {
		log.Warn("ChatStorage", "Failed to persist history", map[string]interface{}{
			"error":    err.Error(),
			"messages": len(messages),
		})
	}
}
