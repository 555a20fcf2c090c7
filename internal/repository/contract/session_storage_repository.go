package contract

import (
	"textbook-chat-be/pkg/chat"
)

// ISessionStorageRepository hands out storage namespaced to one browser
// session.
type ISessionStorageRepository interface {
	Scope(sessionID string) chat.Storage
}
