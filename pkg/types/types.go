// Package types contains shared data types used across the docchat project.
package types

import "fmt"

// ChunkKind distinguishes document chunks from recorded chat turns.
type ChunkKind string

const (
	KindDocument    ChunkKind = "document"
	KindChatHistory ChunkKind = "chat_history"
)

// Chunk is the unit of retrieval: a bounded span of text with its
// source metadata. Chunks are immutable once created and belong to
// exactly one collection.
type Chunk struct {
	ID      string    // Unique ID (uuid)
	Content string    // Chunk text
	Source  string    // Originating file path, or "chat_history"
	Page    int       // 1-based page number; 0 for chat history chunks
	Kind    ChunkKind // document or chat_history
}

// EmbeddedChunk is a Chunk together with its vector embedding.
type EmbeddedChunk struct {
	Chunk     Chunk
	Embedding []float32
}

// ScoredChunk is a retrieval result: a chunk, its similarity score and
// the scope it was retrieved from.
type ScoredChunk struct {
	Chunk Chunk
	Score float32 // Cosine similarity, higher is better
	Scope string  // Scope key string of the originating collection
}

// ScopeKind identifies which partition a collection belongs to.
type ScopeKind string

const (
	ScopeShared  ScopeKind = "shared"
	ScopeUser    ScopeKind = "user"
	ScopeHistory ScopeKind = "history"
)

// ScopeKey identifies one vector collection. A collection holds vectors
// from exactly one embedding model; mixing dimensionalities is the one
// condition that forces a rebuild.
type ScopeKey struct {
	Kind           ScopeKind
	UserID         string // empty for shared
	ConversationID string // only for history scopes, may be empty
}

// SharedScope returns the scope key for the shared document collection.
func SharedScope() ScopeKey {
	return ScopeKey{Kind: ScopeShared}
}

// UserScope returns the scope key for a user's private documents.
func UserScope(userID string) ScopeKey {
	return ScopeKey{Kind: ScopeUser, UserID: userID}
}

// HistoryScope returns the scope key for a user's chat history. With a
// conversation ID the history is conversation-scoped, otherwise it is
// accumulated per user.
func HistoryScope(userID, conversationID string) ScopeKey {
	return ScopeKey{Kind: ScopeHistory, UserID: userID, ConversationID: conversationID}
}

// String returns the scope key in its canonical form, e.g. "shared",
// "user:alice", "history:alice:conv1".
func (k ScopeKey) String() string {
	switch k.Kind {
	case ScopeShared:
		return "shared"
	case ScopeUser:
		return "user:" + k.UserID
	case ScopeHistory:
		if k.ConversationID != "" {
			return "history:" + k.UserID + ":" + k.ConversationID
		}
		return "history:" + k.UserID
	}
	return string(k.Kind)
}

// Collection returns the name of the backing collection, which is also
// the on-disk directory entry for persisted stores.
func (k ScopeKey) Collection() string {
	switch k.Kind {
	case ScopeShared:
		return "docs_shared"
	case ScopeUser:
		return "docs_user_" + k.UserID
	case ScopeHistory:
		if k.ConversationID != "" {
			return fmt.Sprintf("history_%s_%s", k.UserID, k.ConversationID)
		}
		return "history_" + k.UserID
	}
	return string(k.Kind)
}

// IsHistory reports whether the scope holds recorded chat turns.
func (k ScopeKey) IsHistory() bool {
	return k.Kind == ScopeHistory
}
