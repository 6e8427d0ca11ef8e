// Package history records answered chat turns into history collections.
package history

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/spetr/docchat/internal/collection"
	"github.com/spetr/docchat/pkg/types"
)

// Source marks chunks that came from recorded conversations rather
// than an uploaded document.
const Source = "chat_history"

// Recorder appends question/answer turns to a user's history
// collection. History is append-only: turns are never updated or
// deleted individually, only destroyed with their owner.
type Recorder struct {
	store *collection.Store
}

// New creates a recorder over the collection store.
func New(store *collection.Store) *Recorder {
	return &Recorder{store: store}
}

// Record appends one answered turn. With a conversation id the turn
// goes to the conversation's own collection, otherwise to the user's
// accumulated one. Only successfully answered turns are recorded;
// callers skip this on generation failure.
func (r *Recorder) Record(ctx context.Context, userID, conversationID, question, answer string) error {
	chunk := types.Chunk{
		ID:      uuid.NewString(),
		Content: fmt.Sprintf("Question: %s\nAnswer: %s", question, answer),
		Source:  Source,
		Kind:    types.KindChatHistory,
	}
	scope := types.HistoryScope(userID, conversationID)
	return r.store.Append(ctx, scope, []types.Chunk{chunk})
}
