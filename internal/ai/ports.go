package ai

import (
	"context"

	"github.com/mymind-ai/backend/internal/dialogue"
)

type Client interface {
	// Complete sends the full ordered history, priming entry included, and
	// returns the generated reply. The history is never mutated; its order
	// is significant (oldest first).
	Complete(ctx context.Context, history []dialogue.Message) (string, error)
}
