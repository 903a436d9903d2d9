package webhook

import (
	"context"

	"github.com/glaucopicci/api-risa-goya/internal/filter"
	"github.com/glaucopicci/api-risa-goya/internal/review"
)

// CommentJob is a review waiting to be posted as a Podio comment.
type CommentJob struct {
	ItemID     int64
	RevisionID int64
	Text       string
	DeliveryID string
}

// CommentDispatcher posts comments in the background.
type CommentDispatcher interface {
	Enqueue(job *CommentJob) error
}

// Verifier completes the Podio hook verification handshake.
type Verifier interface {
	ValidateHook(ctx context.Context, hookID int64, code string) error
}

// Gate decides whether an item change qualifies for review.
type Gate interface {
	Qualifies(ctx context.Context, ev filter.Event) (bool, error)
}

// Reviewer produces the review for an item.
type Reviewer interface {
	Review(ctx context.Context, itemID int64) (*review.Result, error)
}

// InFlight guards against concurrent reviews of the same item.
type InFlight interface {
	TryAcquire(key string) bool
	Release(key string)
}

// ReviewResponse is the body returned after a review was produced.
type ReviewResponse struct {
	ItemID  int64  `json:"item_id"`
	Review  string `json:"review"`
	Comment string `json:"comment"`
}
