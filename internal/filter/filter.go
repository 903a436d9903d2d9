package filter

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/glaucopicci/api-risa-goya/internal/podio"
)

// Tracker is the read side of the Podio client used by the filter.
type Tracker interface {
	GetRevisionDiff(ctx context.Context, itemID, from, to int64) ([]podio.FieldDiff, error)
	GetItem(ctx context.Context, itemID int64) (*podio.Item, error)
}

// StatusMatcher recognises the ready-for-review option either by its label
// (case-insensitive) or by its numeric option id. Zero values are ignored.
type StatusMatcher struct {
	Label    string
	OptionID int64
}

// Matches reports whether the first value is the ready option.
func (m StatusMatcher) Matches(values []podio.FieldValue) bool {
	if len(values) == 0 {
		return false
	}
	opt, ok := values[0].Option()
	if !ok {
		return false
	}
	if m.OptionID != 0 && opt.ID == m.OptionID {
		return true
	}
	label := strings.TrimSpace(m.Label)
	return label != "" && strings.EqualFold(strings.TrimSpace(opt.Text), label)
}

// Filter decides whether an item change qualifies for review.
type Filter struct {
	tracker     Tracker
	statusField string
	matcher     StatusMatcher
}

// New creates a filter watching statusField.
func New(tracker Tracker, statusField string, matcher StatusMatcher) *Filter {
	return &Filter{
		tracker:     tracker,
		statusField: statusField,
		matcher:     matcher,
	}
}

// Qualifies reports whether the event's revision moved the status field into
// the ready state.
//
// The revision diff is consulted first. A diff that does not touch the status
// field is not a transition. When the diff cannot be read, or is empty, or the
// event carries no usable revision, the item's current status decides.
func (f *Filter) Qualifies(ctx context.Context, ev Event) (bool, error) {
	if ev.Kind != KindItemChanged || ev.ItemID <= 0 {
		return false, nil
	}
	logger := zerolog.Ctx(ctx)

	if ev.RevisionID > 0 {
		diff, err := f.tracker.GetRevisionDiff(ctx, ev.ItemID, ev.RevisionID-1, ev.RevisionID)
		switch {
		case err != nil:
			logger.Debug().Err(err).Int64("item_id", ev.ItemID).Msg("Revision diff unavailable, reading item status")
		case len(diff) > 0:
			for _, change := range diff {
				if change.ExternalID == f.statusField {
					return f.matcher.Matches(change.To), nil
				}
			}
			return false, nil
		}
	}

	item, err := f.tracker.GetItem(ctx, ev.ItemID)
	if err != nil {
		return false, fmt.Errorf("failed to read status of item %d: %w", ev.ItemID, err)
	}
	field, ok := item.Snapshot().Field(f.statusField)
	if !ok {
		return false, nil
	}
	return f.matcher.Matches(field.Values), nil
}
