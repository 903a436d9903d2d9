// Package review turns a Podio item into an editorial review: it gathers the
// item's fields and linked text, composes the prompt and calls the
// completion API.
package review

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/glaucopicci/api-risa-goya/internal/podio"
	"github.com/glaucopicci/api-risa-goya/internal/prompt"
)

// Tracker reads items.
type Tracker interface {
	GetItem(ctx context.Context, itemID int64) (*podio.Item, error)
}

// Completer runs one completion.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Documents resolves the linked body text and the client's style guide.
type Documents interface {
	DocumentText(ctx context.Context, link string) (string, error)
	StyleGuide(ctx context.Context, client string) string
}

// Fields maps review inputs to Podio external ids.
type Fields struct {
	Title    string
	Client   string
	JobType  string
	Brief    string
	Author   string
	TextLink string
}

// DefaultFields returns the external ids used by the Goya jobs app.
func DefaultFields() Fields {
	return Fields{
		Title:    "titulo-2",
		Client:   "cliente",
		JobType:  "tipo-do-job",
		Brief:    "observacoes-e-links",
		Author:   "time-envolvido",
		TextLink: "link-do-texto",
	}
}

// Request is the review input assembled from one item.
type Request struct {
	ItemID     int64
	Title      string
	ClientName string
	JobType    string
	Brief      string
	Author     string
	BodyText   string
}

// Result is the review text for an item. Text may be empty when the
// completion API returned no choice.
type Result struct {
	ItemID  int64
	Text    string
	Request Request
}

// Empty reports whether there is nothing to post.
func (r *Result) Empty() bool {
	return r == nil || r.Text == ""
}

// Relay produces reviews.
type Relay struct {
	tracker   Tracker
	completer Completer
	documents Documents
	fields    Fields
}

// NewRelay creates a relay. documents may be nil, in which case items have
// no body text and no style guide.
func NewRelay(tracker Tracker, completer Completer, documents Documents, fields Fields) *Relay {
	return &Relay{
		tracker:   tracker,
		completer: completer,
		documents: documents,
		fields:    fields,
	}
}

// Review fetches the item, builds the prompt and returns the completion.
func (r *Relay) Review(ctx context.Context, itemID int64) (*Result, error) {
	logger := zerolog.Ctx(ctx)

	item, err := r.tracker.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch item %d for review: %w", itemID, err)
	}

	req, err := r.Assemble(ctx, itemID, item)
	if err != nil {
		return nil, err
	}

	var styleGuide string
	if r.documents != nil && req.ClientName != "" {
		styleGuide = r.documents.StyleGuide(ctx, req.ClientName)
	}

	system := prompt.System(styleGuide)
	user := prompt.User(prompt.Review{
		Title:   req.Title,
		Client:  req.ClientName,
		JobType: req.JobType,
		Brief:   req.Brief,
		Author:  req.Author,
		Text:    req.BodyText,
	})

	logger.Info().
		Int64("item_id", itemID).
		Bool("style_guide", styleGuide != "").
		Int("body_chars", len(req.BodyText)).
		Msg("Requesting review")

	text, err := r.completer.Complete(ctx, system, user)
	if err != nil {
		return nil, err
	}
	if text == "" {
		logger.Warn().Int64("item_id", itemID).Msg("Completion returned no text")
	}

	return &Result{ItemID: itemID, Text: text, Request: req}, nil
}

// Assemble extracts the review inputs from an item. Missing fields become
// podio.MissingField. The body text is read from the linked document.
func (r *Relay) Assemble(ctx context.Context, itemID int64, item *podio.Item) (Request, error) {
	fields := item.Snapshot()
	req := Request{
		ItemID:     itemID,
		Title:      fields.Text(r.fields.Title),
		ClientName: fields.Text(r.fields.Client),
		JobType:    fields.Text(r.fields.JobType),
		Brief:      fields.Text(r.fields.Brief),
		Author:     fields.Text(r.fields.Author),
		BodyText:   podio.MissingField,
	}

	link := fields.Text(r.fields.TextLink)
	if link == "" || r.documents == nil {
		return req, nil
	}

	body, err := r.documents.DocumentText(ctx, link)
	if err != nil {
		return req, fmt.Errorf("failed to read text of item %d: %w", itemID, err)
	}
	req.BodyText = body
	return req, nil
}
