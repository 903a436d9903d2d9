package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/glaucopicci/api-risa-goya/internal/concurrency"
	"github.com/glaucopicci/api-risa-goya/internal/filter"
)

// DefaultHandshakeHeader is the header echoed by the GET handshake.
const DefaultHandshakeHeader = "X-Hook-Secret"

const maxPayloadBytes = 1 << 20

// Options configures the handler.
type Options struct {
	// HookID is the only webhook id accepted. Zero disables the check.
	HookID int64
	// HandshakeHeader is echoed back on GET /webhook.
	HandshakeHeader string
	// ForwardSecret signs the bearer tokens accepted on /revisar. Empty
	// disables the endpoint.
	ForwardSecret string
	// DedupeTTL is how long a delivered revision is remembered.
	DedupeTTL time.Duration
}

// Handler handles Podio webhook deliveries.
type Handler struct {
	verifier   Verifier
	gate       Gate
	reviewer   Reviewer
	dispatcher CommentDispatcher
	inflight   InFlight
	deduper    *revisionDeduper
	opts       Options
}

// NewHandler creates a new webhook handler.
func NewHandler(verifier Verifier, gate Gate, reviewer Reviewer, dispatcher CommentDispatcher, inflight InFlight, opts Options) *Handler {
	if opts.HandshakeHeader == "" {
		opts.HandshakeHeader = DefaultHandshakeHeader
	}
	return &Handler{
		verifier:   verifier,
		gate:       gate,
		reviewer:   reviewer,
		dispatcher: dispatcher,
		inflight:   inflight,
		deduper:    newRevisionDeduper(opts.DedupeTTL),
		opts:       opts,
	}
}

// Handle handles POST /webhook: verification challenges and item changes.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, logger := withDelivery(r)

	payload, err := readPayload(w, r)
	if err != nil {
		logger.Warn().Err(err).Msg("Error reading payload")
		http.Error(w, "Error reading payload", http.StatusBadRequest)
		return
	}

	ev, err := filter.ParseEvent(r.Header.Get("Content-Type"), payload)
	if err != nil {
		logger.Warn().Err(err).Msg("Error parsing event")
		http.Error(w, "Error parsing event", http.StatusBadRequest)
		return
	}

	if ev.HookMismatch(h.opts.HookID) {
		logger.Warn().Str("hook_id", ev.RawHookID).Int64("expected_hook_id", h.opts.HookID).Msg("Rejected delivery from unknown hook")
		http.Error(w, "Unknown hook", http.StatusForbidden)
		return
	}

	switch ev.Kind {
	case filter.KindVerify:
		h.verify(ctx, w, ev)
	case filter.KindItemChanged:
		h.processItemChange(ctx, w, ev, ev)
	default:
		logger.Debug().Str("type", ev.Type).Msg("Event ignored")
		writeText(w, http.StatusOK, "Event ignored")
	}
}

// HandleForwarded handles POST /revisar: item changes re-sent by the
// companion plugin with a bearer token. The item's current status decides.
func (h *Handler) HandleForwarded(w http.ResponseWriter, r *http.Request) {
	if h.opts.ForwardSecret == "" {
		http.NotFound(w, r)
		return
	}
	ctx, logger := withDelivery(r)

	token, err := ValidateAuthorizationHeader(r.Header.Get("Authorization"))
	if err == nil {
		err = VerifyForwardToken(token, h.opts.ForwardSecret)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("Forwarded request rejected")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	payload, err := readPayload(w, r)
	if err != nil {
		logger.Warn().Err(err).Msg("Error reading payload")
		http.Error(w, "Error reading payload", http.StatusBadRequest)
		return
	}

	ev, err := filter.ParseForwarded(r.Header.Get("Content-Type"), payload)
	if err != nil || ev.Kind != filter.KindItemChanged {
		logger.Warn().Err(err).Msg("Forwarded event without item_id")
		http.Error(w, "item_id is required", http.StatusBadRequest)
		return
	}

	gateEvent := filter.Event{Kind: filter.KindItemChanged, ItemID: ev.ItemID}
	h.processItemChange(ctx, w, ev, gateEvent)
}

// Handshake handles GET /webhook by echoing the handshake header.
func (h *Handler) Handshake(w http.ResponseWriter, r *http.Request) {
	if secret := r.Header.Get(h.opts.HandshakeHeader); secret != "" {
		w.Header().Set(h.opts.HandshakeHeader, secret)
		log.Info().Str("header", h.opts.HandshakeHeader).Msg("Webhook handshake echoed")
	}
	writeText(w, http.StatusOK, "OK")
}

func (h *Handler) verify(ctx context.Context, w http.ResponseWriter, ev filter.Event) {
	logger := zerolog.Ctx(ctx)

	if err := h.verifier.ValidateHook(ctx, ev.HookID, ev.Code); err != nil {
		logger.Error().Err(err).Int64("hook_id", ev.HookID).Msg("Hook verification failed")
		http.Error(w, "Verification failed", http.StatusInternalServerError)
		return
	}

	logger.Info().Int64("hook_id", ev.HookID).Msg("Hook verified")
	writeText(w, http.StatusOK, "Hook verified")
}

// processItemChange runs dedupe, the status gate, the review and enqueues
// the comment. gateEvent is what the status gate inspects.
func (h *Handler) processItemChange(ctx context.Context, w http.ResponseWriter, ev, gateEvent filter.Event) {
	logger := zerolog.Ctx(ctx).With().Int64("item_id", ev.ItemID).Int64("revision_id", ev.RevisionID).Logger()
	ctx = logger.WithContext(ctx)

	key := revisionKey(ev.ItemID, ev.RevisionID)
	if ev.RevisionID > 0 && !h.deduper.markIfNew(key) {
		logger.Info().Msg("Duplicate delivery ignored")
		writeText(w, http.StatusOK, "Duplicate delivery ignored")
		return
	}

	qualifies, err := h.gate.Qualifies(ctx, gateEvent)
	if err != nil {
		h.deduper.forget(key)
		logger.Warn().Err(err).Msg("Status check failed, acknowledging without review")
		writeText(w, http.StatusOK, "Status unavailable")
		return
	}
	if !qualifies {
		logger.Debug().Msg("Status is not ready for review")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	itemKey := concurrency.ItemKey(ev.ItemID)
	if !h.inflight.TryAcquire(itemKey) {
		h.deduper.forget(key)
		logger.Info().Msg("Review already in progress")
		writeText(w, http.StatusOK, "Review in progress")
		return
	}
	defer h.inflight.Release(itemKey)

	result, err := h.reviewer.Review(ctx, ev.ItemID)
	if err != nil {
		h.deduper.forget(key)
		logger.Error().Err(err).Msg("Review failed")
		http.Error(w, "Review failed", http.StatusInternalServerError)
		return
	}

	if result.Empty() {
		logger.Warn().Msg("Empty review, no comment posted")
		writeJSON(w, http.StatusOK, ReviewResponse{ItemID: ev.ItemID, Comment: "skipped"})
		return
	}

	job := &CommentJob{
		ItemID:     ev.ItemID,
		RevisionID: ev.RevisionID,
		Text:       result.Text,
		DeliveryID: deliveryID(ctx),
	}
	if err := h.dispatcher.Enqueue(job); err != nil {
		h.deduper.forget(key)
		status := http.StatusInternalServerError
		if errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueClosed) {
			status = http.StatusServiceUnavailable
		}
		logger.Error().Err(err).Msg("Failed to enqueue comment")
		http.Error(w, "Failed to enqueue comment", status)
		return
	}

	logger.Info().Int("review_chars", len(result.Text)).Msg("Review queued for posting")
	writeJSON(w, http.StatusOK, ReviewResponse{ItemID: ev.ItemID, Review: result.Text, Comment: "queued"})
}

type deliveryKey struct{}

func withDelivery(r *http.Request) (context.Context, *zerolog.Logger) {
	id := uuid.NewString()
	logger := log.With().Str("delivery_id", id).Str("path", r.URL.Path).Logger()
	ctx := context.WithValue(r.Context(), deliveryKey{}, id)
	ctx = logger.WithContext(ctx)
	return ctx, &logger
}

func deliveryID(ctx context.Context) string {
	id, _ := ctx.Value(deliveryKey{}).(string)
	return id
}

func readPayload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
