// Package server assembles the relay's components and exposes them over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/glaucopicci/api-risa-goya/internal/completion"
	"github.com/glaucopicci/api-risa-goya/internal/concurrency"
	"github.com/glaucopicci/api-risa-goya/internal/config"
	"github.com/glaucopicci/api-risa-goya/internal/dispatcher"
	"github.com/glaucopicci/api-risa-goya/internal/filter"
	"github.com/glaucopicci/api-risa-goya/internal/podio"
	"github.com/glaucopicci/api-risa-goya/internal/review"
	"github.com/glaucopicci/api-risa-goya/internal/styleguide"
	"github.com/glaucopicci/api-risa-goya/internal/webhook"
)

// ServiceName is reported by GET /.
const ServiceName = "risa"

// ShutdownTimeout bounds how long Shutdown waits for queued comments.
const ShutdownTimeout = 30 * time.Second

// ErrReviewInProgress is returned by ReviewNow while another review of the
// same item is running.
var ErrReviewInProgress = errors.New("review already in progress")

// Server holds every component of the relay.
type Server struct {
	cfg *config.Config

	podio      *podio.Client
	completion *completion.Client
	styleGuide *styleguide.Store
	relay      *review.Relay
	dispatcher *dispatcher.Dispatcher
	inflight   *concurrency.Manager
	webhook    *webhook.Handler

	stop     chan struct{}
	done     chan struct{}
	shutdown sync.Once
}

// New builds the server from a validated configuration.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout()}

	tokens := podio.NewTokenStore(podio.OAuthConfig{
		ClientID:     cfg.PodioClientID,
		ClientSecret: cfg.PodioClientSecret,
		RefreshToken: cfg.PodioRefreshToken,
		StaticToken:  cfg.PodioAccessToken,
		TokenURL:     cfg.PodioOAuthURL,
	}, httpClient)
	podioClient := podio.NewClient(cfg.PodioAPIURL, tokens, httpClient)

	completionClient, err := completion.New(completion.Config{
		APIKey:     cfg.OpenAIAPIKey,
		Model:      cfg.OpenAIModel,
		BaseURL:    cfg.OpenAIBaseURL,
		HTTPClient: &http.Client{Timeout: cfg.CompletionTimeout()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize completion client: %w", err)
	}

	s := &Server{
		cfg:        cfg,
		podio:      podioClient,
		completion: completionClient,
		inflight:   concurrency.NewManager(),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	// A nil *Store must not reach the relay as a non-nil interface.
	var documents review.Documents
	if cfg.GoogleCredentialsJSON != "" {
		store, err := styleguide.New(ctx, []byte(cfg.GoogleCredentialsJSON), cfg.StyleGuideFolderID)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google documents: %w", err)
		}
		s.styleGuide = store
		documents = store
	} else {
		log.Warn().Msg("GOOGLE_CREDENTIALS_JSON not set, reviews are sent without body text or style guide")
	}

	s.relay = review.NewRelay(podioClient, completionClient, documents, review.Fields{
		Title:    cfg.FieldTitle,
		Client:   cfg.FieldClient,
		JobType:  cfg.FieldJobType,
		Brief:    cfg.FieldBrief,
		Author:   cfg.FieldAuthor,
		TextLink: cfg.FieldTextLink,
	})

	s.dispatcher = dispatcher.New(podioClient, dispatcher.Config{
		Workers:   cfg.CommentWorkers,
		QueueSize: cfg.CommentQueueSize,
	})

	gate := filter.New(podioClient, cfg.StatusField, filter.StatusMatcher{
		Label:    cfg.ReadyStatusLabel,
		OptionID: cfg.ReadyStatusOptionID,
	})

	s.webhook = webhook.NewHandler(podioClient, gate, s.relay, s.dispatcher, s.inflight, webhook.Options{
		HookID:          cfg.PodioWebhookID,
		HandshakeHeader: cfg.HandshakeHeader,
		ForwardSecret:   cfg.ForwardSecret,
		DedupeTTL:       cfg.DedupeTTL(),
	})

	go s.watchFailures()
	return s, nil
}

// Router returns the HTTP routes of the relay.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	// Podio deliveries, under both paths used by past deployments
	r.HandleFunc("/webhook", s.webhook.Handle).Methods(http.MethodPost)
	r.HandleFunc("/podio-hook", s.webhook.Handle).Methods(http.MethodPost)
	r.HandleFunc("/webhook", s.webhook.Handshake).Methods(http.MethodGet)

	// Events re-forwarded by the companion plugin
	r.HandleFunc("/revisar", s.webhook.HandleForwarded).Methods(http.MethodPost)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/", s.info).Methods(http.MethodGet)

	return r
}

func (s *Server) info(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"service":     ServiceName,
		"status":      "running",
		"model":       s.completion.Model(),
		"style_guide": s.styleGuide != nil,
		"hook_gate":   s.cfg.PodioWebhookID != 0,
		"reviewing":   s.inflight.Active(),
	})
}

// Preview reviews an item regardless of its status without posting anything.
func (s *Server) Preview(ctx context.Context, itemID int64) (*review.Result, error) {
	return s.relay.Review(ctx, itemID)
}

// ReviewNow reviews an item regardless of its status and posts the comment
// before returning. The comment is nil when the review came back empty.
func (s *Server) ReviewNow(ctx context.Context, itemID int64) (*review.Result, *podio.Comment, error) {
	key := concurrency.ItemKey(itemID)
	if !s.inflight.TryAcquire(key) {
		return nil, nil, ErrReviewInProgress
	}
	defer s.inflight.Release(key)

	result, err := s.relay.Review(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	if result.Empty() {
		log.Warn().Int64("item_id", itemID).Msg("Empty review, no comment posted")
		return result, nil, nil
	}

	comment, err := s.podio.PostComment(ctx, itemID, result.Text)
	if err != nil {
		return result, nil, err
	}
	log.Info().Int64("item_id", itemID).Int64("comment_id", comment.CommentID).Msg("Review posted")
	return result, comment, nil
}

// Shutdown drains queued comments and releases the Google clients.
func (s *Server) Shutdown(ctx context.Context) {
	s.shutdown.Do(func() {
		s.dispatcher.Shutdown(ctx)
		close(s.stop)
		<-s.done
		if s.styleGuide != nil {
			s.styleGuide.Close()
		}
	})
}

// watchFailures logs comments the dispatcher gave up on.
func (s *Server) watchFailures() {
	defer close(s.done)
	for {
		select {
		case f := <-s.dispatcher.Failures():
			log.Error().
				Err(f.Err).
				Int64("item_id", f.Job.ItemID).
				Int64("revision_id", f.Job.RevisionID).
				Str("delivery_id", f.Job.DeliveryID).
				Int("review_chars", len(f.Job.Text)).
				Msg("Review comment lost")
		case <-s.stop:
			return
		}
	}
}
