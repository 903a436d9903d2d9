// Package styleguide reads review material from Google Workspace: the body
// of the linked Google Doc and the per-client style guide kept in a Drive
// folder.
package styleguide

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DefaultCacheTTL is how long a style guide lookup, including a miss, is kept.
const DefaultCacheTTL = 10 * time.Minute

const googleDocMimeType = "application/vnd.google-apps.document"

// DocumentError is a failed Google Docs read.
type DocumentError struct {
	DocumentID string
	Err        error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("failed to read document %s: %v", e.DocumentID, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// Store fetches document text and style guides.
type Store struct {
	docs     *docs.Service
	drive    *drive.Service
	folderID string
	cache    *ristretto.Cache[string, string]
	ttl      time.Duration
}

// New authenticates with a service account JSON key.
func New(ctx context.Context, credentialsJSON []byte, folderID string) (*Store, error) {
	opts := []option.ClientOption{
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(docs.DocumentsReadonlyScope, drive.DriveReadonlyScope),
	}

	docsService, err := docs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docs service: %w", err)
	}
	driveService, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}
	return NewWithServices(docsService, driveService, folderID)
}

// NewWithServices builds a store over existing services. driveService may be
// nil when no style guide folder is used.
func NewWithServices(docsService *docs.Service, driveService *drive.Service, folderID string) (*Store, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: 10_000,
		MaxCost:     8 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create style guide cache: %w", err)
	}
	return &Store{
		docs:     docsService,
		drive:    driveService,
		folderID: strings.TrimSpace(folderID),
		cache:    cache,
		ttl:      DefaultCacheTTL,
	}, nil
}

// Close releases the cache.
func (s *Store) Close() {
	s.cache.Close()
}

// DocumentText returns the text of the Google Doc behind link: each text run
// trimmed, empty runs dropped, joined with newlines. A link that is not a
// Docs document yields "".
func (s *Store) DocumentText(ctx context.Context, link string) (string, error) {
	id := DocumentID(link)
	if id == "" {
		return "", nil
	}
	return s.documentText(ctx, id)
}

func (s *Store) documentText(ctx context.Context, id string) (string, error) {
	doc, err := s.docs.Documents.Get(id).Context(ctx).Do()
	if err != nil {
		return "", &DocumentError{DocumentID: id, Err: err}
	}
	if doc.Body == nil {
		return "", nil
	}

	var lines []string
	for _, el := range doc.Body.Content {
		if el == nil || el.Paragraph == nil {
			continue
		}
		for _, pe := range el.Paragraph.Elements {
			if pe == nil || pe.TextRun == nil {
				continue
			}
			if text := strings.TrimSpace(pe.TextRun.Content); text != "" {
				lines = append(lines, text)
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}

// StyleGuide returns the style guide for a client: the text of the Google
// Doc named Slugify(client) in the configured folder. A missing folder,
// missing document or failed lookup yields "".
func (s *Store) StyleGuide(ctx context.Context, client string) string {
	slug := Slugify(client)
	if slug == "" || s.folderID == "" || s.drive == nil {
		return ""
	}
	if text, ok := s.cache.Get(slug); ok {
		return text
	}

	logger := zerolog.Ctx(ctx)
	text, err := s.lookup(ctx, slug)
	if err != nil {
		logger.Warn().Err(err).Str("slug", slug).Msg("Style guide lookup failed")
		return ""
	}

	s.cache.SetWithTTL(slug, text, int64(len(text))+1, s.ttl)
	s.cache.Wait()
	logger.Debug().Str("slug", slug).Bool("found", text != "").Msg("Style guide cached")
	return text
}

func (s *Store) lookup(ctx context.Context, slug string) (string, error) {
	q := fmt.Sprintf("'%s' in parents and name = '%s' and mimeType = '%s' and trashed = false",
		escapeQuery(s.folderID), escapeQuery(slug), googleDocMimeType)

	list, err := s.drive.Files.List().
		Q(q).
		Fields("files(id, name)").
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to search style guide folder: %w", err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return s.documentText(ctx, list.Files[0].Id)
}

func escapeQuery(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `'`, `\'`)
}
