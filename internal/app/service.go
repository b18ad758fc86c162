package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"sitecms/internal/content"
	"sitecms/internal/docstore"
	"sitecms/internal/publish"
)

type documentStore interface {
	Read(ctx context.Context) (docstore.Snapshot, error)
	Write(ctx context.Context, req docstore.WriteRequest) (docstore.Commit, error)
}

type keyVerifier interface {
	Verify(token string) error
}

type Service struct {
	store      documentStore
	keys       keyVerifier
	publisher  publish.Publisher
	publishKey string
	logger     *zap.Logger
	now        func() time.Time
}

type CurrentDocument struct {
	Content  map[string]any
	Revision string
}

type UpdateInput struct {
	CMS           any
	CommitMessage string
}

type UpdateResult struct {
	CommitSHA string
	UpdatedAt string
}

func NewService(store documentStore, keys keyVerifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		keys:   keys,
		logger: logger,
		now:    time.Now,
	}
}

// WithPublisher mirrors every committed document to key through pub.
func (s *Service) WithPublisher(pub publish.Publisher, key string) *Service {
	s.publisher = pub
	s.publishKey = key
	return s
}

func (s *Service) Authorize(token string) error {
	if s.keys == nil || s.keys.Verify(token) != nil {
		return domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	}
	return nil
}

func (s *Service) Current(ctx context.Context) (CurrentDocument, error) {
	snap, err := s.store.Read(ctx)
	if err != nil {
		return CurrentDocument{}, storeError("Failed to read cms.json", err)
	}
	return CurrentDocument{Content: snap.Content, Revision: snap.Revision}, nil
}

// Update commits input.CMS as the new document. The caller must have
// authorized the request. The object is stored verbatim apart from
// updatedAt, which is always the server's clock.
func (s *Service) Update(ctx context.Context, input UpdateInput) (UpdateResult, error) {
	if err := content.Validate(input.CMS); err != nil {
		return UpdateResult{}, domainError(http.StatusUnprocessableEntity, "INVALID_PAYLOAD", "Invalid CMS payload schema", nil)
	}
	incoming := input.CMS.(map[string]any)

	existing, err := s.store.Read(ctx)
	if err != nil {
		return UpdateResult{}, storeError("Failed to write cms.json", err)
	}

	updatedAt := content.Timestamp(s.now())
	stored := make(map[string]any, len(incoming))
	for key, value := range incoming {
		stored[key] = value
	}
	stored["updatedAt"] = updatedAt

	if dups := content.DuplicateIDs(content.Merge(stored)); len(dups) > 0 {
		s.logger.Warn("document has duplicate entry ids", zap.Any("duplicates", dups))
	}

	raw, err := content.Encode(stored)
	if err != nil {
		return UpdateResult{}, storeError("Failed to write cms.json", err)
	}

	message := strings.TrimSpace(input.CommitMessage)
	if message == "" {
		message = fmt.Sprintf("cms: update %s", updatedAt)
	}

	commit, err := s.store.Write(ctx, docstore.WriteRequest{
		Content:  raw,
		Revision: existing.Revision,
		Message:  message,
	})
	if err != nil {
		return UpdateResult{}, storeError("Failed to write cms.json", err)
	}
	s.logger.Info("document committed",
		zap.String("commit", commit.ID),
		zap.String("revision", commit.Revision),
		zap.String("updated_at", updatedAt),
	)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, s.publishKey, raw); err != nil {
			s.logger.Warn("publish mirror failed", zap.Error(err))
		}
	}
	return UpdateResult{CommitSHA: commit.ID, UpdatedAt: updatedAt}, nil
}
