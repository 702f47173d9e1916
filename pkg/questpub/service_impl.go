package questpub

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/questlore/questpub/pkg/questpub/objectkey"
)

// service implements the Service interface
type service struct {
	repository   Repository
	blobStore    BlobStore
	backendName  string
	translator   Translator
	keyGenerator objectkey.Generator
	eventSink    EventSink
	logger       *slog.Logger
	metrics      Metrics
	uploadPolicy UploadPolicy
	now          func() time.Time
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the artifact store; name labels it in errors and logs
func WithBlobStore(name string, store BlobStore) Option {
	return func(s *service) {
		s.backendName = name
		s.blobStore = store
	}
}

// WithTranslator replaces the default XML translator
func WithTranslator(t Translator) Option {
	return func(s *service) {
		s.translator = t
	}
}

// WithKeyGenerator sets the artifact key generator
func WithKeyGenerator(g objectkey.Generator) Option {
	return func(s *service) {
		s.keyGenerator = g
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics recorder for the service
func WithMetrics(m Metrics) Option {
	return func(s *service) {
		s.metrics = m
	}
}

// WithUploadPolicy sets how artifact upload failures are handled
func WithUploadPolicy(p UploadPolicy) Option {
	return func(s *service) {
		s.uploadPolicy = p
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		translator:   NewXMLTranslator(),
		keyGenerator: objectkey.NewRecommendedGenerator(),
		eventSink:    NewNoopEventSink(),
		logger:       slog.Default(),
		metrics:      noopMetrics{},
		uploadPolicy: UploadRequired,
		now:          time.Now,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.backendName == "" {
		s.backendName = "default"
	}
	policy, err := ParseUploadPolicy(string(s.uploadPolicy))
	if err != nil {
		return nil, err
	}
	s.uploadPolicy = policy

	return s, nil
}

// Publication lifecycle

func (s *service) Publish(ctx context.Context, ownerID, documentID string, content []byte) (id string, err error) {
	started := s.now()
	defer func() {
		s.metrics.ObservePublish(outcomeOf(err), s.now().Sub(started))
	}()

	if err := CheckDocumentRef(ownerID, documentID); err != nil {
		return "", err
	}
	if len(content) == 0 {
		return "", fmt.Errorf("%w: content is empty", ErrInvalidRequest)
	}

	id = QuestID(ownerID, documentID)

	quest, err := s.ValidateContent(content)
	if err != nil {
		return "", err
	}

	key := s.keyGenerator.GenerateKey(ownerID, documentID)
	uploaded := true
	uerr := s.blobStore.UploadWithParams(ctx, bytes.NewReader(content), UploadParams{
		ObjectKey: key,
		MimeType:  ContentMimeType,
	})
	if uerr != nil {
		tolerated := s.uploadPolicy == UploadBestEffort
		s.metrics.ObserveUploadFailure(tolerated)
		if !tolerated {
			return "", &StorageError{
				Backend: s.backendName,
				Key:     key,
				Op:      "upload",
				Err:     fmt.Errorf("%w: %w", ErrUploadFailed, uerr),
			}
		}
		uploaded = false
		s.logger.WarnContext(ctx, "artifact upload failed, writing metadata anyway",
			"quest_id", id, "key", key, "backend", s.backendName, "err", uerr)
	}

	publishedAt := s.now().UTC()
	quest.ID = id
	quest.OwnerID = ownerID
	quest.PublishedURL = s.blobStore.PublicURL(key)
	quest.PublishedAt = &publishedAt
	quest.TombstoneAt = nil

	if err := ValidateQuest(quest); err != nil {
		s.discardArtifact(ctx, id, key, uploaded)
		return "", err
	}

	if err := s.repository.UpsertQuest(ctx, quest); err != nil {
		s.discardArtifact(ctx, id, key, uploaded)
		if errors.Is(err, ErrTombstoned) || errors.Is(err, ErrOwnerMismatch) {
			return "", err
		}
		return "", &QuestError{QuestID: id, Op: "publish", Err: err}
	}

	if err := s.eventSink.QuestPublished(ctx, quest); err != nil {
		s.logger.ErrorContext(ctx, "event sink failed", "event", "quest_published", "quest_id", id, "err", err)
	}

	return id, nil
}

// discardArtifact removes an artifact whose metadata write was abandoned.
// Failure only leaves an orphaned object behind, so it is logged.
func (s *service) discardArtifact(ctx context.Context, id, key string, uploaded bool) {
	if !uploaded || s.uploadPolicy != UploadRequired {
		return
	}
	if err := s.blobStore.Delete(ctx, key); err != nil {
		s.logger.ErrorContext(ctx, "failed to delete orphaned artifact",
			"quest_id", id, "key", key, "backend", s.backendName, "err", err)
	}
}

func (s *service) Unpublish(ctx context.Context, ownerID, documentID string) (id string, err error) {
	defer func() {
		s.metrics.ObserveUnpublish(outcomeOf(err))
	}()

	if err := CheckDocumentRef(ownerID, documentID); err != nil {
		return "", err
	}

	id = QuestID(ownerID, documentID)
	values := ColumnValues{
		ColID:        id,
		ColTombstone: s.now().UTC(),
	}
	if err := s.repository.UpsertQuestColumns(ctx, id, values); err != nil {
		return "", &QuestError{QuestID: id, Op: "unpublish", Err: err}
	}

	if err := s.eventSink.QuestUnpublished(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "event sink failed", "event", "quest_unpublished", "quest_id", id, "err", err)
	}

	return id, nil
}

// Read operations

func (s *service) GetQuest(ctx context.Context, id string) (*Quest, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidRequest)
	}
	return s.repository.GetQuest(ctx, id)
}

func (s *service) Search(ctx context.Context, userID string, req SearchRequest) (result *SearchResult, err error) {
	started := s.now()
	defer func() {
		n := 0
		if result != nil {
			n = len(result.Quests)
		}
		s.metrics.ObserveSearch(outcomeOf(err), n, s.now().Sub(started))
	}()

	query, err := BuildSearch(userID, req, s.now())
	if err != nil {
		return nil, err
	}

	quests, err := s.repository.SearchQuests(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search quests: %w", err)
	}
	if quests == nil {
		quests = []*Quest{}
	}

	result = &SearchResult{Quests: quests}
	if len(quests) == query.Limit {
		result.HasMore = true
		result.NextToken = strconv.Itoa(query.Offset + len(quests))
	}
	return result, nil
}

func (s *service) ValidateContent(content []byte) (*Quest, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: content is empty", ErrInvalidRequest)
	}
	quest, err := s.translator.Translate(content)
	if err != nil {
		return quest, err
	}
	verr := QuestSchema.Attributes().Validate(quest.ColumnValues())
	verr.Merge(checkRanges(quest))
	return quest, verr.ErrOrNil()
}
