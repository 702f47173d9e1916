package questpub_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questlore/questpub/pkg/questpub"
	"github.com/questlore/questpub/pkg/questpub/objectkey"
	memoryrepo "github.com/questlore/questpub/pkg/questpub/repo/memory"
	memorystorage "github.com/questlore/questpub/pkg/questpub/storage/memory"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu          sync.Mutex
	published   []string
	unpublished []string
	err         error
}

func (s *recordingSink) QuestPublished(ctx context.Context, q *questpub.Quest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, q.ID)
	return s.err
}

func (s *recordingSink) QuestUnpublished(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unpublished = append(s.unpublished, id)
	return s.err
}

type countingMetrics struct {
	mu       sync.Mutex
	publish  map[string]int
	uploads  map[bool]int
	searches int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{publish: map[string]int{}, uploads: map[bool]int{}}
}

func (m *countingMetrics) ObservePublish(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publish[outcome]++
}

func (m *countingMetrics) ObserveUnpublish(string) {}

func (m *countingMetrics) ObserveUploadFailure(tolerated bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads[tolerated]++
}

func (m *countingMetrics) ObserveSearch(string, int, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches++
}

type fixture struct {
	svc     questpub.Service
	repo    *memoryrepo.Repository
	blobs   *memorystorage.Backend
	clock   *clock
	sink    *recordingSink
	metrics *countingMetrics
}

func newFixture(t *testing.T, opts ...questpub.Option) *fixture {
	t.Helper()
	f := &fixture{
		repo:    memoryrepo.New(),
		blobs:   memorystorage.New(),
		clock:   &clock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)},
		sink:    &recordingSink{},
		metrics: newCountingMetrics(),
	}
	keys := objectkey.NewTimestampGenerator()
	keys.Stamper.Now = f.clock.Now

	options := append([]questpub.Option{
		questpub.WithRepository(f.repo),
		questpub.WithBlobStore("memory", f.blobs),
		questpub.WithKeyGenerator(keys),
		questpub.WithEventSink(f.sink),
		questpub.WithMetrics(f.metrics),
		questpub.WithClock(f.clock.Now),
	}, opts...)

	svc, err := questpub.New(options...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func questDoc(title string, minP, maxP int) []byte {
	return []byte(fmt.Sprintf(`<quest title=%q summary="A short delve" minplayers="%d" maxplayers="%d"><room/></quest>`, title, minP, maxP))
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := questpub.New(questpub.WithBlobStore("memory", memorystorage.New()))
	assert.Error(t, err)

	_, err = questpub.New(questpub.WithRepository(memoryrepo.New()))
	assert.Error(t, err)

	_, err = questpub.New(
		questpub.WithRepository(memoryrepo.New()),
		questpub.WithBlobStore("memory", memorystorage.New()),
		questpub.WithUploadPolicy("sometimes"),
	)
	assert.ErrorIs(t, err, questpub.ErrValidation)
}

func TestPublish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.Publish(ctx, "u1", "d1", questDoc("The Lost Crypt", 2, 5))
	require.NoError(t, err)
	assert.Equal(t, "u1_d1", id)

	q, err := f.svc.GetQuest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "u1", q.OwnerID)
	assert.Equal(t, "The Lost Crypt", q.Title)
	require.NotNil(t, q.PublishedAt)
	assert.Equal(t, f.clock.Now(), *q.PublishedAt)
	assert.False(t, q.IsTombstoned())

	key := fmt.Sprintf("u1/d1/%d.xml", f.clock.Now().UnixMilli())
	assert.Equal(t, "memory://quests/"+key, q.PublishedURL)
	mime, ok := f.blobs.MimeType(key)
	require.True(t, ok, "artifact uploaded under its key")
	assert.Equal(t, questpub.ContentMimeType, mime)

	assert.Equal(t, []string{"u1_d1"}, f.sink.published)
	assert.Equal(t, 1, f.metrics.publish[questpub.OutcomeOK])
}

func TestPublish_RepublishReplacesRecordAndKeepsOldArtifact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Publish(ctx, "u1", "d1", []byte(`<quest title="v1" summary="first" author="Ann" minplayers="1" maxplayers="4"/>`))
	require.NoError(t, err)
	first, err := f.svc.GetQuest(ctx, "u1_d1")
	require.NoError(t, err)

	_, err = f.svc.Publish(ctx, "u1", "d1", []byte(`<quest title="v2" minplayers="2" maxplayers="3"/>`))
	require.NoError(t, err)
	second, err := f.svc.GetQuest(ctx, "u1_d1")
	require.NoError(t, err)

	assert.Equal(t, "v2", second.Title)
	assert.Empty(t, second.Summary, "no merge with the previous version")
	assert.Empty(t, second.Author)
	assert.NotEqual(t, first.PublishedURL, second.PublishedURL, "keys differ even within one millisecond")
	assert.Len(t, f.blobs.Keys(), 2, "artifacts are never overwritten")
}

func TestPublish_InvalidArguments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, tc := range []struct{ owner, doc string }{{"", "d"}, {"u", ""}} {
		_, err := f.svc.Publish(ctx, tc.owner, tc.doc, questDoc("t", 1, 2))
		assert.ErrorIs(t, err, questpub.ErrInvalidRequest)
	}
	_, err := f.svc.Publish(ctx, "u", "d", nil)
	assert.ErrorIs(t, err, questpub.ErrInvalidRequest)

	assert.Empty(t, f.blobs.Keys())
	assert.Equal(t, 0, f.repo.Len())
}

func TestPublish_OwnerIDsCannotCollide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.Publish(ctx, "a", "b_c", questDoc("Original", 1, 2))
	require.NoError(t, err)
	assert.Equal(t, "a_b_c", id)

	_, err = f.svc.Publish(ctx, "a_b", "c", questDoc("Hijacked", 1, 2))
	assert.ErrorIs(t, err, questpub.ErrInvalidRequest)
	_, err = f.svc.Unpublish(ctx, "a_b", "c")
	assert.ErrorIs(t, err, questpub.ErrInvalidRequest)

	q, err := f.svc.GetQuest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "a", q.OwnerID)
	assert.Equal(t, "Original", q.Title)
	assert.False(t, q.IsTombstoned())
	assert.Len(t, f.blobs.Keys(), 1)
}

func TestPublish_ForeignRecordIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A row under this id written by another owner outside the service
	published := f.clock.Now()
	require.NoError(t, f.repo.UpsertQuest(ctx, &questpub.Quest{
		ID:           "u1_d1",
		OwnerID:      "intruder",
		Title:        "Theirs",
		MinPlayers:   1,
		MaxPlayers:   2,
		PublishedAt:  &published,
		PublishedURL: "memory://quests/x.xml",
	}))

	_, err := f.svc.Publish(ctx, "u1", "d1", questDoc("Mine", 1, 2))
	assert.ErrorIs(t, err, questpub.ErrOwnerMismatch)
	assert.True(t, questpub.IsClientError(err))
	assert.Empty(t, f.blobs.Keys(), "orphaned artifact deleted")

	q, err := f.svc.GetQuest(ctx, "u1_d1")
	require.NoError(t, err)
	assert.Equal(t, "intruder", q.OwnerID)
	assert.Equal(t, "Theirs", q.Title)
}

func TestPublish_InvalidContentUploadsNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Publish(context.Background(), "u1", "d1", []byte(`<quest minplayers="9" maxplayers="2" colour="red"/>`))
	require.Error(t, err)
	assert.ErrorIs(t, err, questpub.ErrValidation)

	k := kinds(t, err)
	assert.Equal(t, questpub.FieldMissing, k["title"])
	assert.Equal(t, questpub.FieldUnknown, k["colour"])
	assert.Equal(t, questpub.FieldInvalid, k["minplayers"])

	assert.Empty(t, f.blobs.Keys())
	assert.Equal(t, 0, f.repo.Len())
	assert.Empty(t, f.sink.published)
	assert.Equal(t, 1, f.metrics.publish[questpub.OutcomeInvalid])
}

func TestPublish_OversizedEngineFields(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Publish(context.Background(), strings.Repeat("u", 300), "d1", questDoc("t", 1, 2))
	require.Error(t, err)
	assert.ErrorIs(t, err, questpub.ErrValidation)
	assert.Equal(t, 0, f.repo.Len())
	assert.Empty(t, f.blobs.Keys(), "artifact removed when the record is rejected")
}

func TestPublish_UploadRequired(t *testing.T) {
	f := newFixture(t)
	f.blobs.FailUploads(errors.New("bucket unavailable"))

	_, err := f.svc.Publish(context.Background(), "u1", "d1", questDoc("t", 1, 2))
	require.Error(t, err)
	assert.ErrorIs(t, err, questpub.ErrUploadFailed)

	var serr *questpub.StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "memory", serr.Backend)
	assert.Equal(t, "upload", serr.Op)

	assert.Equal(t, 0, f.repo.Len(), "nothing written when the upload fails")
	assert.Equal(t, 1, f.metrics.uploads[false])
	assert.Equal(t, 1, f.metrics.publish[questpub.OutcomeError])
}

func TestPublish_UploadBestEffort(t *testing.T) {
	f := newFixture(t, questpub.WithUploadPolicy(questpub.UploadBestEffort))
	f.blobs.FailUploads(errors.New("bucket unavailable"))

	id, err := f.svc.Publish(context.Background(), "u1", "d1", questDoc("t", 1, 2))
	require.NoError(t, err)

	q, err := f.svc.GetQuest(context.Background(), id)
	require.NoError(t, err)
	assert.NotEmpty(t, q.PublishedURL, "record points at the intended artifact")
	assert.Equal(t, 1, f.metrics.uploads[true])
}

func TestUnpublish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Publish(ctx, "u1", "d1", questDoc("The Lost Crypt", 2, 5))
	require.NoError(t, err)
	f.clock.Advance(time.Minute)

	id, err := f.svc.Unpublish(ctx, "u1", "d1")
	require.NoError(t, err)
	assert.Equal(t, "u1_d1", id)

	q, err := f.svc.GetQuest(ctx, id)
	require.NoError(t, err)
	require.True(t, q.IsTombstoned())
	assert.Equal(t, f.clock.Now(), *q.TombstoneAt)
	assert.Equal(t, "The Lost Crypt", q.Title, "other columns untouched")
	assert.Equal(t, []string{"u1_d1"}, f.sink.unpublished)

	res, err := f.svc.Search(ctx, "u1", questpub.SearchRequest{Owner: "u1"})
	require.NoError(t, err)
	assert.Empty(t, res.Quests, "tombstoned quests never appear in searches")
}

func TestUnpublish_NeverPublished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Unpublish(ctx, "u1", "ghost")
	require.NoError(t, err)

	q, err := f.svc.GetQuest(ctx, "u1_ghost")
	require.NoError(t, err)
	assert.True(t, q.IsTombstoned())
	assert.Empty(t, q.Title)

	_, err = f.svc.Unpublish(ctx, "", "ghost")
	assert.ErrorIs(t, err, questpub.ErrInvalidRequest)
}

func TestPublish_AfterUnpublishIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Publish(ctx, "u1", "d1", questDoc("v1", 1, 2))
	require.NoError(t, err)
	_, err = f.svc.Unpublish(ctx, "u1", "d1")
	require.NoError(t, err)
	keysBefore := len(f.blobs.Keys())

	_, err = f.svc.Publish(ctx, "u1", "d1", questDoc("v2", 1, 2))
	assert.ErrorIs(t, err, questpub.ErrTombstoned)
	assert.True(t, questpub.IsClientError(err))

	q, err := f.svc.GetQuest(ctx, "u1_d1")
	require.NoError(t, err)
	assert.Equal(t, "v1", q.Title)
	assert.True(t, q.IsTombstoned())
	assert.Len(t, f.blobs.Keys(), keysBefore, "orphaned artifact deleted")
	assert.Equal(t, 1, f.metrics.publish[questpub.OutcomeTombstoned])
}

func TestGetQuest_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetQuest(context.Background(), "nobody_nothing")
	assert.ErrorIs(t, err, questpub.ErrQuestNotFound)

	_, err = f.svc.GetQuest(context.Background(), "")
	assert.ErrorIs(t, err, questpub.ErrInvalidRequest)
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.svc.Publish(ctx, "u1", fmt.Sprintf("d%d", i), questDoc(fmt.Sprintf("Quest %d", i), 1, 4))
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	t.Run("requires criteria", func(t *testing.T) {
		_, err := f.svc.Search(ctx, "", questpub.SearchRequest{Limit: 2})
		assert.ErrorIs(t, err, questpub.ErrInvalidRequest)
	})

	t.Run("pages until a short page", func(t *testing.T) {
		req := questpub.SearchRequest{Owner: "u1", Limit: 2}
		var titles []string
		for page := 0; page < 5; page++ {
			res, err := f.svc.Search(ctx, "", req)
			require.NoError(t, err)
			for _, q := range res.Quests {
				titles = append(titles, q.Title)
			}
			if !res.HasMore {
				assert.Empty(t, res.NextToken)
				break
			}
			var next int
			_, err = fmt.Sscan(res.NextToken, &next)
			require.NoError(t, err)
			req.Token = next
		}
		assert.Equal(t, []string{"Quest 4", "Quest 3", "Quest 2", "Quest 1", "Quest 0"}, titles)
	})

	t.Run("exactly full final page reports more", func(t *testing.T) {
		res, err := f.svc.Search(ctx, "", questpub.SearchRequest{Owner: "u1", Limit: 5})
		require.NoError(t, err)
		assert.Len(t, res.Quests, 5)
		assert.True(t, res.HasMore)
		assert.Equal(t, "5", res.NextToken)

		res, err = f.svc.Search(ctx, "", questpub.SearchRequest{Owner: "u1", Limit: 5, Token: 5})
		require.NoError(t, err)
		assert.Empty(t, res.Quests)
		assert.NotNil(t, res.Quests)
		assert.False(t, res.HasMore)
	})

	t.Run("published after", func(t *testing.T) {
		res, err := f.svc.Search(ctx, "", questpub.SearchRequest{PublishedAfter: 150})
		require.NoError(t, err)
		assert.Len(t, res.Quests, 2)
	})

	assert.Positive(t, f.metrics.searches)
}

func TestValidateContent(t *testing.T) {
	f := newFixture(t)

	q, err := f.svc.ValidateContent(questDoc("Fine", 1, 2))
	require.NoError(t, err)
	assert.Equal(t, "Fine", q.Title)

	_, err = f.svc.ValidateContent([]byte(`<quest title="t" minplayers="1" maxplayers="30"/>`))
	assert.ErrorIs(t, err, questpub.ErrValidation)

	assert.Empty(t, f.blobs.Keys())
}

func TestPublish_EventSinkFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.sink.err = errors.New("queue down")

	_, err := f.svc.Publish(context.Background(), "u1", "d1", questDoc("t", 1, 2))
	assert.NoError(t, err)
}
