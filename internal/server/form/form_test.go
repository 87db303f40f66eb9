package form

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/catalogadmin/internal/common"
	"github.com/dmitrijs2005/catalogadmin/internal/logging"
	"github.com/dmitrijs2005/catalogadmin/internal/netx"
	"github.com/dmitrijs2005/catalogadmin/internal/server/blobstore"
	"github.com/dmitrijs2005/catalogadmin/internal/server/catalog"
	"github.com/dmitrijs2005/catalogadmin/internal/server/models"
	"github.com/dmitrijs2005/catalogadmin/internal/server/repositories/records"
	"github.com/dmitrijs2005/catalogadmin/internal/server/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStore struct {
	mu      sync.Mutex
	puts    []string
	deleted []string
	failOn  string
	// Puts under slowOn finish after slowFor and ignore cancellation.
	slowOn  string
	slowFor time.Duration
}

func (s *fakeStore) Put(_ context.Context, key string, body io.Reader, size int64, _ string, onProgress netx.ProgressFunc) (blobstore.Ref, error) {
	s.mu.Lock()
	s.puts = append(s.puts, key)
	fail := s.failOn != "" && strings.HasPrefix(key, s.failOn)
	slow := s.slowOn != "" && strings.HasPrefix(key, s.slowOn)
	s.mu.Unlock()

	if slow {
		time.Sleep(s.slowFor)
	}
	if fail {
		return blobstore.Ref{}, errors.New("connection reset")
	}
	n, err := io.Copy(io.Discard, body)
	if err != nil {
		return blobstore.Ref{}, err
	}
	if onProgress != nil {
		onProgress(n/2, size)
		onProgress(n, size)
	}
	return blobstore.Ref{Key: key, Size: n}, nil
}

func (s *fakeStore) URL(_ context.Context, ref blobstore.Ref) (string, error) {
	return "https://cdn.test/" + ref.Key, nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *fakeStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.puts)
}

// countingGateway records every call made against the wrapped repository.
type countingGateway struct {
	records.Repository
	mu        sync.Mutex
	creates   []map[string]any
	updates   []map[string]any
	gets      int
	createErr error
}

func (g *countingGateway) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	g.mu.Lock()
	g.creates = append(g.creates, fields)
	err := g.createErr
	g.mu.Unlock()
	if err != nil {
		return "", err
	}
	return g.Repository.Create(ctx, collection, fields)
}

func (g *countingGateway) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	g.mu.Lock()
	g.updates = append(g.updates, fields)
	g.mu.Unlock()
	return g.Repository.Update(ctx, collection, id, fields)
}

func (g *countingGateway) Get(ctx context.Context, collection, id string) (*models.Record, error) {
	g.mu.Lock()
	g.gets++
	g.mu.Unlock()
	return g.Repository.Get(ctx, collection, id)
}

func (g *countingGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.creates) + len(g.updates)
}

func newFixture() (*fakeStore, *countingGateway, *upload.Uploader) {
	store := &fakeStore{}
	gw := &countingGateway{Repository: records.NewMemoryRepository()}
	return store, gw, upload.New(store, logging.NewDiscardLogger())
}

func file(name string, size int) upload.File {
	return upload.File{Name: name, Size: int64(size), ContentType: "image/png", Body: bytes.NewReader(make([]byte, size))}
}

func TestSubmit_ProductCreate(t *testing.T) {
	store, gw, up := newFixture()
	schema := catalog.Products()
	schema.Timestamped = false

	f := New(schema, gw, up, WithAuthor("user-1"))
	require.NoError(t, f.SetField("title", "A"))
	require.NoError(t, f.SetField("price", "10"))
	require.NoError(t, f.AttachFile("image", file("a.png", 2<<20)))

	id, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, Done, f.State())
	assert.Equal(t, id, f.ID())

	require.Len(t, gw.creates, 1)
	got := gw.creates[0]
	assert.Equal(t, "A", got["title"])
	assert.Equal(t, float64(10), got["price"])
	assert.Equal(t, "https://cdn.test/images/a.png", got["image"])
	assert.Equal(t, "", got["document"])
	assert.Equal(t, "user-1", got[AuthorField])
	assert.Equal(t, []string{"images/a.png"}, store.puts)

	d := f.Draft()
	assert.Equal(t, Resolved, d.Files["image"].State())
}

func TestSubmit_MissingRequiredMakesNoCalls(t *testing.T) {
	store, gw, up := newFixture()

	f := New(catalog.Products(), gw, up)
	require.NoError(t, f.AttachFile("image", file("a.png", 10)))
	require.NoError(t, f.SetField("price", 10))

	_, err := f.Submit(context.Background())
	var ve *common.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "title", ve.Field)
	assert.Equal(t, Idle, f.State())
	assert.Zero(t, store.putCount())
	assert.Zero(t, gw.calls())
}

func TestSubmit_RequiredFileGate(t *testing.T) {
	store, gw, up := newFixture()

	f := New(catalog.Courses(), gw, up)
	for _, name := range []string{"title", "description", "level", "language", "teacher"} {
		require.NoError(t, f.SetField(name, "x"))
	}

	_, err := f.Submit(context.Background())
	var ve *common.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "image", ve.Field)
	assert.Zero(t, store.putCount())
	assert.Zero(t, gw.calls())
}

func TestSubmit_InvalidDate(t *testing.T) {
	_, gw, up := newFixture()

	f := New(catalog.News(), gw, up)
	require.NoError(t, f.SetField("title", "t"))
	require.NoError(t, f.SetField("content", "c"))
	require.NoError(t, f.SetField("author", "a"))
	require.NoError(t, f.SetField("date", "yesterday"))

	_, err := f.Submit(context.Background())
	var ve *common.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "date", ve.Field)
	assert.Zero(t, gw.calls())
}

func TestSubmit_NewsWithoutFilesGoesStraightToPersist(t *testing.T) {
	store, gw, up := newFixture()

	f := New(catalog.News(), gw, up)
	require.NoError(t, f.SetField("title", "t"))
	require.NoError(t, f.SetField("content", "c"))
	require.NoError(t, f.SetField("author", "a"))
	require.NoError(t, f.SetField("date", "2024-05-01T10:30"))

	_, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.Zero(t, store.putCount())
	require.Len(t, gw.creates, 1)
	assert.Equal(t, "2024-05-01T10:30:00.000Z", gw.creates[0]["date"])
	assert.Equal(t, "", gw.creates[0]["image"])
	assert.NotContains(t, gw.creates[0], AuthorField)
}

func TestSubmit_UploadFailureSkipsPersistence(t *testing.T) {
	tests := []struct {
		name       string
		concurrent bool
	}{
		{name: "sequential"},
		{name: "concurrent", concurrent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, gw, up := newFixture()
			store.failOn = "documents/"

			var opts []Option
			if tt.concurrent {
				opts = append(opts, WithConcurrentUploads())
			}
			schema := catalog.Products()
			schema.Timestamped = false
			f := New(schema, gw, up, opts...)
			require.NoError(t, f.SetField("title", "A"))
			require.NoError(t, f.AttachFile("image", file("a.png", 8)))
			require.NoError(t, f.AttachFile("document", file("d.pdf", 8)))

			_, err := f.Submit(context.Background())
			var ue *common.UploadError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, "document", ue.Field)
			assert.Equal(t, "documents/d.pdf", ue.Key)
			assert.Equal(t, Failed, f.State())
			assert.Zero(t, gw.calls())
			assert.Empty(t, store.deleted)
		})
	}
}

func TestSubmit_OrphanCleanup(t *testing.T) {
	store, gw, up := newFixture()
	gw.createErr = errors.New("table is read only")

	schema := catalog.Products()
	schema.Timestamped = false
	f := New(schema, gw, up, WithOrphanCleanup(store))
	require.NoError(t, f.SetField("title", "A"))
	require.NoError(t, f.AttachFile("image", file("a.png", 8)))

	_, err := f.Submit(context.Background())
	var pe *common.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "create", pe.Op)
	assert.Equal(t, "products", pe.Collection)
	assert.Equal(t, Failed, f.State())
	assert.Equal(t, []string{"images/a.png"}, store.deleted)
}

func TestSubmit_ConcurrentCleanupCatchesLateSibling(t *testing.T) {
	store, gw, up := newFixture()
	store.failOn = "images/"
	store.slowOn = "documents/"
	store.slowFor = 50 * time.Millisecond

	schema := catalog.Products()
	schema.Timestamped = false
	f := New(schema, gw, up, WithConcurrentUploads(), WithOrphanCleanup(store))
	require.NoError(t, f.SetField("title", "A"))
	require.NoError(t, f.AttachFile("image", file("a.png", 8)))
	require.NoError(t, f.AttachFile("document", file("d.pdf", 8)))

	_, err := f.Submit(context.Background())
	var ue *common.UploadError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "image", ue.Field)
	assert.Zero(t, gw.calls())
	assert.Equal(t, []string{"documents/d.pdf"}, store.deleted)
}

func TestSubmit_NotIdle(t *testing.T) {
	_, gw, up := newFixture()

	f := New(catalog.News(), gw, up)
	require.NoError(t, f.SetField("title", "t"))
	require.NoError(t, f.SetField("content", "c"))
	require.NoError(t, f.SetField("author", "a"))
	require.NoError(t, f.SetField("date", "2024-05-01"))

	_, err := f.Submit(context.Background())
	require.NoError(t, err)

	_, err = f.Submit(context.Background())
	assert.ErrorIs(t, err, common.ErrFormState)
	assert.ErrorIs(t, f.SetField("title", "u"), common.ErrFormState)
	assert.Len(t, gw.creates, 1)
}

func TestSubmit_Progress(t *testing.T) {
	_, gw, up := newFixture()

	var mu sync.Mutex
	seen := map[string][]float64{}
	schema := catalog.Products()
	f := New(schema, gw, up, WithProgress(func(field string, v float64) {
		mu.Lock()
		seen[field] = append(seen[field], v)
		mu.Unlock()
	}))
	require.NoError(t, f.SetField("title", "A"))
	require.NoError(t, f.AttachFile("image", file("a.png", 100)))

	_, err := f.Submit(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	vals := seen["image"]
	require.NotEmpty(t, vals)
	assert.Equal(t, 1.0, vals[len(vals)-1])
	for i := 1; i < len(vals); i++ {
		assert.Greater(t, vals[i], vals[i-1])
	}
}

func TestSubmit_TimestampedNames(t *testing.T) {
	store, gw, up := newFixture()

	f := New(catalog.Products(), gw, up)
	require.NoError(t, f.SetField("title", "A"))
	require.NoError(t, f.AttachFile("image", file("a.png", 4)))

	_, err := f.Submit(context.Background())
	require.NoError(t, err)
	require.Len(t, store.puts, 1)
	assert.Regexp(t, `^images/\d+_a\.png$`, store.puts[0])
}

func TestLoad_EditUpdatesPartially(t *testing.T) {
	store, gw, up := newFixture()
	ctx := context.Background()

	id, err := gw.Repository.Create(ctx, "courses", map[string]any{
		"title":       "Go",
		"description": "d",
		"level":       "beginner",
		"language":    "en",
		"teacher":     "T",
		"image":       "https://cdn.test/images/old.png",
		"video":       "https://cdn.test/videos/v.mp4",
		"chapters": []any{
			map[string]any{"title": "c1", "description": "d1", "duration": float64(5), "video": "https://cdn.test/chapter-videos/1.mp4"},
		},
	})
	require.NoError(t, err)

	f, err := Load(ctx, catalog.Courses(), gw, up, id)
	require.NoError(t, err)

	d := f.Draft()
	assert.Equal(t, Resolved, d.Files["image"].State())
	assert.Equal(t, "https://cdn.test/images/old.png", d.Files["image"].URL())
	require.Len(t, d.Chapters, 1)
	assert.Equal(t, "c1", d.Chapters[0].Title)

	require.NoError(t, f.SetField("title", "Go 2"))
	require.NoError(t, f.ClearFile("video"))
	got, err := f.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Zero(t, store.putCount())
	assert.Empty(t, gw.creates)
	require.Len(t, gw.updates, 1)

	rec, err := gw.Repository.Get(ctx, "courses", id)
	require.NoError(t, err)
	assert.Equal(t, "Go 2", rec.Fields["title"])
	assert.Equal(t, "", rec.Fields["video"])
	assert.Equal(t, "https://cdn.test/images/old.png", rec.Fields["image"])
	assert.Len(t, rec.Fields["chapters"], 1)
}

func TestLoad_NotFound(t *testing.T) {
	_, gw, up := newFixture()

	_, err := Load(context.Background(), catalog.News(), gw, up, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func fillCourse(t *testing.T, f *Form) {
	t.Helper()
	for name, v := range map[string]any{
		"title": "Go", "description": "d", "level": "beginner", "language": "en", "teacher": "T",
	} {
		require.NoError(t, f.SetField(name, v))
	}
	require.NoError(t, f.AttachFile("image", file("cover.png", 4)))
}

func TestAddChapter(t *testing.T) {
	store, gw, up := newFixture()

	f := New(catalog.Courses(), gw, up)

	err := f.AddChapter(Chapter{Title: "c1", Description: "d"}, nil)
	var ve *common.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "chapter.duration", ve.Field)

	err = f.AddChapter(Chapter{Title: "c1", Description: "d", Duration: 3}, nil)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "chapter.video", ve.Field)

	empty := file("intro.mp4", 0)
	err = f.AddChapter(Chapter{Title: "c1", Description: "d", Duration: 3}, &empty)
	require.ErrorAs(t, err, &ve)

	vid := file("intro.mp4", 16)
	require.NoError(t, f.AddChapter(Chapter{Title: "c1", Description: "d", Duration: 3}, &vid))
	require.NoError(t, f.AddChapter(Chapter{Title: "c2", Description: "d", Duration: 4, Video: "https://cdn.test/old.mp4"}, nil))
	assert.Zero(t, store.putCount())
	assert.Empty(t, f.Draft().Chapters[0].Video)

	fillCourse(t, f)
	_, err = f.Submit(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"images/cover.png", "chapter-videos/intro.mp4"}, store.puts)

	chapters := f.Draft().Chapters
	require.Len(t, chapters, 2)
	assert.Equal(t, "https://cdn.test/chapter-videos/intro.mp4", chapters[0].Video)
	assert.Equal(t, "https://cdn.test/old.mp4", chapters[1].Video)

	require.Len(t, gw.creates, 1)
	stored := gw.creates[0][ChaptersField].([]any)
	require.Len(t, stored, 2)
	assert.Equal(t, "https://cdn.test/chapter-videos/intro.mp4", stored[0].(map[string]any)["video"])

	products := New(catalog.Products(), gw, up)
	err = products.AddChapter(Chapter{Title: "c", Description: "d", Duration: 1, Video: "u"}, nil)
	assert.ErrorAs(t, err, &ve)
}

func TestSubmit_ChapterVideoWaitsForRequiredGate(t *testing.T) {
	store, gw, up := newFixture()

	f := New(catalog.Courses(), gw, up)
	vid := file("intro.mp4", 16)
	require.NoError(t, f.AddChapter(Chapter{Title: "c1", Description: "d", Duration: 3}, &vid))

	_, err := f.Submit(context.Background())
	var ve *common.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "title", ve.Field)
	assert.Zero(t, store.putCount())
	assert.Zero(t, gw.calls())
	assert.Equal(t, Idle, f.State())
}

func TestSubmit_ChapterVideoCleanedUpOnFailure(t *testing.T) {
	store, gw, up := newFixture()
	gw.createErr = errors.New("table is read only")

	f := New(catalog.Courses(), gw, up, WithOrphanCleanup(store))
	vid := file("intro.mp4", 16)
	require.NoError(t, f.AddChapter(Chapter{Title: "c1", Description: "d", Duration: 3}, &vid))
	fillCourse(t, f)

	_, err := f.Submit(context.Background())
	var pe *common.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.ElementsMatch(t, []string{"images/cover.png", "chapter-videos/intro.mp4"}, store.deleted)
}

func TestClearChaptersDropsPendingVideos(t *testing.T) {
	store, gw, up := newFixture()

	f := New(catalog.Courses(), gw, up)
	vid := file("intro.mp4", 16)
	require.NoError(t, f.AddChapter(Chapter{Title: "c1", Description: "d", Duration: 3}, &vid))
	require.NoError(t, f.ClearChapters())
	fillCourse(t, f)

	_, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"images/cover.png"}, store.puts)
	assert.Empty(t, f.Draft().Chapters)
}

func TestFieldMutations(t *testing.T) {
	_, gw, up := newFixture()
	f := New(catalog.Products(), gw, up)

	var ve *common.ValidationError
	assert.ErrorAs(t, f.SetField("image", "x"), &ve)
	assert.ErrorAs(t, f.AttachFile("title", file("a.png", 1)), &ve)
	assert.ErrorAs(t, f.AttachFile("image", file("a.png", 0)), &ve)
	assert.ErrorAs(t, f.ClearFile("title"), &ve)

	require.NoError(t, f.AttachFile("image", file("a.png", 3)))
	assert.Equal(t, Selected, f.Draft().Files["image"].State())
	require.NoError(t, f.ClearFile("image"))
	assert.Equal(t, Empty, f.Draft().Files["image"].State())
	assert.Zero(t, gw.calls())
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "uploading", Uploading.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "uploading", FileUploading.String())
	assert.Equal(t, "resolved", ResolvedFile("https://cdn.test/a.png").State().String())
	assert.Equal(t, Empty, ResolvedFile("").State())
}
