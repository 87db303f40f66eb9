package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/catalogadmin/internal/common"
	"github.com/dmitrijs2005/catalogadmin/internal/logging"
	"github.com/dmitrijs2005/catalogadmin/internal/netx"
	"github.com/dmitrijs2005/catalogadmin/internal/server/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeStore reads the body in four steps, reporting progress after each.
type fakeStore struct {
	mu      sync.Mutex
	keys    []string
	bodies  map[string][]byte
	putErr  error
	urlErr  error
	waitCtx bool
}

func (s *fakeStore) Put(ctx context.Context, key string, body io.Reader, size int64, _ string, onProgress netx.ProgressFunc) (blobstore.Ref, error) {
	s.mu.Lock()
	s.keys = append(s.keys, key)
	s.mu.Unlock()

	if s.waitCtx {
		<-ctx.Done()
		return blobstore.Ref{}, ctx.Err()
	}

	step := size / 4
	if step == 0 {
		step = 1
	}
	var buf bytes.Buffer
	for buf.Len() < int(size) {
		n, err := io.CopyN(&buf, body, step)
		if onProgress != nil && n > 0 {
			onProgress(int64(buf.Len()), size)
		}
		if err != nil {
			break
		}
		if s.putErr != nil && int64(buf.Len()) >= size/2 {
			return blobstore.Ref{}, s.putErr
		}
	}

	s.mu.Lock()
	if s.bodies == nil {
		s.bodies = map[string][]byte{}
	}
	s.bodies[key] = buf.Bytes()
	s.mu.Unlock()

	if onProgress != nil {
		onProgress(size, size)
	}
	return blobstore.Ref{Key: key, Size: size}, nil
}

func (s *fakeStore) URL(_ context.Context, ref blobstore.Ref) (string, error) {
	if s.urlErr != nil {
		return "", s.urlErr
	}
	return "https://cdn.example/" + ref.Key, nil
}

func (s *fakeStore) Delete(context.Context, string) error { return nil }

func file(name string, size int) File {
	return File{Name: name, Size: int64(size), ContentType: "application/octet-stream", Body: bytes.NewReader(bytes.Repeat([]byte("x"), size))}
}

func drain(t *testing.T, task *Task) []float64 {
	t.Helper()
	var got []float64
	for v := range task.Progress() {
		got = append(got, v)
	}
	return got
}

func assertMonotone(t *testing.T, vals []float64) {
	t.Helper()
	for i, v := range vals {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
		if i > 0 {
			assert.Greater(t, v, vals[i-1], "progress must advance: %v", vals)
		}
	}
}

func TestUpload_Success(t *testing.T) {
	store := &fakeStore{}
	u := New(store, logging.NewDiscardLogger())

	var sink []float64
	url, err := u.Upload(context.Background(), file("a.png", 2<<20), "images", WithProgress(func(v float64) { sink = append(sink, v) }))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/images/a.png", url)
	assert.Len(t, store.bodies["images/a.png"], 2<<20)

	require.NotEmpty(t, sink)
	assertMonotone(t, sink)
	assert.Equal(t, 1.0, sink[len(sink)-1])
	for _, v := range sink[:len(sink)-1] {
		assert.Less(t, v, 1.0, "1.0 is only published after the store confirms")
	}
}

func TestStart_TaskLifecycle(t *testing.T) {
	u := New(&fakeStore{}, logging.NewDiscardLogger())

	task, err := u.Start(context.Background(), file("intro.mp4", 1000), "videos")
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID())
	assert.Equal(t, "videos", task.Folder())
	assert.Equal(t, "videos/intro.mp4", task.Key())
	assert.Equal(t, "intro.mp4", task.File().Name)

	vals := drain(t, task)
	<-task.Done()

	assertMonotone(t, vals)
	require.NotEmpty(t, vals)
	assert.Equal(t, 1.0, vals[len(vals)-1])

	assert.Equal(t, Succeeded, task.Status())
	assert.Equal(t, 1.0, task.Fraction())
	assert.Equal(t, "https://cdn.example/videos/intro.mp4", task.URL())
	assert.NoError(t, task.Err())

	url, err := task.Wait(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, task.URL(), url)
}

func TestUpload_TransportFailure(t *testing.T) {
	store := &fakeStore{putErr: errors.New("connection reset")}
	u := New(store, logging.NewDiscardLogger())

	task, err := u.Start(context.Background(), file("a.png", 400), "images", WithField("image"))
	require.NoError(t, err)

	vals := drain(t, task)
	_, werr := task.Wait(context.Background())

	var uerr *common.UploadError
	require.ErrorAs(t, werr, &uerr)
	assert.Equal(t, "image", uerr.Field)
	assert.Equal(t, "images/a.png", uerr.Key)
	assert.EqualError(t, uerr.Cause, "connection reset")

	assert.Equal(t, Failed, task.Status())
	assert.Empty(t, task.URL(), "exactly one of URL and Err is set")
	assertMonotone(t, vals)
	for _, v := range vals {
		assert.Less(t, v, 1.0)
	}
}

func TestUpload_URLResolutionFailure(t *testing.T) {
	u := New(&fakeStore{urlErr: errors.New("sign failed")}, logging.NewDiscardLogger())

	url, err := u.Upload(context.Background(), file("a.pdf", 10), "documents")
	assert.Empty(t, url)

	var uerr *common.UploadError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "documents/a.pdf", uerr.Key)
	assert.Contains(t, err.Error(), "resolve url: sign failed")
}

func TestUpload_Validation(t *testing.T) {
	tests := []struct {
		name   string
		file   File
		folder string
		field  string
	}{
		{name: "empty name", file: File{Size: 1, Body: strings.NewReader("x")}, folder: "images", field: "file"},
		{name: "zero size", file: File{Name: "a.png", Body: strings.NewReader("")}, folder: "images", field: "file"},
		{name: "nil body", file: File{Name: "a.png", Size: 1}, folder: "images", field: "file"},
		{name: "empty folder", file: file("a.png", 1), folder: "", field: "folder"},
		{name: "nested folder", file: file("a.png", 1), folder: "images/x", field: "folder"},
		{name: "dot-dot name", file: File{Name: "..", Size: 1, Body: strings.NewReader("x")}, folder: "images", field: "file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			u := New(store, logging.NewDiscardLogger())

			_, err := u.Upload(context.Background(), tt.file, tt.folder)

			var verr *common.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Empty(t, store.keys, "nothing is sent")
		})
	}
}

func TestUpload_Naming(t *testing.T) {
	fixed := time.UnixMilli(1700000000123)

	t.Run("plain name strips directories", func(t *testing.T) {
		store := &fakeStore{}
		u := New(store, logging.NewDiscardLogger())

		_, err := u.Upload(context.Background(), file("../../etc/a.png", 4), "images")
		require.NoError(t, err)
		assert.Equal(t, []string{"images/a.png"}, store.keys)
	})

	t.Run("timestamped per call", func(t *testing.T) {
		store := &fakeStore{}
		u := New(store, logging.NewDiscardLogger())
		u.now = func() time.Time { return fixed }

		url, err := u.Upload(context.Background(), file("a.png", 4), "products", WithTimestampedName())
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example/products/1700000000123_a.png", url)
	})

	t.Run("timestamped by default", func(t *testing.T) {
		store := &fakeStore{}
		u := New(store, logging.NewDiscardLogger(), WithUniqueNames(true))
		u.now = func() time.Time { return fixed }

		_, err := u.Upload(context.Background(), file("a.png", 4), "images")
		require.NoError(t, err)
		assert.Equal(t, []string{"images/1700000000123_a.png"}, store.keys)
	})

	t.Run("same key overwrites silently", func(t *testing.T) {
		store := &fakeStore{}
		u := New(store, logging.NewDiscardLogger())

		_, err := u.Upload(context.Background(), file("a.png", 4), "images")
		require.NoError(t, err)
		_, err = u.Upload(context.Background(), file("a.png", 8), "images")
		require.NoError(t, err)
		assert.Len(t, store.bodies["images/a.png"], 8)
	})
}

func TestUpload_ConcurrentTasksKeepOwnProgress(t *testing.T) {
	store := &fakeStore{}
	u := New(store, logging.NewDiscardLogger())

	const n = 8
	var wg sync.WaitGroup
	results := make([][]float64, n)
	urls := make([]string, n)

	for i := 0; i < n; i++ {
		task, err := u.Start(context.Background(), file(fmt.Sprintf("f%d.bin", i), 1000*(i+1)), "documents")
		require.NoError(t, err)

		wg.Add(1)
		go func(i int, task *Task) {
			defer wg.Done()
			for v := range task.Progress() {
				results[i] = append(results[i], v)
			}
			urls[i], _ = task.Wait(context.Background())
		}(i, task)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		assertMonotone(t, results[i])
		require.NotEmpty(t, results[i])
		assert.Equal(t, 1.0, results[i][len(results[i])-1])
		assert.Equal(t, fmt.Sprintf("https://cdn.example/documents/f%d.bin", i), urls[i])
	}
}

func TestUpload_ContextCancelled(t *testing.T) {
	store := &fakeStore{waitCtx: true}
	u := New(store, logging.NewDiscardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	task, err := u.Start(ctx, file("big.mp4", 100), "videos")
	require.NoError(t, err)

	cancel()
	<-task.Done()

	assert.Equal(t, Failed, task.Status())
	assert.ErrorIs(t, task.Err(), context.Canceled)
}

func TestTask_WaitHonoursContext(t *testing.T) {
	store := &fakeStore{waitCtx: true}
	u := New(store, logging.NewDiscardLogger())

	uploadCtx, cancelUpload := context.WithCancel(context.Background())
	task, err := u.Start(uploadCtx, file("big.mp4", 100), "videos")
	require.NoError(t, err)

	waitCtx, cancelWait := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelWait()
	_, err = task.Wait(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	cancelUpload()
	<-task.Done()
}

func TestTask_SlowConsumerStillSeesFinalValue(t *testing.T) {
	task := newTask("t", File{}, "images", "images/a.png")
	task.setInProgress()
	for i := 1; i <= 100; i++ {
		task.publish(float64(i) / 200)
	}
	task.publish(1)
	task.finish("u", nil)

	vals := drain(t, task)
	assert.LessOrEqual(t, len(vals), progressBuffer)
	assertMonotone(t, vals)
	assert.Equal(t, 1.0, vals[len(vals)-1])

	assert.False(t, task.publish(2), "terminal tasks ignore late values")
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "in_progress", InProgress.String())
	assert.Equal(t, "succeeded", Succeeded.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "unknown", Status(42).String())
	assert.True(t, Failed.Terminal())
	assert.False(t, InProgress.Terminal())
}
