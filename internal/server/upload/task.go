// Package upload runs the file-upload workflow: stream a file to the blob
// store, meter its progress, and resolve the stored blob to a URL.
package upload

import (
	"context"
	"io"
	"sync"
)

// File is a payload selected for upload. Body is consumed by the upload
// that receives it.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

// Status is the lifecycle state of a Task.
type Status int

const (
	Pending Status = iota
	InProgress
	Succeeded
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case InProgress:
		return "in_progress"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool { return s == Succeeded || s == Failed }

// progressBuffer bounds the per-task progress channel. When a consumer
// falls behind, older values are dropped in favour of newer ones.
const progressBuffer = 16

// Task is one upload. Its identity (id, file, folder, key) never changes;
// status and progress advance until the task is terminal, after which
// exactly one of URL and Err is set.
type Task struct {
	id     string
	file   File
	folder string
	key    string

	mu       sync.Mutex
	status   Status
	progress float64
	url      string
	err      error

	progressCh chan float64
	done       chan struct{}
}

func newTask(id string, file File, folder, key string) *Task {
	return &Task{
		id:         id,
		file:       file,
		folder:     folder,
		key:        key,
		status:     Pending,
		progressCh: make(chan float64, progressBuffer),
		done:       make(chan struct{}),
	}
}

func (t *Task) ID() string     { return t.id }
func (t *Task) File() File     { return t.file }
func (t *Task) Folder() string { return t.folder }
func (t *Task) Key() string    { return t.key }

func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Fraction returns the latest published progress in [0,1].
func (t *Task) Fraction() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// URL is set only once the task has succeeded.
func (t *Task) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

// Err is set only once the task has failed; it is a *common.UploadError.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Progress returns the task's own progress channel. Values are
// non-decreasing and the channel is closed when the task is terminal.
func (t *Task) Progress() <-chan float64 { return t.progressCh }

// Done is closed after the task is terminal and its progress channel has
// been closed.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task is terminal or ctx is done.
func (t *Task) Wait(ctx context.Context) (string, error) {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.url, t.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *Task) setInProgress() {
	t.mu.Lock()
	t.status = InProgress
	t.mu.Unlock()
}

// publish records v if it advances the progress and offers it to the
// channel without blocking the transfer. It reports whether v was new.
// Values arriving after the task is terminal are ignored: the HTTP
// transport may still be reading the body when the response lands.
func (t *Task) publish(v float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.Terminal() || v <= t.progress {
		return false
	}
	t.progress = v

	select {
	case t.progressCh <- v:
	default:
		select {
		case <-t.progressCh:
		default:
		}
		select {
		case t.progressCh <- v:
		default:
		}
	}
	return true
}

func (t *Task) finish(url string, err error) {
	t.mu.Lock()
	if err != nil {
		t.status = Failed
		t.err = err
	} else {
		t.status = Succeeded
		t.url = url
	}
	close(t.progressCh)
	t.mu.Unlock()

	close(t.done)
}
