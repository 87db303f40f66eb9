package upload

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/catalogadmin/internal/common"
	"github.com/dmitrijs2005/catalogadmin/internal/logging"
	"github.com/dmitrijs2005/catalogadmin/internal/server/blobstore"
	"github.com/google/uuid"
)

// inFlightCeiling caps progress while the store has not yet confirmed the
// transfer; 1.0 is published only after a successful Put.
const inFlightCeiling = 0.99

// Uploader streams files to a blob store. It is safe for concurrent use;
// each call gets its own Task.
type Uploader struct {
	store       blobstore.Store
	log         logging.Logger
	uniqueNames bool
	now         func() time.Time
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithUniqueNames makes every upload use timestamped naming.
func WithUniqueNames(on bool) Option {
	return func(u *Uploader) { u.uniqueNames = on }
}

func New(store blobstore.Store, log logging.Logger, opts ...Option) *Uploader {
	u := &Uploader{
		store: store,
		log:   log.With("module", "upload"),
		now:   time.Now,
	}
	for _, o := range opts {
		o(u)
	}
	return u
}

type callOptions struct {
	sinks       []func(float64)
	timestamped bool
	field       string
}

// UploadOption adjusts a single upload.
type UploadOption func(*callOptions)

// WithProgress attaches an extra progress sink. It is called on the
// transfer goroutine with the same values the task channel receives.
func WithProgress(fn func(float64)) UploadOption {
	return func(o *callOptions) {
		if fn != nil {
			o.sinks = append(o.sinks, fn)
		}
	}
}

// WithTimestampedName prefixes the stored name with the current unix
// time in milliseconds, so repeated uploads of one file never collide.
func WithTimestampedName() UploadOption {
	return func(o *callOptions) { o.timestamped = true }
}

// WithField tags failures with the form field the file belongs to.
func WithField(name string) UploadOption {
	return func(o *callOptions) { o.field = name }
}

// Upload transfers file into folder and returns the stored blob's URL.
// Transfer failures are *common.UploadError; invalid input is
// *common.ValidationError and nothing is sent.
func (u *Uploader) Upload(ctx context.Context, file File, folder string, opts ...UploadOption) (string, error) {
	t, err := u.Start(ctx, file, folder, opts...)
	if err != nil {
		return "", err
	}
	<-t.Done()
	return t.URL(), t.Err()
}

// Start validates the input and begins the transfer in the background.
// The returned task completes on its own; ctx cancellation aborts the
// transfer.
func (u *Uploader) Start(ctx context.Context, file File, folder string, opts ...UploadOption) (*Task, error) {
	var co callOptions
	for _, o := range opts {
		o(&co)
	}

	name, err := validate(file, folder, co.field)
	if err != nil {
		return nil, err
	}

	key := folder + "/" + name
	if co.timestamped || u.uniqueNames {
		key = fmt.Sprintf("%s/%d_%s", folder, u.now().UnixMilli(), name)
	}

	t := newTask(uuid.NewString(), file, folder, key)
	go u.run(ctx, t, co)
	return t, nil
}

func (u *Uploader) run(ctx context.Context, t *Task, co callOptions) {
	t.setInProgress()
	u.log.Debug(ctx, "upload started", "task", t.id, "key", t.key, "size", t.file.Size)

	var sinkMu sync.Mutex
	emit := func(v float64) {
		sinkMu.Lock()
		defer sinkMu.Unlock()
		if t.publish(v) {
			for _, s := range co.sinks {
				s(v)
			}
		}
	}

	onProgress := func(n, total int64) {
		if total <= 0 {
			return
		}
		v := float64(n) / float64(total)
		if v < 0 {
			v = 0
		}
		if v > inFlightCeiling {
			v = inFlightCeiling
		}
		emit(v)
	}

	ref, err := u.store.Put(ctx, t.key, t.file.Body, t.file.Size, t.file.ContentType, onProgress)
	if err == nil {
		var url string
		url, err = u.store.URL(ctx, ref)
		if err == nil {
			emit(1)
			t.finish(url, nil)
			u.log.Info(ctx, "upload finished", "task", t.id, "key", t.key)
			return
		}
		err = fmt.Errorf("resolve url: %w", err)
	}

	uerr := &common.UploadError{Field: co.field, Key: t.key, Cause: err}
	t.finish("", uerr)
	if errors.Is(err, context.Canceled) {
		u.log.Warn(ctx, "upload cancelled", "task", t.id, "key", t.key)
		return
	}
	u.log.Error(ctx, "upload failed", "task", t.id, "key", t.key, "error", err)
}

func validate(file File, folder, field string) (string, error) {
	vfield := field
	if vfield == "" {
		vfield = "file"
	}

	if folder == "" || strings.Contains(folder, "/") || folder == "." || folder == ".." {
		return "", &common.ValidationError{Field: "folder", Reason: fmt.Sprintf("invalid folder %q", folder)}
	}
	name := path.Base(strings.ReplaceAll(file.Name, "\\", "/"))
	if file.Name == "" || name == "." || name == ".." || name == "/" {
		return "", &common.ValidationError{Field: vfield, Reason: "file name is required"}
	}
	if file.Size <= 0 {
		return "", &common.ValidationError{Field: vfield, Reason: "file is empty"}
	}
	if file.Body == nil {
		return "", &common.ValidationError{Field: vfield, Reason: "file has no content"}
	}
	return name, nil
}
