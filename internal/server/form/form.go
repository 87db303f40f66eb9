// Package form drives the create and edit forms of a collection: it holds
// the draft, uploads selected files on submit and persists the resolved
// record.
package form

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/dmitrijs2005/catalogadmin/internal/common"
	"github.com/dmitrijs2005/catalogadmin/internal/logging"
	"github.com/dmitrijs2005/catalogadmin/internal/server/catalog"
	"github.com/dmitrijs2005/catalogadmin/internal/server/repositories/records"
	"github.com/dmitrijs2005/catalogadmin/internal/server/upload"
	"golang.org/x/sync/errgroup"
)

// State is the submission state of a form.
type State int

const (
	Idle State = iota
	Uploading
	Persisting
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Uploading:
		return "uploading"
	case Persisting:
		return "persisting"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ChaptersField is the record field holding a course's chapter list.
const ChaptersField = "chapters"

// AuthorField is the record field stamped with the creating user's id.
const AuthorField = "userId"

// Uploader starts file transfers.
type Uploader interface {
	Start(ctx context.Context, file upload.File, folder string, opts ...upload.UploadOption) (*upload.Task, error)
}

// BlobDeleter removes stored blobs by key.
type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Draft is a snapshot of the form's editable contents.
type Draft struct {
	Scalars  map[string]any
	Files    map[string]FileField
	Chapters []Chapter
}

// Form is the controller of one create or edit form. A Form is owned by a
// single caller; only Submit may run background work.
type Form struct {
	schema   *catalog.Schema
	gateway  records.Repository
	uploader Uploader
	log      logging.Logger

	id string

	mu       sync.Mutex
	state    State
	scalars  map[string]any
	files    map[string]FileField
	chapters []Chapter
	// chapter index to its selected video, sent on Submit
	chapterFiles map[int]upload.File
	uploaded     []string

	concurrent  bool
	cleanup     BlobDeleter
	progress    func(field string, fraction float64)
	author      string
	timestamped bool
}

// Option configures a Form.
type Option func(*Form)

// WithConcurrentUploads uploads all selected files of a submission at once
// instead of one after another.
func WithConcurrentUploads() Option {
	return func(f *Form) { f.concurrent = true }
}

// WithOrphanCleanup deletes the blobs uploaded by a submission that later
// failed. Deletion is best effort.
func WithOrphanCleanup(d BlobDeleter) Option {
	return func(f *Form) { f.cleanup = d }
}

// WithProgress forwards per-field upload progress.
func WithProgress(fn func(field string, fraction float64)) Option {
	return func(f *Form) { f.progress = fn }
}

// WithAuthor sets the user id stamped on records of collections that
// track their author.
func WithAuthor(userID string) Option {
	return func(f *Form) { f.author = userID }
}

func WithLogger(l logging.Logger) Option {
	return func(f *Form) { f.log = l }
}

// New returns an empty create form for schema.
func New(schema *catalog.Schema, gateway records.Repository, uploader Uploader, opts ...Option) *Form {
	f := &Form{
		schema:      schema,
		gateway:     gateway,
		uploader:    uploader,
		log:         logging.NewDiscardLogger(),
		scalars:      make(map[string]any),
		files:        make(map[string]FileField),
		chapterFiles: make(map[int]upload.File),
		timestamped: schema.Timestamped,
	}
	for _, field := range schema.FileFields() {
		f.files[field.Name] = EmptyFile()
	}
	for _, o := range opts {
		o(f)
	}
	f.log = f.log.With("module", "form", "collection", schema.Collection)
	return f
}

// Load returns an edit form filled from the stored record id. Stored file
// URLs become Resolved fields. A missing record is common.ErrNotFound.
func Load(ctx context.Context, schema *catalog.Schema, gateway records.Repository, uploader Uploader, id string, opts ...Option) (*Form, error) {
	rec, err := gateway.Get(ctx, schema.Collection, id)
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", schema.Collection, id, err)
	}

	f := New(schema, gateway, uploader, opts...)
	f.id = rec.ID

	for name, v := range rec.Fields {
		switch {
		case schema.IsFile(name):
			url, _ := v.(string)
			f.files[name] = ResolvedFile(url)
		case schema.Chapters && name == ChaptersField:
			f.chapters = chaptersFromValue(v)
		default:
			f.scalars[name] = v
		}
	}
	return f, nil
}

// ID is the record id: set for edit forms and after a successful create.
func (f *Form) ID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

func (f *Form) Schema() *catalog.Schema { return f.schema }

func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Draft returns a copy of the current contents.
func (f *Form) Draft() Draft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Draft{
		Scalars:  maps.Clone(f.scalars),
		Files:    maps.Clone(f.files),
		Chapters: append([]Chapter(nil), f.chapters...),
	}
}

// SetField sets a scalar field. File fields are rejected; use AttachFile.
func (f *Form) SetField(name string, value any) error {
	if f.schema.IsFile(name) {
		return &common.ValidationError{Field: name, Reason: "is a file field"}
	}
	if f.schema.Chapters && name == ChaptersField {
		return &common.ValidationError{Field: name, Reason: "use AddChapter"}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Idle {
		return common.ErrFormState
	}
	f.scalars[name] = value
	return nil
}

// AttachFile selects a local file for a file field. Nothing is sent until
// Submit.
func (f *Form) AttachFile(name string, file upload.File) error {
	if !f.schema.IsFile(name) {
		return &common.ValidationError{Field: name, Reason: "is not a file field"}
	}
	switch {
	case file.Name == "":
		return &common.ValidationError{Field: name, Reason: "file name is empty"}
	case file.Size <= 0:
		return &common.ValidationError{Field: name, Reason: "file is empty"}
	case file.Body == nil:
		return &common.ValidationError{Field: name, Reason: "file has no content"}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Idle {
		return common.ErrFormState
	}
	f.files[name] = SelectedFile(file)
	return nil
}

// ClearFile resets a file field to Empty. On an edit form this clears the
// stored URL on submit.
func (f *Form) ClearFile(name string) error {
	if !f.schema.IsFile(name) {
		return &common.ValidationError{Field: name, Reason: "is not a file field"}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Idle {
		return common.ErrFormState
	}
	f.files[name] = EmptyFile()
	return nil
}

// AddChapter appends a chapter to a course. A chapter video file is only
// selected here and uploaded by Submit; a chapter that already carries a
// video URL and no file is appended as is. Title, description, duration and
// video are all required.
func (f *Form) AddChapter(ch Chapter, file *upload.File) error {
	if !f.schema.Chapters {
		return &common.ValidationError{Field: ChaptersField, Reason: "collection has no chapters"}
	}
	switch {
	case ch.Title == "":
		return &common.ValidationError{Field: "chapter.title", Reason: "required"}
	case ch.Description == "":
		return &common.ValidationError{Field: "chapter.description", Reason: "required"}
	case ch.Duration <= 0:
		return &common.ValidationError{Field: "chapter.duration", Reason: "required"}
	case file == nil && ch.Video == "":
		return &common.ValidationError{Field: "chapter.video", Reason: "required"}
	}
	if file != nil {
		switch {
		case file.Name == "":
			return &common.ValidationError{Field: "chapter.video", Reason: "file name is empty"}
		case file.Size <= 0:
			return &common.ValidationError{Field: "chapter.video", Reason: "file is empty"}
		case file.Body == nil:
			return &common.ValidationError{Field: "chapter.video", Reason: "file has no content"}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Idle {
		return common.ErrFormState
	}
	if file != nil {
		ch.Video = ""
		f.chapterFiles[len(f.chapters)] = *file
	}
	f.chapters = append(f.chapters, ch)
	return nil
}

// ClearChapters drops the chapter list so an edit can replace it.
func (f *Form) ClearChapters() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Idle {
		return common.ErrFormState
	}
	f.chapters = nil
	clear(f.chapterFiles)
	return nil
}

// Submit validates the draft, uploads every selected file and then creates
// or updates the record. It returns the record id. A failed upload leaves
// the store untouched; a form that is not Idle returns common.ErrFormState.
func (f *Form) Submit(ctx context.Context) (string, error) {
	f.mu.Lock()
	if f.state != Idle {
		f.mu.Unlock()
		return "", common.ErrFormState
	}

	fields, err := f.checkLocked()
	if err != nil {
		f.mu.Unlock()
		return "", err
	}

	var pending []uploadJob
	for _, field := range f.schema.FileFields() {
		if ff := f.files[field.Name]; ff.State() == Selected {
			pending = append(pending, uploadJob{field: field.Name, folder: field.Folder, file: ff.File(), chapter: -1})
		}
	}
	for i := range f.chapters {
		if file, ok := f.chapterFiles[i]; ok {
			pending = append(pending, uploadJob{
				field:   fmt.Sprintf("%s.%d", ChaptersField, i),
				folder:  catalog.ChapterFolder,
				file:    file,
				chapter: i,
			})
		}
	}

	if len(pending) > 0 {
		f.state = Uploading
	} else {
		f.state = Persisting
	}
	f.mu.Unlock()

	if len(pending) > 0 {
		if err := f.uploadAll(ctx, pending); err != nil {
			f.fail(ctx)
			return "", err
		}
		f.setState(Persisting)
	}

	id, err := f.persist(ctx, fields)
	if err != nil {
		f.fail(ctx)
		return "", err
	}

	f.mu.Lock()
	f.id = id
	f.state = Done
	f.mu.Unlock()

	f.log.Info(ctx, "record saved", "id", id, "uploads", len(pending))
	return id, nil
}

// checkLocked runs the required gate and returns the normalized scalar
// fields. Nothing remote is touched.
func (f *Form) checkLocked() (map[string]any, error) {
	fields := make(map[string]any, len(f.scalars)+len(f.files))

	for _, field := range f.schema.Fields {
		if field.Kind == catalog.File {
			if field.Required && f.files[field.Name].State() == Empty {
				return nil, &common.ValidationError{Field: field.Name, Reason: "required"}
			}
			continue
		}
		if field.Required && catalog.IsEmpty(f.scalars[field.Name]) {
			return nil, &common.ValidationError{Field: field.Name, Reason: "required"}
		}
	}

	for name, v := range f.scalars {
		nv, err := f.schema.Normalize(name, v)
		if err != nil {
			return nil, err
		}
		fields[name] = nv
	}
	return fields, nil
}

// uploadJob is one file sent by Submit: a file field, or the video of the
// chapter at index chapter (-1 for file fields).
type uploadJob struct {
	field   string
	folder  string
	file    upload.File
	chapter int
}

func (f *Form) uploadAll(ctx context.Context, pending []uploadJob) error {
	if !f.concurrent {
		for _, job := range pending {
			if err := f.uploadOne(ctx, job); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, job := range pending {
		g.Go(func() error { return f.uploadOne(gctx, job) })
	}
	return g.Wait()
}

func (f *Form) uploadOne(ctx context.Context, job uploadJob) error {
	opts := []upload.UploadOption{upload.WithField(job.field)}
	if f.timestamped {
		opts = append(opts, upload.WithTimestampedName())
	}
	if f.progress != nil {
		name := job.field
		opts = append(opts, upload.WithProgress(func(v float64) { f.progress(name, v) }))
	}

	t, err := f.uploader.Start(ctx, job.file, job.folder, opts...)
	if err != nil {
		return err
	}

	if job.chapter < 0 {
		f.mu.Lock()
		f.files[job.field] = UploadingFile(t)
		f.mu.Unlock()
	}

	url, err := t.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// The transfer may still land after cancellation; track it so
			// cleanup can find it.
			<-t.Done()
			if t.Status() == upload.Succeeded {
				f.mu.Lock()
				f.uploaded = append(f.uploaded, t.Key())
				f.mu.Unlock()
			}
		}
		f.log.Error(ctx, "upload failed", "field", job.field, "key", t.Key(), "error", err)
		var ue *common.UploadError
		if !errors.As(err, &ue) {
			err = &common.UploadError{Field: job.field, Key: t.Key(), Cause: err}
		}
		return err
	}

	f.mu.Lock()
	if job.chapter < 0 {
		f.files[job.field] = ResolvedFile(url)
	} else {
		f.chapters[job.chapter].Video = url
		delete(f.chapterFiles, job.chapter)
	}
	f.uploaded = append(f.uploaded, t.Key())
	f.mu.Unlock()
	return nil
}

func (f *Form) persist(ctx context.Context, fields map[string]any) (string, error) {
	f.mu.Lock()
	for name, ff := range f.files {
		fields[name] = ff.storedValue()
	}
	if f.schema.Chapters {
		list := make([]any, 0, len(f.chapters))
		for _, ch := range f.chapters {
			list = append(list, ch.toMap())
		}
		fields[ChaptersField] = list
	}
	id := f.id
	f.mu.Unlock()

	if id == "" {
		if f.schema.StampAuthor && f.author != "" {
			fields[AuthorField] = f.author
		}
		newID, err := f.gateway.Create(ctx, f.schema.Collection, fields)
		if err != nil {
			f.log.Error(ctx, "create failed", "error", err)
			return "", &common.PersistenceError{Op: "create", Collection: f.schema.Collection, Cause: err}
		}
		return newID, nil
	}

	if err := f.gateway.Update(ctx, f.schema.Collection, id, fields); err != nil {
		f.log.Error(ctx, "update failed", "id", id, "error", err)
		return "", &common.PersistenceError{Op: "update", Collection: f.schema.Collection, ID: id, Cause: err}
	}
	return id, nil
}

func (f *Form) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

// fail marks the form Failed and, when enabled, removes the blobs this
// submission uploaded.
func (f *Form) fail(ctx context.Context) {
	f.mu.Lock()
	f.state = Failed
	keys := f.uploaded
	f.uploaded = nil
	f.mu.Unlock()

	if f.cleanup == nil {
		if len(keys) > 0 {
			f.log.Warn(ctx, "submission failed, uploaded blobs left in storage", "keys", keys)
		}
		return
	}

	cctx := context.WithoutCancel(ctx)
	for _, k := range keys {
		if err := f.cleanup.Delete(cctx, k); err != nil {
			f.log.Warn(ctx, "orphan cleanup failed", "key", k, "error", err)
		}
	}
}
