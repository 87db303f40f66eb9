package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/catalogadmin/internal/common"
	"github.com/dmitrijs2005/catalogadmin/internal/server/form"
	"github.com/dmitrijs2005/catalogadmin/internal/server/upload"
	"github.com/gorilla/mux"
)

// multipartMemory is how much of a submission is buffered in memory; the
// rest spills to temporary files.
const multipartMemory = 32 << 20

// chapterVideoPart names the multipart file part carrying the video of
// chapter i.
func chapterVideoPart(i int) string {
	return chapterVideoPrefix + strconv.Itoa(i)
}

const chapterVideoPrefix = "chapter_video_"

// chapterVideoIndex returns i for a "chapter_video_<i>" part name.
func chapterVideoIndex(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, chapterVideoPrefix)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(rest)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

func (s *Server) listSchemas(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Schemas())
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	rows, err := s.catalog.List(r.Context(), mux.Vars(r)["collection"])
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rec, err := s.catalog.Get(r.Context(), vars["collection"], vars["id"])
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))

	if err := s.catalog.Delete(r.Context(), vars["collection"], vars["id"], confirmed); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createRecord(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]
	s.submit(w, r, http.StatusCreated, func(opts ...form.Option) (*form.Form, error) {
		return s.catalog.NewForm(collection, userIDFrom(r.Context()), opts...)
	})
}

func (s *Server) updateRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.submit(w, r, http.StatusOK, func(opts ...form.Option) (*form.Form, error) {
		return s.catalog.EditForm(r.Context(), vars["collection"], vars["id"], userIDFrom(r.Context()), opts...)
	})
}

type submitResponse struct {
	ID string `json:"id"`
}

// submit fills a form from a multipart request and submits it. With
// "Accept: text/event-stream" the outcome and upload progress are streamed
// as events instead of a single JSON response.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, okStatus int, open func(...form.Option) (*form.Form, error)) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var me *http.MaxBytesError
		if errors.As(err, &me) {
			s.writeError(ctx, w, me)
			return
		}
		s.writeError(ctx, w, &common.ValidationError{Reason: "malformed multipart body"})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var es *eventStream
	var opts []form.Option
	if wantsEventStream(r) {
		es = newEventStream(w)
		defer es.close()
		opts = append(opts, form.WithProgress(func(field string, v float64) {
			es.send("progress", progressEvent{Field: field, Fraction: v})
		}))
	}

	fail := func(err error) {
		if es == nil {
			s.writeError(ctx, w, err)
			return
		}
		status := statusFor(err)
		s.logger.Error(ctx, "submission failed", "status", status, "error", err)
		es.send("error", errorEvent{Status: status, Error: errorMessage(status, err)})
	}

	f, err := open(opts...)
	if err != nil {
		fail(err)
		return
	}
	if es != nil {
		es.send("start", map[string]string{"collection": f.Schema().Collection})
	}

	closers, err := fill(f, r.MultipartForm)
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	if err != nil {
		fail(err)
		return
	}

	id, err := f.Submit(ctx)
	if err != nil {
		fail(err)
		return
	}

	if es != nil {
		es.send("done", submitResponse{ID: id})
		return
	}
	writeJSON(w, okStatus, submitResponse{ID: id})
}

type chapterInput struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Duration    float64 `json:"duration"`
	Video       string  `json:"video"`
}

// fill copies scalar values, file parts and chapters into f. Unknown
// fields and chapter videos without a chapter entry are rejected. A file
// field sent as an empty value is cleared. The returned closers must be
// closed once the form has been submitted.
func fill(f *form.Form, mf *multipart.Form) ([]io.Closer, error) {
	schema := f.Schema()
	var closers []io.Closer

	names := make([]string, 0, len(mf.Value))
	for name := range mf.Value {
		names = append(names, name)
	}
	sort.Strings(names)

	var chapters []chapterInput
	for _, name := range names {
		value := mf.Value[name][0]

		switch {
		case schema.Chapters && name == form.ChaptersField:
			if err := json.Unmarshal([]byte(value), &chapters); err != nil {
				return closers, &common.ValidationError{Field: name, Reason: "malformed chapter list"}
			}
		case schema.IsFile(name):
			if value == "" {
				if err := f.ClearFile(name); err != nil {
					return closers, err
				}
			}
		default:
			if _, ok := schema.Field(name); !ok {
				return closers, &common.ValidationError{Field: name, Reason: "unknown field"}
			}
			if err := f.SetField(name, value); err != nil {
				return closers, err
			}
		}
	}

	for name, headers := range mf.File {
		if !schema.IsFile(name) {
			if i, ok := chapterVideoIndex(name); ok && schema.Chapters {
				if i >= len(chapters) {
					return closers, &common.ValidationError{Field: name, Reason: "no matching chapter"}
				}
				continue
			}
			return closers, &common.ValidationError{Field: name, Reason: "unknown file field"}
		}
		file, c, err := openPart(headers[0])
		if err != nil {
			return closers, err
		}
		closers = append(closers, c)
		if err := f.AttachFile(name, file); err != nil {
			return closers, err
		}
	}

	if chapters == nil {
		return closers, nil
	}
	if err := f.ClearChapters(); err != nil {
		return closers, err
	}
	for i, in := range chapters {
		var video *upload.File
		if headers := mf.File[chapterVideoPart(i)]; len(headers) > 0 {
			file, c, err := openPart(headers[0])
			if err != nil {
				return closers, err
			}
			closers = append(closers, c)
			video = &file
		}
		ch := form.Chapter{Title: in.Title, Description: in.Description, Duration: in.Duration, Video: in.Video}
		if err := f.AddChapter(ch, video); err != nil {
			return closers, fmt.Errorf("chapter %d: %w", i, err)
		}
	}
	return closers, nil
}

func openPart(h *multipart.FileHeader) (upload.File, io.Closer, error) {
	src, err := h.Open()
	if err != nil {
		return upload.File{}, nil, fmt.Errorf("open part %s: %w", h.Filename, err)
	}
	ct := h.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	return upload.File{Name: h.Filename, Size: h.Size, ContentType: ct, Body: src}, src, nil
}
