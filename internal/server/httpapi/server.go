// Package httpapi serves the dashboard JSON API: login, the sidebar, and
// the list/detail/create/edit/delete operations of every collection.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/catalogadmin/internal/logging"
	"github.com/dmitrijs2005/catalogadmin/internal/server/catalog"
	"github.com/dmitrijs2005/catalogadmin/internal/server/form"
	"github.com/dmitrijs2005/catalogadmin/internal/server/models"
	"github.com/dmitrijs2005/catalogadmin/internal/server/services"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

const shutdownTimeout = 10 * time.Second

// UserService is the part of services.UserService the API needs.
type UserService interface {
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

// CatalogService is the part of services.CatalogService the API needs.
type CatalogService interface {
	Schemas() []*catalog.Schema
	Schema(collection string) (*catalog.Schema, error)
	NewForm(collection, userID string, opts ...form.Option) (*form.Form, error)
	EditForm(ctx context.Context, collection, id, userID string, opts ...form.Option) (*form.Form, error)
	Get(ctx context.Context, collection, id string) (*models.Record, error)
	List(ctx context.Context, collection string) ([]*models.Record, error)
	Delete(ctx context.Context, collection, id string, confirmed bool) error
}

type Server struct {
	address       string
	logger        logging.Logger
	users         UserService
	catalog       CatalogService
	maxUploadSize int64
	filesDir      string
	origins       []string
	accessLog     io.Writer
}

type Option func(*Server)

// WithFiles serves the local blob directory under /files/.
func WithFiles(dir string) Option {
	return func(s *Server) { s.filesDir = dir }
}

// WithAllowedOrigins takes a comma-separated origin list for CORS.
func WithAllowedOrigins(origins string) Option {
	return func(s *Server) {
		s.origins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				s.origins = append(s.origins, o)
			}
		}
	}
}

// WithAccessLog sets where combined-format access logs are written.
func WithAccessLog(w io.Writer) Option {
	return func(s *Server) { s.accessLog = w }
}

func WithMaxUploadSize(n int64) Option {
	return func(s *Server) { s.maxUploadSize = n }
}

func NewServer(addr string, l logging.Logger, us UserService, cs CatalogService, opts ...Option) *Server {
	s := &Server{
		address:       addr,
		logger:        l.With("module", "http_server"),
		users:         us,
		catalog:       cs,
		maxUploadSize: 256 << 20,
		origins:       []string{"*"},
		accessLog:     io.Discard,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler builds the routed handler with CORS, access logging and panic
// recovery applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/login", s.login).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", s.refresh).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.logout).Methods(http.MethodPost)
	api.HandleFunc("/nav", s.nav).Methods(http.MethodGet)

	api.Handle("/collections", s.requireAuth(s.listSchemas)).Methods(http.MethodGet)
	api.Handle("/collections/{collection}", s.requireAuth(s.listRecords)).Methods(http.MethodGet)
	api.Handle("/collections/{collection}", s.requireAuth(s.createRecord)).Methods(http.MethodPost)
	api.Handle("/collections/{collection}/{id}", s.requireAuth(s.getRecord)).Methods(http.MethodGet)
	api.Handle("/collections/{collection}/{id}", s.requireAuth(s.updateRecord)).Methods(http.MethodPut)
	api.Handle("/collections/{collection}/{id}", s.requireAuth(s.deleteRecord)).Methods(http.MethodDelete)

	if s.filesDir != "" {
		r.PathPrefix("/files/").Handler(http.StripPrefix("/files/", http.FileServer(http.Dir(s.filesDir))))
	}

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Accept"},
	})

	var h http.Handler = r
	h = c.Handler(h)
	h = handlers.CombinedLoggingHandler(s.accessLog, h)
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)
	return h
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) nav(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, catalog.Navigation())
}
