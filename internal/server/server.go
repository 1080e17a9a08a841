// Package server exposes a lookup.Service over the REST API that
// lookup.Client speaks.
package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/greenledger/ghgstage/internal/utils"
	"github.com/greenledger/ghgstage/pkg/lookup"
)

type Server struct {
	Service lookup.Service
	Token   string
	// LegacySentinel emits the Not Applicable option as a bare
	// {"name":"N/A"} the way older deployments did.
	LegacySentinel bool

	router *chi.Mux
}

func New(svc lookup.Service, token string, legacySentinel bool) *Server {
	s := &Server{
		Service:        svc,
		Token:          token,
		LegacySentinel: legacySentinel,
	}
	s.setupRouter()
	return s
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) Start(addr string) error {
	utils.Log.Infof("Starting lookup service on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.tokenAuth)

		r.Get("/categories", s.handleMainCategories)
		r.Route("/categories/{main}", func(r chi.Router) {
			r.Get("/subcategories", s.handleSubCategories)
			r.Get("/activities", s.handleActivities)
			r.Get("/selection1", s.handleSelection1)
			r.Get("/selection2", s.handleSelection2)
		})
		r.Post("/factors", s.handleFactor)

		r.Route("/projects/{project}", func(r chi.Router) {
			r.Get("/staged", s.handleListStaged)
			r.Post("/staged", s.handleAppendStaged)
			r.Put("/staged", s.handleUpdateStaged)
			r.Delete("/staged/{subcategory}", s.handleDeleteStaged)
			r.Post("/commit", s.handleCommit)
		})
	})

	s.router = r
}

// tokenAuth checks the bearer token when one is configured.
func (s *Server) tokenAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if got != s.Token {
			w.Header().Set("WWW-Authenticate", `Bearer realm="Restricted"`)
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			utils.Log.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			}).Debug("http request")
		}()
		next.ServeHTTP(ww, r)
	})
}
