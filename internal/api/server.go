package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/pbaille/folio/internal/catalog"
	"github.com/pbaille/folio/internal/domain"
	"github.com/pbaille/folio/internal/store"
	"github.com/pbaille/folio/internal/taxonomy"
	"github.com/sirupsen/logrus"
)

// Server handles HTTP requests for the document catalog API
type Server struct {
	catalog *catalog.Catalog
	addr    string
	logger  logrus.FieldLogger
}

// New creates a new API server
func New(c *catalog.Catalog, addr string, logger logrus.FieldLogger) *Server {
	return &Server{catalog: c, addr: addr, logger: logger}
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Documents
	mux.HandleFunc("GET /documents", s.listDocuments)
	mux.HandleFunc("POST /documents", s.createOrUpdate)
	mux.HandleFunc("GET /documents/{id}", s.getDocument)
	mux.HandleFunc("PUT /documents/{id}", s.reconcile)
	mux.HandleFunc("PATCH /documents/{id}", s.enqueueSingleton)
	mux.HandleFunc("POST /documents/{id}/terms/{kind}", s.enqueueMultiValued)
	mux.HandleFunc("POST /documents/{id}/flush", s.flush)

	// Terms
	mux.HandleFunc("GET /terms", s.listTerms)
	mux.HandleFunc("PATCH /terms/{id}", s.renameTerm)
	mux.HandleFunc("DELETE /terms/{id}", s.deleteTerm)

	// Health check
	mux.HandleFunc("GET /health", s.health)

	return withCORS(mux)
}

// Run serves the API until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{Addr: s.addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	s.logger.WithField("addr", s.addr).Info("starting server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// withCORS adds CORS headers for frontend development
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// OutcomeResponse reports what a reconcile or create did
type OutcomeResponse struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
}

func (s *Server) createOrUpdate(w http.ResponseWriter, r *http.Request) {
	var src domain.Source
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if src.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	outcome, err := s.catalog.CreateOrUpdate(r.Context(), src)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OutcomeResponse{ID: src.ID, Outcome: string(outcome)})
}

func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	var src domain.Source
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	src.ID = r.PathValue("id")

	outcome, err := s.catalog.Reconcile(r.Context(), src)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OutcomeResponse{ID: src.ID, Outcome: string(outcome)})
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.catalog.Document(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	limit := 20
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			offset = n
		}
	}

	docs, err := s.catalog.Documents(r.Context(), limit, offset)
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"limit":     limit,
		"offset":    offset,
	})
}

// SingletonRequest is the request body for a singleton field edit
type SingletonRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (s *Server) enqueueSingleton(w http.ResponseWriter, r *http.Request) {
	var req SingletonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	field, err := domain.ParseField(req.Field)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.catalog.EnqueueSingleton(r.PathValue("id"), field, req.Value); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// TermsRequest is the request body for a multi-valued edit
type TermsRequest struct {
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

func (s *Server) enqueueMultiValued(w http.ResponseWriter, r *http.Request) {
	var req TermsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	kind, err := domain.ParseKind(r.PathValue("kind"))
	if err != nil || !kind.MultiValued() {
		writeError(w, http.StatusBadRequest, "kind must be one of tag, medium, genre, topic, subject")
		return
	}

	if err := s.catalog.EnqueueMultiValued(r.PathValue("id"), kind, req.Added, req.Removed); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) flush(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Flush(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) listTerms(w http.ResponseWriter, r *http.Request) {
	var kind domain.Kind
	if k := r.URL.Query().Get("kind"); k != "" {
		parsed, err := domain.ParseKind(k)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		kind = parsed
	}

	terms, err := s.catalog.Terms(r.Context(), kind)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"terms": terms})
}

// RenameRequest is the request body for renaming a term
type RenameRequest struct {
	Name string `json:"name"`
}

func (s *Server) renameTerm(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	term, err := s.catalog.RenameTerm(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, term)
}

func (s *Server) deleteTerm(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.DeleteTerm(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail maps store errors to HTTP statuses
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrSlugTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, taxonomy.ErrInvalidParent), errors.As(err, new(*strconv.NumError)):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
