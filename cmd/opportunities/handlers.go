package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"opportunities/pkg/auth"
	"opportunities/pkg/httpx"
	"opportunities/pkg/models"
	"opportunities/pkg/query"
	"opportunities/pkg/store"
	"opportunities/pkg/stream"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
)

type opportunityStore interface {
	Create(ctx context.Context, in models.CreateInput, createdBy string) (models.Opportunity, error)
	Get(ctx context.Context, id string) (models.Opportunity, error)
	List(ctx context.Context, f query.Filter) ([]models.Opportunity, int, error)
	Update(ctx context.Context, id, owner string, in models.UpdateInput) (models.Opportunity, error)
	Delete(ctx context.Context, id, owner string) error
}

type listResponse struct {
	Data       []models.Opportunity `json:"data"`
	Pagination query.Pagination     `json:"pagination"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, 200, map[string]string{
		"status":    "ok",
		"service":   "opportunities",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) listOpportunities(w http.ResponseWriter, r *http.Request) {
	s.serveList(w, r, nil)
}

func (s *Server) searchOpportunities(w http.ResponseWriter, r *http.Request) {
	s.serveList(w, r, func(f *query.Filter) error {
		if strings.TrimSpace(f.Search) == "" {
			return &query.ParamError{Param: "q", Message: "search query is required"}
		}
		return nil
	})
}

func (s *Server) listByCategory(w http.ResponseWriter, r *http.Request) {
	category, err := models.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		httpx.Error(w, 400, err.Error())
		return
	}
	s.serveList(w, r, func(f *query.Filter) error {
		f.Category = &category
		return nil
	})
}

func (s *Server) listInternships(w http.ResponseWriter, r *http.Request) {
	s.servePinnedCategory(w, r, models.CategoryInternship)
}

func (s *Server) listScholarships(w http.ResponseWriter, r *http.Request) {
	s.servePinnedCategory(w, r, models.CategoryScholarship)
}

// listOthers serves everything outside the two headline categories.
func (s *Server) listOthers(w http.ResponseWriter, r *http.Request) {
	s.serveList(w, r, func(f *query.Filter) error {
		f.Category = nil
		f.CategoryNotIn = []models.Category{models.CategoryInternship, models.CategoryScholarship}
		return nil
	})
}

func (s *Server) servePinnedCategory(w http.ResponseWriter, r *http.Request, category models.Category) {
	s.serveList(w, r, func(f *query.Filter) error {
		f.Category = &category
		f.CategoryNotIn = nil
		return nil
	})
}

func (s *Server) serveList(w http.ResponseWriter, r *http.Request, pin func(f *query.Filter) error) {
	f, err := query.Parse(r.URL.Query())
	if err != nil {
		httpx.Error(w, 400, err.Error())
		return
	}
	if pin != nil {
		if err := pin(&f); err != nil {
			httpx.Error(w, 400, err.Error())
			return
		}
	}

	ctx := r.Context()
	cacheKey := s.listCacheKey(ctx, r)
	if cacheKey != "" {
		if cached, err := s.Cache.Get(ctx, cacheKey); err == nil && cached != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(200)
			_, _ = io.WriteString(w, cached)
			return
		}
	}

	items, total, err := s.Store.List(ctx, f)
	if err != nil {
		log.Printf("list opportunities: %v", err)
		httpx.Error(w, 500, "internal server error")
		return
	}
	resp := listResponse{Data: items, Pagination: query.NewPagination(f, total)}
	body, err := json.Marshal(resp)
	if err != nil {
		httpx.Error(w, 500, "internal server error")
		return
	}
	if cacheKey != "" {
		_ = s.Cache.Set(ctx, cacheKey, string(body), s.ListCacheTTL)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(200)
	_, _ = w.Write(body)
}

const listCacheGenKey = "opps:list:gen"

// listCacheKey scopes cached pages to a generation counter; bumping the
// counter on any write orphans every previously cached page at once.
func (s *Server) listCacheKey(ctx context.Context, r *http.Request) string {
	if s.Cache == nil || s.ListCacheTTL <= 0 {
		return ""
	}
	gen, err := s.Cache.Get(ctx, listCacheGenKey)
	if err != nil || gen == "" {
		gen = "0"
	}
	return "opps:list:g" + gen + ":" + r.URL.Path + "?" + r.URL.Query().Encode()
}

func (s *Server) invalidateListCache(ctx context.Context) {
	if s.Cache == nil {
		return
	}
	if _, err := s.Cache.Incr(ctx, listCacheGenKey); err != nil {
		log.Printf("list cache invalidation: %v", err)
	}
}

func (s *Server) getOpportunity(w http.ResponseWriter, r *http.Request) {
	op, err := s.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		httpx.Error(w, 404, "opportunity not found")
		return
	}
	if err != nil {
		log.Printf("get opportunity: %v", err)
		httpx.Error(w, 500, "internal server error")
		return
	}
	httpx.Data(w, 200, op)
}

func (s *Server) createOpportunity(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.Error(w, 401, "authentication required")
		return
	}
	body, ok := readRequestBody(w, r)
	if !ok {
		return
	}
	var in models.CreateInput
	if err := json.Unmarshal(body, &in); err != nil {
		httpx.Error(w, 400, "invalid json")
		return
	}
	if errs := in.Validate(); len(errs) > 0 {
		httpx.ErrorDetails(w, 400, "validation failed", errs)
		return
	}

	op, err := s.Store.Create(r.Context(), in, identity.ID)
	if err != nil {
		log.Printf("create opportunity: %v", err)
		httpx.Error(w, 500, "internal server error")
		return
	}
	s.afterWrite(r.Context(), "create", stream.EventCreated, op)
	s.Metrics.IncCategory(string(op.Category))
	httpx.Message(w, 201, "opportunity created", op)
}

func (s *Server) updateOpportunity(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.Error(w, 401, "authentication required")
		return
	}
	id := chi.URLParam(r, "id")
	body, ok := readRequestBody(w, r)
	if !ok {
		return
	}
	var in models.UpdateInput
	if err := json.Unmarshal(body, &in); err != nil {
		httpx.Error(w, 400, "invalid json")
		return
	}
	if in.Empty() {
		httpx.Error(w, 400, "no fields to update")
		return
	}
	if errs := in.Validate(); len(errs) > 0 {
		httpx.ErrorDetails(w, 400, "validation failed", errs)
		return
	}

	op, err := s.Store.Update(r.Context(), id, identity.ID, in)
	if err != nil {
		s.writeMutationError(w, "update opportunity", err)
		return
	}
	s.afterWrite(r.Context(), "update", stream.EventUpdated, op)
	httpx.Message(w, 200, "opportunity updated", op)
}

func (s *Server) deleteOpportunity(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.Error(w, 401, "authentication required")
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.Store.Delete(r.Context(), id, identity.ID); err != nil {
		s.writeMutationError(w, "delete opportunity", err)
		return
	}
	s.afterWrite(r.Context(), "delete", stream.EventDeleted, models.Opportunity{ID: id})
	httpx.Message(w, 200, "opportunity deleted", nil)
}

func (s *Server) writeMutationError(w http.ResponseWriter, what string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httpx.Error(w, 404, "opportunity not found")
	case errors.Is(err, store.ErrForbidden):
		httpx.Error(w, 403, "you can only modify your own opportunities")
	default:
		log.Printf("%s: %v", what, err)
		httpx.Error(w, 500, "internal server error")
	}
}

// afterWrite fans a committed mutation out to stream subscribers, the
// event bus, metrics, and the list cache.
func (s *Server) afterWrite(ctx context.Context, op string, eventType string, record models.Opportunity) {
	evt := stream.NewEvent(eventType, record.ID, record)
	if s.Events != nil {
		s.Events.Publish(evt)
	}
	if s.Publisher != nil {
		s.Publisher.Publish(ctx, evt)
	}
	s.Metrics.IncWrite(op)
	s.invalidateListCache(ctx)
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		httpx.Error(w, 503, "stream unavailable")
		return
	}
	opts := &websocket.AcceptOptions{}
	if origins := wsOriginPatterns(env("WS_ALLOWED_ORIGINS", "")); len(origins) > 0 {
		opts.OriginPatterns = origins
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sub := s.Events.Subscribe(64)
	defer s.Events.Unsubscribe(sub)

	_ = wsjson.Write(ctx, conn, stream.NewEvent("ready", "", nil))
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case evt, ok := <-sub:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "closed")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, evt)
			cancelWrite()
			if err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}

func wsOriginPatterns(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func readRequestBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err == nil {
		return body, true
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		httpx.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return nil, false
	}
	httpx.Error(w, http.StatusBadRequest, "invalid request body")
	return nil, false
}
