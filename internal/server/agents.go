package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Invoker == nil {
		s.writeError(w, r, havenerr.NotConfigured("agent invoker"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": s.deps.Invoker.Names()})
}

// invokeAgent handles POST /agents/{capability}. The body is handed to the
// invoker as is; each capability decides which fields it needs.
func (s *Server) invokeAgent(w http.ResponseWriter, r *http.Request) {
	if s.deps.Invoker == nil {
		s.writeError(w, r, havenerr.NotConfigured("agent invoker"))
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out, err := s.deps.Invoker.Invoke(r.Context(), chi.URLParam(r, "capability"), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type searchRequest struct {
	UserID string `json:"userId" validate:"required"`
	Query  string `json:"query" validate:"required"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	if s.deps.Search == nil {
		s.writeError(w, r, havenerr.NotConfigured("semantic search"))
		return
	}
	req, err := readJSON[searchRequest](w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.deps.Search.Search(r.Context(), req.UserID, req.Query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type embedRequest struct {
	Text string `json:"text" validate:"required"`
}

type embedResponse struct {
	Embedding  []float32 `json:"embedding"`
	Dimensions int       `json:"dimensions"`
}

func (s *Server) embed(w http.ResponseWriter, r *http.Request) {
	if s.deps.Embedder == nil {
		s.writeError(w, r, havenerr.NotConfigured("embedding model"))
		return
	}
	req, err := readJSON[embedRequest](w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	vec, err := s.deps.Embedder.Embed(r.Context(), req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, embedResponse{Embedding: vec, Dimensions: len(vec)})
}
