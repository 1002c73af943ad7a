package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/havenos/haven/internal/canvas"
	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

func (s *Server) canvasStore(w http.ResponseWriter, r *http.Request) (*canvas.Store, bool) {
	if s.deps.Canvases == nil {
		s.writeError(w, r, havenerr.NotConfigured("canvas storage"))
		return nil, false
	}
	c, err := s.deps.Canvases.Get(r.Context(), chi.URLParam(r, "canvasID"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return c, true
}

// persist saves a mutated canvas. A stale write reloads the canvas so the
// next request starts from the stored revision.
func (s *Server) persist(w http.ResponseWriter, r *http.Request, c *canvas.Store) bool {
	err := c.Save(r.Context())
	if err == nil {
		return true
	}
	if errors.Is(err, canvas.ErrStaleCanvas) {
		c.Load(r.Context())
	}
	s.writeError(w, r, err)
	return false
}

func (s *Server) listCanvases(w http.ResponseWriter, r *http.Request) {
	if s.deps.Canvases == nil {
		s.writeError(w, r, havenerr.NotConfigured("canvas storage"))
		return
	}
	ids, err := s.deps.Canvases.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"canvases": ids})
}

func (s *Server) getCanvas(w http.ResponseWriter, r *http.Request) {
	c, ok := s.canvasStore(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

// replaceCanvas handles PUT /canvas/{id}: the client sends its whole graph
// and the revision it was based on.
func (s *Server) replaceCanvas(w http.ResponseWriter, r *http.Request) {
	c, ok := s.canvasStore(w, r)
	if !ok {
		return
	}
	g, err := readJSON[canvas.Graph](w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := c.Replace(g, g.Revision); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !s.persist(w, r, c) {
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

func (s *Server) deleteCanvas(w http.ResponseWriter, r *http.Request) {
	if s.deps.Canvases == nil {
		s.writeError(w, r, havenerr.NotConfigured("canvas storage"))
		return
	}
	if err := s.deps.Canvases.Delete(r.Context(), chi.URLParam(r, "canvasID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type dropRequest struct {
	Type     string          `json:"type" validate:"required"`
	Position canvas.Position `json:"position"`
	Data     map[string]any  `json:"data"`
}

func (s *Server) dropNode(w http.ResponseWriter, r *http.Request) {
	c, ok := s.canvasStore(w, r)
	if !ok {
		return
	}
	req, err := readJSON[dropRequest](w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	n, err := c.AddNodeFromDrop(req.Type, req.Position, req.Data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !s.persist(w, r, c) {
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

type updateNodeRequest struct {
	Position *canvas.Position `json:"position"`
	Data     map[string]any   `json:"data"`
}

func (s *Server) updateNode(w http.ResponseWriter, r *http.Request) {
	c, ok := s.canvasStore(w, r)
	if !ok {
		return
	}
	req, err := readJSON[updateNodeRequest](w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	n, err := c.UpdateNode(chi.URLParam(r, "nodeID"), req.Position, req.Data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !s.persist(w, r, c) {
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) deleteNode(w http.ResponseWriter, r *http.Request) {
	c, ok := s.canvasStore(w, r)
	if !ok {
		return
	}
	if !c.DeleteNode(chi.URLParam(r, "nodeID")) {
		s.writeError(w, r, canvas.ErrNodeNotFound)
		return
	}
	if !s.persist(w, r, c) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type connectRequest struct {
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// connectNodes adds an edge. Connecting an image to an ai-analysis node
// runs the image analysis before the response is written.
func (s *Server) connectNodes(w http.ResponseWriter, r *http.Request) {
	c, ok := s.canvasStore(w, r)
	if !ok {
		return
	}
	req, err := readJSON[connectRequest](w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	e, err := c.Connect(r.Context(), req.Source, req.Target)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !s.persist(w, r, c) {
		return
	}
	target, _ := c.Node(req.Target)
	writeJSON(w, http.StatusCreated, map[string]any{"edge": e, "target": target})
}

func (s *Server) deleteEdge(w http.ResponseWriter, r *http.Request) {
	c, ok := s.canvasStore(w, r)
	if !ok {
		return
	}
	if !c.DeleteEdge(chi.URLParam(r, "edgeID")) {
		s.writeError(w, r, havenerr.ErrNotFound)
		return
	}
	if !s.persist(w, r, c) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) applyCommand(w http.ResponseWriter, r *http.Request) {
	c, ok := s.canvasStore(w, r)
	if !ok {
		return
	}
	cmd, err := readJSON[canvas.Command](w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := c.Apply(cmd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if res.Applied && !s.persist(w, r, c) {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) deleteCanvasAsset(w http.ResponseWriter, r *http.Request) {
	c, ok := s.canvasStore(w, r)
	if !ok {
		return
	}
	removed := c.DeleteByAssetID(chi.URLParam(r, "assetID"))
	if removed > 0 && !s.persist(w, r, c) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodesRemoved": removed})
}
