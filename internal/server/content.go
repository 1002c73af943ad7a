package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/havenos/haven/internal/store"
	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

// defaultScheduleWindow is the calendar range returned when the caller
// gives no end time.
const defaultScheduleWindow = 30 * 24 * time.Hour

type openGraphRequest struct {
	URL string `json:"url" validate:"required"`
}

func (s *Server) openGraph(w http.ResponseWriter, r *http.Request) {
	if s.deps.OpenGraph == nil {
		s.writeError(w, r, havenerr.NotConfigured("link previews"))
		return
	}
	req, err := readJSON[openGraphRequest](w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	preview, err := s.deps.OpenGraph.Fetch(r.Context(), req.URL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *Server) runLifecycle(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sweeper == nil {
		s.writeError(w, r, havenerr.NotConfigured("lifecycle sweep"))
		return
	}
	res, err := s.deps.Sweeper.Run(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) runBackfill(w http.ResponseWriter, r *http.Request) {
	if s.deps.Backfill == nil {
		s.writeError(w, r, havenerr.NotConfigured("embedding backfill"))
		return
	}
	res, err := s.deps.Backfill.Run(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) requireStore(w http.ResponseWriter, r *http.Request) bool {
	if s.deps.Store == nil {
		s.writeError(w, r, havenerr.NotConfigured("asset store"))
		return false
	}
	return true
}

func userIDParam(r *http.Request) (string, error) {
	id := r.URL.Query().Get("userId")
	if id == "" {
		return "", havenerr.Invalid("userId is required")
	}
	return id, nil
}

func (s *Server) listAssets(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	userID, err := userIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	assets, err := s.deps.Store.ListAssets(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if assets == nil {
		assets = []store.Asset{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": assets})
}

type createAssetRequest struct {
	UserID      string     `json:"userId" validate:"required"`
	Name        string     `json:"name" validate:"required"`
	Kind        string     `json:"kind" validate:"omitempty,oneof=image audio video document note link"`
	URL         string     `json:"url"`
	Content     string     `json:"content"`
	ScheduledAt *time.Time `json:"scheduledAt"`
}

func (s *Server) createAsset(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	req, err := readJSON[createAssetRequest](w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	a, err := s.deps.Store.CreateAsset(r.Context(), store.Asset{
		UserID:      req.UserID,
		Name:        req.Name,
		Kind:        store.AssetKind(req.Kind),
		URL:         req.URL,
		Content:     req.Content,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// deleteAsset removes the asset row and every canvas node that references
// it.
func (s *Server) deleteAsset(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	userID, err := userIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	assetID := chi.URLParam(r, "assetID")

	a, err := s.deps.Store.GetAsset(r.Context(), assetID)
	if err == nil && a.UserID != userID {
		err = fmt.Errorf("asset %s: %w", assetID, havenerr.ErrNotFound)
	}
	if err == nil {
		err = s.deps.Store.DeleteAsset(r.Context(), assetID)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	removed := 0
	if s.deps.Canvases != nil {
		if removed, err = s.deps.Canvases.DeleteByAssetID(r.Context(), assetID); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": assetID, "nodesRemoved": removed})
}

func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, havenerr.Invalid("%s must be an RFC 3339 time: %v", name, err)
	}
	return &t, nil
}

// scheduledAssets handles GET /assets/schedule?userId&from&to. from
// defaults to now and to defaults to thirty days after from.
func (s *Server) scheduledAssets(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	userID, err := userIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	from, err := parseTimeParam(r, "from")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if from == nil {
		now := s.now().UTC()
		from = &now
	}
	if to == nil {
		end := from.Add(defaultScheduleWindow)
		to = &end
	}
	if !to.After(*from) {
		s.writeError(w, r, havenerr.Invalid("to must be after from"))
		return
	}

	assets, err := s.deps.Store.ScheduledAssets(r.Context(), userID, *from, *to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if assets == nil {
		assets = []store.Asset{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": assets})
}

type scheduleRequest struct {
	UserID      string     `json:"userId" validate:"required"`
	AssetID     string     `json:"assetId" validate:"required"`
	ScheduledAt *time.Time `json:"scheduledAt"`
	Status      string     `json:"status"`
}

// setSchedule handles POST /assets/schedule. The status follows from
// scheduledAt; a status in the body must agree with it, and published can
// only be set by the publisher.
func (s *Server) setSchedule(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	req, err := readJSON[scheduleRequest](w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	switch store.ScheduleStatus(req.Status) {
	case "":
	case store.StatusPublished:
		s.writeError(w, r, havenerr.Invalid("status published is set by the publisher"))
		return
	case store.StatusScheduled:
		if req.ScheduledAt == nil {
			s.writeError(w, r, havenerr.Invalid("scheduledAt is required for status scheduled"))
			return
		}
	case store.StatusDraft:
		if req.ScheduledAt != nil {
			s.writeError(w, r, havenerr.Invalid("status draft cannot have a scheduledAt"))
			return
		}
	default:
		s.writeError(w, r, havenerr.Invalid("status must be one of draft, scheduled"))
		return
	}

	a, err := s.deps.Store.SetSchedule(r.Context(), req.UserID, req.AssetID, req.ScheduledAt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	userID, err := userIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	p, err := s.deps.Store.GetProfile(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type profileRequest struct {
	UserID       string   `json:"userId" validate:"required"`
	Name         string   `json:"name"`
	Role         string   `json:"role"`
	Industry     string   `json:"industry"`
	Goals        string   `json:"goals"`
	WritingStyle string   `json:"writingStyle"`
	Languages    []string `json:"languages"`
}

// upsertProfile replaces the whole profile; omitted fields are cleared.
func (s *Server) upsertProfile(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	req, err := readJSON[profileRequest](w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	p, err := s.deps.Store.UpsertProfile(r.Context(), store.Profile{
		UserID:       req.UserID,
		Name:         req.Name,
		Role:         req.Role,
		Industry:     req.Industry,
		Goals:        req.Goals,
		WritingStyle: req.WritingStyle,
		Languages:    req.Languages,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type stagingRequest struct {
	UserID   string  `json:"userId" validate:"required"`
	Title    string  `json:"title" validate:"required"`
	Content  string  `json:"content"`
	Category *string `json:"category"`
	// CreatedAt lets importers keep the original capture time.
	CreatedAt *time.Time `json:"createdAt"`
}

// createStagingItem handles POST /staging: a captured idea enters the
// active set and is aged and archived by the lifecycle sweep.
func (s *Server) createStagingItem(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	req, err := readJSON[stagingRequest](w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	it := store.StagingItem{
		UserID:   req.UserID,
		Title:    req.Title,
		Content:  req.Content,
		Category: req.Category,
	}
	if req.CreatedAt != nil {
		if req.CreatedAt.After(s.now()) {
			s.writeError(w, r, havenerr.Invalid("createdAt cannot be in the future"))
			return
		}
		it.CreatedAt = *req.CreatedAt
	}

	created, err := s.deps.Store.CreateStagingItem(r.Context(), it)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// listStagingItems handles GET /staging?userId: the active and aging items.
func (s *Server) listStagingItems(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	userID, err := userIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	items, err := s.deps.Store.ListStagingItems(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type vaultItemRequest struct {
	UserID  string `json:"userId" validate:"required"`
	Title   string `json:"title" validate:"required"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

func (s *Server) createVaultItem(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	req, err := readJSON[vaultItemRequest](w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	it, err := s.deps.Store.CreateVaultItem(r.Context(), store.VaultItem{
		UserID:  req.UserID,
		Title:   req.Title,
		Content: req.Content,
		Source:  req.Source,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

type vaultSearchRequest struct {
	UserID string `json:"userId" validate:"required"`
	Query  string `json:"query"`
}

func (s *Server) searchVault(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}
	req, err := readJSON[vaultSearchRequest](w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	items, err := s.deps.Store.SearchVault(r.Context(), req.UserID, req.Query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []store.VaultItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": items})
}
