package features

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keystone-iam/keystone/internal/platform/httpx"
)

// Handler exposes the catalog listing and the per-feature content routes.
// The listing is advisory metadata for UI gating; the per-feature routes
// are the operations the authorization guard actually protects.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   GuardPort
}

// GuardPort is the slice of the rbac guard the feature routes need.
type GuardPort interface {
	Check(ctx context.Context, operation string) error
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard GuardPort) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers feature routes on the provided router. The caller
// wraps the whole subtree in the authentication middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{name}", h.show)
}

type featureDTO struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	feats, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list features", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]featureDTO, 0, len(feats))
	for _, f := range feats {
		out = append(out, featureDTO{ID: f.ID, Name: f.Name, Description: f.Description})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"features": out})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.guard.Check(r.Context(), "features."+name); err != nil {
		httpx.RespondError(w, err)
		return
	}
	f, err := h.service.repo.FindByName(r.Context(), name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"feature": f.Name,
		"message": f.Description,
	})
}
