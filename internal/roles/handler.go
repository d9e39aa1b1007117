package roles

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keystone-iam/keystone/internal/platform/httpx"
)

// Handler exposes read-only registry metadata for UI gating. Advisory only:
// the server-side guard is the authority.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers role routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
}

type roleDTO struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Features    []string `json:"features"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	all, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleDTO, 0, len(all))
	for _, role := range all {
		names := make([]string, 0, len(role.Features))
		for _, ref := range role.Features {
			if ref.Materialized() {
				names = append(names, ref.Name)
			}
		}
		out = append(out, roleDTO{ID: role.ID, Name: role.Name, Description: role.Description, Features: names})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}
