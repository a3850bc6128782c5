package job

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/latex2image/internal/api/respond"
	"github.com/aliskhannn/latex2image/internal/model"
	jobrepo "github.com/aliskhannn/latex2image/internal/repository/job"
)

// repository defines the job history lookups.
type repository interface {
	GetJob(ctx context.Context, id uuid.UUID) (model.JobRecord, error)
}

// Handler serves job history.
type Handler struct {
	repo repository
}

// NewHandler creates a new Handler with the given repository.
func NewHandler(r repository) *Handler {
	return &Handler{repo: r}
}

// Get returns the recorded outcome of a job.
func (h *Handler) Get(c *ginext.Context) {
	idStr := c.Param("id")
	if idStr == "" {
		zlog.Logger.Warn().Msg("missing id")
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("missing id"))
		return
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to parse id")
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid id: %v", err))
		return
	}

	rec, err := h.repo.GetJob(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, jobrepo.ErrJobNotFound) {
			zlog.Logger.Warn().Str("job_id", idStr).Msg("job not found")
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("job not found"))
			return
		}

		zlog.Logger.Err(err).Msg("failed to get job")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to get job"))
		return
	}

	respond.OK(c, rec)
}
