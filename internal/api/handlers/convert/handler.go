package convert

import (
	"context"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/latex2image/internal/api/respond"
	"github.com/aliskhannn/latex2image/internal/model"
)

// msgBadBody is returned when the body cannot be decoded at all.
const msgBadBody = "Invalid request body"

// service defines the interface for running conversions.
type service interface {
	Convert(ctx context.Context, raw model.RawRequest) model.ConversionResult
}

// Handler serves the conversion endpoint.
type Handler struct {
	service service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(s service) *Handler {
	return &Handler{service: s}
}

// Convert accepts a form or JSON body with latexInput, outputFormat and
// outputScale and responds with {"imageURL": ...} or {"error": ...}.
func (h *Handler) Convert(c *ginext.Context) {
	var raw model.RawRequest
	if err := c.ShouldBind(&raw); err != nil {
		zlog.Logger.Warn().Err(err).Msg("failed to bind conversion request")
		respond.Conversion(c, model.Failure(msgBadBody))
		return
	}

	respond.Conversion(c, h.service.Convert(c.Request.Context(), raw))
}
