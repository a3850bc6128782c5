package validator

import (
	"errors"
	"strings"

	"github.com/aliskhannn/latex2image/internal/model"
)

// Validation errors. Their messages are returned to the client verbatim.
var (
	ErrNoInput       = errors.New("No LaTeX input provided")
	ErrInvalidScale  = errors.New("Invalid scale")
	ErrInvalidFormat = errors.New("Invalid image format")
)

// Validate checks markup, scale and format in that order and stops at the
// first failure.
func Validate(raw model.RawRequest) (model.ConversionRequest, error) {
	if strings.TrimSpace(raw.Markup) == "" {
		return model.ConversionRequest{}, ErrNoInput
	}

	scale, ok := model.ParseScale(raw.Scale)
	if !ok {
		return model.ConversionRequest{}, ErrInvalidScale
	}

	format, ok := model.ParseFormat(raw.Format)
	if !ok {
		return model.ConversionRequest{}, ErrInvalidFormat
	}

	return model.ConversionRequest{
		Markup: raw.Markup,
		Format: format,
		Scale:  scale,
	}, nil
}

// IsValidation reports whether err came from Validate.
func IsValidation(err error) bool {
	return errors.Is(err, ErrNoInput) || errors.Is(err, ErrInvalidScale) || errors.Is(err, ErrInvalidFormat)
}
