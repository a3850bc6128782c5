package model

// RawRequest is a conversion request as received from the client,
// before any validation. Field names follow the browser client.
type RawRequest struct {
	Markup string `json:"latexInput" form:"latexInput"`
	Format string `json:"outputFormat" form:"outputFormat"`
	Scale  string `json:"outputScale" form:"outputScale"`
}

// ConversionRequest is a validated request.
type ConversionRequest struct {
	Markup string
	Format Format
	Scale  Scale
}

// ConversionResult is the body returned to the client. Exactly one of the
// fields is set.
type ConversionResult struct {
	ImageURL string `json:"imageURL,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Success builds a result carrying the published image URL.
func Success(url string) ConversionResult { return ConversionResult{ImageURL: url} }

// Failure builds a result carrying an error message.
func Failure(msg string) ConversionResult { return ConversionResult{Error: msg} }

// OK reports whether the result carries an image URL.
func (r ConversionResult) OK() bool { return r.ImageURL != "" }
