package model

import "strings"

// Format is an output image format accepted by the converter.
type Format int

const (
	FormatSVG Format = iota + 1 // vector passthrough
	FormatPNG                   // lossless raster
	FormatJPG                   // lossy raster, opaque background
)

type formatInfo struct {
	label  string
	ext    string
	opaque bool
}

var formats = map[Format]formatInfo{
	FormatSVG: {label: "SVG", ext: "svg"},
	FormatPNG: {label: "PNG", ext: "png"},
	FormatJPG: {label: "JPG", ext: "jpg", opaque: true},
}

// ParseFormat looks up a format label case-insensitively.
func ParseFormat(label string) (Format, bool) {
	label = strings.ToUpper(strings.TrimSpace(label))
	for f, info := range formats {
		if info.label == label {
			return f, true
		}
	}
	return 0, false
}

// String returns the upper-case label, e.g. "PNG".
func (f Format) String() string {
	if info, ok := formats[f]; ok {
		return info.label
	}
	return "UNKNOWN"
}

// Ext returns the file extension without the dot.
func (f Format) Ext() string { return formats[f].ext }

// IsRaster reports whether the format needs the raster and compression stages.
func (f Format) IsRaster() bool { return f == FormatPNG || f == FormatJPG }

// Opaque reports whether the format cannot carry transparency and must be
// rendered on a white background.
func (f Format) Opaque() bool { return formats[f].opaque }
