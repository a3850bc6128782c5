// Package latex builds the LaTeX document compiled for each job.
package latex

import "strings"

const (
	lineBreak    = `\\`
	alignMarker  = "&"
	fontSizePt   = "12"
	placeholder  = "EQUATION"
	documentBody = `
\documentclass[` + fontSizePt + `pt]{article}
` + preamble + `
\thispagestyle{empty}
\begin{document}
\begin{align*}
` + placeholder + `
\end{align*}
\end{document}`
)

const preamble = `
\usepackage{amsmath}
\usepackage{amssymb}
\usepackage{amsfonts}
\usepackage[utf8]{inputenc}
`

// Compose trims the markup, left-aligns multi-line input and embeds it in
// the document template.
func Compose(markup string) string {
	eq := AlignLeft(strings.TrimSpace(markup))
	return strings.Replace(documentBody, placeholder, eq, 1)
}

// AlignLeft makes multi-line markup align on the left edge. If the markup has
// a line break anywhere but at the very end and carries no alignment marker
// of its own, it gets a leading marker and every non-trailing line break is
// followed by one.
func AlignLeft(markup string) string {
	if strings.Contains(markup, alignMarker) || !hasInnerBreak(markup) {
		return markup
	}

	var b strings.Builder
	b.Grow(len(markup) + 8)
	b.WriteString(alignMarker)

	for i := 0; i < len(markup); {
		if strings.HasPrefix(markup[i:], lineBreak) {
			b.WriteString(lineBreak)
			i += len(lineBreak)
			if i != len(markup) {
				b.WriteString(alignMarker)
			}
			continue
		}
		b.WriteByte(markup[i])
		i++
	}

	return b.String()
}

// hasInnerBreak reports whether a line break occurs that does not end the string.
func hasInnerBreak(s string) bool {
	for i := 0; i+len(lineBreak) <= len(s); {
		if strings.HasPrefix(s[i:], lineBreak) {
			if i+len(lineBreak) != len(s) {
				return true
			}
			i += len(lineBreak)
			continue
		}
		i++
	}
	return false
}
