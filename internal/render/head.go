package render

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// HeadMarkerTag is the reserved element the head-management primitive
// emits server-side. It renders nothing on the client; its only job is
// to smuggle document-head fragments out of body markup.
const HeadMarkerTag = "site-head"

// ExtractHead scans rendered markup for head marker elements, captures
// their inner content byte-for-byte in document order, and strips every
// marker occurrence from the body. Fragments are joined by newline; zero
// markers yields an empty head. Duplicate semantic tags are deliberately
// not deduplicated here: last-wins behavior belongs to the document
// template that concatenates the fragments.
func ExtractHead(markup string) (head string, body string) {
	z := html.NewTokenizer(strings.NewReader(markup))

	var fragments []string
	var bodyBuf strings.Builder
	var fragBuf strings.Builder
	depth := 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				// Tokenizer errors only occur on malformed input the
				// renderer should never produce; keep what we have.
				bodyBuf.Write(z.Raw())
			}
			break
		}

		raw := z.Raw()
		name, _ := z.TagName()
		isMarker := (tt == html.StartTagToken || tt == html.EndTagToken || tt == html.SelfClosingTagToken) &&
			string(name) == HeadMarkerTag

		switch {
		case isMarker && tt == html.StartTagToken:
			if depth > 0 {
				fragBuf.Write(raw)
			}
			depth++
		case isMarker && tt == html.EndTagToken:
			depth--
			if depth > 0 {
				fragBuf.Write(raw)
			} else if depth == 0 {
				fragments = append(fragments, fragBuf.String())
				fragBuf.Reset()
			} else {
				// Stray close without open: drop the marker, keep scanning.
				depth = 0
			}
		case isMarker && tt == html.SelfClosingTagToken:
			if depth > 0 {
				fragBuf.Write(raw)
			} else {
				fragments = append(fragments, "")
			}
		case depth > 0:
			fragBuf.Write(raw)
		default:
			bodyBuf.Write(raw)
		}
	}

	return strings.Join(fragments, "\n"), bodyBuf.String()
}
