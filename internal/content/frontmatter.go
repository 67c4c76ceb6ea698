package content

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	siteerrors "git.home.luguber.info/inful/sitegen/internal/errors"
)

// Frontmatter is the parsed metadata block of a content file. Immutable
// once parsed; its lifetime is one render pass.
type Frontmatter struct {
	Title       string
	Description string
	// Extra holds every additional key verbatim, for layouts that want
	// custom fields.
	Extra map[string]any
}

// ErrMissingClosingDelimiter indicates the document started with a
// frontmatter delimiter but never closed it.
var ErrMissingClosingDelimiter = errors.New("frontmatter start delimiter found but closing delimiter is missing")

// ErrMissingTitle indicates the mandatory title field is absent or empty.
var ErrMissingTitle = errors.New("frontmatter requires a non-empty title")

// Split separates a `---` delimited metadata block from the document body.
//
// If the document does not start with a delimiter, had is false and body
// is the full input.
func Split(data []byte) (frontmatter []byte, body []byte, had bool, err error) {
	nl := detectNewline(data)
	open := []byte("---" + nl)
	if !bytes.HasPrefix(data, open) {
		return nil, data, false, nil
	}

	start := len(open)
	if bytes.HasPrefix(data[start:], open) {
		return []byte{}, data[start+len(open):], true, nil
	}

	closeSeq := []byte(nl + "---" + nl)
	idx := bytes.Index(data[start:], closeSeq)
	if idx < 0 {
		return nil, nil, false, ErrMissingClosingDelimiter
	}

	fmEnd := start + idx + len(nl)
	bodyStart := start + idx + len(closeSeq)
	return data[start:fmEnd], data[bodyStart:], true, nil
}

// Parse splits and decodes the metadata block of a content file.
//
// Markdown files may omit the block entirely; an empty title is
// substituted. Component files must carry one. A block that is present
// but malformed, or whose title is empty, is a parse-fatal error naming
// the cause.
func Parse(data []byte, kind Kind) (Frontmatter, []byte, error) {
	raw, body, had, err := Split(data)
	if err != nil {
		return Frontmatter{}, nil, siteerrors.Wrap(err, siteerrors.CategoryContent, siteerrors.SeverityError, "split frontmatter")
	}
	if !had {
		if kind == KindComponent {
			return Frontmatter{}, nil, siteerrors.New(siteerrors.CategoryContent, siteerrors.SeverityError, "component page is missing its frontmatter block")
		}
		return Frontmatter{}, body, nil
	}

	fields := map[string]any{}
	if len(raw) > 0 {
		if err := yaml.Unmarshal(raw, &fields); err != nil {
			return Frontmatter{}, nil, siteerrors.Wrap(err, siteerrors.CategoryContent, siteerrors.SeverityError, "parse frontmatter yaml")
		}
		if fields == nil {
			fields = map[string]any{}
		}
	}

	fm := Frontmatter{Extra: map[string]any{}}
	for k, v := range fields {
		switch k {
		case "title":
			fm.Title = stringField(v)
		case "description":
			fm.Description = stringField(v)
		default:
			fm.Extra[k] = v
		}
	}
	if fm.Title == "" {
		return Frontmatter{}, nil, siteerrors.Wrap(ErrMissingTitle, siteerrors.CategoryContent, siteerrors.SeverityError, "validate frontmatter")
	}
	return fm, body, nil
}

func stringField(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func detectNewline(data []byte) string {
	for i := 0; i+1 < len(data); i++ {
		if data[i] == '\r' && data[i+1] == '\n' {
			return "\r\n"
		}
		if data[i] == '\n' {
			return "\n"
		}
	}
	return "\n"
}
