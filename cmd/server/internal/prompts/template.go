package prompts

import (
	"fmt"
	"strings"
)

// Segment is one unit of a parsed content template: either literal text or a
// named placeholder. Exactly one of Literal/Param is set.
type Segment struct {
	Literal string
	Param   string
}

// Template is a content string parsed once into segments. Both {{name}} and
// ${name} placeholder syntaxes are recognized and treated identically.
type Template struct {
	raw      string
	segments []Segment
}

func isParamNameChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// ParseTemplate splits text into literal and placeholder segments. Malformed
// placeholders (unclosed braces, empty or invalid names) stay literal text.
func ParseTemplate(text string) *Template {
	t := &Template{raw: text}
	var literal strings.Builder

	flush := func() {
		if literal.Len() > 0 {
			t.segments = append(t.segments, Segment{Literal: literal.String()})
			literal.Reset()
		}
	}

	i := 0
	for i < len(text) {
		if strings.HasPrefix(text[i:], "{{") {
			if name, next, ok := scanParam(text, i+2, "}}"); ok {
				flush()
				t.segments = append(t.segments, Segment{Param: name})
				i = next
				continue
			}
		}
		if strings.HasPrefix(text[i:], "${") {
			if name, next, ok := scanParam(text, i+2, "}"); ok {
				flush()
				t.segments = append(t.segments, Segment{Param: name})
				i = next
				continue
			}
		}
		literal.WriteByte(text[i])
		i++
	}
	flush()

	return t
}

// scanParam reads a placeholder name starting at start, expecting the given
// closing delimiter right after it. Returns the name and the index past the
// delimiter.
func scanParam(text string, start int, closing string) (string, int, bool) {
	end := start
	for end < len(text) && isParamNameChar(text[end]) {
		end++
	}
	if end == start || !strings.HasPrefix(text[end:], closing) {
		return "", 0, false
	}
	return text[start:end], end + len(closing), true
}

// Parameters returns the template's parameter descriptors, deduplicated and in
// order of first appearance. All parameters default to required.
func (t *Template) Parameters() []Parameter {
	seen := make(map[string]bool)
	var params []Parameter
	for _, seg := range t.segments {
		if seg.Param == "" || seen[seg.Param] {
			continue
		}
		seen[seg.Param] = true
		params = append(params, Parameter{Name: seg.Param, Required: true})
	}
	return params
}

// Render substitutes values into the template. Placeholders listed in
// optional may be absent from values and render as the empty string; any
// other missing placeholder is an error.
func (t *Template) Render(values map[string]string, optional map[string]bool) (string, error) {
	var b strings.Builder
	var missing []string
	for _, seg := range t.segments {
		if seg.Param == "" {
			b.WriteString(seg.Literal)
			continue
		}
		v, ok := values[seg.Param]
		if !ok && !optional[seg.Param] {
			missing = append(missing, seg.Param)
			continue
		}
		b.WriteString(v)
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing required parameters: %s", strings.Join(missing, ", "))
	}
	return b.String(), nil
}

// ExtractParameters scans text for placeholders and returns the derived
// parameter list. overrides lets author-supplied descriptions and required
// flags survive recomputation, matched by name.
func ExtractParameters(text string, overrides []Parameter) []Parameter {
	byName := make(map[string]Parameter, len(overrides))
	for _, o := range overrides {
		byName[o.Name] = o
	}

	params := ParseTemplate(text).Parameters()
	for i, p := range params {
		if o, ok := byName[p.Name]; ok {
			params[i].Required = o.Required
			params[i].Description = o.Description
		}
	}
	return params
}
