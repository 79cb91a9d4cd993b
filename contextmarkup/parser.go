package contextmarkup

import (
	"html"
	"regexp"
	"strings"
)

// Occurrence is one recognized markup element.
type Occurrence struct {
	// Type is the block's type attribute, or "resource" for inline references.
	Type string
	URI  string
	// Ephemeral is true only when the attribute value is literally "true".
	Ephemeral bool
	// Inline is true for the self-closing <mcp:resource /> form.
	Inline bool
	// Body is the raw text between the opening and closing block tags.
	// Empty for inline references.
	Body string
	// Tags is the comma-split tags attribute of an inline reference.
	Tags []string
	// Start and End are byte offsets into the parsed text: Start indexes the
	// opening '<' and End is just past the final '>'.
	Start int
	End   int
}

var (
	// Group 1: block attributes, group 2: block body, group 3: inline attributes.
	markupPattern = regexp.MustCompile(`(?s)<mcp:context(\s[^>]*)?>(.*?)</mcp:context>|<mcp:resource(\s[^>]*?)?\s*/>`)
	attrPattern   = regexp.MustCompile(`([A-Za-z_][\w:.-]*)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
)

// Parse returns every block and inline occurrence in text, in source order.
// It is deterministic and never fails; unrecognized text is ignored.
func Parse(text string) []Occurrence {
	if text == "" {
		return nil
	}

	matches := markupPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	out := make([]Occurrence, 0, len(matches))
	for _, m := range matches {
		occ := Occurrence{Start: m[0], End: m[1]}
		if m[4] >= 0 {
			attrs := parseAttrs(group(text, m, 1))
			occ.Type = attrs["type"]
			occ.URI = attrs["uri"]
			occ.Ephemeral = attrs["ephemeral"] == "true"
			occ.Body = text[m[4]:m[5]]
		} else {
			attrs := parseAttrs(group(text, m, 3))
			occ.Type = TypeResource
			occ.URI = attrs["uri"]
			occ.Inline = true
			occ.Tags = splitTags(attrs["tags"])
		}
		out = append(out, occ)
	}
	return out
}

// StripAll removes every recognized occurrence and leaves the surrounding
// text untouched.
func StripAll(text string) string {
	return excise(text, Parse(text), func(Occurrence) bool { return true })
}

// StripEphemeral removes only blocks marked ephemeral="true". Non-ephemeral
// blocks and inline references stay in place, tags and all.
func StripEphemeral(text string) string {
	return excise(text, Parse(text), func(o Occurrence) bool { return o.Ephemeral })
}

func excise(text string, occs []Occurrence, remove func(Occurrence) bool) string {
	if len(occs) == 0 {
		return text
	}
	var sb strings.Builder
	sb.Grow(len(text))
	last := 0
	for _, o := range occs {
		if !remove(o) {
			continue
		}
		sb.WriteString(text[last:o.Start])
		last = o.End
	}
	sb.WriteString(text[last:])
	return sb.String()
}

func group(text string, m []int, n int) string {
	if m[2*n] < 0 {
		return ""
	}
	return text[m[2*n]:m[2*n+1]]
}

func parseAttrs(s string) map[string]string {
	attrs := make(map[string]string, 3)
	for _, m := range attrPattern.FindAllStringSubmatch(s, -1) {
		name := m[1]
		if _, dup := attrs[name]; dup {
			continue
		}
		val := m[2]
		if val == "" {
			val = m[3]
		}
		attrs[name] = html.UnescapeString(val)
	}
	return attrs
}

func splitTags(csv string) []string {
	tags := []string{}
	for _, t := range strings.Split(csv, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
