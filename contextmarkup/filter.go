package contextmarkup

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/tidwall/jsonc"
)

// Category is the bucket an occurrence is sorted into.
type Category string

const (
	CategoryNone      Category = ""
	CategoryMedia     Category = "media"
	CategoryReasoning Category = "reasoning"
	CategoryCitations Category = "citations"
	CategoryReminders Category = "reminders"
	CategoryKeyframes Category = "keyframes"
	CategoryMetrics   Category = "metrics"
)

// FilterOptions controls what Filter leaves in the display text.
type FilterOptions struct {
	// ShowEphemeral keeps ephemeral blocks verbatim instead of removing them.
	ShowEphemeral bool
	// RenderMedia replaces inline references with an img element instead of
	// removing them.
	RenderMedia bool
}

// Entry is an occurrence together with its decoded body.
type Entry struct {
	Occurrence
	// Schema is the body's "schema" member, if the body is a JSON object.
	Schema string
	// Data is the body's "data" member, or the whole decoded object when it
	// has none. Nil for non-JSON bodies and inline references.
	Data any
}

// FilterResult is the display text plus the categorized occurrences.
type FilterResult struct {
	Content   string
	Citations []Entry
	Reminders []Entry
	Keyframes []Entry
	Metrics   []Entry
	Reasoning []Entry
	Media     []Entry
}

// Filter parses text, sorts every occurrence into at most one bucket and
// builds the display text. Bucketing is independent of what is displayed:
// an ephemeral citation is both removed from Content and listed in Citations.
//
// Non-ephemeral blocks are always left in place, whatever their category.
func Filter(text string, opts FilterOptions) *FilterResult {
	res := &FilterResult{
		Citations: []Entry{},
		Reminders: []Entry{},
		Keyframes: []Entry{},
		Metrics:   []Entry{},
		Reasoning: []Entry{},
		Media:     []Entry{},
	}
	if text == "" {
		return res
	}

	occs := Parse(text)
	var sb strings.Builder
	sb.Grow(len(text))
	last := 0

	for _, o := range occs {
		e := decode(o)
		switch Categorize(e) {
		case CategoryMedia:
			res.Media = append(res.Media, e)
		case CategoryReasoning:
			res.Reasoning = append(res.Reasoning, e)
		case CategoryCitations:
			res.Citations = append(res.Citations, e)
		case CategoryReminders:
			res.Reminders = append(res.Reminders, e)
		case CategoryKeyframes:
			res.Keyframes = append(res.Keyframes, e)
		case CategoryMetrics:
			res.Metrics = append(res.Metrics, e)
		}

		sb.WriteString(text[last:o.Start])
		last = o.End
		switch {
		case o.Inline:
			if opts.RenderMedia {
				sb.WriteString(renderMedia(o))
			}
		case o.Ephemeral && !opts.ShowEphemeral:
		default:
			sb.WriteString(text[o.Start:o.End])
		}
	}
	sb.WriteString(text[last:])
	res.Content = sb.String()
	return res
}

// Categorize returns the bucket for e. The first matching rule wins:
// inline references are media, then reasoning blocks, then citations,
// reminders, keyframes and metrics by URI path segment or schema.
func Categorize(e Entry) Category {
	switch {
	case e.Inline:
		return CategoryMedia
	case e.Type == TypeReasoning:
		return CategoryReasoning
	case strings.Contains(e.URI, "/citations/") || e.Schema == SchemaSearchResult:
		return CategoryCitations
	case strings.Contains(e.URI, "/reminder/") || e.Schema == SchemaReminder:
		return CategoryReminders
	case strings.Contains(e.URI, "/keyframe/") || e.Schema == SchemaKeyframe:
		return CategoryKeyframes
	case strings.Contains(e.URI, "/metrics/"):
		return CategoryMetrics
	default:
		return CategoryNone
	}
}

// decode tolerates comments and trailing commas in bodies; models produce
// both.
func decode(o Occurrence) Entry {
	e := Entry{Occurrence: o}
	if o.Inline {
		return e
	}
	raw := bytes.TrimSpace([]byte(o.Body))
	if len(raw) == 0 || raw[0] != '{' {
		return e
	}
	norm := jsonc.ToJSON(raw)

	if s, err := jsonparser.GetString(norm, "schema"); err == nil {
		e.Schema = s
	}

	var obj map[string]any
	if err := json.Unmarshal(norm, &obj); err != nil {
		return e
	}
	if d, ok := obj["data"]; ok {
		e.Data = d
	} else {
		e.Data = obj
	}
	return e
}

func renderMedia(o Occurrence) string {
	uri := attrEscaper.Replace(o.URI)
	var sb strings.Builder
	sb.WriteString(`<img src="`)
	sb.WriteString(uri)
	sb.WriteString(`" data-mcp-uri="`)
	sb.WriteString(uri)
	sb.WriteString(`" alt="`)
	sb.WriteString(attrEscaper.Replace(strings.Join(o.Tags, ",")))
	sb.WriteString(`" />`)
	return sb.String()
}
