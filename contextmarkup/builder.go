package contextmarkup

import (
	"encoding/json"
	"fmt"
	"strings"
)

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// Builder accumulates context additions and serializes them on demand. The
// zero value is ready to use. A Builder is not safe for concurrent use.
type Builder struct {
	parts []string
	err   error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Resource adds a block of type "resource" whose body carries schema and data.
func (b *Builder) Resource(uri, schema string, data any, ephemeral bool) *Builder {
	body := b.marshal(struct {
		Schema string `json:"schema"`
		Data   any    `json:"data"`
	}{Schema: schema, Data: data})
	b.parts = append(b.parts, block(TypeResource, uri, ephemeral, body))
	return b
}

// Reasoning adds an ephemeral reasoning block listing steps.
func (b *Builder) Reasoning(steps []string) *Builder {
	if steps == nil {
		steps = []string{}
	}
	body := b.marshal(struct {
		Steps []string `json:"steps"`
	}{Steps: steps})
	b.parts = append(b.parts, block(TypeReasoning, "", true, body))
	return b
}

// Reminder adds an ephemeral narrative reminder. Items are typically
// key/value maps.
func (b *Builder) Reminder(uri string, items any) *Builder {
	return b.Resource(uri, SchemaReminder, map[string]any{"items": items}, true)
}

// Keyframe adds an ephemeral narrative keyframe describing scene state.
func (b *Builder) Keyframe(uri string, data any) *Builder {
	return b.Resource(uri, SchemaKeyframe, data, true)
}

// Metrics adds an ephemeral biometric metrics block.
func (b *Builder) Metrics(uri string, data any) *Builder {
	return b.Resource(uri, SchemaMetrics, data, true)
}

// MediaResource adds an inline, self-closing media reference. tagsCSV is
// written verbatim (escaped) and omitted when empty.
func (b *Builder) MediaResource(uri, tagsCSV string) *Builder {
	var sb strings.Builder
	sb.WriteString(`<mcp:resource uri="`)
	sb.WriteString(attrEscaper.Replace(uri))
	sb.WriteByte('"')
	if tagsCSV != "" {
		sb.WriteString(` tags="`)
		sb.WriteString(attrEscaper.Replace(tagsCSV))
		sb.WriteByte('"')
	}
	sb.WriteString(" />\n")
	b.parts = append(b.parts, sb.String())
	return b
}

// Len returns the number of pending additions.
func (b *Builder) Len() int {
	return len(b.parts)
}

// Clear discards all pending additions and any recorded error.
func (b *Builder) Clear() {
	b.parts = nil
	b.err = nil
}

// Build serializes the additions in insertion order. It returns "" when there
// are none.
func (b *Builder) Build() string {
	return strings.Join(b.parts, "")
}

// Err returns the first payload encoding failure, if any. The failed
// addition is still emitted, with a null body.
func (b *Builder) Err() error {
	return b.err
}

// marshal encodes v with encoding/json. Its default HTML escaping turns <, >
// and & into \u escapes, so a body never contains a literal closing tag.
func (b *Builder) marshal(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		if b.err == nil {
			b.err = fmt.Errorf("contextmarkup: encode body: %w", err)
		}
		return "null"
	}
	return string(out)
}

func block(typ, uri string, ephemeral bool, body string) string {
	var sb strings.Builder
	sb.WriteString(`<mcp:context type="`)
	sb.WriteString(attrEscaper.Replace(typ))
	sb.WriteByte('"')
	if uri != "" {
		sb.WriteString(` uri="`)
		sb.WriteString(attrEscaper.Replace(uri))
		sb.WriteByte('"')
	}
	if ephemeral {
		sb.WriteString(` ephemeral="true"`)
	}
	sb.WriteByte('>')
	sb.WriteString(body)
	sb.WriteString("</mcp:context>\n")
	return sb.String()
}
