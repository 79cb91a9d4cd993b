package resourceuri

import (
	"github.com/yosida95/uritemplate/v3"

	"github.com/ggoodman/mcp-context-go/mcp"
)

// Record types addressable through templates.
const (
	TypeDocument = "data.data"
	TypeChat     = "olio.llm.chatRequest"
)

// Template names.
const (
	TemplateDocument     = "document"
	TemplateVectorSearch = "vector_search"
	TemplateChat         = "chat"
)

// Template is a named RFC 6570 template with its listing metadata.
type Template struct {
	Name       string
	Descriptor mcp.ResourceTemplate
	tmpl       *uritemplate.Template
}

// Templates are the URI shapes resources/read resolves, in match order.
var Templates = []Template{
	newTemplate(TemplateDocument, "am7://{organization}/data.data/{objectId}",
		"AM7 Document", "Read a document by organization and object id", "text/plain"),
	newTemplate(TemplateVectorSearch, "am7://{organization}/vector/search{?q}",
		"AM7 Vector Search", "Search documents by semantic similarity", "application/json"),
	newTemplate(TemplateChat, "am7://{organization}/olio.llm.chatRequest/{objectId}",
		"AM7 Chat Session", "Read a chat session by organization and object id", "application/json"),
}

func newTemplate(name, raw, title, desc, mime string) Template {
	return Template{
		Name: name,
		Descriptor: mcp.ResourceTemplate{
			URITemplate: raw,
			Name:        title,
			Description: desc,
			MimeType:    mime,
		},
		tmpl: uritemplate.MustNew(raw),
	}
}

// Descriptors returns the listing form of Templates.
func Descriptors() []mcp.ResourceTemplate {
	out := make([]mcp.ResourceTemplate, len(Templates))
	for i, t := range Templates {
		out[i] = t.Descriptor
	}
	return out
}

// Match is a successful template match.
type Match struct {
	Template string
	Vars     map[string]string
}

// MatchTemplate reports the first template uri matches, with its variables.
func MatchTemplate(uri string) (Match, bool) {
	for _, t := range Templates {
		vals := t.tmpl.Match(uri)
		if vals == nil {
			continue
		}
		vars := make(map[string]string, len(t.tmpl.Varnames()))
		for _, name := range t.tmpl.Varnames() {
			if v := vals.Get(name); v.Valid() {
				vars[name] = v.String()
			}
		}
		return Match{Template: t.Name, Vars: vars}, true
	}
	return Match{}, false
}

// Expand fills the named template. It returns "" for an unknown name.
func Expand(name string, vars map[string]string) (string, error) {
	for _, t := range Templates {
		if t.Name != name {
			continue
		}
		vals := uritemplate.Values{}
		for k, v := range vars {
			vals.Set(k, uritemplate.String(v))
		}
		return t.tmpl.Expand(vals)
	}
	return "", nil
}
