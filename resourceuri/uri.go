// Package resourceuri parses and formats am7:// resource URIs and matches
// them against the server's resource templates.
package resourceuri

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Scheme is the prefix every resource URI carries.
const Scheme = "am7://"

// TypeMedia is the Type of a media reference.
const TypeMedia = "media"

// ErrInvalid wraps every parse and build failure.
var ErrInvalid = errors.New("invalid am7 uri")

var (
	traversalPattern = regexp.MustCompile(`\.\.[\\/]`)
	injectionPattern = regexp.MustCompile("[;'\"\\\\`]")
)

// Param is one query parameter. Values are kept exactly as written.
type Param struct {
	Key   string
	Value string
}

// URI is a parsed am7:// reference.
type URI struct {
	// Organization may span several path segments ("Development/Acme").
	Organization string
	Type         string
	// ID is empty only for org/type?query references.
	ID string
	// Media is set for .../media/<mediaType>/<id> references.
	Media     bool
	MediaType string
	Params    []Param
}

// Get returns the first value for key, or "".
func (u *URI) Get(key string) string {
	for _, p := range u.Params {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

// Parse validates and splits s.
//
// With three or more path segments the last is the id and the type is the
// nearest dotted segment before it (olio.llm.chatConfig), falling back to
// the second-to-last segment. Everything before the type is the
// organization. Two segments are accepted only with a query, as org/type.
func Parse(s string) (*URI, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalid)
	}
	if !strings.HasPrefix(s, Scheme) {
		return nil, fmt.Errorf("%w: must start with %s: %s", ErrInvalid, Scheme, s)
	}
	if traversalPattern.MatchString(s) {
		return nil, fmt.Errorf("%w: path traversal: %s", ErrInvalid, s)
	}
	rest := s[len(Scheme):]
	if injectionPattern.MatchString(rest) {
		return nil, fmt.Errorf("%w: illegal character: %s", ErrInvalid, s)
	}

	u := &URI{}
	path, query, _ := strings.Cut(rest, "?")
	for _, pair := range strings.Split(query, "&") {
		if k, v, ok := strings.Cut(pair, "="); ok && k != "" {
			u.Params = append(u.Params, Param{Key: k, Value: v})
		}
	}

	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" {
		return nil, fmt.Errorf("%w: missing organization: %s", ErrInvalid, s)
	}

	if i := mediaIndex(parts); i >= 0 {
		u.Media = true
		u.Type = TypeMedia
		u.MediaType = parts[i+1]
		u.ID = parts[i+2]
		u.Organization = strings.Join(parts[:i], "/")
		if u.ID == "" {
			return nil, fmt.Errorf("%w: missing id: %s", ErrInvalid, s)
		}
		if u.Organization == "" {
			return nil, fmt.Errorf("%w: missing organization: %s", ErrInvalid, s)
		}
		return u, nil
	}

	switch {
	case len(parts) == 2 && len(u.Params) > 0:
		u.Organization = parts[0]
		u.Type = parts[1]
		return u, nil
	case len(parts) < 3:
		return nil, fmt.Errorf("%w: missing type: %s", ErrInvalid, s)
	}

	last := len(parts) - 1
	u.ID = parts[last]
	if u.ID == "" {
		return nil, fmt.Errorf("%w: missing id: %s", ErrInvalid, s)
	}
	typeIdx := last - 1
	for i := last - 1; i >= 1; i-- {
		if strings.Contains(parts[i], ".") {
			typeIdx = i
			break
		}
	}
	u.Type = parts[typeIdx]
	u.Organization = strings.Join(parts[:typeIdx], "/")
	if u.Organization == "" {
		return nil, fmt.Errorf("%w: missing organization: %s", ErrInvalid, s)
	}
	if u.Type == "" {
		return nil, fmt.Errorf("%w: missing type: %s", ErrInvalid, s)
	}
	return u, nil
}

// mediaIndex returns the first "media" segment that is followed by at least
// a type and an id, or -1.
func mediaIndex(parts []string) int {
	for i, p := range parts {
		if p == TypeMedia && i+2 < len(parts) {
			return i
		}
	}
	return -1
}

// String formats u. Parsing the result yields an equal URI.
func (u *URI) String() string {
	var sb strings.Builder
	sb.WriteString(Scheme)
	sb.WriteString(u.Organization)
	sb.WriteByte('/')
	sb.WriteString(u.Type)
	if u.Media && u.MediaType != "" {
		sb.WriteByte('/')
		sb.WriteString(u.MediaType)
	}
	if u.ID != "" {
		sb.WriteByte('/')
		sb.WriteString(u.ID)
	}
	writeParams(&sb, u.Params)
	return sb.String()
}

func writeParams(sb *strings.Builder, params []Param) {
	for i, p := range params {
		if i == 0 {
			sb.WriteByte('?')
		} else {
			sb.WriteByte('&')
		}
		sb.WriteString(p.Key)
		sb.WriteByte('=')
		sb.WriteString(p.Value)
	}
}

// Build formats a reference from parts. A leading slash on org is dropped.
// Query values are form-encoded, so spaces become '+'.
func Build(org, typ, id string, query ...Param) (string, error) {
	org = strings.TrimPrefix(org, "/")
	if org == "" {
		return "", fmt.Errorf("%w: organization is required", ErrInvalid)
	}
	if typ == "" {
		return "", fmt.Errorf("%w: type is required", ErrInvalid)
	}
	u := &URI{Organization: org, Type: typ, ID: id}
	for _, p := range query {
		u.Params = append(u.Params, Param{Key: p.Key, Value: url.QueryEscape(p.Value)})
	}
	return u.String(), nil
}

// VectorSearch formats an am7://org/vector/search query reference.
func VectorSearch(org string, query ...Param) (string, error) {
	return Build(org, "vector", "search", query...)
}

// Document formats the reference of a document record.
func Document(org, objectID string) string {
	s, _ := Build(org, TypeDocument, objectID)
	return s
}

// Chat formats the reference of a chat session record.
func Chat(org, objectID string) string {
	s, _ := Build(org, TypeChat, objectID)
	return s
}
