package records

import (
	"sort"
	"strings"
	"unicode"
)

// MaxChunkBytes bounds a search chunk.
const MaxChunkBytes = 800

// SearchOptions narrows a Search.
type SearchOptions struct {
	// Limit caps the number of hits. Zero means no cap.
	Limit int
	// MinScore drops hits scoring below it.
	MinScore float64
	// ContentType keeps only documents of this content type when set.
	ContentType string
	// ObjectID keeps only the named document when set.
	ObjectID string
	// Allow, when set, is consulted once per candidate document.
	Allow func(*Document) bool
}

// Hit is one scored chunk.
type Hit struct {
	Document *Document
	Chunk    int
	Text     string
	Score    float64
}

// Search scores text chunks of docs by the share of query terms they contain.
// Hits are ordered by descending score, then object id, then chunk index.
func Search(docs []*Document, query string, opts SearchOptions) []Hit {
	qterms := uniqueTerms(query)
	if len(qterms) == 0 {
		return nil
	}

	var hits []Hit
	for _, d := range docs {
		if d == nil || !d.IsText() {
			continue
		}
		if opts.ObjectID != "" && d.ObjectID != opts.ObjectID {
			continue
		}
		if opts.ContentType != "" && !strings.EqualFold(d.ContentType, opts.ContentType) {
			continue
		}
		if opts.Allow != nil && !opts.Allow(d) {
			continue
		}
		for i, chunk := range Chunk(string(d.Content), MaxChunkBytes) {
			have := make(map[string]struct{})
			for _, t := range terms(chunk) {
				have[t] = struct{}{}
			}
			matched := 0
			for _, q := range qterms {
				if _, ok := have[q]; ok {
					matched++
				}
			}
			if matched == 0 {
				continue
			}
			score := float64(matched) / float64(len(qterms))
			if score < opts.MinScore {
				continue
			}
			hits = append(hits, Hit{Document: d, Chunk: i, Text: chunk, Score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Document.ObjectID != b.Document.ObjectID {
			return a.Document.ObjectID < b.Document.ObjectID
		}
		return a.Chunk < b.Chunk
	})
	if opts.Limit > 0 && len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return hits
}

// Chunk splits text into blank-line separated paragraphs, packing adjacent
// paragraphs together and hard-splitting any longer than max bytes.
func Chunk(text string, max int) []string {
	if max <= 0 {
		max = MaxChunkBytes
	}
	var out []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for len(para) > max {
			flush()
			cut := splitPoint(para, max)
			out = append(out, strings.TrimSpace(para[:cut]))
			para = strings.TrimSpace(para[cut:])
		}
		if cur.Len() > 0 && cur.Len()+2+len(para) > max {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	flush()
	return out
}

// splitPoint finds the last space at or before max, falling back to a rune
// boundary.
func splitPoint(s string, max int) int {
	if i := strings.LastIndexByte(s[:max], ' '); i > 0 {
		return i
	}
	for max > 0 && !isRuneStart(s[max]) {
		max--
	}
	if max == 0 {
		return len(s)
	}
	return max
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func terms(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func uniqueTerms(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range terms(s) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
