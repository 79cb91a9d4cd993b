package resourceuri

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMatchTemplate(t *testing.T) {
	tests := []struct {
		uri  string
		ok   bool
		want Match
	}{
		{"am7://acme/data.data/doc-1", true, Match{Template: TemplateDocument, Vars: map[string]string{"organization": "acme", "objectId": "doc-1"}}},
		{"am7://acme/olio.llm.chatRequest/c-9", true, Match{Template: TemplateChat, Vars: map[string]string{"organization": "acme", "objectId": "c-9"}}},
		{"am7://acme/vector/search?q=cats", true, Match{Template: TemplateVectorSearch, Vars: map[string]string{"organization": "acme", "q": "cats"}}},
		{"am7://acme/system.user/u1", false, Match{}},
		{"res://acme/data.data/doc-1", false, Match{}},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, ok := MatchTemplate(tt.uri)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("match (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExpandAndDescriptors(t *testing.T) {
	got, err := Expand(TemplateDocument, map[string]string{"organization": "acme", "objectId": "doc-1"})
	if err != nil || got != "am7://acme/data.data/doc-1" {
		t.Fatalf("Expand = %q, %v", got, err)
	}
	got, err = Expand(TemplateVectorSearch, map[string]string{"organization": "acme", "q": "big cats"})
	if err != nil || got != "am7://acme/vector/search?q=big%20cats" {
		t.Fatalf("Expand = %q, %v", got, err)
	}

	d := Descriptors()
	var names []string
	for _, r := range d {
		names = append(names, r.Name)
	}
	if diff := cmp.Diff([]string{"AM7 Document", "AM7 Vector Search", "AM7 Chat Session"}, names); diff != "" {
		t.Fatalf("descriptor names (-want +got):\n%s", diff)
	}
	if d[0].URITemplate != "am7://{organization}/data.data/{objectId}" || d[0].MimeType != "text/plain" {
		t.Fatalf("document descriptor = %+v", d[0])
	}
}
