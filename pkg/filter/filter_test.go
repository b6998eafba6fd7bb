package filter

import (
	"testing"
)

func TestShouldIndexFile(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		blacklist []string
		whitelist []string
		want      bool
	}{
		{
			name:      "no filters - allow",
			filePath:  "/data/database/doc1.json",
			blacklist: []string{},
			whitelist: []string{},
			want:      true,
		},
		{
			name:      "matches blacklist, no whitelist - reject",
			filePath:  "/data/database/draft.json",
			blacklist: []string{`.*draft.*`, `.*\.bak$`},
			whitelist: []string{},
			want:      false,
		},
		{
			name:      "matches blacklist AND whitelist - allow (whitelist exception)",
			filePath:  "/data/database/draft-final.json",
			blacklist: []string{`.*draft.*`},
			whitelist: []string{`.*draft-final\.json$`},
			want:      true,
		},
		{
			name:      "doesn't match blacklist - allow",
			filePath:  "/data/database/normans.json",
			blacklist: []string{`.*draft.*`},
			whitelist: []string{},
			want:      true,
		},
		{
			name:      "matches blacklist, whitelist doesn't match - reject",
			filePath:  "/data/database/draft-2.json",
			blacklist: []string{`.*draft.*`},
			whitelist: []string{`.*draft-final\.json$`},
			want:      false,
		},
		{
			name:      "invalid pattern ignored",
			filePath:  "/data/database/doc.json",
			blacklist: []string{`([`},
			whitelist: []string{},
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ShouldIndexFile(tt.filePath, tt.blacklist, tt.whitelist)
			if err != nil {
				t.Errorf("ShouldIndexFile() error = %v", err)
				return
			}
			if got != tt.want {
				t.Errorf("ShouldIndexFile() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasExtension(t *testing.T) {
	tests := []struct {
		path string
		ext  string
		want bool
	}{
		{"doc1.json", ".json", true},
		{"DOC1.JSON", ".json", true},
		{"doc1.json", "json", true},
		{"doc1.txt", ".json", false},
		{"json", ".json", false},
		{"doc1.json.tmp", ".json", false},
		{"anything", "", true},
	}

	for _, tt := range tests {
		if got := HasExtension(tt.path, tt.ext); got != tt.want {
			t.Errorf("HasExtension(%q, %q) = %v, want %v", tt.path, tt.ext, got, tt.want)
		}
	}
}

func TestRulesEligible(t *testing.T) {
	rules := Rules{
		Extension: ".json",
		Blacklist: []string{`.*\.draft\.json$`},
	}

	tests := []struct {
		path string
		want bool
	}{
		{"/in/doc1.json", true},
		{"/in/doc1.draft.json", false},
		{"/in/notes.md", false},
	}
	for _, tt := range tests {
		got, err := rules.Eligible(tt.path)
		if err != nil {
			t.Fatalf("Eligible(%q) error = %v", tt.path, err)
		}
		if got != tt.want {
			t.Errorf("Eligible(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestRulesValidate(t *testing.T) {
	if err := (Rules{Blacklist: []string{`.*\.json$`}}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (Rules{Whitelist: []string{`([`}}).Validate(); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
