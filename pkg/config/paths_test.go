package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveRelativePath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		name      string
		configDir string
		path      string
		want      string
		wantErr   bool
	}{
		{
			name:      "absolute path - return as-is",
			configDir: "/home/user/.kgrag",
			path:      "/srv/documents",
			want:      "/srv/documents",
			wantErr:   false,
		},
		{
			name:      "relative path - resolve to config dir",
			configDir: "/home/user/.kgrag",
			path:      "./database",
			want:      "/home/user/.kgrag/database",
			wantErr:   false,
		},
		{
			name:      "parent relative path",
			configDir: "/home/user/.kgrag",
			path:      "../notes",
			want:      "/home/user/notes",
			wantErr:   false,
		},
		{
			name:      "tilde path - expand to home",
			configDir: "/home/user/.kgrag",
			path:      "~/documents",
			want:      filepath.Join(home, "documents"),
			wantErr:   false,
		},
		{
			name:      "bare tilde",
			configDir: "/home/user/.kgrag",
			path:      "~",
			want:      filepath.Clean(home),
			wantErr:   false,
		},
		{
			name:      "relative without dot prefix",
			configDir: "/home/user/.kgrag",
			path:      "file_state.json",
			want:      "/home/user/.kgrag/file_state.json",
			wantErr:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveRelativePath(tt.configDir, tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ResolveRelativePath() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ResolveRelativePath() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		name    string
		path    string
		wantErr bool
		check   func(string) bool // Custom validation function
	}{
		{
			name:    "tilde expansion",
			path:    "~/project",
			wantErr: false,
			check: func(result string) bool {
				return result == filepath.Join(home, "project")
			},
		},
		{
			name:    "already absolute",
			path:    "/usr/local/bin",
			wantErr: false,
			check: func(result string) bool {
				return result == "/usr/local/bin"
			},
		},
		{
			name:    "relative path - converts to absolute",
			path:    ".",
			wantErr: false,
			check: func(result string) bool {
				return filepath.IsAbs(result)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("NormalizePath() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && !tt.check(got) {
				t.Errorf("NormalizePath() = %v, failed validation check", got)
			}
		})
	}
}
