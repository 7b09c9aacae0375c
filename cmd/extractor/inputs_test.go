package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestResolveInputs(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "_chat2.txt"))
	touch(t, filepath.Join(dir, "_chat1.txt"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, "more", "export.txt"))
	if err := os.MkdirAll(filepath.Join(dir, "_chat_dir.txt"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "directory uses glob",
			args: []string{dir},
			want: []string{filepath.Join(dir, "_chat1.txt"), filepath.Join(dir, "_chat2.txt")},
		},
		{
			name: "explicit glob",
			args: []string{filepath.Join(dir, "more", "*.txt")},
			want: []string{filepath.Join(dir, "more", "export.txt")},
		},
		{
			name: "file plus overlapping directory",
			args: []string{filepath.Join(dir, "_chat2.txt"), dir, filepath.Join(dir, "notes.txt")},
			want: []string{
				filepath.Join(dir, "_chat1.txt"),
				filepath.Join(dir, "_chat2.txt"),
				filepath.Join(dir, "notes.txt"),
			},
		},
		{
			name: "missing file is kept for per-file reporting",
			args: []string{filepath.Join(dir, "gone.txt")},
			want: []string{filepath.Join(dir, "gone.txt")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveInputs(tt.args, "_chat*.txt")
			if err != nil {
				t.Fatalf("resolveInputs: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("resolveInputs(%v) = %v, want %v", tt.args, got, tt.want)
			}
		})
	}
}

func TestWatchDirs(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "_chat.txt"))
	got := watchDirs([]string{dir, filepath.Join(dir, "_chat.txt"), filepath.Join(dir, "*.txt")})
	if !reflect.DeepEqual(got, []string{filepath.Clean(dir)}) {
		t.Fatalf("watchDirs = %v", got)
	}
	if got := watchDirs(nil); !reflect.DeepEqual(got, []string{"."}) {
		t.Fatalf("watchDirs(nil) = %v", got)
	}
}
