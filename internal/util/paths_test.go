package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateWorkDir(t *testing.T) {
	tempDir := t.TempDir()

	t.Run("existing directory", func(t *testing.T) {
		if err := ValidateWorkDir(tempDir); err != nil {
			t.Errorf("Expected no error but got: %v", err)
		}
	})

	t.Run("creatable directory", func(t *testing.T) {
		dir := filepath.Join(tempDir, "deep", "nested")
		if err := ValidateWorkDir(dir); err != nil {
			t.Errorf("Expected no error but got: %v", err)
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("Expected %s to be created", dir)
		}
	})

	t.Run("file instead of directory", func(t *testing.T) {
		file := filepath.Join(tempDir, "file.txt")
		if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to create file: %v", err)
		}
		if err := ValidateWorkDir(file); err == nil {
			t.Error("Expected error for a regular file, but got none")
		}
	})

	t.Run("empty path", func(t *testing.T) {
		if err := ValidateWorkDir(""); err == nil {
			t.Error("Expected error for empty path, but got none")
		}
	})
}

func TestDevicePath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: "/"},
		{name: "root", input: "/", expected: "/"},
		{name: "relative", input: "books/manga", expected: "/books/manga"},
		{name: "trailing slash", input: "/books/", expected: "/books"},
		{name: "backslashes", input: "books\\manga", expected: "/books/manga"},
		{name: "multiple slashes", input: "books//manga", expected: "/books/manga"},
		{name: "dots", input: "books/./manga/../comics", expected: "/books/comics"},
		{name: "cannot climb above root", input: "../../etc", expected: "/etc"},
		{name: "invalid characters", input: "/books/what?", expected: "/books/what"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DevicePath(tt.input)
			if result != tt.expected {
				t.Errorf("DevicePath(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain", input: "Volume 1", expected: "Volume 1"},
		{name: "null bytes", input: "a\x00b", expected: "ab"},
		{name: "control characters", input: "a\tb\nc", expected: "abc"},
		{name: "invalid characters", input: `a:b*c`, expected: "a-b-c"},
		{name: "consecutive dashes", input: "a::b", expected: "a-b"},
		{name: "leading and trailing dots", input: "..name..", expected: "name"},
		{name: "collapsed spaces", input: "a    b", expected: "a b"},
		{name: "reserved", input: "con", expected: "con_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeName(tt.input)
			if result != tt.expected {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
