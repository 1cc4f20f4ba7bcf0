package util

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	controlChars   = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	invalidChars   = regexp.MustCompile(`[\\/:*?"<>|]`)
	repeatedDashes = regexp.MustCompile(`-+`)
	repeatedSpaces = regexp.MustCompile(`\s{2,}`)
)

// ValidateWorkDir checks that dir can hold job workspaces: it must be an
// existing writable directory or creatable.
func ValidateWorkDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("work directory cannot be empty")
	}
	cleanPath := filepath.Clean(dir)

	info, err := os.Stat(cleanPath)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("path exists but is not a directory: %s", cleanPath)
		}
		if err := checkWritePermission(cleanPath); err != nil {
			return fmt.Errorf("no write permission for work directory: %w", err)
		}
		return nil
	}
	if os.IsNotExist(err) {
		if err := os.MkdirAll(cleanPath, 0755); err != nil {
			return fmt.Errorf("cannot create work directory: %w", err)
		}
		return checkWritePermission(cleanPath)
	}
	return fmt.Errorf("cannot access work directory: %w", err)
}

// checkWritePermission checks if we have write permission to a directory
func checkWritePermission(dirPath string) error {
	file, err := os.CreateTemp(dirPath, ".inkbridge_check_*")
	if err != nil {
		return err
	}
	file.Close()
	os.Remove(file.Name())
	return nil
}

// DevicePath turns a user supplied folder into an absolute device path with
// forward slashes. Every component is sanitized and "." / ".." are resolved
// without ever climbing above the root.
func DevicePath(folderPath string) string {
	normalized := strings.ReplaceAll(folderPath, "\\", "/")
	cleanPath := path.Clean("/" + normalized)
	if cleanPath == "/" {
		return "/"
	}

	components := strings.Split(strings.Trim(cleanPath, "/"), "/")
	sanitized := make([]string, 0, len(components))
	for _, component := range components {
		if s := SanitizeName(component); s != "" {
			sanitized = append(sanitized, s)
		}
	}
	return "/" + strings.Join(sanitized, "/")
}

// SanitizeName removes characters that cannot be used in file or folder
// names on Windows, macOS, Linux or the device's FAT filesystem.
// Use this for single name components, not full paths.
func SanitizeName(name string) string {
	if name == "" {
		return ""
	}

	safeName := controlChars.ReplaceAllString(name, "")
	safeName = invalidChars.ReplaceAllString(safeName, "-")
	safeName = repeatedSpaces.ReplaceAllString(safeName, " ")

	// Windows doesn't allow leading/trailing spaces and dots
	safeName = strings.Trim(safeName, " .")
	safeName = repeatedDashes.ReplaceAllString(safeName, "-")
	safeName = strings.Trim(safeName, "-")

	reservedNames := map[string]bool{
		"CON": true, "PRN": true, "AUX": true, "NUL": true,
		"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
		"COM6": true, "COM7": true, "COM8": true, "COM9": true,
		"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
		"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
	}
	if reservedNames[strings.ToUpper(safeName)] {
		safeName = safeName + "_"
	}

	return safeName
}
