package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileItem is one entry of the attachment picker.
type FileItem struct {
	Name  string
	Path  string
	IsDir bool
	Size  int64
}

// browseDirectory lists one directory for the attachment picker: a parent
// entry unless at the root, then directories, then regular files, each
// group alphabetical. Hidden entries and anything that is neither a
// directory nor a regular file are left out, they cannot be attached.
func browseDirectory(path string) ([]FileItem, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	var dirs, files []FileItem
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		full := filepath.Join(path, entry.Name())
		if entry.IsDir() {
			dirs = append(dirs, FileItem{Name: entry.Name(), Path: full, IsDir: true})
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}
		item := FileItem{Name: entry.Name(), Path: full}
		if info, err := entry.Info(); err == nil {
			item.Size = info.Size()
		}
		files = append(files, item)
	}

	byName := func(items []FileItem) {
		sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	}
	byName(dirs)
	byName(files)

	items := make([]FileItem, 0, len(dirs)+len(files)+1)
	if parent := filepath.Dir(path); parent != path {
		items = append(items, FileItem{Name: "..", Path: parent, IsDir: true})
	}
	items = append(items, dirs...)
	return append(items, files...), nil
}

// defaultBrowsePath picks where the attachment picker opens: the first of
// ~/Documents, ~/Downloads, the home directory, or the working directory
// that actually exists.
func defaultBrowsePath() string {
	var candidates []string
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, "Documents"),
			filepath.Join(home, "Downloads"),
			home,
		)
	}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, cwd)
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}
	return "."
}

// formatFileSize renders a byte count the way the picker shows it, one
// decimal from KB up.
func formatFileSize(size int64) string {
	if size < 1024 {
		return fmt.Sprintf("%d B", size)
	}
	value := float64(size)
	for _, unit := range []string{"KB", "MB", "GB"} {
		value /= 1024
		if value < 1024 || unit == "GB" {
			return fmt.Sprintf("%.1f %s", value, unit)
		}
	}
	return fmt.Sprintf("%d B", size)
}
