package library

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var videoExtensions = map[string]bool{
	"mp4": true, "mkv": true, "webm": true, "avi": true, "mov": true,
}

// KindForExtension classifies a file extension (without dot) as video or
// audio.
func KindForExtension(ext string) string {
	if videoExtensions[strings.ToLower(ext)] {
		return "video"
	}
	return "audio"
}

// TitleForPath derives a display title from a media file path.
func TitleForPath(path string) string {
	base := filepath.Base(path)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	title = strings.NewReplacer("_", " ", ".", " ").Replace(title)
	return strings.TrimSpace(title)
}

// ScanResult summarizes a library scan.
type ScanResult struct {
	Added   int
	Seen    int
	Removed int
}

// Scan walks the configured directories, catalogs files with a known
// media extension, and prunes entries whose file disappeared. Unreadable
// directories are logged and skipped.
func (s *Store) Scan(paths []string, extensions []string) (ScanResult, error) {
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}

	var result ScanResult
	for _, root := range paths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				slog.Warn("Skipping unreadable path during scan", "path", path, "error", err)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}

			ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
			if !allowed[ext] {
				return nil
			}

			result.Seen++
			item := Item{
				ID:    uuid.NewString(),
				Title: TitleForPath(path),
				Path:  path,
				Kind:  KindForExtension(ext),
			}
			id, err := s.UpsertItem(item)
			if err != nil {
				return err
			}
			if id == item.ID {
				result.Added++
			}
			return nil
		})
		if err != nil {
			return result, err
		}
	}

	removed, err := s.RemoveMissing()
	if err != nil {
		return result, err
	}
	result.Removed = removed
	return result, nil
}
