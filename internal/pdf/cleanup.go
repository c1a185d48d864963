package pdf

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CleanupStaleImports removes leftover temp files of interrupted imports in
// dir that are older than maxAge. It returns how many were removed.
func CleanupStaleImports(dir string, maxAge time.Duration) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	now := time.Now()
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), ".import-") {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if os.Remove(filepath.Join(dir, e.Name())) == nil {
			removed++
		}
	}
	return removed
}
