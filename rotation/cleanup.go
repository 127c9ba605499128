package rotation

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
)

// Cleanup removes backups beyond MaxBackups, e.g. left by a previous run with a larger limit
//
// Errors on individual files are logged and skipped. Returns the numbers of files removed.
func (engine *Engine) Cleanup() int {
	dir := filepath.Dir(engine.path)
	base := filepath.Base(engine.path)
	matcher, gerr := glob.Compile(glob.QuoteMeta(base) + ".*")
	if gerr != nil {
		engine.logger.Errorf("BUG: invalid glob for '%s': %s", base, gerr.Error())
		return 0
	}

	entries, rerr := os.ReadDir(dir)
	if rerr != nil {
		engine.logger.Warnf("error listing backups: %s", rerr.Error())
		return 0
	}
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !matcher.Match(name) {
			continue
		}
		n, ok := parseBackupIndex(strings.TrimPrefix(name, base+"."))
		if !ok || n <= engine.config.MaxBackups {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			engine.logger.Warnf("error removing expired backup '%s': %s", name, err.Error())
			continue
		}
		removed++
	}
	if removed > 0 {
		engine.logger.Infof("removed %d expired backups", removed)
	}
	return removed
}

// parseBackupIndex parses "N" or "N.gz"
func parseBackupIndex(suffix string) (int, bool) {
	suffix = strings.TrimSuffix(suffix, ".gz")
	n, err := strconv.Atoi(suffix)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ListBackups returns the existing backup paths in order of slots, newest first
func (engine *Engine) ListBackups() []string {
	paths := make([]string, 0, engine.config.MaxBackups)
	for n := 1; n <= engine.config.MaxBackups; n++ {
		for _, compressed := range []bool{false, true} {
			path := engine.BackupPath(n, compressed)
			if _, err := os.Stat(path); err == nil {
				paths = append(paths, path)
			}
		}
	}
	return paths
}
