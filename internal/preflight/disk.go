package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// MinDiskSpaceBytes is the free space below which indexing is refused.
const MinDiskSpaceBytes = 100 * 1024 * 1024

// CheckDiskSpace reports the free space on the volume holding dir. Below
// MinDiskSpaceBytes the check fails. A reindex writes new chunks before
// the old ones are compacted away, so free space under twice the current
// index size is a warning.
func (c *Checker) CheckDiskSpace(dir string) CheckResult {
	res := CheckResult{Name: "disk_space", Required: true}

	free, err := freeBytes(dir)
	if err != nil {
		res.Status = StatusFail
		res.Message = fmt.Sprintf("cannot stat %s: %v", dir, err)
		return res
	}
	index := indexBytes(c.cfg.Store.Path, c.cfg.Store.BlevePath)

	res.Message = fmt.Sprintf("%s free, index uses %s", formatBytes(free), formatBytes(index))
	switch {
	case free < MinDiskSpaceBytes:
		res.Status = StatusFail
		res.Details = "taxctx needs at least " + formatBytes(MinDiskSpaceBytes) + " free in the data directory"
	case free < 2*index:
		res.Status = StatusWarn
		res.Details = "a full reindex may run out of space"
	default:
		res.Status = StatusPass
	}
	return res
}

func freeBytes(dir string) (uint64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// indexBytes sums the SQLite file, its WAL and the Bleve directory.
// Missing files count as zero.
func indexBytes(dbPath, blevePath string) uint64 {
	var total uint64
	if dbPath == "" {
		return 0
	}
	for _, p := range []string{dbPath, dbPath + "-wal"} {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			total += uint64(fi.Size())
		}
	}
	if blevePath == "" {
		return total
	}
	_ = filepath.WalkDir(blevePath, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += uint64(fi.Size())
		}
		return nil
	})
	return total
}

func formatBytes(n uint64) string {
	units := []string{"KB", "MB", "GB", "TB"}
	if n < 1024 {
		return fmt.Sprintf("%d bytes", n)
	}
	v := float64(n) / 1024
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.1f %s", v, units[i])
}
