package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const backupTimeFormat = "20060102T150405.000"

// RotatingWriter appends to a log file and moves it aside before a write
// would take it past the size limit. Backups are named
// <stem>-<timestamp><ext>, optionally gzipped, and removed once older than
// the age limit.
type RotatingWriter struct {
	path     string
	maxBytes int64
	maxAge   time.Duration
	compress bool
	now      func() time.Time

	mu   sync.Mutex
	file *os.File
	size int64

	// background compression and pruning, waited for by Close
	pending sync.WaitGroup
}

// NewRotatingWriter opens path for appending, creating its directory, and
// prunes expired backups.
func NewRotatingWriter(path string, maxSizeMB, maxAgeDays int, compress bool) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &RotatingWriter{
		path:     path,
		maxBytes: int64(maxSizeMB) * 1024 * 1024,
		maxAge:   time.Duration(maxAgeDays) * 24 * time.Hour,
		compress: compress,
		now:      time.Now,
	}

	if err := w.open(); err != nil {
		return nil, err
	}
	w.prune()

	return w, nil
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	w.file = f
	w.size = info.Size()
	return nil
}

// Write appends p, rotating first if the file is non-empty and p would
// exceed the size limit.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}

	if w.size > 0 && w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotateLocked(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) rotateLocked() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	w.file = nil

	backup := w.backupName(w.now())
	if err := os.Rename(w.path, backup); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	if err := w.open(); err != nil {
		return err
	}

	w.pending.Add(1)
	go func() {
		defer w.pending.Done()
		if w.compress {
			// A failure leaves the plain backup in place.
			_ = compressFile(backup)
		}
		w.prune()
	}()

	return nil
}

func (w *RotatingWriter) stemAndExt() (string, string) {
	ext := filepath.Ext(w.path)
	return strings.TrimSuffix(w.path, ext), ext
}

func (w *RotatingWriter) backupName(t time.Time) string {
	stem, ext := w.stemAndExt()
	return fmt.Sprintf("%s-%s%s", stem, t.Format(backupTimeFormat), ext)
}

func (w *RotatingWriter) isBackup(name string) bool {
	stem, ext := w.stemAndExt()
	prefix := filepath.Base(stem) + "-"
	name = strings.TrimSuffix(name, ".gz")
	return strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ext) && len(name) > len(prefix)+len(ext)
}

// prune deletes backups last modified before the age limit.
func (w *RotatingWriter) prune() {
	if w.maxAge <= 0 {
		return
	}

	dir := filepath.Dir(w.path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	cutoff := w.now().Add(-w.maxAge)
	for _, entry := range entries {
		if entry.IsDir() || !w.isBackup(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		os.Remove(filepath.Join(dir, entry.Name()))
	}
}

// Close closes the current file and waits for background compression.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	var err error
	if w.file != nil {
		err = w.file.Close()
		w.file = nil
	}
	w.mu.Unlock()

	w.pending.Wait()
	return err
}

// compressFile gzips path to path.gz and removes path.
func compressFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp := path + ".gz.tmp"
	dst, err := os.Create(tmp)
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		dst.Close()
		os.Remove(tmp)
		return err
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		os.Remove(tmp)
		return err
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, path+".gz"); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Remove(path)
}
