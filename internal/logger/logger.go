package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Options configures Setup.
type Options struct {
	Filename   string
	MaxSizeMB  int64
	MaxBackups int
	// KeepDays removes rotated files older than this many days. 0 keeps them.
	KeepDays int
}

// Rotator implements io.Writer and rotates its file when it grows past
// MaxSize or when the calendar day changes.
type Rotator struct {
	Filename   string
	MaxSize    int64 // Bytes
	MaxBackups int
	KeepDays   int

	file   *os.File
	size   int64
	opened time.Time
	now    func() time.Time
	mu     sync.Mutex
}

// Setup points the standard logger at stdout and a rotating file. If the
// file cannot be opened logging continues on stdout only.
func Setup(opts Options) *Rotator {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	rotator := NewRotator(opts)
	if err := rotator.openExistingOrNew(); err != nil {
		log.Printf("Failed to open log file, using stdout only: %v", err)
		return nil
	}
	rotator.prune()

	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	return rotator
}

func NewRotator(opts Options) *Rotator {
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 100
	}
	return &Rotator{
		Filename:   opts.Filename,
		MaxSize:    opts.MaxSizeMB * 1024 * 1024,
		MaxBackups: opts.MaxBackups,
		KeepDays:   opts.KeepDays,
		now:        time.Now,
	}
}

func (r *Rotator) openExistingOrNew() error {
	if dir := filepath.Dir(r.Filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	info, err := os.Stat(r.Filename)
	if os.IsNotExist(err) {
		return r.openNew()
	}
	if err != nil {
		return err
	}

	f, err := os.OpenFile(r.Filename, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	r.file = f
	r.size = info.Size()
	r.opened = info.ModTime()
	return nil
}

func (r *Rotator) openNew() error {
	f, err := os.OpenFile(r.Filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	r.file = f
	r.size = 0
	r.opened = r.now()
	return nil
}

// Write satisfies io.Writer.
func (r *Rotator) Write(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err = r.openExistingOrNew(); err != nil {
			return 0, err
		}
	}

	if r.size+int64(len(p)) > r.MaxSize || !sameDay(r.opened, r.now()) {
		if err := r.rotate(); err != nil {
			// keep writing to whatever is open rather than drop the line
			fmt.Fprintf(os.Stderr, "Log rotation failed: %v\n", err)
		}
	}

	n, err = r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// Close closes the current file.
func (r *Rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// rotate shifts log.N to log.N+1, moves the live file to log.1 and opens a
// fresh one.
func (r *Rotator) rotate() error {
	if r.file != nil {
		r.file.Close()
	}

	for i := r.MaxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", r.Filename, i)
		newPath := fmt.Sprintf("%s.%d", r.Filename, i+1)
		if _, err := os.Stat(oldPath); os.IsNotExist(err) {
			continue
		}
		os.Rename(oldPath, newPath)
	}

	if r.MaxBackups > 0 {
		if _, err := os.Stat(r.Filename); err == nil {
			os.Rename(r.Filename, fmt.Sprintf("%s.1", r.Filename))
		}
	}

	if err := r.openNew(); err != nil {
		return err
	}
	r.prune()
	return nil
}

// prune deletes backups older than KeepDays.
func (r *Rotator) prune() {
	if r.KeepDays <= 0 {
		return
	}
	cutoff := r.now().AddDate(0, 0, -r.KeepDays)
	for _, path := range r.backups() {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(path)
		}
	}
}

func (r *Rotator) backups() []string {
	matches, _ := filepath.Glob(r.Filename + ".*")
	var out []string
	for _, m := range matches {
		if !strings.HasSuffix(m, ".tmp") {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
