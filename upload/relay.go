package upload

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/campushub/studyhub/config"
	"github.com/campushub/studyhub/globals"
	"github.com/campushub/studyhub/persistence"
)

// ErrOutsideRoot is returned when a stored path resolves outside the
// upload root.
var ErrOutsideRoot = errors.New("path resolves outside the upload root")

// ErrTooLarge is returned by Store when the content exceeds the configured
// maximum upload size.
var ErrTooLarge = errors.New("file exceeds the maximum upload size")

// sweepGrace protects files younger than this from the sweep, so an
// in-flight upload is not deleted before its message entry exists.
const sweepGrace = time.Hour

// Relay persists uploaded binary content under generated names decoupled
// from the user-supplied ones, and resolves stored paths for download.
type Relay struct {
	root    string
	maxSize int64 // 0 = unlimited
}

func NewRelay(cfg *config.Config) (*Relay, error) {
	root, err := filepath.Abs(cfg.UploadConfig.Dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Relay{root: root, maxSize: cfg.UploadConfig.MaxSizeBytes}, nil
}

func (r *Relay) Root() string { return r.root }

// Store writes src under a collision-resistant generated name (time +
// random suffix + original extension) below subdir and returns the slash
// path relative to the upload root.
func (r *Relay) Store(subdir, originalName string, src io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	name := fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), uuid.NewString(), ext)
	rel := name
	if subdir != "" {
		rel = path.Join(subdir, name)
	}
	abs, err := r.Resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	dst, err := os.Create(abs)
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if r.maxSize > 0 {
		src = io.LimitReader(src, r.maxSize+1)
	}
	written, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(abs)
		return "", err
	}
	if r.maxSize > 0 && written > r.maxSize {
		os.Remove(abs)
		return "", ErrTooLarge
	}
	return rel, nil
}

// Resolve maps a stored relative path to an absolute one. The resolved path
// must stay below the upload root; anything else is rejected, regardless of
// how the stored string is spelled.
func (r *Relay) Resolve(stored string) (string, error) {
	if stored == "" {
		return "", ErrOutsideRoot
	}
	abs := filepath.Clean(filepath.Join(r.root, filepath.FromSlash(stored)))
	rel, err := filepath.Rel(r.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return abs, nil
}

// FixEncoding repairs original filenames that multipart parsers hand over
// as latin-1 readings of UTF-8 bytes. If every rune fits into one byte and
// the resulting byte string is valid UTF-8, that reading is the original
// name; otherwise the input is returned unchanged.
func FixEncoding(name string) string {
	buf := make([]byte, 0, len(name))
	for _, r := range name {
		if r > 0xff {
			return name
		}
		buf = append(buf, byte(r))
	}
	if utf8.Valid(buf) {
		return string(buf)
	}
	return name
}

// Sweep walks the upload root and removes files that no message and no
// avatar references any more. Files younger than the grace period are kept.
func (r *Relay) Sweep(persister persistence.Persister) error {
	inUse, err := persister.FilePathsInUse()
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-sweepGrace)
	return filepath.WalkDir(r.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(r.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if _, ok := inUse[rel]; ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		globals.AppLogger.Info("removing orphaned upload", "path", rel)
		return os.Remove(p)
	})
}
