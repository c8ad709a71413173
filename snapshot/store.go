package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reoring/govers"
)

// Ext is the file extension of stored snapshots.
const Ext = ".gvsn"

// Store keeps named snapshots as files in one directory.
type Store struct {
	dir string
	opt Options
}

// Info describes a stored snapshot.
type Info struct {
	Name        string
	Size        int64
	ModTime     time.Time
	Format      string
	Compression Compression
	Header      govers.Header
}

// NewStore returns a store rooted at dir, creating the directory if needed.
// opt applies to every Save.
func NewStore(dir string, opt Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: creating store directory: %w", err)
	}
	return &Store{dir: dir, opt: opt}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("snapshot: invalid name %q", name)
	}
	return filepath.Join(s.dir, name+Ext), nil
}

// Save writes v under name. The file is replaced atomically: the frame goes
// to a temporary file in the same directory which is synced and renamed over
// the old snapshot.
func (s *Store) Save(ctx context.Context, name string, v any) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Marshal(v, s.opt)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	file, err := os.CreateTemp(s.dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("snapshot: creating temporary file: %w", err)
	}
	temporaryPath := file.Name()
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("snapshot: writing temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("snapshot: syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("snapshot: closing temporary file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		os.Remove(temporaryPath)
		return err
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("snapshot: renaming into place: %w", err)
	}
	if dir, err := os.Open(s.dir); err == nil {
		dir.Sync()
		dir.Close()
	}
	govers.Logger().Debug("snapshot saved", zap.String("name", name), zap.Int("bytes", len(data)))
	return nil
}

func (s *Store) frame(ctx context.Context, name string) (*Frame, os.FileInfo, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: opening %s: %w", name, err)
	}
	defer file.Close()
	st, err := file.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: stat %s: %w", name, err)
	}
	fr, err := ReadFrame(file)
	if err != nil {
		return nil, nil, err
	}
	return fr, st, nil
}

// Load reads the snapshot stored under name and decodes it into a T.
func Load[T any](ctx context.Context, s *Store, name string, opts ...govers.DecodeOpt) (T, error) {
	var zero T
	fr, _, err := s.frame(ctx, name)
	if err != nil {
		return zero, err
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	return govers.Decode[T](fr.Payload, withFormat(opts, fr.Format)...)
}

// Stat verifies the snapshot stored under name and reports its frame header
// and envelope.
func (s *Store) Stat(ctx context.Context, name string) (Info, error) {
	fr, st, err := s.frame(ctx, name)
	if err != nil {
		return Info{}, err
	}
	h, err := fr.Header()
	if err != nil {
		return Info{}, err
	}
	return Info{
		Name:        name,
		Size:        st.Size(),
		ModTime:     st.ModTime(),
		Format:      fr.Format.Name(),
		Compression: fr.Compression,
		Header:      h,
	}, nil
}

// List returns the names of stored snapshots, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("snapshot: listing store: %w", err)
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || strings.HasPrefix(n, ".") || !strings.HasSuffix(n, Ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(n, Ext))
	}
	sort.Strings(names)
	return names, nil
}

// Remove deletes the snapshot stored under name.
func (s *Store) Remove(ctx context.Context, name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("snapshot: removing %s: %w", name, err)
	}
	return nil
}
