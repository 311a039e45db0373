// Package storage keeps uploaded files until they are downloaded, removed
// or expire. Every upload gets its own directory named by its id so two
// uploads with the same file name never share a path.
package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"metadata-injector/errors"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// PendingPrefix starts the name of a file a tag writer is still producing
// next to an upload. Such files are never the upload itself.
const PendingPrefix = ".inject-"

// UploadID identifies a stored upload
type UploadID struct {
	xid.ID
}

// ParseUploadID parses the textual form of an UploadID
func ParseUploadID(s string) (UploadID, error) {
	const op errors.Op = "storage.ParseUploadID"

	id, err := xid.FromString(s)
	if err != nil {
		return UploadID{}, errors.E(op, errors.UploadUnknown, errors.Info(s), err)
	}
	return UploadID{id}, nil
}

func (id UploadID) String() string {
	return id.ID.String()
}

// Upload is a file held by the Store
type Upload struct {
	ID UploadID
	// Name is the base name the file was uploaded with
	Name string
	// Path is the location of the file in the store filesystem, with an
	// OS backed store it can be opened directly
	Path    string
	Size    int64
	Created time.Time
}

// Store holds uploads under <root>/<id>/<name>
type Store struct {
	fs   afero.Fs
	root string
	now  func() time.Time
}

// New returns a Store rooted at root, which is created if needed
func New(fs afero.Fs, root string) (*Store, error) {
	const op errors.Op = "storage.New"

	if root == "" {
		return nil, errors.E(op, errors.InvalidArgument, errors.Info("root"), "empty root directory")
	}
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, errors.E(op, errors.Path(root), err)
	}
	return &Store{fs: fs, root: root, now: time.Now}, nil
}

// NewOS returns a Store on the local filesystem
func NewOS(root string) (*Store, error) {
	return New(afero.NewOsFs(), root)
}

// Root returns the directory uploads are stored in
func (s *Store) Root() string {
	return s.root
}

// cleanName reduces an uploaded file name to its base name, browsers on
// windows may send the full client path
func cleanName(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	switch name {
	case "", ".", "..", "/":
		return "", false
	}
	if strings.HasPrefix(name, PendingPrefix) {
		return "", false
	}
	return name, true
}

// Save stores the contents of r under name
func (s *Store) Save(name string, r io.Reader) (*Upload, error) {
	const op errors.Op = "storage.Save"

	base, ok := cleanName(name)
	if !ok {
		return nil, errors.E(op, errors.InvalidArgument, errors.Info("filename"), "invalid file name "+name)
	}

	id := UploadID{xid.NewWithTime(s.now())}
	dir := filepath.Join(s.root, id.String())
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.E(op, errors.Path(dir), err)
	}

	path := filepath.Join(dir, base)
	f, err := s.fs.Create(path)
	if err != nil {
		s.fs.RemoveAll(dir)
		return nil, errors.E(op, errors.Path(path), err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.fs.RemoveAll(dir)
		return nil, errors.E(op, errors.Path(path), err)
	}

	return &Upload{
		ID:      id,
		Name:    base,
		Path:    path,
		Size:    n,
		Created: id.Time(),
	}, nil
}

// Lookup returns the upload with the given id
func (s *Store) Lookup(id string) (*Upload, error) {
	const op errors.Op = "storage.Lookup"

	uid, err := ParseUploadID(id)
	if err != nil {
		return nil, errors.E(op, err)
	}

	dir := filepath.Join(s.root, uid.String())
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, errors.E(op, errors.UploadUnknown, errors.Info(id), "no such upload")
	}

	var files []os.FileInfo
	for _, fi := range entries {
		if fi.IsDir() || strings.HasPrefix(fi.Name(), PendingPrefix) {
			continue
		}
		files = append(files, fi)
	}
	if len(files) != 1 {
		return nil, errors.E(op, errors.UploadUnknown, errors.Info(id), "no such upload")
	}

	fi := files[0]
	return &Upload{
		ID:      uid,
		Name:    fi.Name(),
		Path:    filepath.Join(dir, fi.Name()),
		Size:    fi.Size(),
		Created: uid.Time(),
	}, nil
}

// Open opens the file of the upload with the given id for reading
func (s *Store) Open(id string) (afero.File, *Upload, error) {
	const op errors.Op = "storage.Open"

	up, err := s.Lookup(id)
	if err != nil {
		return nil, nil, errors.E(op, err)
	}
	f, err := s.fs.Open(up.Path)
	if err != nil {
		return nil, nil, errors.E(op, errors.Path(up.Path), err)
	}
	return f, up, nil
}

// Remove deletes the upload with the given id
func (s *Store) Remove(id string) error {
	const op errors.Op = "storage.Remove"

	uid, err := ParseUploadID(id)
	if err != nil {
		return errors.E(op, err)
	}

	dir := filepath.Join(s.root, uid.String())
	if ok, _ := afero.DirExists(s.fs, dir); !ok {
		return errors.E(op, errors.UploadUnknown, errors.Info(id), "no such upload")
	}
	if err := s.fs.RemoveAll(dir); err != nil {
		return errors.E(op, errors.Path(dir), err)
	}
	return nil
}

// Sweep removes every upload created before cutoff and returns how many
// were removed. Entries that aren't uploads are left alone.
func (s *Store) Sweep(cutoff time.Time) (int, error) {
	const op errors.Op = "storage.Sweep"

	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return 0, errors.E(op, errors.Path(s.root), err)
	}

	var removed int
	for _, fi := range entries {
		if !fi.IsDir() {
			continue
		}
		id, err := xid.FromString(fi.Name())
		if err != nil || !id.Time().Before(cutoff) {
			continue
		}
		if err := s.fs.RemoveAll(filepath.Join(s.root, fi.Name())); err != nil {
			return removed, errors.E(op, errors.Path(fi.Name()), err)
		}
		removed++
	}
	return removed, nil
}

// RunSweeper calls Sweep every interval, removing uploads older than ttl,
// until ctx is canceled. It returns at once if interval or ttl is not
// positive.
func (s *Store) RunSweeper(ctx context.Context, interval, ttl time.Duration) {
	logger := zerolog.Ctx(ctx)
	if interval <= 0 || ttl <= 0 {
		logger.Warn().
			Dur("interval", interval).
			Dur("ttl", ttl).
			Msg("upload sweeper disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := s.Sweep(s.now().Add(-ttl))
		if err != nil {
			logger.Error().Err(err).Msg("failed to sweep uploads")
			continue
		}
		if n > 0 {
			logger.Info().Int("removed", n).Msg("swept expired uploads")
		}
	}
}
