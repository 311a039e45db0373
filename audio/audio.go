// Package audio writes metadata tags into media files. The container is
// picked by file extension and every container has its own Format.
package audio

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"metadata-injector/errors"
	"metadata-injector/metadata"

	"github.com/rs/zerolog"
)

// Tags is what a Format reads back from a file
type Tags struct {
	metadata.TagSet
	// TrackTotal is the total stored next to the track number, zero when
	// the container has no such field
	TrackTotal int `json:"track_total,omitempty"`
}

// Format reads and writes the tags of one container format
type Format interface {
	// Name is a human readable name of the container
	Name() string
	// Write replaces the tags of the file at path with ts. The file is left
	// untouched when an error is returned.
	Write(ctx context.Context, path string, ts metadata.TagSet) error
	// Read returns the tags stored in the file at path
	Read(ctx context.Context, path string) (Tags, error)
}

// Generator produces the tag sets used by Inject
type Generator interface {
	Generate() metadata.TagSet
}

type generatorFunc func() metadata.TagSet

func (fn generatorFunc) Generate() metadata.TagSet { return fn() }

// Registry maps lower-cased file extensions to a Format
type Registry struct {
	mu      sync.RWMutex
	formats map[string]Format
	gen     Generator

	ffmpeg  string
	ffprobe string
}

// Option configures a Registry
type Option func(*Registry)

// WithFFmpeg sets the executables used for the Matroska format
func WithFFmpeg(ffmpeg, ffprobe string) Option {
	return func(r *Registry) {
		if ffmpeg != "" {
			r.ffmpeg = ffmpeg
		}
		if ffprobe != "" {
			r.ffprobe = ffprobe
		}
	}
}

// WithGenerator sets the generator used by Inject
func WithGenerator(gen Generator) Option {
	return func(r *Registry) {
		r.gen = gen
	}
}

// WithFormat registers an additional format, replacing any default one for
// the same extension
func WithFormat(ext string, f Format) Option {
	return func(r *Registry) {
		r.formats[normalizeExt(ext)] = f
	}
}

// New returns a Registry holding every built-in format
func New(opts ...Option) *Registry {
	r := &Registry{
		formats: make(map[string]Format),
		gen:     generatorFunc(metadata.Generate),
		ffmpeg:  "ffmpeg",
		ffprobe: "ffprobe",
	}

	// options may replace the ffmpeg paths, so apply them before the
	// defaults that depend on them and once more for formats they override
	for _, opt := range opts {
		opt(r)
	}

	defaults := map[string]Format{
		".mp4":  mp4Format{},
		".m4a":  mp4Format{},
		".wmv":  asfFormat{},
		".asf":  asfFormat{},
		".wma":  asfFormat{},
		".mkv":  &ffmpegFormat{name: "Matroska", ffmpeg: r.ffmpeg, ffprobe: r.ffprobe},
		".mka":  &ffmpegFormat{name: "Matroska", ffmpeg: r.ffmpeg, ffprobe: r.ffprobe},
		".mp3":  id3Format{},
		".flac": flacFormat{},
		".wav":  wavFormat{},
	}
	for ext, f := range defaults {
		if _, ok := r.formats[ext]; !ok {
			r.formats[ext] = f
		}
	}

	return r
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Register adds or replaces the format used for ext
func (r *Registry) Register(ext string, f Format) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formats[normalizeExt(ext)] = f
}

// Lookup returns the format used for ext
func (r *Registry) Lookup(ext string) (Format, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.formats[normalizeExt(ext)]
	return f, ok
}

// Supported reports whether ext has a format
func (r *Registry) Supported(ext string) bool {
	_, ok := r.Lookup(ext)
	return ok
}

// Extensions returns the supported extensions in sorted order
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.formats))
	for ext := range r.formats {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

func (r *Registry) formatFor(op errors.Op, path string) (Format, string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	f, ok := r.Lookup(ext)
	if !ok {
		return nil, ext, errors.E(op, errors.UnsupportedFormat, errors.Path(path), errors.Format(ext))
	}
	return f, ext, nil
}

// Write writes ts into the file at path using the format registered for
// its extension
func (r *Registry) Write(ctx context.Context, path string, ts metadata.TagSet) error {
	const op errors.Op = "audio.Write"

	f, ext, err := r.formatFor(op, path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.E(op, errors.Path(path), err)
	}

	zerolog.Ctx(ctx).Debug().
		Str("path", path).
		Str("format", f.Name()).
		Msg("writing tags")

	if err := f.Write(ctx, path, ts); err != nil {
		return errors.E(op, errors.Path(path), errors.Format(ext), err)
	}
	return nil
}

// Inject generates a fresh TagSet and writes it into the file at path
func (r *Registry) Inject(ctx context.Context, path string) (metadata.TagSet, error) {
	const op errors.Op = "audio.Inject"

	if _, _, err := r.formatFor(op, path); err != nil {
		return metadata.TagSet{}, err
	}

	ts := r.gen.Generate()
	if err := r.Write(ctx, path, ts); err != nil {
		return metadata.TagSet{}, errors.E(op, err)
	}
	return ts, nil
}

// ReadTags reads the tags of the file at path
func (r *Registry) ReadTags(ctx context.Context, path string) (Tags, error) {
	const op errors.Op = "audio.ReadTags"

	f, ext, err := r.formatFor(op, path)
	if err != nil {
		return Tags{}, err
	}

	tags, err := f.Read(ctx, path)
	if err != nil {
		return Tags{}, errors.E(op, errors.Path(path), errors.Format(ext), err)
	}
	return tags, nil
}

// statFile is used by formats that open the file through a third party
// library, so that a missing file is reported the same way everywhere
func statFile(op errors.Op, path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return errors.E(op, errors.TagOpen, err)
	}
	if fi.IsDir() {
		return errors.E(op, errors.TagOpen, "is a directory")
	}
	return nil
}
