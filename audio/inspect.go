package audio

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"metadata-injector/errors"
	"metadata-injector/mp3parser"

	"github.com/dustin/go-humanize"
)

// Report describes a media file as seen after tagging
type Report struct {
	Path      string            `json:"path"`
	Format    string            `json:"format"`
	Size      int64             `json:"size"`
	SizeHuman string            `json:"size_human"`
	Tags      Tags              `json:"tags"`
	Details   map[string]string `json:"details,omitempty"`
}

// detailer is implemented by formats that can report container facts
type detailer interface {
	details(ctx context.Context, path string) (map[string]string, error)
}

// Inspect reads the tags of the file at path together with whatever the
// format knows about the container
func (r *Registry) Inspect(ctx context.Context, path string) (Report, error) {
	const op errors.Op = "audio.Inspect"

	f, ext, err := r.formatFor(op, path)
	if err != nil {
		return Report{}, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return Report{}, errors.E(op, errors.TagOpen, errors.Path(path), err)
	}

	tags, err := f.Read(ctx, path)
	if err != nil {
		return Report{}, errors.E(op, errors.Path(path), errors.Format(ext), err)
	}

	rep := Report{
		Path:      filepath.Base(path),
		Format:    f.Name(),
		Size:      fi.Size(),
		SizeHuman: humanize.IBytes(uint64(fi.Size())),
		Tags:      tags,
	}

	if d, ok := f.(detailer); ok {
		details, err := d.details(ctx, path)
		if err != nil {
			return Report{}, errors.E(op, errors.Path(path), errors.Format(ext), err)
		}
		rep.Details = details
	}
	return rep, nil
}

func mp3Details(info *mp3parser.Info) map[string]string {
	d := map[string]string{
		"frames":   strconv.Itoa(info.Frames),
		"duration": info.Duration.String(),
		"vbr":      strconv.FormatBool(info.VBR),
		"id3v1":    strconv.FormatBool(info.ID3v1 != nil),
	}
	if h := info.First; h != nil {
		d["version"] = h.Version()
		d["layer"] = strconv.Itoa(h.Layer)
		d["bitrate"] = strconv.Itoa(h.Bitrate)
		d["sample_rate"] = strconv.Itoa(h.SampleRate)
		d["channels"] = strconv.Itoa(h.Channels())
	}
	if info.ID3v2 != nil {
		d["id3v2"] = "2." + strconv.Itoa(int(info.ID3v2.Version[0])) + "." + strconv.Itoa(int(info.ID3v2.Version[1]))
	}
	return d
}
