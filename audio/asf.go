package audio

import (
	"context"
	"io"
	"os"
	"strconv"

	"metadata-injector/asf"
	"metadata-injector/errors"
	"metadata-injector/metadata"

	"github.com/sunfish-shogi/bufseekio"
)

// Extended content descriptor names
const (
	wmAlbumTitle  = "WM/AlbumTitle"
	wmYear        = "WM/Year"
	wmGenre       = "WM/Genre"
	wmTrackNumber = "WM/TrackNumber"
)

// managedNames are every attribute name the writer owns, the content
// description fields included
var managedNames = []string{
	"Title", "Author", "Description",
	wmAlbumTitle, wmYear, wmGenre, wmTrackNumber,
}

type asfFormat struct{}

func (asfFormat) Name() string { return "Windows Media" }

func (asfFormat) Write(ctx context.Context, path string, ts metadata.TagSet) error {
	const op errors.Op = "audio.asf.Write"

	in, err := os.Open(path)
	if err != nil {
		return errors.E(op, errors.TagOpen, err)
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return errors.E(op, errors.TagOpen, err)
	}

	r := bufseekio.NewReadSeeker(in, 128*1024, 4)
	h, err := asf.ReadHeader(r)
	if err != nil {
		return errors.E(op, err)
	}
	oldSize := h.Size()

	cd, err := h.ContentDescription()
	if err != nil {
		return errors.E(op, err)
	}
	cd.Title = ts.Title
	cd.Author = ts.Artist
	cd.Description = ts.Comment
	if err := h.SetContentDescription(cd); err != nil {
		return errors.E(op, err)
	}

	ec, err := h.ExtendedContent()
	if err != nil {
		return errors.E(op, err)
	}
	for _, kv := range [][2]string{
		{wmAlbumTitle, ts.Album},
		{wmYear, ts.Year},
		{wmGenre, ts.Genre},
	} {
		d, err := asf.StringDescriptor(kv[0], kv[1])
		if err != nil {
			return errors.E(op, errors.TagWrite, errors.Info(kv[0]), err)
		}
		ec = ec.Set(d)
	}
	ec = ec.Set(asf.DWORDDescriptor(wmTrackNumber, uint32(ts.TrackNumber())))
	if err := h.SetExtendedContent(ec); err != nil {
		return errors.E(op, err)
	}

	// readers may prefer the header extension copies, drop them so the
	// new values are the only ones
	if _, err := h.RemoveMetadata(managedNames...); err != nil {
		return errors.E(op, err)
	}

	size := uint64(fi.Size()) - oldSize + h.Size()
	if err := h.SetFileSize(size); err != nil {
		return errors.E(op, err)
	}

	if err := ctx.Err(); err != nil {
		return errors.E(op, err)
	}

	out, err := newPending(path)
	if err != nil {
		return errors.E(op, err)
	}
	defer out.Discard()

	if _, err := h.WriteTo(out); err != nil {
		return errors.E(op, errors.TagSave, err)
	}
	// r is positioned right after the old header
	if _, err := io.Copy(out, r); err != nil {
		return errors.E(op, errors.TagSave, err)
	}

	return out.Commit()
}

func (asfFormat) Read(ctx context.Context, path string) (Tags, error) {
	const op errors.Op = "audio.asf.Read"

	f, err := os.Open(path)
	if err != nil {
		return Tags{}, errors.E(op, errors.TagOpen, err)
	}
	defer f.Close()

	h, err := asf.ReadHeader(bufseekio.NewReadSeeker(f, 128*1024, 4))
	if err != nil {
		return Tags{}, errors.E(op, err)
	}

	cd, err := h.ContentDescription()
	if err != nil {
		return Tags{}, errors.E(op, err)
	}
	ec, err := h.ExtendedContent()
	if err != nil {
		return Tags{}, errors.E(op, err)
	}

	text := func(name string) string {
		d, ok := ec.Get(name)
		if !ok {
			return ""
		}
		return d.String()
	}

	tags := Tags{TagSet: metadata.TagSet{
		Title:   cd.Title,
		Artist:  cd.Author,
		Comment: cd.Description,
		Album:   text(wmAlbumTitle),
		Year:    text(wmYear),
		Genre:   text(wmGenre),
	}}
	if d, ok := ec.Get(wmTrackNumber); ok {
		if n, ok := d.Uint(); ok {
			tags.Track = strconv.FormatUint(n, 10)
		} else {
			tags.Track = d.String()
		}
	}
	return tags, nil
}
