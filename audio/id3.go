package audio

import (
	"context"
	"io"
	"os"

	"metadata-injector/errors"
	"metadata-injector/metadata"
	"metadata-injector/mp3parser"

	"github.com/bogem/id3v2/v2"
)

type id3Format struct{}

func (id3Format) Name() string { return "MP3" }

// copyToPending copies the file at path into a new pending file, for
// libraries that edit a file in place
func copyToPending(op errors.Op, path string) (*pending, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, errors.E(op, errors.TagOpen, err)
	}
	defer in.Close()

	out, err := newPending(path)
	if err != nil {
		return nil, errors.E(op, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Discard()
		return nil, errors.E(op, errors.TagSave, err)
	}
	if err := out.Sync(); err != nil {
		out.Discard()
		return nil, errors.E(op, errors.TagSave, err)
	}
	return out, nil
}

func (id3Format) Write(ctx context.Context, path string, ts metadata.TagSet) error {
	const op errors.Op = "audio.id3.Write"

	// id3v2 happily prepends a tag to anything, make sure this is audio
	f, err := os.Open(path)
	if err != nil {
		return errors.E(op, errors.TagOpen, err)
	}
	_, err = mp3parser.Scan(f)
	f.Close()
	if err != nil {
		return errors.E(op, err)
	}

	out, err := copyToPending(op, path)
	if err != nil {
		return err
	}
	defer out.Discard()

	tag, err := id3v2.Open(out.Name(), id3v2.Options{Parse: true})
	if err != nil {
		return errors.E(op, errors.TagOpen, err)
	}
	defer tag.Close()

	tag.SetVersion(4)
	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetTitle(ts.Title)
	tag.SetArtist(ts.Artist)
	tag.SetAlbum(ts.Album)
	tag.SetYear(ts.Year)
	tag.SetGenre(ts.Genre)

	trackID := tag.CommonID("Track number/Position in set")
	tag.DeleteFrames(trackID)
	tag.AddTextFrame(trackID, id3v2.EncodingUTF8, ts.Track)

	tag.DeleteFrames(tag.CommonID("Comments"))
	tag.AddCommentFrame(id3v2.CommentFrame{
		Encoding:    id3v2.EncodingUTF8,
		Language:    "eng",
		Description: "",
		Text:        ts.Comment,
	})

	if err := ctx.Err(); err != nil {
		return errors.E(op, err)
	}
	if err := tag.Save(); err != nil {
		return errors.E(op, errors.TagWrite, err)
	}
	if err := tag.Close(); err != nil {
		return errors.E(op, errors.TagSave, err)
	}

	return out.Commit()
}

func (id3Format) Read(ctx context.Context, path string) (Tags, error) {
	const op errors.Op = "audio.id3.Read"
	return readWithTag(op, path)
}

func (id3Format) details(ctx context.Context, path string) (map[string]string, error) {
	const op errors.Op = "audio.id3.details"

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.E(op, errors.TagOpen, err)
	}
	defer f.Close()

	info, err := mp3parser.Scan(f)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return mp3Details(info), nil
}
