package audio

import (
	"bufio"
	"context"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"metadata-injector/errors"
	"metadata-injector/metadata"

	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"
)

const fieldComment = "COMMENT"

// vorbisFields are replaced on every write, other comments are kept
var vorbisFields = []string{
	flacvorbis.FIELD_TITLE,
	flacvorbis.FIELD_ARTIST,
	flacvorbis.FIELD_ALBUM,
	flacvorbis.FIELD_DATE,
	fieldComment,
	flacvorbis.FIELD_GENRE,
	flacvorbis.FIELD_TRACKNUMBER,
}

type flacFormat struct{}

func (flacFormat) Name() string { return "FLAC" }

// parseFLAC reads the file at path. flac.ParseFile can't be used as it
// panics on a file without frames.
func parseFLAC(op errors.Op, path string) (*flac.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.E(op, errors.TagOpen, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	file, err := flac.ParseMetadata(br)
	if err != nil {
		return nil, errors.E(op, errors.TagOpen, err)
	}

	frames, err := io.ReadAll(br)
	if err != nil {
		return nil, errors.E(op, errors.TagOpen, err)
	}
	if len(frames) < 2 || frames[0] != 0xFF || frames[1]>>2 != 0x3E {
		return nil, errors.E(op, errors.TagOpen, flac.ErrorNoSyncCode)
	}
	file.Frames = frames

	return file, nil
}

func (flacFormat) Write(ctx context.Context, path string, ts metadata.TagSet) error {
	const op errors.Op = "audio.flac.Write"

	file, err := parseFLAC(op, path)
	if err != nil {
		return err
	}
	if _, err := file.GetStreamInfo(); err != nil {
		return errors.E(op, errors.TagOpen, err)
	}

	cmt := flacvorbis.New()
	meta := make([]*flac.MetaDataBlock, 0, len(file.Meta)+1)
	for _, block := range file.Meta {
		if block.Type != flac.VorbisComment {
			meta = append(meta, block)
			continue
		}
		old, err := flacvorbis.ParseFromMetaDataBlock(*block)
		if err != nil {
			return errors.E(op, errors.TagOpen, err)
		}
		cmt.Vendor = old.Vendor
		for _, c := range old.Comments {
			key, _, _ := strings.Cut(c, "=")
			if !slices.ContainsFunc(vorbisFields, func(f string) bool { return strings.EqualFold(f, key) }) {
				cmt.Comments = append(cmt.Comments, c)
			}
		}
	}

	values := []string{ts.Title, ts.Artist, ts.Album, ts.Year, ts.Comment, ts.Genre, ts.Track}
	for i, field := range vorbisFields {
		if err := cmt.Add(field, values[i]); err != nil {
			return errors.E(op, errors.TagWrite, errors.Info(field), err)
		}
	}

	block := cmt.Marshal()
	// stream info is always first, the comment goes right after it
	file.Meta = slices.Insert(meta, 1, &block)

	if err := ctx.Err(); err != nil {
		return errors.E(op, err)
	}

	out, err := newPending(path)
	if err != nil {
		return errors.E(op, err)
	}
	defer out.Discard()

	if _, err := out.Write(file.Marshal()); err != nil {
		return errors.E(op, errors.TagSave, err)
	}
	return out.Commit()
}

func (flacFormat) Read(ctx context.Context, path string) (Tags, error) {
	const op errors.Op = "audio.flac.Read"
	return readWithTag(op, path)
}

func (flacFormat) details(ctx context.Context, path string) (map[string]string, error) {
	const op errors.Op = "audio.flac.details"

	file, err := parseFLAC(op, path)
	if err != nil {
		return nil, err
	}
	si, err := file.GetStreamInfo()
	if err != nil {
		return nil, errors.E(op, errors.TagOpen, err)
	}

	d := map[string]string{
		"sample_rate": strconv.Itoa(si.SampleRate),
		"channels":    strconv.Itoa(si.ChannelCount),
		"bit_depth":   strconv.Itoa(si.BitDepth),
		"blocks":      strconv.Itoa(len(file.Meta)),
	}
	if si.SampleCount > 0 && si.SampleRate > 0 {
		dur := time.Duration(float64(si.SampleCount) / float64(si.SampleRate) * float64(time.Second))
		d["duration"] = dur.Round(time.Millisecond).String()
	}
	return d, nil
}
