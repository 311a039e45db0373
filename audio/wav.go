package audio

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"os"
	"strconv"

	"metadata-injector/errors"
	"metadata-injector/metadata"

	"github.com/go-audio/riff"
	"github.com/go-audio/wav"
)

// WAVE format tags the encoder can write back unchanged
const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

type wavFormat struct{}

func (wavFormat) Name() string { return "WAVE" }

// padInfo makes the size of every INFO entry even. The encoder writes the
// value plus a NUL without a pad byte while the decoder skips a pad byte
// after every odd sized entry.
func padInfo(md *wav.Metadata) {
	fields := []*string{
		&md.Artist, &md.Comments, &md.Copyright, &md.CreationDate,
		&md.Engineer, &md.Technician, &md.Genre, &md.Keywords,
		&md.Medium, &md.Title, &md.Product, &md.Subject,
		&md.Software, &md.Source, &md.Location, &md.TrackNbr,
	}
	for _, f := range fields {
		if *f != "" && len(*f)%2 == 0 {
			*f += "\x00"
		}
	}
}

var (
	listID = [4]byte{'L', 'I', 'S', 'T'}
	infoID = [4]byte{'I', 'N', 'F', 'O'}
)

// maxCarriedChunk bounds a chunk held in memory while the file is rewritten
const maxCarriedChunk = 64 << 20

// riffChunk is a chunk copied as is from the source file
type riffChunk struct {
	id   [4]byte
	data []byte
}

// extraChunks returns the chunks of the WAVE file in r that the encoder does
// not write itself, in file order. The format, sample data and INFO list are
// left out. A truncated trailing chunk ends the scan.
func extraChunks(r io.ReadSeeker) ([]riffChunk, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if err := riff.New(r).ParseHeaders(); err != nil {
		return nil, err
	}

	var chunks []riffChunk
	for {
		// riff's IDnSize drops a short read of the size field
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return chunks, nil
			}
			return nil, err
		}
		id := [4]byte(hdr[:4])
		size := binary.LittleEndian.Uint32(hdr[4:])
		pad := int64(size % 2)

		if id == riff.FmtID || id == riff.DataFormatID {
			if _, err := r.Seek(int64(size)+pad, io.SeekCurrent); err != nil {
				return nil, err
			}
			continue
		}
		if size > maxCarriedChunk {
			return nil, errors.Errorf("chunk %q of %d bytes is too large", id[:], size)
		}

		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return chunks, nil
			}
			return nil, err
		}
		if _, err := r.Seek(pad, io.SeekCurrent); err != nil {
			return nil, err
		}

		if id == listID && len(data) >= 4 && [4]byte(data[:4]) == infoID {
			continue
		}
		chunks = append(chunks, riffChunk{id: id, data: data})
	}
}

// appendChunks writes chunks at the end of the RIFF file in w and updates
// the RIFF size to match
func appendChunks(w io.WriteSeeker, chunks []riffChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	end, err := w.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		var hdr [8]byte
		copy(hdr[:], c.id[:])
		binary.LittleEndian.PutUint32(hdr[4:], uint32(len(c.data)))
		if _, err := w.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := w.Write(c.data); err != nil {
			return err
		}
		end += int64(len(hdr) + len(c.data))
		if len(c.data)%2 == 1 {
			if _, err := w.Write([]byte{0}); err != nil {
				return err
			}
			end++
		}
	}
	if end-8 > math.MaxUint32 {
		return errors.Errorf("RIFF file of %d bytes is too large", end)
	}

	if _, err := w.Seek(4, io.SeekStart); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(end-8)); err != nil {
		return err
	}
	_, err = w.Seek(0, io.SeekEnd)
	return err
}

func openWAV(op errors.Op, path string) (*os.File, *wav.Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.E(op, errors.TagOpen, err)
	}

	d := wav.NewDecoder(f)
	d.ReadMetadata()
	if err := d.Err(); err != nil {
		f.Close()
		return nil, nil, errors.E(op, errors.TagOpen, err)
	}
	if d.NumChans == 0 || d.SampleRate == 0 {
		f.Close()
		return nil, nil, errors.E(op, errors.TagOpen, "not a WAVE file")
	}
	return f, d, nil
}

func (wavFormat) Write(ctx context.Context, path string, ts metadata.TagSet) error {
	const op errors.Op = "audio.wav.Write"

	f, d, err := openWAV(op, path)
	if err != nil {
		return err
	}
	defer f.Close()

	if d.WavAudioFormat != wavFormatPCM && d.WavAudioFormat != wavFormatFloat {
		return errors.E(op, errors.TagOpen, errors.Errorf("unsupported WAVE format %d", d.WavAudioFormat))
	}

	md := &wav.Metadata{}
	if d.Metadata != nil {
		*md = *d.Metadata
	}
	md.Title = ts.Title
	md.Artist = ts.Artist
	md.Product = ts.Album
	md.CreationDate = ts.Year
	md.Comments = ts.Comment
	md.Genre = ts.Genre
	md.TrackNbr = ts.Track
	padInfo(md)

	// ReadMetadata consumed the whole file, PCM needs a fresh decoder
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return errors.E(op, errors.TagOpen, err)
	}
	pcm := wav.NewDecoder(f)
	buf, err := pcm.FullPCMBuffer()
	if err != nil {
		return errors.E(op, errors.TagOpen, err)
	}
	extra, err := extraChunks(f)
	if err != nil {
		return errors.E(op, errors.TagOpen, err)
	}

	if err := ctx.Err(); err != nil {
		return errors.E(op, err)
	}

	out, err := newPending(path)
	if err != nil {
		return errors.E(op, err)
	}
	defer out.Discard()

	enc := wav.NewEncoder(out, int(pcm.SampleRate), int(pcm.BitDepth), int(pcm.NumChans), int(pcm.WavAudioFormat))
	enc.Metadata = md
	if err := enc.Write(buf); err != nil {
		return errors.E(op, errors.TagWrite, err)
	}
	if err := enc.Close(); err != nil {
		return errors.E(op, errors.TagWrite, err)
	}
	if err := appendChunks(out, extra); err != nil {
		return errors.E(op, errors.TagWrite, err)
	}

	return out.Commit()
}

func (wavFormat) Read(ctx context.Context, path string) (Tags, error) {
	const op errors.Op = "audio.wav.Read"

	f, d, err := openWAV(op, path)
	if err != nil {
		return Tags{}, err
	}
	defer f.Close()

	if d.Metadata == nil {
		return Tags{}, nil
	}
	md := d.Metadata
	return Tags{TagSet: metadata.TagSet{
		Title:   md.Title,
		Artist:  md.Artist,
		Album:   md.Product,
		Year:    md.CreationDate,
		Comment: md.Comments,
		Genre:   md.Genre,
		Track:   md.TrackNbr,
	}}, nil
}

func (wavFormat) details(ctx context.Context, path string) (map[string]string, error) {
	const op errors.Op = "audio.wav.details"

	f, d, err := openWAV(op, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	details := map[string]string{
		"sample_rate": strconv.Itoa(int(d.SampleRate)),
		"channels":    strconv.Itoa(int(d.NumChans)),
		"bit_depth":   strconv.Itoa(int(d.BitDepth)),
		"wave_format": strconv.Itoa(int(d.WavAudioFormat)),
	}
	if d.AvgBytesPerSec > 0 {
		details["bitrate"] = strconv.Itoa(int(d.AvgBytesPerSec) * 8)
	}
	return details, nil
}
