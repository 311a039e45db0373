package audio

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"metadata-injector/asf"
	"metadata-injector/metadata"

	"github.com/abema/go-mp4"
	"github.com/aler9/writerseeker"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"
	"github.com/stretchr/testify/require"
)

var fixtureTags = metadata.TagSet{
	Title:   "Ocean Waves",
	Artist:  "Drew Sky",
	Album:   "Zenith",
	Year:    "1999",
	Comment: "Stay tuned",
	Genre:   "Jazz",
	Track:   "7",
}

func writeFixture(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}

// requireOnlyFile checks that no temporary output was left next to path
func requireOnlyFile(t *testing.T, path string) {
	t.Helper()
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, filepath.Base(path), entries[0].Name())
}

var mdatPayload = []byte("not really audio, but it has to stay where stco says it is")

type mp4Fixture struct {
	udta     bool
	moovLast bool
}

// build returns an MPEG-4 file with a single chunk offset that points at
// mdatPayload
func (fx mp4Fixture) build(t *testing.T) []byte {
	t.Helper()

	render := func(offset uint32) []byte {
		ws := &writerseeker.WriterSeeker{}
		w := mp4.NewWriter(ws)

		var box func(typ mp4.BoxType, payload mp4.IImmutableBox, ctx mp4.Context, children ...func())
		box = func(typ mp4.BoxType, payload mp4.IImmutableBox, ctx mp4.Context, children ...func()) {
			_, err := w.StartBox(&mp4.BoxInfo{Type: typ})
			require.NoError(t, err)
			if payload != nil {
				_, err = mp4.Marshal(w, payload, ctx)
				require.NoError(t, err)
			}
			for _, child := range children {
				child()
			}
			_, err = w.EndBox()
			require.NoError(t, err)
		}

		item := func(typ mp4.BoxType, value string) func() {
			ctx := mp4.Context{UnderUdta: true, UnderIlst: true, UnderIlstMeta: true}
			return func() {
				box(typ, nil, ctx, func() {
					box(mp4.BoxTypeData(), &mp4.Data{DataType: mp4.DataTypeStringUTF8, Data: []byte(value)}, ctx)
				})
			}
		}

		moov := func() {
			udta := mp4.Context{UnderUdta: true}
			var children []func()
			children = append(children, func() {
				box(mp4.BoxTypeTrak(), nil, mp4.Context{}, func() {
					box(mp4.BoxTypeMdia(), nil, mp4.Context{}, func() {
						box(mp4.BoxTypeMinf(), nil, mp4.Context{}, func() {
							box(mp4.BoxTypeStbl(), nil, mp4.Context{}, func() {
								box(mp4.BoxTypeStco(), &mp4.Stco{EntryCount: 1, ChunkOffset: []uint32{offset}}, mp4.Context{})
							})
						})
					})
				})
			})
			if fx.udta {
				children = append(children, func() {
					box(mp4.BoxTypeUdta(), nil, udta, func() {
						box(mp4.BoxTypeMeta(), &mp4.Meta{}, udta,
							func() {
								box(mp4.BoxTypeHdlr(), &mp4.Hdlr{HandlerType: [4]byte{'m', 'd', 'i', 'r'}}, udta)
							},
							func() {
								box(mp4.BoxTypeIlst(), nil, mp4.Context{UnderUdta: true, UnderIlst: true},
									item(atomTitle, "Old Title"),
									item(mp4.BoxType{0xA9, 't', 'o', 'o'}, "fixture encoder"),
								)
							})
					})
				})
			}
			box(mp4.BoxTypeMoov(), nil, mp4.Context{}, children...)
		}

		mdat := func() {
			box(mp4.BoxTypeMdat(), nil, mp4.Context{}, func() {
				_, err := w.Write(mdatPayload)
				require.NoError(t, err)
			})
		}

		box(mp4.BoxTypeFtyp(), &mp4.Ftyp{
			MajorBrand:       [4]byte{'M', '4', 'A', ' '},
			CompatibleBrands: []mp4.CompatibleBrandElem{{CompatibleBrand: mp4.BrandISOM()}},
		}, mp4.Context{})
		if fx.moovLast {
			mdat()
			moov()
		} else {
			moov()
			mdat()
		}
		return ws.Bytes()
	}

	first := render(0)
	at := bytes.Index(first, mdatPayload)
	require.Positive(t, at)
	return render(uint32(at))
}

// chunkOffset returns the single stco entry of the file at path
func chunkOffset(t *testing.T, path string) uint32 {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	boxes, err := mp4.ExtractBoxWithPayload(f, nil, mp4.BoxPath{
		mp4.BoxTypeMoov(), mp4.BoxTypeTrak(), mp4.BoxTypeMdia(),
		mp4.BoxTypeMinf(), mp4.BoxTypeStbl(), mp4.BoxTypeStco(),
	})
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	stco := boxes[0].Payload.(*mp4.Stco)
	require.Len(t, stco.ChunkOffset, 1)
	return stco.ChunkOffset[0]
}

var asfPayload = []byte("asf data object payload")

// asfFixture returns a minimal ASF file holding the given header objects
func asfFixture(t *testing.T, objects ...asf.Object) []byte {
	t.Helper()

	h := &asf.Header{Reserved1: 1, Reserved2: 2}
	h.Objects = append(h.Objects, asf.Object{ID: asf.FilePropertiesObjectID, Data: make([]byte, 80)})
	h.Objects = append(h.Objects, objects...)

	data := asf.Object{ID: asf.DataObjectID, Data: asfPayload}
	require.NoError(t, h.SetFileSize(h.Size()+data.Size()))

	var buf bytes.Buffer
	_, err := h.WriteTo(&buf)
	require.NoError(t, err)
	buf.Write(data.ID[:])
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, data.Size()))
	buf.Write(data.Data)
	return buf.Bytes()
}

var flacFrames = []byte{0xFF, 0xF8, 0x69, 0x08, 0x00, 0x00, 0x12, 0x34}

// flacFixture returns a FLAC stream of two seconds of 44.1 kHz stereo with
// the given KEY=value comments
func flacFixture(t *testing.T, comments ...string) []byte {
	t.Helper()

	si := make([]byte, 34)
	binary.BigEndian.PutUint16(si[0:], 4096)
	binary.BigEndian.PutUint16(si[2:], 4096)
	// sample rate, channels - 1, bits per sample - 1, total samples
	binary.BigEndian.PutUint64(si[10:], uint64(44100)<<44|uint64(1)<<41|uint64(15)<<36|uint64(88200))

	f := &flac.File{
		Meta:   []*flac.MetaDataBlock{{Type: flac.StreamInfo, Data: si}},
		Frames: flacFrames,
	}
	if len(comments) > 0 {
		cmt := flacvorbis.New()
		for _, c := range comments {
			k, v, _ := strings.Cut(c, "=")
			require.NoError(t, cmt.Add(k, v))
		}
		block := cmt.Marshal()
		f.Meta = append(f.Meta, &block)
	}
	return f.Marshal()
}

// mpegFrame is MPEG-1 layer III, 128 kbps, 44.1 kHz
var mpegFrame = func() []byte {
	f := make([]byte, 417)
	copy(f, []byte{0xFF, 0xFB, 0x90, 0x00})
	return f
}()

func mp3Fixture(frames int) []byte {
	return bytes.Repeat(mpegFrame, frames)
}

// wavFixture writes a 16 bit mono PCM file of 800 samples at 8 kHz
func wavFixture(t *testing.T, name string, md *wav.Metadata) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, 8000, 16, 1, wavFormatPCM)
	enc.Metadata = md
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 8000},
		SourceBitDepth: 16,
		Data:           make([]int, 800),
	}
	for i := range buf.Data {
		buf.Data[i] = (i%64 - 32) * 512
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	return path
}

// wavSamples returns the PCM samples of the file at path
func wavSamples(t *testing.T, path string) []int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	buf, err := wav.NewDecoder(f).FullPCMBuffer()
	require.NoError(t, err)
	return buf.Data
}
