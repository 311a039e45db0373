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

	"github.com/abema/go-mp4"
	"github.com/aler9/writerseeker"
	"github.com/dhowden/tag"
	"github.com/sunfish-shogi/bufseekio"
)

var (
	atomTitle   = mp4.BoxType{0xA9, 'n', 'a', 'm'}
	atomArtist  = mp4.BoxType{0xA9, 'A', 'R', 'T'}
	atomAlbum   = mp4.BoxType{0xA9, 'a', 'l', 'b'}
	atomYear    = mp4.BoxType{0xA9, 'd', 'a', 'y'}
	atomComment = mp4.BoxType{0xA9, 'c', 'm', 't'}
	atomGenre   = mp4.BoxType{0xA9, 'g', 'e', 'n'}
	atomTrack   = mp4.StrToBoxType("trkn")
	// gnre is the ID3 genre index, dropped so it can't shadow ©gen
	atomGenreID = mp4.StrToBoxType("gnre")
)

// managedAtoms are replaced on every write, other ilst items are kept
var managedAtoms = []mp4.BoxType{
	atomTitle, atomArtist, atomAlbum, atomYear, atomComment, atomGenre, atomTrack, atomGenreID,
}

func isManaged(bt mp4.BoxType) bool {
	for _, m := range managedAtoms {
		if m == bt {
			return true
		}
	}
	return false
}

// trackData encodes trkn: reserved, track, total, reserved as big endian
// 16 bit integers
func trackData(track, total int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint16(b[2:], uint16(track))
	binary.BigEndian.PutUint16(b[4:], uint16(total))
	return b
}

type mp4Format struct{}

func (mp4Format) Name() string { return "MPEG-4" }

func (mp4Format) Write(ctx context.Context, path string, ts metadata.TagSet) error {
	const op errors.Op = "audio.mp4.Write"

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

	boxes, err := topLevelBoxes(r, uint64(fi.Size()))
	if err != nil {
		return errors.E(op, errors.TagOpen, err)
	}

	var moov *mp4.BoxInfo
	for i := range boxes {
		if boxes[i].Type == mp4.BoxTypeMoov() {
			moov = &boxes[i]
			break
		}
	}
	if moov == nil {
		return errors.E(op, errors.TagOpen, "no moov box")
	}

	rendered, err := renderMoov(r, moov, ts)
	if err != nil {
		return errors.E(op, errors.TagWrite, err)
	}

	if err := ctx.Err(); err != nil {
		return errors.E(op, err)
	}

	out, err := newPending(path)
	if err != nil {
		return errors.E(op, err)
	}
	defer out.Discard()

	var end uint64
	for _, bi := range boxes {
		if bi.Type == mp4.BoxTypeMoov() && bi.Offset == moov.Offset {
			if _, err := out.Write(rendered); err != nil {
				return errors.E(op, errors.TagSave, err)
			}
		} else {
			if _, err := bi.SeekToStart(r); err != nil {
				return errors.E(op, errors.TagOpen, err)
			}
			if _, err := io.CopyN(out, r, int64(bi.Size)); err != nil {
				return errors.E(op, errors.TagSave, err)
			}
		}
		end = bi.Offset + bi.Size
	}

	// bytes too short to form a box are carried over as they are
	if end < uint64(fi.Size()) {
		if _, err := r.Seek(int64(end), io.SeekStart); err != nil {
			return errors.E(op, errors.TagOpen, err)
		}
		if _, err := io.Copy(out, r); err != nil {
			return errors.E(op, errors.TagSave, err)
		}
	}

	return out.Commit()
}

// topLevelBoxes lists the boxes at the root of the file, checking that each
// one fits inside it
func topLevelBoxes(r io.ReadSeeker, size uint64) ([]mp4.BoxInfo, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	var boxes []mp4.BoxInfo
	for {
		bi, err := mp4.ReadBoxInfo(r)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if bi.Size < bi.HeaderSize || bi.Offset+bi.Size > size {
			return nil, errors.Errorf("box %s at offset %d overruns the file", bi.Type, bi.Offset)
		}
		boxes = append(boxes, *bi)
		if _, err := bi.SeekToEnd(r); err != nil {
			return nil, err
		}
	}
	if len(boxes) == 0 {
		return nil, errors.New("no boxes found")
	}
	return boxes, nil
}

// chunkOffsetBox is an stco or co64 box that was written into the rendered
// moov at payload offset at
type chunkOffsetBox struct {
	at  int64
	box mp4.IBox
	ctx mp4.Context
}

// moovEditor copies a moov box into w, replacing the managed ilst items
type moovEditor struct {
	r     io.ReadSeeker
	w     *mp4.Writer
	items []ilstItem

	wroteMeta bool
	wroteIlst bool
	offsets   []chunkOffsetBox
}

type ilstItem struct {
	typ      mp4.BoxType
	dataType uint32
	data     []byte
}

func ilstItems(ts metadata.TagSet) []ilstItem {
	text := func(bt mp4.BoxType, s string) ilstItem {
		return ilstItem{typ: bt, dataType: mp4.DataTypeStringUTF8, data: []byte(s)}
	}
	return []ilstItem{
		text(atomTitle, ts.Title),
		text(atomArtist, ts.Artist),
		text(atomAlbum, ts.Album),
		text(atomYear, ts.Year),
		text(atomComment, ts.Comment),
		text(atomGenre, ts.Genre),
		{typ: atomTrack, dataType: mp4.DataTypeBinary, data: trackData(ts.TrackNumber(), metadata.TrackTotal)},
	}
}

// renderMoov returns the edited moov box with its chunk offsets adjusted to
// the size change
func renderMoov(r io.ReadSeeker, moov *mp4.BoxInfo, ts metadata.TagSet) ([]byte, error) {
	ws := &writerseeker.WriterSeeker{}
	e := &moovEditor{
		r:     r,
		w:     mp4.NewWriter(ws),
		items: ilstItems(ts),
	}

	if _, err := mp4.ReadBoxStructureFromInternal(r, moov, e.handle); err != nil {
		return nil, err
	}

	size, err := ws.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	delta := size - int64(moov.Size)
	if delta != 0 {
		if err := e.shiftChunkOffsets(ws, moov.Offset+moov.Size, delta); err != nil {
			return nil, err
		}
	}

	return ws.Bytes(), nil
}

func pathIs(p mp4.BoxPath, types ...mp4.BoxType) bool {
	if len(p) != len(types) {
		return false
	}
	for i := range p {
		if p[i] != types[i] {
			return false
		}
	}
	return true
}

func (e *moovEditor) handle(h *mp4.ReadHandle) (interface{}, error) {
	var (
		moov = mp4.BoxTypeMoov()
		trak = mp4.BoxTypeTrak()
		mdia = mp4.BoxTypeMdia()
		minf = mp4.BoxTypeMinf()
		stbl = mp4.BoxTypeStbl()
		udta = mp4.BoxTypeUdta()
		meta = mp4.BoxTypeMeta()
		ilst = mp4.BoxTypeIlst()
	)

	p := h.Path
	switch {
	case pathIs(p, moov):
		return nil, e.container(h, e.ensureUdta)
	case pathIs(p, moov, trak),
		pathIs(p, moov, trak, mdia),
		pathIs(p, moov, trak, mdia, minf),
		pathIs(p, moov, trak, mdia, minf, stbl):
		return nil, e.container(h, nil)
	case pathIs(p, moov, trak, mdia, minf, stbl, mp4.BoxTypeStco()),
		pathIs(p, moov, trak, mdia, minf, stbl, mp4.BoxTypeCo64()):
		return nil, e.chunkOffsets(h)
	case pathIs(p, moov, udta):
		return nil, e.container(h, e.ensureMeta)
	case pathIs(p, moov, udta, meta) && !e.wroteMeta:
		e.wroteMeta = true
		return nil, e.container(h, e.ensureIlst)
	case pathIs(p, moov, udta, meta, ilst) && !e.wroteIlst:
		e.wroteIlst = true
		return nil, e.container(h, e.writeItems)
	case len(p) == 5 && pathIs(p[:4], moov, udta, meta, ilst) && isManaged(h.BoxInfo.Type):
		// replaced by writeItems
		return nil, nil
	default:
		return nil, e.w.CopyBox(e.r, &h.BoxInfo)
	}
}

// container re-writes a container box, after runs once the children are
// written and before the box is closed
func (e *moovEditor) container(h *mp4.ReadHandle, after func() error) error {
	if _, err := e.w.StartBox(&h.BoxInfo); err != nil {
		return err
	}
	box, _, err := h.ReadPayload()
	if err != nil {
		return err
	}
	if _, err := mp4.Marshal(e.w, box, h.BoxInfo.Context); err != nil {
		return err
	}
	if _, err := h.Expand(); err != nil {
		return err
	}
	if after != nil {
		if err := after(); err != nil {
			return err
		}
	}
	_, err = e.w.EndBox()
	return err
}

func (e *moovEditor) chunkOffsets(h *mp4.ReadHandle) error {
	bi, err := e.w.StartBox(&h.BoxInfo)
	if err != nil {
		return err
	}
	box, _, err := h.ReadPayload()
	if err != nil {
		return err
	}
	e.offsets = append(e.offsets, chunkOffsetBox{
		at:  int64(bi.Offset + bi.HeaderSize),
		box: box,
		ctx: h.BoxInfo.Context,
	})
	if _, err := mp4.Marshal(e.w, box, h.BoxInfo.Context); err != nil {
		return err
	}
	_, err = e.w.EndBox()
	return err
}

// shiftChunkOffsets moves every chunk offset at or after from by delta and
// re-writes the tables in place, their size doesn't change
func (e *moovEditor) shiftChunkOffsets(ws io.WriteSeeker, from uint64, delta int64) error {
	shift := func(off uint64) (uint64, error) {
		if off < from {
			return off, nil
		}
		n := int64(off) + delta
		if n < 0 {
			return 0, errors.Errorf("chunk offset %d out of range", n)
		}
		return uint64(n), nil
	}

	for _, co := range e.offsets {
		switch b := co.box.(type) {
		case *mp4.Stco:
			for i, off := range b.ChunkOffset {
				n, err := shift(uint64(off))
				if err != nil {
					return err
				}
				if n > math.MaxUint32 {
					return errors.Errorf("chunk offset %d does not fit in stco", n)
				}
				b.ChunkOffset[i] = uint32(n)
			}
		case *mp4.Co64:
			for i, off := range b.ChunkOffset {
				n, err := shift(off)
				if err != nil {
					return err
				}
				b.ChunkOffset[i] = n
			}
		}

		if _, err := ws.Seek(co.at, io.SeekStart); err != nil {
			return err
		}
		if _, err := mp4.Marshal(ws, co.box, co.ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *moovEditor) ensureUdta() error {
	if e.wroteMeta {
		return nil
	}
	if _, err := e.w.StartBox(&mp4.BoxInfo{Type: mp4.BoxTypeUdta()}); err != nil {
		return err
	}
	if err := e.ensureMeta(); err != nil {
		return err
	}
	_, err := e.w.EndBox()
	return err
}

func (e *moovEditor) ensureMeta() error {
	if e.wroteMeta {
		return nil
	}
	e.wroteMeta = true

	ctx := mp4.Context{UnderUdta: true}
	if _, err := e.w.StartBox(&mp4.BoxInfo{Type: mp4.BoxTypeMeta()}); err != nil {
		return err
	}
	if _, err := mp4.Marshal(e.w, &mp4.Meta{}, ctx); err != nil {
		return err
	}

	if _, err := e.w.StartBox(&mp4.BoxInfo{Type: mp4.BoxTypeHdlr()}); err != nil {
		return err
	}
	hdlr := &mp4.Hdlr{HandlerType: [4]byte{'m', 'd', 'i', 'r'}}
	if _, err := mp4.Marshal(e.w, hdlr, ctx); err != nil {
		return err
	}
	if _, err := e.w.EndBox(); err != nil {
		return err
	}

	if err := e.ensureIlst(); err != nil {
		return err
	}
	_, err := e.w.EndBox()
	return err
}

func (e *moovEditor) ensureIlst() error {
	if e.wroteIlst {
		return nil
	}
	e.wroteIlst = true

	if _, err := e.w.StartBox(&mp4.BoxInfo{Type: mp4.BoxTypeIlst()}); err != nil {
		return err
	}
	if err := e.writeItems(); err != nil {
		return err
	}
	_, err := e.w.EndBox()
	return err
}

func (e *moovEditor) writeItems() error {
	ctx := mp4.Context{UnderUdta: true, UnderIlst: true, UnderIlstMeta: true}
	for _, item := range e.items {
		if _, err := e.w.StartBox(&mp4.BoxInfo{Type: item.typ}); err != nil {
			return err
		}
		if _, err := e.w.StartBox(&mp4.BoxInfo{Type: mp4.BoxTypeData()}); err != nil {
			return err
		}
		data := &mp4.Data{DataType: item.dataType, Data: item.data}
		if _, err := mp4.Marshal(e.w, data, ctx); err != nil {
			return err
		}
		if _, err := e.w.EndBox(); err != nil {
			return err
		}
		if _, err := e.w.EndBox(); err != nil {
			return err
		}
	}
	return nil
}

func (mp4Format) Read(ctx context.Context, path string) (Tags, error) {
	const op errors.Op = "audio.mp4.Read"
	return readWithTag(op, path)
}

// readWithTag reads tags with dhowden/tag, which detects the format itself
func readWithTag(op errors.Op, path string) (Tags, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tags{}, errors.E(op, errors.TagOpen, err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return Tags{}, errors.E(op, errors.TagOpen, err)
	}

	track, total := m.Track()
	tags := Tags{
		TagSet: metadata.TagSet{
			Title:   m.Title(),
			Artist:  m.Artist(),
			Album:   m.Album(),
			Comment: m.Comment(),
			Genre:   m.Genre(),
		},
		TrackTotal: total,
	}
	if y := m.Year(); y != 0 {
		tags.Year = strconv.Itoa(y)
	}
	if track != 0 {
		tags.Track = strconv.Itoa(track)
	}
	return tags, nil
}
