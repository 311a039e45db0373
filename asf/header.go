// Package asf reads and rewrites the header of Advanced Systems Format
// (.asf, .wmv, .wma) files. Only the top-level header objects are decoded,
// everything else is carried as opaque bytes.
package asf

import (
	"bytes"
	"encoding/binary"
	"io"

	"metadata-injector/errors"
)

const (
	// objectHeaderSize is GUID + QWORD size
	objectHeaderSize = 24
	// headerPreambleSize is objectHeaderSize + object count + two reserved bytes
	headerPreambleSize = objectHeaderSize + 4 + 2
	// MaxHeaderSize bounds the header we are willing to load into memory
	MaxHeaderSize = 64 << 20
)

// Object is a header object, Data excludes the 24 byte object header
type Object struct {
	ID   GUID
	Data []byte
}

// Size returns the encoded size of the object
func (o Object) Size() uint64 {
	return objectHeaderSize + uint64(len(o.Data))
}

// Header is the ASF Header Object with its child objects in file order
type Header struct {
	Reserved1 byte
	Reserved2 byte
	Objects   []Object
}

// ReadHeader reads the Header Object from the start of r. On success r is
// positioned at the first byte after the header.
func ReadHeader(r io.Reader) (*Header, error) {
	const op errors.Op = "asf.ReadHeader"

	var pre [headerPreambleSize]byte
	if _, err := io.ReadFull(r, pre[:]); err != nil {
		return nil, errors.E(op, errors.TagOpen, err)
	}

	var id GUID
	copy(id[:], pre[:16])
	if id != HeaderObjectID {
		return nil, errors.E(op, errors.TagOpen, "not an ASF file")
	}

	size := binary.LittleEndian.Uint64(pre[16:24])
	count := binary.LittleEndian.Uint32(pre[24:28])
	if size < headerPreambleSize || size > MaxHeaderSize {
		return nil, errors.E(op, errors.TagOpen, errors.Errorf("invalid header size %d", size))
	}

	body := make([]byte, size-headerPreambleSize)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errors.E(op, errors.TagOpen, err)
	}

	h := &Header{
		Reserved1: pre[28],
		Reserved2: pre[29],
		Objects:   make([]Object, 0, count),
	}

	for len(body) > 0 {
		if len(body) < objectHeaderSize {
			return nil, errors.E(op, errors.TagOpen, "truncated header object")
		}
		var oid GUID
		copy(oid[:], body[:16])
		osize := binary.LittleEndian.Uint64(body[16:24])
		if osize < objectHeaderSize || osize > uint64(len(body)) {
			return nil, errors.E(op, errors.TagOpen, errors.Errorf("invalid size %d for object %s", osize, oid))
		}
		h.Objects = append(h.Objects, Object{
			ID:   oid,
			Data: bytes.Clone(body[objectHeaderSize:osize]),
		})
		body = body[osize:]
	}

	if uint32(len(h.Objects)) != count {
		return nil, errors.E(op, errors.TagOpen, errors.Errorf("header declares %d objects, found %d", count, len(h.Objects)))
	}

	return h, nil
}

// Size returns the encoded size of the header
func (h *Header) Size() uint64 {
	size := uint64(headerPreambleSize)
	for _, o := range h.Objects {
		size += o.Size()
	}
	return size
}

// WriteTo encodes the header into w
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	buf.Grow(int(h.Size()))

	buf.Write(HeaderObjectID[:])
	_ = binary.Write(&buf, binary.LittleEndian, h.Size())
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(h.Objects)))
	buf.WriteByte(h.Reserved1)
	buf.WriteByte(h.Reserved2)

	for _, o := range h.Objects {
		buf.Write(o.ID[:])
		_ = binary.Write(&buf, binary.LittleEndian, o.Size())
		buf.Write(o.Data)
	}

	return buf.WriteTo(w)
}

// Object returns the first object with the given id
func (h *Header) Object(id GUID) (Object, bool) {
	for _, o := range h.Objects {
		if o.ID == id {
			return o, true
		}
	}
	return Object{}, false
}

// SetObject replaces the first object with the same id, or appends it
func (h *Header) SetObject(obj Object) {
	for i, o := range h.Objects {
		if o.ID == obj.ID {
			h.Objects[i] = obj
			return
		}
	}
	h.Objects = append(h.Objects, obj)
}

// file properties object layout: File ID GUID, then File Size QWORD
const filePropertiesSizeOffset = 16

// FileSize returns the file size recorded in the File Properties Object
func (h *Header) FileSize() (uint64, bool) {
	o, ok := h.Object(FilePropertiesObjectID)
	if !ok || len(o.Data) < filePropertiesSizeOffset+8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(o.Data[filePropertiesSizeOffset:]), true
}

// SetFileSize updates the file size recorded in the File Properties Object
func (h *Header) SetFileSize(n uint64) error {
	const op errors.Op = "asf.SetFileSize"

	for i, o := range h.Objects {
		if o.ID != FilePropertiesObjectID {
			continue
		}
		if len(o.Data) < filePropertiesSizeOffset+8 {
			return errors.E(op, errors.TagWrite, "file properties object is too short")
		}
		binary.LittleEndian.PutUint64(h.Objects[i].Data[filePropertiesSizeOffset:], n)
		return nil
	}
	return errors.E(op, errors.TagWrite, "missing file properties object")
}
