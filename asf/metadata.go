package asf

import (
	"bytes"
	"encoding/binary"
	"math"
	"slices"

	"metadata-injector/errors"
)

// headerExtensionPreambleSize is the reserved GUID, the reserved WORD and
// the extension data size DWORD
const headerExtensionPreambleSize = 16 + 2 + 4

// HeaderExtension is the decoded Header Extension Object. Its objects are
// kept in file order with their payloads opaque.
type HeaderExtension struct {
	Reserved1 GUID
	Reserved2 uint16
	Objects   []Object
}

// ParseHeaderExtension decodes the payload of a Header Extension Object
func ParseHeaderExtension(data []byte) (*HeaderExtension, error) {
	const op errors.Op = "asf.ParseHeaderExtension"

	if len(data) < headerExtensionPreambleSize {
		return nil, errors.E(op, errors.TagOpen, "header extension is truncated")
	}

	x := &HeaderExtension{Reserved2: binary.LittleEndian.Uint16(data[16:18])}
	copy(x.Reserved1[:], data[:16])

	size := binary.LittleEndian.Uint32(data[18:22])
	body := data[headerExtensionPreambleSize:]
	if uint64(size) != uint64(len(body)) {
		return nil, errors.E(op, errors.TagOpen, errors.Errorf("header extension declares %d bytes, has %d", size, len(body)))
	}

	for len(body) > 0 {
		if len(body) < objectHeaderSize {
			return nil, errors.E(op, errors.TagOpen, "truncated extension object")
		}
		var oid GUID
		copy(oid[:], body[:16])
		osize := binary.LittleEndian.Uint64(body[16:24])
		if osize < objectHeaderSize || osize > uint64(len(body)) {
			return nil, errors.E(op, errors.TagOpen, errors.Errorf("invalid size %d for extension object %s", osize, oid))
		}
		x.Objects = append(x.Objects, Object{
			ID:   oid,
			Data: bytes.Clone(body[objectHeaderSize:osize]),
		})
		body = body[osize:]
	}
	return x, nil
}

// Marshal encodes the payload of a Header Extension Object
func (x *HeaderExtension) Marshal() ([]byte, error) {
	const op errors.Op = "asf.HeaderExtension.Marshal"

	var size uint64
	for _, o := range x.Objects {
		size += o.Size()
	}
	if size > math.MaxUint32 {
		return nil, errors.E(op, errors.TagWrite, "header extension is too large")
	}

	var buf bytes.Buffer
	buf.Write(x.Reserved1[:])
	_ = binary.Write(&buf, binary.LittleEndian, x.Reserved2)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(size))
	for _, o := range x.Objects {
		buf.Write(o.ID[:])
		_ = binary.Write(&buf, binary.LittleEndian, o.Size())
		buf.Write(o.Data)
	}
	return buf.Bytes(), nil
}

// MetadataRecord is one description record of a Metadata or Metadata
// Library Object
type MetadataRecord struct {
	// Language is the language list index, always zero in a Metadata Object
	Language uint16
	Stream   uint16
	Name     string
	Type     DataType
	Value    []byte
}

// String returns the value in textual form
func (r MetadataRecord) String() string {
	return Descriptor{Name: r.Name, Type: r.Type, Value: r.Value}.String()
}

// MetadataRecords is the decoded payload of a Metadata or Metadata Library
// Object, both share one layout
type MetadataRecords []MetadataRecord

// ParseMetadata decodes the payload of a Metadata or Metadata Library Object
func ParseMetadata(data []byte) (MetadataRecords, error) {
	const op errors.Op = "asf.ParseMetadata"

	short := errors.E(op, errors.TagOpen, "metadata object is truncated")
	if len(data) < 2 {
		return nil, short
	}
	count := int(binary.LittleEndian.Uint16(data))
	data = data[2:]

	records := make(MetadataRecords, 0, count)
	for range count {
		// language, stream, name length, type: WORDs, then data length DWORD
		if len(data) < 12 {
			return nil, short
		}
		language := binary.LittleEndian.Uint16(data[0:])
		stream := binary.LittleEndian.Uint16(data[2:])
		nameLen := int(binary.LittleEndian.Uint16(data[4:]))
		typ := binary.LittleEndian.Uint16(data[6:])
		valueLen := uint64(binary.LittleEndian.Uint32(data[8:]))
		data = data[12:]

		if uint64(nameLen)+valueLen > uint64(len(data)) {
			return nil, short
		}
		name, err := decodeString(data[:nameLen])
		if err != nil {
			return nil, errors.E(op, errors.TagOpen, err)
		}
		value := bytes.Clone(data[nameLen : nameLen+int(valueLen)])
		data = data[nameLen+int(valueLen):]

		records = append(records, MetadataRecord{
			Language: language,
			Stream:   stream,
			Name:     name,
			Type:     DataType(typ),
			Value:    value,
		})
	}
	return records, nil
}

// Marshal encodes the payload of a Metadata or Metadata Library Object
func (m MetadataRecords) Marshal() ([]byte, error) {
	const op errors.Op = "asf.MetadataRecords.Marshal"

	if len(m) > math.MaxUint16 {
		return nil, errors.E(op, errors.TagWrite, "too many metadata records")
	}

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(m)))
	for _, r := range m {
		name, err := encodeString(r.Name)
		if err != nil {
			return nil, errors.E(op, errors.TagWrite, errors.Info(r.Name), err)
		}
		if len(name) > math.MaxUint16 || uint64(len(r.Value)) > math.MaxUint32 {
			return nil, errors.E(op, errors.TagWrite, errors.Info(r.Name), "metadata record is too long")
		}
		_ = binary.Write(&buf, binary.LittleEndian, r.Language)
		_ = binary.Write(&buf, binary.LittleEndian, r.Stream)
		_ = binary.Write(&buf, binary.LittleEndian, uint16(len(name)))
		_ = binary.Write(&buf, binary.LittleEndian, uint16(r.Type))
		_ = binary.Write(&buf, binary.LittleEndian, uint32(len(r.Value)))
		buf.Write(name)
		buf.Write(r.Value)
	}
	return buf.Bytes(), nil
}

// Get returns the first record with the given name
func (m MetadataRecords) Get(name string) (MetadataRecord, bool) {
	for _, r := range m {
		if r.Name == name {
			return r, true
		}
	}
	return MetadataRecord{}, false
}

// Without returns the records whose name is not in names
func (m MetadataRecords) Without(names ...string) MetadataRecords {
	return slices.DeleteFunc(slices.Clone(m), func(r MetadataRecord) bool {
		return slices.Contains(names, r.Name)
	})
}

// HeaderExtension returns the decoded Header Extension Object, nil is
// returned when the header has none
func (h *Header) HeaderExtension() (*HeaderExtension, error) {
	o, ok := h.Object(HeaderExtensionObjectID)
	if !ok {
		return nil, nil
	}
	return ParseHeaderExtension(o.Data)
}

// Metadata returns the records of the Metadata and Metadata Library
// Objects in the header extension, in that order
func (h *Header) Metadata() (MetadataRecords, error) {
	x, err := h.HeaderExtension()
	if err != nil || x == nil {
		return nil, err
	}

	var all MetadataRecords
	for _, o := range x.Objects {
		if o.ID != MetadataObjectID && o.ID != MetadataLibraryObjectID {
			continue
		}
		records, err := ParseMetadata(o.Data)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}
	return all, nil
}

// RemoveMetadata drops every record named in names from the Metadata and
// Metadata Library Objects and returns how many were dropped. The objects
// stay in place even when they end up empty.
func (h *Header) RemoveMetadata(names ...string) (int, error) {
	const op errors.Op = "asf.RemoveMetadata"

	x, err := h.HeaderExtension()
	if err != nil {
		return 0, errors.E(op, err)
	}
	if x == nil {
		return 0, nil
	}

	var removed int
	for i, o := range x.Objects {
		if o.ID != MetadataObjectID && o.ID != MetadataLibraryObjectID {
			continue
		}
		records, err := ParseMetadata(o.Data)
		if err != nil {
			return 0, errors.E(op, err)
		}
		kept := records.Without(names...)
		if len(kept) == len(records) {
			continue
		}
		data, err := kept.Marshal()
		if err != nil {
			return 0, errors.E(op, err)
		}
		x.Objects[i].Data = data
		removed += len(records) - len(kept)
	}
	if removed == 0 {
		return 0, nil
	}

	data, err := x.Marshal()
	if err != nil {
		return 0, errors.E(op, err)
	}
	h.SetObject(Object{ID: HeaderExtensionObjectID, Data: data})
	return removed, nil
}
