package asf

import (
	"bytes"
	"encoding/binary"
	"math"
	"strconv"

	"metadata-injector/errors"
)

// DataType is the value type of an extended content descriptor
type DataType uint16

const (
	TypeUnicode DataType = iota
	TypeBytes
	TypeBool
	TypeDWORD
	TypeQWORD
	TypeWORD
	// TypeGUID only occurs in metadata records of the header extension
	TypeGUID
)

func (t DataType) String() string {
	switch t {
	case TypeUnicode:
		return "unicode"
	case TypeBytes:
		return "bytes"
	case TypeBool:
		return "bool"
	case TypeDWORD:
		return "dword"
	case TypeQWORD:
		return "qword"
	case TypeWORD:
		return "word"
	case TypeGUID:
		return "guid"
	}
	return "type(" + strconv.Itoa(int(t)) + ")"
}

// Descriptor is a single name/value pair of the Extended Content
// Description Object. Value holds the raw encoded value.
type Descriptor struct {
	Name  string
	Type  DataType
	Value []byte
}

// StringDescriptor returns a unicode descriptor
func StringDescriptor(name, value string) (Descriptor, error) {
	b, err := encodeString(value)
	if err != nil {
		return Descriptor{}, err
	}
	if b == nil {
		// an empty unicode value is still a single NUL character
		b = []byte{0, 0}
	}
	return Descriptor{Name: name, Type: TypeUnicode, Value: b}, nil
}

// DWORDDescriptor returns a 32-bit integer descriptor
func DWORDDescriptor(name string, value uint32) Descriptor {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, value)
	return Descriptor{Name: name, Type: TypeDWORD, Value: b}
}

// String returns the value in textual form
func (d Descriptor) String() string {
	switch d.Type {
	case TypeUnicode:
		s, _ := decodeString(d.Value)
		return s
	case TypeBool:
		if len(d.Value) >= 1 && d.Value[0] != 0 {
			return "true"
		}
		return "false"
	case TypeDWORD, TypeQWORD, TypeWORD:
		n, ok := d.Uint()
		if !ok {
			return ""
		}
		return strconv.FormatUint(n, 10)
	case TypeGUID:
		if len(d.Value) == 16 {
			var g GUID
			copy(g[:], d.Value)
			return g.String()
		}
	}
	return string(d.Value)
}

// Uint returns the value of an integer descriptor
func (d Descriptor) Uint() (uint64, bool) {
	switch {
	case d.Type == TypeDWORD && len(d.Value) == 4:
		return uint64(binary.LittleEndian.Uint32(d.Value)), true
	case d.Type == TypeQWORD && len(d.Value) == 8:
		return binary.LittleEndian.Uint64(d.Value), true
	case d.Type == TypeWORD && len(d.Value) == 2:
		return uint64(binary.LittleEndian.Uint16(d.Value)), true
	}
	return 0, false
}

// ExtendedContent is the decoded Extended Content Description Object
type ExtendedContent []Descriptor

// ParseExtendedContent decodes the payload of an Extended Content
// Description Object
func ParseExtendedContent(data []byte) (ExtendedContent, error) {
	const op errors.Op = "asf.ParseExtendedContent"

	short := errors.E(op, errors.TagOpen, "extended content description is truncated")
	if len(data) < 2 {
		return nil, short
	}
	count := int(binary.LittleEndian.Uint16(data))
	data = data[2:]

	word := func() (int, bool) {
		if len(data) < 2 {
			return 0, false
		}
		n := int(binary.LittleEndian.Uint16(data))
		data = data[2:]
		return n, true
	}
	take := func(n int) ([]byte, bool) {
		if n > len(data) {
			return nil, false
		}
		b := data[:n]
		data = data[n:]
		return b, true
	}

	ec := make(ExtendedContent, 0, count)
	for range count {
		nameLen, ok := word()
		if !ok {
			return nil, short
		}
		rawName, ok := take(nameLen)
		if !ok {
			return nil, short
		}
		typ, ok := word()
		if !ok {
			return nil, short
		}
		valueLen, ok := word()
		if !ok {
			return nil, short
		}
		value, ok := take(valueLen)
		if !ok {
			return nil, short
		}

		name, err := decodeString(rawName)
		if err != nil {
			return nil, errors.E(op, errors.TagOpen, err)
		}
		ec = append(ec, Descriptor{
			Name:  name,
			Type:  DataType(typ),
			Value: bytes.Clone(value),
		})
	}
	return ec, nil
}

// Marshal encodes the payload of an Extended Content Description Object
func (ec ExtendedContent) Marshal() ([]byte, error) {
	const op errors.Op = "asf.ExtendedContent.Marshal"

	if len(ec) > math.MaxUint16 {
		return nil, errors.E(op, errors.TagWrite, "too many descriptors")
	}

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(ec)))
	for _, d := range ec {
		name, err := encodeString(d.Name)
		if err != nil {
			return nil, errors.E(op, errors.TagWrite, errors.Info(d.Name), err)
		}
		if len(name) > math.MaxUint16 || len(d.Value) > math.MaxUint16 {
			return nil, errors.E(op, errors.TagWrite, errors.Info(d.Name), "descriptor is too long")
		}
		_ = binary.Write(&buf, binary.LittleEndian, uint16(len(name)))
		buf.Write(name)
		_ = binary.Write(&buf, binary.LittleEndian, uint16(d.Type))
		_ = binary.Write(&buf, binary.LittleEndian, uint16(len(d.Value)))
		buf.Write(d.Value)
	}
	return buf.Bytes(), nil
}

// Get returns the first descriptor with the given name
func (ec ExtendedContent) Get(name string) (Descriptor, bool) {
	for _, d := range ec {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Set replaces every descriptor named d.Name with d, keeping the position
// of the first one, or appends d
func (ec ExtendedContent) Set(d Descriptor) ExtendedContent {
	out := ec[:0:0]
	replaced := false
	for _, old := range ec {
		if old.Name != d.Name {
			out = append(out, old)
			continue
		}
		if !replaced {
			out = append(out, d)
			replaced = true
		}
	}
	if !replaced {
		out = append(out, d)
	}
	return out
}

// ExtendedContent returns the decoded Extended Content Description Object,
// nil is returned when the header has none
func (h *Header) ExtendedContent() (ExtendedContent, error) {
	o, ok := h.Object(ExtendedContentDescriptionObjectID)
	if !ok {
		return nil, nil
	}
	return ParseExtendedContent(o.Data)
}

// SetExtendedContent replaces or adds the Extended Content Description Object
func (h *Header) SetExtendedContent(ec ExtendedContent) error {
	data, err := ec.Marshal()
	if err != nil {
		return err
	}
	h.SetObject(Object{ID: ExtendedContentDescriptionObjectID, Data: data})
	return nil
}
