package asf

import (
	"bytes"
	"encoding/binary"
	"math"

	"metadata-injector/errors"

	"golang.org/x/text/encoding/unicode"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// encodeString encodes s as NUL terminated UTF-16LE
func encodeString(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, err
	}
	return append(b, 0, 0), nil
}

// decodeString decodes UTF-16LE, dropping trailing NUL characters
func decodeString(b []byte) (string, error) {
	if len(b)%2 == 1 {
		b = b[:len(b)-1]
	}
	for len(b) >= 2 && b[len(b)-2] == 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-2]
	}
	if len(b) == 0 {
		return "", nil
	}
	out, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ContentDescription is the Content Description Object
type ContentDescription struct {
	Title       string
	Author      string
	Copyright   string
	Description string
	Rating      string
}

// ParseContentDescription decodes the payload of a Content Description Object
func ParseContentDescription(data []byte) (ContentDescription, error) {
	const op errors.Op = "asf.ParseContentDescription"

	var cd ContentDescription
	if len(data) < 10 {
		return cd, errors.E(op, errors.TagOpen, "content description is too short")
	}

	var lengths [5]int
	for i := range lengths {
		lengths[i] = int(binary.LittleEndian.Uint16(data[i*2:]))
	}
	data = data[10:]

	fields := []*string{&cd.Title, &cd.Author, &cd.Copyright, &cd.Description, &cd.Rating}
	for i, field := range fields {
		if lengths[i] > len(data) {
			return cd, errors.E(op, errors.TagOpen, "content description field overruns object")
		}
		s, err := decodeString(data[:lengths[i]])
		if err != nil {
			return cd, errors.E(op, errors.TagOpen, err)
		}
		*field = s
		data = data[lengths[i]:]
	}
	return cd, nil
}

// Marshal encodes the payload of a Content Description Object
func (cd ContentDescription) Marshal() ([]byte, error) {
	const op errors.Op = "asf.ContentDescription.Marshal"

	values := []string{cd.Title, cd.Author, cd.Copyright, cd.Description, cd.Rating}
	encoded := make([][]byte, len(values))
	for i, v := range values {
		b, err := encodeString(v)
		if err != nil {
			return nil, errors.E(op, errors.TagWrite, err)
		}
		if len(b) > math.MaxUint16 {
			return nil, errors.E(op, errors.TagWrite, "content description field is too long")
		}
		encoded[i] = b
	}

	var buf bytes.Buffer
	for _, b := range encoded {
		_ = binary.Write(&buf, binary.LittleEndian, uint16(len(b)))
	}
	for _, b := range encoded {
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

// ContentDescription returns the decoded Content Description Object, the
// zero value is returned when the header has none
func (h *Header) ContentDescription() (ContentDescription, error) {
	o, ok := h.Object(ContentDescriptionObjectID)
	if !ok {
		return ContentDescription{}, nil
	}
	return ParseContentDescription(o.Data)
}

// SetContentDescription replaces or adds the Content Description Object
func (h *Header) SetContentDescription(cd ContentDescription) error {
	data, err := cd.Marshal()
	if err != nil {
		return err
	}
	h.SetObject(Object{ID: ContentDescriptionObjectID, Data: data})
	return nil
}
