package asf

import (
	"strings"

	"github.com/google/uuid"
)

// GUID is an ASF object identifier in its on-disk byte order. The first
// three fields of the textual form are stored little-endian.
type GUID [16]byte

// ParseGUID parses the textual form, e.g. 75B22630-668E-11CF-A6D9-00AA0062CE6C
func ParseGUID(s string) (GUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return GUID{}, err
	}
	return GUID(swapGUID(u)), nil
}

// MustParseGUID is like ParseGUID but panics on error
func MustParseGUID(s string) GUID {
	g, err := ParseGUID(s)
	if err != nil {
		panic("asf: invalid GUID " + s + ": " + err.Error())
	}
	return g
}

// String returns the upper-case textual form used by the ASF specification
func (g GUID) String() string {
	return strings.ToUpper(uuid.UUID(swapGUID(g)).String())
}

// swapGUID converts between RFC 4122 byte order and ASF byte order, the
// conversion is its own inverse
func swapGUID(in [16]byte) [16]byte {
	out := in
	out[0], out[1], out[2], out[3] = in[3], in[2], in[1], in[0]
	out[4], out[5] = in[5], in[4]
	out[6], out[7] = in[7], in[6]
	return out
}

// Object identifiers used by the tag writer
var (
	HeaderObjectID                     = MustParseGUID("75B22630-668E-11CF-A6D9-00AA0062CE6C")
	DataObjectID                       = MustParseGUID("75B22636-668E-11CF-A6D9-00AA0062CE6C")
	FilePropertiesObjectID             = MustParseGUID("8CABDCA1-A947-11CF-8EE4-00C00C205365")
	HeaderExtensionObjectID            = MustParseGUID("5FBF03B5-A92E-11CF-8EE3-00C00C205365")
	ContentDescriptionObjectID         = MustParseGUID("75B22633-668E-11CF-A6D9-00AA0062CE6C")
	ExtendedContentDescriptionObjectID = MustParseGUID("D2D0A440-E307-11D2-97F0-00A0C95EA850")

	// inside the Header Extension Object
	MetadataObjectID        = MustParseGUID("C5F8CBEA-5BAF-4877-8467-AA8C44FA4CCA")
	MetadataLibraryObjectID = MustParseGUID("44231C94-9498-49D1-A141-1D134E457054")
)
