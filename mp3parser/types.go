package mp3parser

import "time"

// ID3v2Header represents ID3v2 tag header
type ID3v2Header struct {
	Version [2]byte
	Flags   byte
	// Size excludes the 10 byte header and the optional footer
	Size int
}

// HasFooter reports whether the tag ends with a 10 byte footer
func (h *ID3v2Header) HasFooter() bool {
	return h.Flags&0x10 != 0
}

// TotalSize is the number of bytes the tag occupies in the file
func (h *ID3v2Header) TotalSize() int {
	n := 10 + h.Size
	if h.HasFooter() {
		n += 10
	}
	return n
}

// MPEG audio version ids as they appear in the frame header
const (
	MPEG25   = 0
	MPEG2    = 2
	MPEG1    = 3
	reserved = 1
)

// Channel modes
const (
	Stereo      = 0
	JointStereo = 1
	DualChannel = 2
	Mono        = 3
)

// FrameHeader represents an MPEG audio frame header
type FrameHeader struct {
	VersionID     int
	Layer         int // 1, 2 or 3
	ProtectionBit bool
	Bitrate       int // bits per second
	SampleRate    int
	Padding       bool
	ChannelMode   int
	FrameLength   int // including the 4 header bytes
	Samples       int // samples per channel in this frame
}

// Version returns the MPEG version name
func (h *FrameHeader) Version() string {
	switch h.VersionID {
	case MPEG1:
		return "MPEG-1"
	case MPEG2:
		return "MPEG-2"
	case MPEG25:
		return "MPEG-2.5"
	}
	return "reserved"
}

// Channels returns the number of audio channels
func (h *FrameHeader) Channels() int {
	if h.ChannelMode == Mono {
		return 1
	}
	return 2
}

// ID3v1Tag represents ID3v1 tag (128 bytes at end of file)
type ID3v1Tag struct {
	Title   string
	Artist  string
	Album   string
	Year    string
	Comment string
	Genre   byte
}

// Info summarizes an MP3 stream
type Info struct {
	ID3v2 *ID3v2Header
	ID3v1 *ID3v1Tag
	// First is the header of the first valid frame
	First    *FrameHeader
	Frames   int
	Duration time.Duration
	// VBR is set when frames use more than one bitrate
	VBR bool
}
