package mp3parser

import (
	"bufio"
	"bytes"
	"testing"
	"time"

	"metadata-injector/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MPEG-1 layer III, 128 kbps, 44.1 kHz, no padding: 417 bytes
var mpeg1Header = []byte{0xFF, 0xFB, 0x90, 0x00}

// MPEG-2 layer III, 64 kbps, 22.05 kHz, no padding: 208 bytes
var mpeg2Header = []byte{0xFF, 0xF3, 0x80, 0x00}

func frame(header []byte, length int) []byte {
	f := make([]byte, length)
	copy(f, header)
	return f
}

func id3v2Tag(size int) []byte {
	tag := []byte{'I', 'D', '3', 4, 0, 0,
		byte(size >> 21 & 0x7F), byte(size >> 14 & 0x7F), byte(size >> 7 & 0x7F), byte(size & 0x7F)}
	return append(tag, make([]byte, size)...)
}

func TestParseFrameHeader(t *testing.T) {
	h, err := ParseFrameHeader(mpeg1Header)
	require.NoError(t, err)
	assert.Equal(t, "MPEG-1", h.Version())
	assert.Equal(t, 3, h.Layer)
	assert.Equal(t, 128000, h.Bitrate)
	assert.Equal(t, 44100, h.SampleRate)
	assert.Equal(t, 417, h.FrameLength)
	assert.Equal(t, 1152, h.Samples)
	assert.Equal(t, 2, h.Channels())
	assert.False(t, h.ProtectionBit)

	h, err = ParseFrameHeader(mpeg2Header)
	require.NoError(t, err)
	assert.Equal(t, "MPEG-2", h.Version())
	assert.Equal(t, 64000, h.Bitrate)
	assert.Equal(t, 22050, h.SampleRate)
	assert.Equal(t, 208, h.FrameLength)
	assert.Equal(t, 576, h.Samples)

	// padding bit adds one byte
	h, err = ParseFrameHeader([]byte{0xFF, 0xFB, 0x92, 0x00})
	require.NoError(t, err)
	assert.Equal(t, 418, h.FrameLength)

	// mono layer I
	h, err = ParseFrameHeader([]byte{0xFF, 0xFF, 0x10, 0xC0})
	require.NoError(t, err)
	assert.Equal(t, 1, h.Layer)
	assert.Equal(t, 1, h.Channels())
	assert.Equal(t, 32000, h.Bitrate)
	assert.Equal(t, 384, h.Samples)
	assert.Equal(t, (12*32000/44100)*4, h.FrameLength)
}

func TestParseFrameHeaderRejects(t *testing.T) {
	cases := map[string][]byte{
		"short":            {0xFF, 0xFB},
		"no sync":          {0x00, 0xFB, 0x90, 0x00},
		"reserved version": {0xFF, 0xEB, 0x90, 0x00},
		"reserved layer":   {0xFF, 0xF9, 0x90, 0x00},
		"free bitrate":     {0xFF, 0xFB, 0x00, 0x00},
		"bad bitrate":      {0xFF, 0xFB, 0xF0, 0x00},
		"reserved rate":    {0xFF, 0xFB, 0x9C, 0x00},
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFrameHeader(b)
			assert.Error(t, err)
		})
	}
}

func TestReadID3v2(t *testing.T) {
	data := append(id3v2Tag(100), mpeg1Header...)
	br := bufio.NewReader(bytes.NewReader(data))

	h, err := ReadID3v2(br)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, 100, h.Size)
	assert.Equal(t, 110, h.TotalSize())

	next, err := br.Peek(4)
	require.NoError(t, err)
	assert.Equal(t, mpeg1Header, next)

	// nothing is consumed without a tag
	br = bufio.NewReader(bytes.NewReader(mpeg1Header))
	h, err = ReadID3v2(br)
	require.NoError(t, err)
	assert.Nil(t, h)
	assert.Equal(t, 4, br.Buffered())
}

func TestScan(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(id3v2Tag(64))
	for range 10 {
		buf.Write(frame(mpeg1Header, 417))
	}
	// garbage between frames is skipped
	buf.Write([]byte{1, 2, 3})
	buf.Write(frame([]byte{0xFF, 0xFB, 0xA0, 0x00}, 522))

	v1 := make([]byte, 128)
	copy(v1, "TAG")
	copy(v1[3:], "Ocean Waves")
	copy(v1[33:], "Drew Sky")
	copy(v1[93:], "2001")
	v1[127] = 17
	buf.Write(v1)

	info, err := Scan(&buf)
	require.NoError(t, err)

	require.NotNil(t, info.ID3v2)
	assert.Equal(t, 64, info.ID3v2.Size)
	assert.Equal(t, 11, info.Frames)
	assert.True(t, info.VBR)
	assert.Equal(t, 128000, info.First.Bitrate)
	assert.Equal(t, time.Duration(11*1152)*time.Second/44100, info.Duration)

	require.NotNil(t, info.ID3v1)
	assert.Equal(t, "Ocean Waves", info.ID3v1.Title)
	assert.Equal(t, "Drew Sky", info.ID3v1.Artist)
	assert.Equal(t, "2001", info.ID3v1.Year)
	assert.Equal(t, byte(17), info.ID3v1.Genre)
}

func TestScanNoFrames(t *testing.T) {
	_, err := Scan(bytes.NewReader([]byte("definitely not an mp3 file")))
	require.Error(t, err)
	assert.True(t, errors.Is(errors.TagOpen, err))

	_, err = Scan(bytes.NewReader(nil))
	assert.True(t, errors.Is(errors.TagOpen, err))
}

func TestScanTruncatedLastFrame(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(frame(mpeg2Header, 208))
	buf.Write(frame(mpeg2Header, 100))

	info, err := Scan(&buf)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Frames)
	assert.False(t, info.VBR)
}
