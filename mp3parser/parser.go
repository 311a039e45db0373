// Package mp3parser walks the frames of an MPEG audio stream
package mp3parser

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"time"

	"metadata-injector/errors"
)

// read syncsafe int for ID3v2 size
func syncSafeToInt(b []byte) int {
	return int(b[0]&0x7F)<<21 |
		int(b[1]&0x7F)<<14 |
		int(b[2]&0x7F)<<7 |
		int(b[3]&0x7F)
}

// ReadID3v2 consumes an ID3v2 tag at the current position of br. A nil
// header is returned when there is none, nothing is consumed in that case.
func ReadID3v2(br *bufio.Reader) (*ID3v2Header, error) {
	buf, err := br.Peek(10)
	if err != nil {
		if err == io.EOF || err == bufio.ErrBufferFull || len(buf) < 10 {
			return nil, nil
		}
		return nil, err
	}
	if string(buf[:3]) != "ID3" {
		return nil, nil
	}
	h := &ID3v2Header{
		Version: [2]byte{buf[3], buf[4]},
		Flags:   buf[5],
		Size:    syncSafeToInt(buf[6:10]),
	}

	if _, err := br.Discard(h.TotalSize()); err != nil {
		return nil, fmt.Errorf("truncated ID3v2 tag: %w", err)
	}
	return h, nil
}

// kbps, indexed by [version row][layer-1][index]
var bitrateTable = [2][3][16]int{
	{ // MPEG-1
		{0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448, 0},
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, 0},
		{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0},
	},
	{ // MPEG-2 and 2.5
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, 0},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
	},
}

var sampleRateTable = map[int][3]int{
	MPEG1:  {44100, 48000, 32000},
	MPEG2:  {22050, 24000, 16000},
	MPEG25: {11025, 12000, 8000},
}

// ParseFrameHeader decodes a 4 byte frame header
func ParseFrameHeader(b []byte) (*FrameHeader, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("short frame header")
	}
	header := binary.BigEndian.Uint32(b)

	// check sync
	if (header & 0xFFE00000) != 0xFFE00000 {
		return nil, fmt.Errorf("invalid sync word: 0x%08X", header)
	}

	versionID := int((header >> 19) & 0x3)
	layerBits := int((header >> 17) & 0x3)
	prot := ((header >> 16) & 0x1) == 0
	bitrateIdx := int((header >> 12) & 0xF)
	sampleRateIdx := int((header >> 10) & 0x3)
	padding := ((header >> 9) & 0x1) == 1
	channelMode := int((header >> 6) & 0x3)

	if versionID == reserved || layerBits == 0 {
		return nil, fmt.Errorf("reserved version or layer")
	}
	if sampleRateIdx == 3 {
		return nil, fmt.Errorf("reserved sample rate")
	}
	layer := 4 - layerBits

	row := 0
	if versionID != MPEG1 {
		row = 1
	}
	bitrate := bitrateTable[row][layer-1][bitrateIdx] * 1000
	sampleRate := sampleRateTable[versionID][sampleRateIdx]
	if bitrate == 0 {
		return nil, fmt.Errorf("free format or invalid bitrate")
	}

	var frameLen, samples int
	switch {
	case layer == 1:
		frameLen = (12*bitrate/sampleRate + btoi(padding)) * 4
		samples = 384
	case layer == 3 && versionID != MPEG1:
		frameLen = 72*bitrate/sampleRate + btoi(padding)
		samples = 576
	default:
		frameLen = 144*bitrate/sampleRate + btoi(padding)
		samples = 1152
	}

	return &FrameHeader{
		VersionID:     versionID,
		Layer:         layer,
		ProtectionBit: prot,
		Bitrate:       bitrate,
		SampleRate:    sampleRate,
		Padding:       padding,
		ChannelMode:   channelMode,
		FrameLength:   frameLen,
		Samples:       samples,
	}, nil
}

func parseID3v1(buf []byte) *ID3v1Tag {
	field := func(b []byte) string {
		return strings.TrimRight(string(b), "\x00 ")
	}
	return &ID3v1Tag{
		Title:   field(buf[3:33]),
		Artist:  field(buf[33:63]),
		Album:   field(buf[63:93]),
		Year:    field(buf[93:97]),
		Comment: field(buf[97:127]),
		Genre:   buf[127],
	}
}

// Scan walks the whole stream: a leading ID3v2 tag, every MPEG audio frame
// and a trailing ID3v1 tag. Bytes that are not part of a frame are skipped
// until the next sync word.
func Scan(r io.Reader) (*Info, error) {
	const op errors.Op = "mp3parser.Scan"

	br := bufio.NewReaderSize(r, 64<<10)
	info := &Info{}

	id3, err := ReadID3v2(br)
	if err != nil {
		return nil, errors.E(op, errors.TagOpen, err)
	}
	info.ID3v2 = id3

	var samples int64
	for {
		b, err := br.Peek(4)
		if len(b) < 4 {
			if err != nil && err != io.EOF {
				return nil, errors.E(op, errors.TagOpen, err)
			}
			break
		}

		if string(b[:3]) == "TAG" {
			tail, _ := br.Peek(129)
			if len(tail) == 128 {
				info.ID3v1 = parseID3v1(tail)
				break
			}
		}

		h, err := ParseFrameHeader(b)
		if err != nil {
			// resync one byte further on
			br.Discard(1)
			continue
		}
		if _, err := br.Discard(h.FrameLength); err != nil {
			// a truncated last frame doesn't count
			break
		}

		if info.First == nil {
			info.First = h
		} else if h.Bitrate != info.First.Bitrate {
			info.VBR = true
		}
		info.Frames++
		samples += int64(h.Samples)
	}

	if info.First == nil {
		return nil, errors.E(op, errors.TagOpen, "no MPEG audio frames found")
	}
	info.Duration = time.Duration(samples * int64(time.Second) / int64(info.First.SampleRate))

	return info, nil
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
