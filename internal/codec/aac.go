package codec

import (
	"errors"
	"time"

	"github.com/zsiec/esdemux/media"
)

// ErrInvalidADTS is returned for a malformed ADTS header.
var ErrInvalidADTS = errors.New("codec: invalid ADTS header")

// AACSamplesPerFrame is the number of PCM samples one AAC-LC frame decodes to.
const AACSamplesPerFrame = 1024

// Sampling frequency table, ISO/IEC 14496-3 Table 1.18.
var aacSampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350,
}

// ADTSFrame is one AAC frame with its ADTS header.
type ADTSFrame struct {
	// Data is the complete frame, header included.
	Data []byte
	// ObjectType is the MPEG-4 audio object type (2 for AAC-LC).
	ObjectType int
	SampleRate int
	// SampleRateIndex indexes the sampling frequency table.
	SampleRateIndex int
	Channels        int
	HeaderLen       int
}

// Duration returns the playback time of the frame.
func (f ADTSFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(AACSamplesPerFrame) * time.Second / time.Duration(f.SampleRate)
}

// Payload returns the raw AAC data after the header.
func (f ADTSFrame) Payload() []byte { return f.Data[f.HeaderLen:] }

// SplitADTS cuts a buffer of concatenated ADTS frames into frames. Garbage
// before a sync word is skipped and a truncated final frame is dropped.
func SplitADTS(data []byte) ([]ADTSFrame, error) {
	var frames []ADTSFrame
	for off := 0; len(data)-off >= 7; {
		if data[off] != 0xFF || data[off+1]&0xF0 != 0xF0 {
			off++
			continue
		}
		hdr := data[off:]

		headerLen := 7
		if hdr[1]&0x01 == 0 { // protection_absent == 0 means a CRC follows
			headerLen = 9
		}
		srIndex := int(hdr[2]>>2) & 0x0F
		if srIndex >= len(aacSampleRates) {
			return frames, ErrInvalidADTS
		}
		size := int(hdr[3]&0x03)<<11 | int(hdr[4])<<3 | int(hdr[5]>>5)
		if size < headerLen || size > len(hdr) {
			break
		}

		frames = append(frames, ADTSFrame{
			Data:            hdr[:size],
			ObjectType:      int(hdr[2]>>6) + 1,
			SampleRate:      aacSampleRates[srIndex],
			SampleRateIndex: srIndex,
			Channels:        int(hdr[2]&0x01)<<2 | int(hdr[3]>>6),
			HeaderLen:       headerLen,
		})
		off += size
	}
	return frames, nil
}

// AudioSpecificConfig returns the two-byte MPEG-4 AudioSpecificConfig for
// the frame's stream parameters.
func (f ADTSFrame) AudioSpecificConfig() []byte {
	v := uint16(f.ObjectType)<<11 | uint16(f.SampleRateIndex)<<7 | uint16(f.Channels)<<3
	return []byte{byte(v >> 8), byte(v)}
}

// AACAudioConfig describes an AAC track from one of its ADTS frames.
func AACAudioConfig(f ADTSFrame) *media.AudioDecoderConfig {
	return &media.AudioDecoderConfig{
		Codec:        media.CodecAAC,
		SampleFormat: media.SampleFormatPlanarF32,
		Channels:     f.Channels,
		SampleRate:   f.SampleRate,
		ExtraData:    f.AudioSpecificConfig(),
	}
}
