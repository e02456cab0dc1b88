package codec

import (
	"encoding/binary"
	"fmt"
)

// RawDecoder passes s16le PCM through in fixed-size chunks. The last chunk of
// a stream may be shorter.
type RawDecoder struct {
	rate     int
	channels int
	chunk    int
}

func NewRawDecoder(rate, channels, chunk int) (*RawDecoder, error) {
	if rate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("codec: raw format %d Hz x %d", rate, channels)
	}
	frame := 2 * channels
	if chunk < frame {
		chunk = frame
	}
	// align ke batas sampel supaya tidak memotong satu frame stereo
	chunk -= chunk % frame
	return &RawDecoder{rate: rate, channels: channels, chunk: chunk}, nil
}

func (d *RawDecoder) MaxFrameBytes() int { return d.chunk }
func (d *RawDecoder) MaxSamples() int    { return d.chunk / 2 }
func (d *RawDecoder) Reset()             {}

func (d *RawDecoder) DecodeFrame(in []byte, pcm []int16) (int, FrameInfo) {
	frame := 2 * d.channels
	n := len(in)
	if n > d.chunk {
		n = d.chunk
	}
	n -= n % frame
	if max := len(pcm) * 2; n > max {
		n = max - max%frame
	}
	if n == 0 {
		return 0, FrameInfo{}
	}

	for i := 0; i < n/2; i++ {
		pcm[i] = int16(binary.LittleEndian.Uint16(in[i*2:]))
	}
	return n / 2, FrameInfo{FrameBytes: n, Channels: d.channels, SampleRate: d.rate}
}
