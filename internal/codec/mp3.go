package codec

import (
	"encoding/binary"
	"io"

	"hdxplay/pkg/spec"

	"github.com/hajimehoshi/go-mp3"
)

const (
	// go-mp3 selalu keluar stereo s16le
	mp3PCMBytesV1  = 1152 * 2 * 2
	mp3PCMBytesLSF = 576 * 2 * 2
	id3v2HeaderLen = 10
	id3v1Len       = 128
)

// version bits di header
const (
	mpegV25 = 0x0
	mpegV2  = 0x2
	mpegV1  = 0x3
)

var (
	mp3BitratesV1  = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
	mp3BitratesLSF = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}

	mp3SampleRates = map[byte][4]int{
		mpegV1:  {44100, 48000, 32000, 0},
		mpegV2:  {22050, 24000, 16000, 0},
		mpegV25: {11025, 12000, 8000, 0},
	}
)

type mp3Header struct {
	frameLen   int
	sampleRate int
	pcmBytes   int // PCM yang dikeluarkan go-mp3 untuk frame ini
}

// parseMP3Header accepts Layer III headers of MPEG-1, MPEG-2 and MPEG-2.5,
// the versions go-mp3 decodes. MPEG-2/2.5 (LSF) frames hold 576 samples.
func parseMP3Header(b []byte) (mp3Header, bool) {
	if len(b) < 4 || b[0] != 0xFF || b[1]&0xE0 != 0xE0 {
		return mp3Header{}, false
	}
	version := (b[1] >> 3) & 0x3
	layer := (b[1] >> 1) & 0x3
	rates, ok := mp3SampleRates[version]
	if !ok || layer != 0x1 {
		return mp3Header{}, false
	}

	lsf := version != mpegV1
	bitrate := mp3BitratesV1[b[2]>>4] * 1000
	if lsf {
		bitrate = mp3BitratesLSF[b[2]>>4] * 1000
	}
	rate := rates[(b[2]>>2)&0x3]
	if bitrate == 0 || rate == 0 {
		return mp3Header{}, false
	}
	padding := int((b[2] >> 1) & 0x1)

	if lsf {
		return mp3Header{
			frameLen:   72*bitrate/rate + padding,
			sampleRate: rate,
			pcmBytes:   mp3PCMBytesLSF,
		}, true
	}
	return mp3Header{
		frameLen:   144*bitrate/rate + padding,
		sampleRate: rate,
		pcmBytes:   mp3PCMBytesV1,
	}, true
}

// frameFeed hands go-mp3 exactly one frame at a time.
type frameFeed struct {
	buf []byte
}

func (f *frameFeed) Read(p []byte) (int, error) {
	if len(f.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(p, f.buf)
	f.buf = f.buf[n:]
	return n, nil
}

// MP3Decoder finds MPEG Layer III frames in a byte stream and decodes them
// one by one with go-mp3. ID3 tags and bytes between frames are skipped.
type MP3Decoder struct {
	feed frameFeed
	dec  *mp3.Decoder
	out  []byte
	skip int // sisa byte tag ID3 yang belum dibuang
}

func NewMP3Decoder() *MP3Decoder {
	return &MP3Decoder{out: make([]byte, mp3PCMBytesV1)}
}

func (d *MP3Decoder) MaxFrameBytes() int { return spec.MP3MainBuf }
func (d *MP3Decoder) MaxSamples() int    { return spec.MP3MaxSamples }

func (d *MP3Decoder) Reset() {
	d.dec = nil
	d.feed.buf = nil
	d.skip = 0
}

func (d *MP3Decoder) DecodeFrame(in []byte, pcm []int16) (int, FrameInfo) {
	if d.skip > 0 {
		n := d.skip
		if n > len(in) {
			n = len(in)
		}
		d.skip -= n
		return 0, FrameInfo{FrameBytes: n}
	}
	if len(in) < 4 {
		return 0, FrameInfo{}
	}

	if tag, ok := tagLength(in); ok {
		if tag == 0 {
			return 0, FrameInfo{} // header tag belum lengkap
		}
		n := tag
		if n > len(in) {
			n = len(in)
		}
		d.skip = tag - n
		return 0, FrameInfo{FrameBytes: n}
	}

	h, ok := parseMP3Header(in)
	if !ok {
		return 0, FrameInfo{FrameBytes: syncOffset(in)}
	}
	if len(in) < h.frameLen {
		return 0, FrameInfo{}
	}

	info := FrameInfo{FrameBytes: h.frameLen, Channels: 2, SampleRate: h.sampleRate}
	samples := h.pcmBytes / 2
	if len(pcm) < samples {
		return 0, info
	}

	d.feed.buf = append(d.feed.buf[:0], in[:h.frameLen]...)
	if d.dec == nil {
		dec, err := mp3.NewDecoder(&d.feed)
		if err != nil {
			d.feed.buf = nil
			return 0, info
		}
		d.dec = dec
	}

	if _, err := io.ReadFull(d.dec, d.out[:h.pcmBytes]); err != nil {
		// state bit reservoir rusak, mulai decoder baru di frame berikutnya
		d.dec = nil
		d.feed.buf = nil
		return 0, info
	}

	for i := 0; i < samples; i++ {
		pcm[i] = int16(binary.LittleEndian.Uint16(d.out[i*2:]))
	}
	return samples, info
}

// tagLength reports an ID3 tag at the front of in. ok with n == 0 means the
// tag header itself is not complete yet.
func tagLength(in []byte) (n int, ok bool) {
	switch {
	case len(in) >= 3 && string(in[:3]) == "ID3":
		if len(in) < id3v2HeaderLen {
			return 0, true
		}
		size := int(in[6]&0x7f)<<21 | int(in[7]&0x7f)<<14 | int(in[8]&0x7f)<<7 | int(in[9]&0x7f)
		n = id3v2HeaderLen + size
		if in[5]&0x10 != 0 {
			n += id3v2HeaderLen // footer
		}
		return n, true
	case len(in) >= 3 && string(in[:3]) == "TAG":
		return id3v1Len, true
	}
	return 0, false
}

// syncOffset returns how many leading bytes can be dropped before the next
// possible frame header. Trailing bytes that could start a header are kept.
func syncOffset(in []byte) int {
	for i := 1; i+1 < len(in); i++ {
		if in[i] == 0xFF && in[i+1]&0xE0 == 0xE0 {
			return i
		}
	}
	if in[len(in)-1] == 0xFF {
		return len(in) - 1
	}
	return len(in)
}
