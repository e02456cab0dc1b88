package codec

import (
	"encoding/binary"
	"fmt"

	"hdxplay/internal/security"
	"hdxplay/pkg/spec"

	"github.com/hraban/opus"
)

// packetDecoder is the part of *opus.Decoder we use.
type packetDecoder interface {
	Decode(data []byte, pcm []int16) (int, error)
}

// OpusDecoder reads the HDX stream framing: uint16 big-endian length, then
// that many bytes of opus packet, optionally AES-GCM sealed.
type OpusDecoder struct {
	rate     int
	channels int
	sealer   *security.Sealer

	newPacket func() (packetDecoder, error)
	dec       packetDecoder
}

func NewOpusDecoder(rate, channels int, sealer *security.Sealer) (*OpusDecoder, error) {
	return newOpusDecoder(rate, channels, sealer, func() (packetDecoder, error) {
		return opus.NewDecoder(rate, channels)
	})
}

func newOpusDecoder(rate, channels int, sealer *security.Sealer, newPacket func() (packetDecoder, error)) (*OpusDecoder, error) {
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("codec: opus channels %d", channels)
	}
	d := &OpusDecoder{rate: rate, channels: channels, sealer: sealer, newPacket: newPacket}
	dec, err := newPacket()
	if err != nil {
		return nil, fmt.Errorf("codec: opus decoder: %w", err)
	}
	d.dec = dec
	return d, nil
}

func (d *OpusDecoder) MaxFrameBytes() int {
	n := 2 + spec.OpusMaxPacket
	if d.sealer != nil {
		n += d.sealer.Overhead()
	}
	return n
}

func (d *OpusDecoder) MaxSamples() int {
	return spec.OpusMaxFrameSamp * d.channels
}

func (d *OpusDecoder) Reset() {
	if dec, err := d.newPacket(); err == nil {
		d.dec = dec
	}
}

func (d *OpusDecoder) DecodeFrame(in []byte, pcm []int16) (int, FrameInfo) {
	if len(in) < 2 {
		return 0, FrameInfo{}
	}
	sz := int(binary.BigEndian.Uint16(in))
	if sz == 0 {
		return 0, FrameInfo{FrameBytes: 2}
	}
	if 2+sz > d.MaxFrameBytes() {
		// Panjang tidak masuk akal, buang prefix dan cari sinkron lagi
		return 0, FrameInfo{FrameBytes: 2}
	}
	if len(in) < 2+sz {
		return 0, FrameInfo{}
	}

	info := FrameInfo{FrameBytes: 2 + sz, Channels: d.channels, SampleRate: d.rate}
	pkt := in[2 : 2+sz]
	if d.sealer != nil {
		plain, err := d.sealer.Open(pkt)
		if err != nil {
			return 0, info
		}
		pkt = plain
	}

	n, err := d.dec.Decode(pkt, pcm)
	if err != nil || n <= 0 {
		return 0, info
	}
	return n * d.channels, info
}
