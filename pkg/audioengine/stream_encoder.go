package audioengine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"hdxplay/internal/security"
	"hdxplay/pkg/spec"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hraban/opus"
)

var ErrNotWav = errors.New("audioengine: input is not a valid wav file")

type EncodeStats struct {
	Packets    int
	Bytes      int64
	SampleRate int
	Channels   int
	Duration   float64 // detik
}

// EncodeWavToStream membaca WAV dan menulis stream HDX: tiap paket opus
// 20ms diawali panjang uint16 big-endian. Kalau sealer tidak nil, paket
// disegel AES-GCM sebelum ditulis.
func EncodeWavToStream(in io.ReadSeeker, out io.Writer, sealer *security.Sealer) (EncodeStats, error) {
	dec := wav.NewDecoder(in)
	if !dec.IsValidFile() {
		return EncodeStats{}, ErrNotWav
	}
	dec.ReadInfo()

	rate := int(dec.SampleRate)
	channels := int(dec.NumChans)
	if channels != 1 && channels != 2 {
		return EncodeStats{}, fmt.Errorf("audioengine: %d channels not supported", channels)
	}

	enc, err := opus.NewEncoder(rate, channels, opus.AppAudio)
	if err != nil {
		return EncodeStats{}, fmt.Errorf("audioengine: opus encoder %d Hz: %w", rate, err)
	}

	frameSize := rate * spec.FrameSize / 1000
	pcmBuf := make([]int16, frameSize*channels)
	opusBuf := make([]byte, spec.OpusMaxPacket)
	var hdr [2]byte

	// Baca 1 detik per siklus I/O
	intBuf := &audio.IntBuffer{
		Data:   make([]int, rate*channels),
		Format: &audio.Format{NumChannels: channels, SampleRate: rate},
	}
	shift := int(dec.BitDepth) - 16

	st := EncodeStats{SampleRate: rate, Channels: channels}
	filled := 0
	totalSamples := 0

	flush := func() error {
		n, err := enc.Encode(pcmBuf, opusBuf)
		if err != nil {
			return err
		}
		pkt := opusBuf[:n]
		if sealer != nil {
			if pkt, err = sealer.Seal(pkt); err != nil {
				return err
			}
		}
		binary.BigEndian.PutUint16(hdr[:], uint16(len(pkt)))
		if _, err := out.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := out.Write(pkt); err != nil {
			return err
		}
		st.Packets++
		st.Bytes += int64(2 + len(pkt))
		return nil
	}

	for {
		n, err := dec.PCMBuffer(intBuf)
		if err != nil && err != io.EOF {
			return st, err
		}
		if n == 0 {
			break
		}

		for i := 0; i < n; i++ {
			v := intBuf.Data[i]
			switch {
			case shift > 0:
				v >>= shift
			case shift < 0:
				v = (v - 128) << 8 // 8-bit WAV unsigned
			}
			pcmBuf[filled] = int16(v)
			filled++
			if filled == len(pcmBuf) {
				if err := flush(); err != nil {
					return st, err
				}
				filled = 0
			}
		}
		totalSamples += n

		if err == io.EOF {
			break
		}
	}

	if filled > 0 {
		// Padding silence untuk frame terakhir
		clear(pcmBuf[filled:])
		if err := flush(); err != nil {
			return st, err
		}
	}

	st.Duration = float64(totalSamples) / float64(rate) / float64(channels)
	return st, nil
}
