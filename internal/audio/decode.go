// Package audio decodes uploaded clips and renders the plot data shown next to a
// detection: waveform envelope and linear/mel spectrograms.
package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
)

var (
	// ErrDecode means the file is not a playable clip in a supported format.
	ErrDecode = errors.New("audio: cannot decode")
	// ErrTooLong means the clip decodes to more audio than the caller allows.
	ErrTooLong = errors.New("audio: clip too long")
)

// Formats lists the accepted extensions without the dot.
var Formats = []string{"wav", "mp3", "ogg", "flac"}

// Supported reports whether ext (with or without the dot) is a decodable format.
func Supported(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, f := range Formats {
		if f == ext {
			return true
		}
	}
	return false
}

// Clip is a decoded, downmixed recording.
type Clip struct {
	Samples    []float64 // mono, [-1, 1]
	SampleRate int
	Channels   int // channels in the source file
}

// Duration in seconds.
func (c *Clip) Duration() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Decode reads the file at path, choosing the codec from its extension.
// A positive maxDuration rejects longer clips with ErrTooLong: from the header
// when the format declares its length, otherwise as soon as decoding passes it.
func Decode(path string, maxDuration time.Duration) (*Clip, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if !Supported(ext) {
		return nil, fmt.Errorf("%w: unsupported format %q", ErrDecode, ext)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open: %w", err)
	}
	defer f.Close()

	lim := limit(maxDuration)
	var clip *Clip
	switch ext {
	case "wav":
		clip, err = decodeWAV(f, lim)
	case "mp3":
		clip, err = decodeMP3(f, lim)
	case "flac":
		clip, err = decodeFLAC(f, lim)
	case "ogg":
		clip, err = decodeOgg(f, lim)
	}
	if errors.Is(err, ErrTooLong) {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, filepath.Base(path), err)
	}
	if len(clip.Samples) == 0 || clip.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: %s: no audio frames", ErrDecode, filepath.Base(path))
	}
	return clip, nil
}

// limit is the longest clip a decode may produce; zero means unbounded.
type limit time.Duration

// frames is the limit in sample frames at rate.
func (l limit) frames(rate int) int64 {
	if l <= 0 || rate <= 0 {
		return math.MaxInt64
	}
	return int64(time.Duration(l).Seconds() * float64(rate))
}

func (l limit) exceeded() error {
	return fmt.Errorf("%w: longer than %s", ErrTooLong, time.Duration(l))
}

const wavFormatFloat = 3

func decodeWAV(r io.ReadSeeker, lim limit) (*Clip, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, errors.New("not a valid wav file")
	}
	if err := d.FwdToPCM(); err != nil {
		return nil, err
	}
	channels := int(d.NumChans)
	depth := int(d.BitDepth)
	if channels == 0 || depth == 0 {
		return nil, errors.New("missing format chunk")
	}
	if d.WavAudioFormat == wavFormatFloat && depth != 32 {
		return nil, fmt.Errorf("unsupported %d-bit float samples", depth)
	}
	maxFrames := lim.frames(int(d.SampleRate))
	frameBytes := channels * ((depth-1)/8 + 1)
	// streamed files leave the data size at 0xFFFFFFFF
	if uint32(d.PCMSize) != math.MaxUint32 && int64(d.PCMSize/frameBytes) > maxFrames {
		return nil, lim.exceeded()
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if int64(len(buf.Data)/channels) > maxFrames {
		return nil, lim.exceeded()
	}
	pcm := make([]float64, len(buf.Data))
	if d.WavAudioFormat == wavFormatFloat {
		// the decoder hands back the raw IEEE 754 bits
		for i, s := range buf.Data {
			pcm[i] = float64(math.Float32frombits(uint32(s)))
		}
	} else {
		full := float64(int(1) << (depth - 1))
		offset := 0.0
		if depth == 8 {
			// 8-bit PCM is unsigned
			offset = full
		}
		for i, s := range buf.Data {
			pcm[i] = (float64(s) - offset) / full
		}
	}
	return &Clip{Samples: downmix(pcm, channels), SampleRate: int(d.SampleRate), Channels: channels}, nil
}

// go-mp3 always yields 16-bit little endian stereo, whatever the source layout.
const mp3FrameBytes = 4

func decodeMP3(r io.ReadSeeker, lim limit) (*Clip, error) {
	channels, err := mp3Channels(r)
	if err != nil {
		return nil, err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	maxFrames := lim.frames(d.SampleRate())
	if n := d.Length(); n > 0 && n/mp3FrameBytes > maxFrames {
		return nil, lim.exceeded()
	}
	var src io.Reader = d
	if maxFrames < math.MaxInt64 {
		src = io.LimitReader(d, (maxFrames+1)*mp3FrameBytes)
	}
	raw, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)/mp3FrameBytes) > maxFrames {
		return nil, lim.exceeded()
	}
	pcm := make([]float64, len(raw)/2)
	for i := range pcm {
		pcm[i] = float64(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768
	}
	return &Clip{Samples: downmix(pcm, 2), SampleRate: d.SampleRate(), Channels: channels}, nil
}

// mp3Channels reads the channel mode from the first frame header, after any
// ID3v2 tag.
func mp3Channels(r io.Reader) (int, error) {
	const maxScan = 64 << 10
	br := bufio.NewReader(r)
	head, err := br.Peek(10)
	if err != nil {
		return 0, fmt.Errorf("mp3 header: %w", err)
	}
	if string(head[:3]) == "ID3" {
		size := int(head[6]&0x7f)<<21 | int(head[7]&0x7f)<<14 | int(head[8]&0x7f)<<7 | int(head[9]&0x7f)
		skip := 10 + size
		if head[5]&0x10 != 0 {
			skip += 10
		}
		if _, err := br.Discard(skip); err != nil {
			return 0, fmt.Errorf("mp3 header: %w", err)
		}
	}
	for scanned := 0; scanned < maxScan; scanned++ {
		b, err := br.Peek(4)
		if err != nil {
			break
		}
		// sync word, a valid layer and bitrate index
		if b[0] == 0xFF && b[1]&0xE0 == 0xE0 && b[1]&0x06 != 0 && b[2]>>4 != 0x0F {
			if b[3]>>6 == 3 {
				return 1, nil
			}
			return 2, nil
		}
		if _, err := br.Discard(1); err != nil {
			break
		}
	}
	return 0, errors.New("no mpeg audio frame found")
}

func decodeFLAC(r io.Reader, lim limit) (*Clip, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	info := stream.Info
	maxFrames := lim.frames(int(info.SampleRate))
	// NSamples is 0 when the encoder did not know the length up front
	if info.NSamples > 0 && info.NSamples > uint64(maxFrames) {
		return nil, lim.exceeded()
	}
	channels := int(info.NChannels)
	full := float64(int64(1) << (info.BitsPerSample - 1))
	var mono []float64
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		for i := 0; i < int(frame.BlockSize); i++ {
			var sum float64
			for ch := 0; ch < channels; ch++ {
				sum += float64(frame.Subframes[ch].Samples[i])
			}
			mono = append(mono, sum/float64(channels)/full)
		}
		if int64(len(mono)) > maxFrames {
			return nil, lim.exceeded()
		}
	}
	return &Clip{Samples: mono, SampleRate: int(info.SampleRate), Channels: channels}, nil
}

func decodeOgg(r io.Reader, lim limit) (*Clip, error) {
	vr, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, err
	}
	channels := vr.Channels()
	if channels <= 0 {
		return nil, errors.New("no channels")
	}
	maxFrames := lim.frames(vr.SampleRate())
	// Length is known only for seekable input
	if n := vr.Length(); n > maxFrames {
		return nil, lim.exceeded()
	}

	buf := make([]float32, 4096*channels)
	var mono []float64
	for {
		n, err := vr.Read(buf)
		for i := 0; i+channels <= n; i += channels {
			var sum float64
			for ch := 0; ch < channels; ch++ {
				sum += float64(buf[i+ch])
			}
			mono = append(mono, sum/float64(channels))
		}
		if int64(len(mono)) > maxFrames {
			return nil, lim.exceeded()
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return &Clip{Samples: mono, SampleRate: vr.SampleRate(), Channels: channels}, nil
}

// downmix averages interleaved channels into one.
func downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return interleaved
	}
	out := make([]float64, len(interleaved)/channels)
	for i := range out {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += interleaved[i*channels+ch]
		}
		out[i] = sum / float64(channels)
	}
	return out
}
