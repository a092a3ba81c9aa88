// Package audioio reads note recordings and writes rendered audio.
package audioio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/cwbudde/algo-harmonics/fault"
	"github.com/cwbudde/wav"
	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/go-audio/audio"
	"github.com/mewkiz/flac"
)

// Extensions lists the file types ReadMono understands.
var Extensions = []string{".wav", ".flac", ".mp3"}

// Supported reports whether path has a readable extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ReadMono decodes an audio file by extension and averages its channels.
// Samples are in [-1, 1).
func ReadMono(path string) ([]float64, int, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return ReadWAVMono(path)
	case ".flac":
		return ReadFLACMono(path)
	case ".mp3":
		return ReadMP3Mono(path)
	default:
		return nil, 0, fmt.Errorf("%w: unsupported audio file: %s", fault.ErrInputShape, path)
	}
}

func ReadWAVMono(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: invalid wav file: %s", fault.ErrInputShape, path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, 0, fmt.Errorf("%w: invalid wav buffer: %s", fault.ErrInputShape, path)
	}
	ch := buf.Format.NumChannels
	frames := len(buf.Data) / ch
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < ch; c++ {
			sum += float64(buf.Data[i*ch+c])
		}
		out[i] = sum / float64(ch)
	}
	return out, buf.Format.SampleRate, nil
}

// ReadFLACMono decodes a FLAC file, scaling integer samples by their bit
// depth.
func ReadFLACMono(path string) ([]float64, int, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s: %v", fault.ErrInputShape, path, err)
	}
	defer stream.Close()

	info := stream.Info
	if info == nil || info.NChannels < 1 || info.BitsPerSample < 1 {
		return nil, 0, fmt.Errorf("%w: invalid flac stream info: %s", fault.ErrInputShape, path)
	}
	scale := 1.0 / float64(int64(1)<<(info.BitsPerSample-1))
	out := make([]float64, 0, info.NSamples)
	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %s: %v", fault.ErrInputShape, path, err)
		}
		ch := len(frame.Subframes)
		if ch == 0 {
			continue
		}
		n := frame.Subframes[0].NSamples
		for i := 0; i < n; i++ {
			var sum float64
			for _, sub := range frame.Subframes {
				sum += float64(sub.Samples[i])
			}
			out = append(out, sum*scale/float64(ch))
		}
	}
	return out, int(info.SampleRate), nil
}

// ReadMP3Mono decodes an MP3 file through beep.
func ReadMP3Mono(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	stream, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("%w: %s: %v", fault.ErrInputShape, path, err)
	}
	defer stream.Close()
	return drain(stream, format.NumChannels), int(format.SampleRate), nil
}

// drain reads a beep stream to the end. beep always delivers stereo pairs;
// mono sources carry the same value in both.
func drain(s beep.Streamer, channels int) []float64 {
	var out []float64
	if n := lengthOf(s); n > 0 {
		out = make([]float64, 0, n)
	}
	buf := make([][2]float64, 4096)
	for {
		n, ok := s.Stream(buf)
		for i := 0; i < n; i++ {
			if channels == 1 {
				out = append(out, buf[i][0])
			} else {
				out = append(out, 0.5*(buf[i][0]+buf[i][1]))
			}
		}
		if !ok {
			break
		}
	}
	return out
}

func lengthOf(s beep.Streamer) int {
	if l, ok := s.(beep.StreamSeeker); ok {
		return l.Len()
	}
	return 0
}

func ResampleIfNeeded(in []float64, fromRate int, toRate int) ([]float64, error) {
	if fromRate == toRate {
		return in, nil
	}
	r, err := dspresample.NewForRates(
		float64(fromRate),
		float64(toRate),
		dspresample.WithQuality(dspresample.QualityBest),
	)
	if err != nil {
		return nil, err
	}
	return r.Process(in), nil
}

// ReadMonoAt reads path and resamples it to rate. A rate of zero keeps the
// file's own rate.
func ReadMonoAt(path string, rate int) ([]float64, int, error) {
	x, sr, err := ReadMono(path)
	if err != nil {
		return nil, 0, err
	}
	if rate <= 0 || sr == rate {
		return x, sr, nil
	}
	y, err := ResampleIfNeeded(x, sr, rate)
	if err != nil {
		return nil, 0, fmt.Errorf("resample %s: %w", path, err)
	}
	return y, rate, nil
}

func WriteMonoWAV(path string, data []float32, sampleRate int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return EncodeMonoWAV(f, data, sampleRate)
}

// EncodeMonoWAV writes 16-bit mono PCM to w.
func EncodeMonoWAV(w io.WriteSeeker, data []float32, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)
	buf := &audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: 1,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}
