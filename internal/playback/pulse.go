package playback

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/jfreymuth/pulse"
)

const defaultLatency = 0.05

// PulseOpener 每次播放在同一个 pulse 连接上新建一个 playback stream
type PulseOpener struct {
	client  *pulse.Client
	latency float64
}

func NewPulseOpener(server, appName string) (*PulseOpener, error) {
	options := []pulse.ClientOption{pulse.ClientApplicationName(appName)}
	if server != "" {
		options = append(options, pulse.ClientServerString(server))
	}
	client, err := pulse.NewClient(options...)
	if err != nil {
		return nil, fmt.Errorf("connect pulse for playback: %w", err)
	}
	return &PulseOpener{client: client, latency: defaultLatency}, nil
}

func (o *PulseOpener) Open(req Request, src io.Reader) (Stream, error) {
	reader, err := newSampleReader(req.Format, src)
	if err != nil {
		return nil, err
	}

	opts := []pulse.PlaybackOption{
		pulse.PlaybackSampleRate(req.Rate),
		pulse.PlaybackLatency(o.latency),
	}
	if req.Channels == 1 {
		opts = append(opts, pulse.PlaybackMono)
	} else {
		opts = append(opts, pulse.PlaybackStereo)
	}
	sink, err := o.client.SinkByID(req.Sink)
	if err != nil {
		return nil, fmt.Errorf("lookup sink %s: %w", req.Sink, err)
	}
	opts = append(opts, pulse.PlaybackSink(sink))

	stream, err := o.client.NewPlayback(reader, opts...)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (o *PulseOpener) Close() {
	o.client.Close()
}

// sampleDecoder 从文件读取小端原始采样
type sampleDecoder struct {
	src     io.Reader
	scratch []byte
}

// read 读满 size 字节，文件结束时返回已读部分和 pulse.EndOfData
func (d *sampleDecoder) read(size int) ([]byte, error) {
	if cap(d.scratch) < size {
		d.scratch = make([]byte, size)
	}
	buf := d.scratch[:size]
	n, err := io.ReadFull(d.src, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return buf[:n], pulse.EndOfData
	}
	return buf[:n], err
}

func newSampleReader(format SampleFormat, src io.Reader) (pulse.Reader, error) {
	d := &sampleDecoder{src: src}
	switch format {
	case FormatU8:
		return pulse.Uint8Reader(func(out []byte) (int, error) {
			raw, err := d.read(len(out))
			return copy(out, raw), err
		}), nil
	case FormatS16LE:
		return pulse.Int16Reader(func(out []int16) (int, error) {
			raw, err := d.read(len(out) * 2)
			return decodeInt16(out, raw), err
		}), nil
	case FormatS32LE:
		return pulse.Int32Reader(func(out []int32) (int, error) {
			raw, err := d.read(len(out) * 4)
			return decodeInt32(out, raw), err
		}), nil
	case FormatFloat32LE:
		return pulse.Float32Reader(func(out []float32) (int, error) {
			raw, err := d.read(len(out) * 4)
			return decodeFloat32(out, raw), err
		}), nil
	default:
		return nil, fmt.Errorf("%w: unsupported format %s", ErrInvalidParameter, format)
	}
}

// 末尾不完整的采样被丢弃
func decodeInt16(out []int16, raw []byte) int {
	n := len(raw) / 2
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return n
}

func decodeInt32(out []int32, raw []byte) int {
	n := len(raw) / 4
	for i := 0; i < n; i++ {
		out[i] = int32(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return n
}

func decodeFloat32(out []float32, raw []byte) int {
	n := len(raw) / 4
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return n
}
