package policy

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/viper"

	"github.com/webosce/audiod-pro/internal/audio"
	"github.com/webosce/audiod-pro/internal/logging"
)

// Entry 一个 streamType 的静态策略
type Entry struct {
	StreamType       string
	PolicyVolume     int
	Priority         int
	Group            int
	DefaultVolume    int
	MaxVolume        int
	MinVolume        int
	VolumeAdjustable bool
	CurrentVolume    int
	MuteStatus       bool
	Sink             string
	Source           string
	Ramp             bool
	Category         string
}

// rawEntry 文件中的条目，缺省字段用指针区分
type rawEntry struct {
	StreamType       string `mapstructure:"streamType"`
	PolicyVolume     int    `mapstructure:"policyVolume"`
	Priority         int    `mapstructure:"priority"`
	Group            int    `mapstructure:"group"`
	DefaultVolume    *int   `mapstructure:"defaultVolume"`
	MaxVolume        *int   `mapstructure:"maxVolume"`
	MinVolume        int    `mapstructure:"minVolume"`
	VolumeAdjustable *bool  `mapstructure:"volumeAdjustable"`
	CurrentVolume    *int   `mapstructure:"currentVolume"`
	MuteStatus       bool   `mapstructure:"muteStatus"`
	Sink             string `mapstructure:"sink"`
	Source           string `mapstructure:"source"`
	Ramp             bool   `mapstructure:"ramp"`
	Category         string `mapstructure:"category"`
}

type rawTable struct {
	VolumeSettings       []rawEntry `mapstructure:"volumeSettings"`
	SourceVolumeSettings []rawEntry `mapstructure:"sourceVolumeSettings"`
}

func (r rawEntry) entry() Entry {
	e := Entry{
		StreamType:       strings.TrimSpace(r.StreamType),
		PolicyVolume:     r.PolicyVolume,
		Priority:         r.Priority,
		Group:            r.Group,
		MaxVolume:        audio.MaxVolume,
		MinVolume:        r.MinVolume,
		VolumeAdjustable: true,
		MuteStatus:       r.MuteStatus,
		Sink:             r.Sink,
		Source:           r.Source,
		Ramp:             r.Ramp,
		Category:         r.Category,
	}
	if r.MaxVolume != nil {
		e.MaxVolume = *r.MaxVolume
	}
	if r.VolumeAdjustable != nil {
		e.VolumeAdjustable = *r.VolumeAdjustable
	}
	if r.DefaultVolume != nil {
		e.DefaultVolume = *r.DefaultVolume
	}
	e.CurrentVolume = e.DefaultVolume
	if r.CurrentVolume != nil {
		e.CurrentVolume = *r.CurrentVolume
	}
	return e
}

// Table 加载后只读的策略表
type Table struct {
	sinks       []Entry
	sources     []Entry
	sinkIndex   map[string]int
	sourceIndex map[string]int
}

// LoadTable 读取策略表文件，格式由扩展名决定（json/yaml）
func LoadTable(path string) (*Table, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read policy table %s: %w", path, err)
	}
	return decodeTable(v, path)
}

// ParseTable 从 reader 读取策略表
func ParseTable(r io.Reader, format string) (*Table, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("read policy table: %w", err)
	}
	return decodeTable(v, "<reader>")
}

func decodeTable(v *viper.Viper, name string) (*Table, error) {
	var raw rawTable
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("parse policy table %s: %w", name, err)
	}
	sinks := make([]Entry, 0, len(raw.VolumeSettings))
	for _, r := range raw.VolumeSettings {
		sinks = append(sinks, r.entry())
	}
	sources := make([]Entry, 0, len(raw.SourceVolumeSettings))
	for _, r := range raw.SourceVolumeSettings {
		sources = append(sources, r.entry())
	}
	t := NewTable(sinks, sources)
	logging.Infof("policy table %s loaded: %d sinks, %d sources", name, len(t.sinks), len(t.sources))
	return t, nil
}

// NewTable 校验条目并建立索引
// 非法条目跳过，streamType 重复时保留第一条
func NewTable(sinks, sources []Entry) *Table {
	t := &Table{
		sinkIndex:   make(map[string]int),
		sourceIndex: make(map[string]int),
	}
	t.sinks = addEntries(sinks, t.sinkIndex, "sink")
	t.sources = addEntries(sources, t.sourceIndex, "source")
	return t
}

func addEntries(in []Entry, index map[string]int, side string) []Entry {
	out := make([]Entry, 0, len(in))
	for _, e := range in {
		if e.StreamType == "" {
			logging.Warnf("policy table: skipping %s entry without streamType", side)
			continue
		}
		if _, dup := index[e.StreamType]; dup {
			logging.Warnf("policy table: duplicate %s streamType %s, keeping the first entry", side, e.StreamType)
			continue
		}
		if err := validateEntry(&e); err != nil {
			logging.Warnf("policy table: skipping %s %s: %v", side, e.StreamType, err)
			continue
		}
		index[e.StreamType] = len(out)
		out = append(out, e)
	}
	return out
}

func validateEntry(e *Entry) error {
	if e.MinVolume < audio.MinVolume || e.MaxVolume > audio.MaxVolume || e.MinVolume > e.MaxVolume {
		return fmt.Errorf("invalid volume range [%d, %d]", e.MinVolume, e.MaxVolume)
	}
	if e.Priority < 0 || e.Priority > audio.MaxPriority {
		return fmt.Errorf("priority %d out of range", e.Priority)
	}
	e.CurrentVolume = clamp(e.CurrentVolume, e.MinVolume, e.MaxVolume)
	e.DefaultVolume = clamp(e.DefaultVolume, e.MinVolume, e.MaxVolume)
	e.PolicyVolume = clamp(e.PolicyVolume, audio.MinVolume, audio.MaxVolume)
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Sink 查询输出流策略
func (t *Table) Sink(streamType string) (Entry, bool) {
	i, ok := t.sinkIndex[streamType]
	if !ok {
		return Entry{}, false
	}
	return t.sinks[i], true
}

// Source 查询输入流策略
func (t *Table) Source(streamType string) (Entry, bool) {
	i, ok := t.sourceIndex[streamType]
	if !ok {
		return Entry{}, false
	}
	return t.sources[i], true
}

// HasSink 供 track 注册校验
func (t *Table) HasSink(streamType string) bool {
	_, ok := t.sinkIndex[streamType]
	return ok
}

// SinkFor streamType 到虚拟 sink
func (t *Table) SinkFor(streamType string) (audio.Sink, bool) {
	if !t.HasSink(streamType) {
		return "", false
	}
	return audio.Sink(streamType), true
}

func (t *Table) SourceFor(streamType string) (audio.Source, bool) {
	if _, ok := t.sourceIndex[streamType]; !ok {
		return "", false
	}
	return audio.Source(streamType), true
}

// Sinks 按加载顺序返回全部输出流策略
func (t *Table) Sinks() []Entry {
	return append([]Entry(nil), t.sinks...)
}

func (t *Table) Sources() []Entry {
	return append([]Entry(nil), t.sources...)
}
