package track

import (
	"errors"
	"sort"

	"github.com/webosce/audiod-pro/internal/audio"
)

var (
	ErrUnknownTrack = errors.New("unknown track id")
	// ErrSinkMismatch track 注册的 stream 与实际打开的 sink 不一致
	ErrSinkMismatch = errors.New("track bound to a different sink")
)

const defaultTrackVolume = 100

// VolumeInfo 一个 (track, sink) 的音量比例和 sink input
type VolumeInfo struct {
	Sink           audio.Sink
	Volume         int
	SinkInputIndex int
}

// Binding 绑定在某个 sink 上的 sink input
type Binding struct {
	TrackID string
	VolumeInfo
}

// VolumeTable 每个 track 的音量比例，只在事件循环上使用
type VolumeTable struct {
	tracks map[string][]VolumeInfo
}

func NewVolumeTable() *VolumeTable {
	return &VolumeTable{tracks: make(map[string][]VolumeInfo)}
}

// AddTrack 追加一条 sink 记录，同一个 track 可以对应多个 sink
func (t *VolumeTable) AddTrack(trackID string, sink audio.Sink) {
	t.tracks[trackID] = append(t.tracks[trackID], VolumeInfo{
		Sink:           sink,
		Volume:         defaultTrackVolume,
		SinkInputIndex: audio.InvalidIndex,
	})
}

func (t *VolumeTable) RemoveTrack(trackID string) bool {
	if trackID == audio.DefaultTrackID {
		return false
	}
	_, ok := t.tracks[trackID]
	delete(t.tracks, trackID)
	return ok
}

func (t *VolumeTable) HasTrack(trackID string) bool {
	if trackID == audio.DefaultTrackID {
		return false
	}
	_, ok := t.tracks[trackID]
	return ok
}

// Bind 把 sink input 绑定到 track
// 已注册 track：sink 匹配的记录写入 index，一条都不匹配时返回 ErrSinkMismatch
// 未注册或为空：加入默认桶
func (t *VolumeTable) Bind(trackID string, sink audio.Sink, index int) ([]VolumeInfo, error) {
	if !t.HasTrack(trackID) {
		info := VolumeInfo{Sink: sink, Volume: defaultTrackVolume, SinkInputIndex: index}
		t.tracks[audio.DefaultTrackID] = append(t.tracks[audio.DefaultTrackID], info)
		return []VolumeInfo{info}, nil
	}

	entries := t.tracks[trackID]
	var bound []VolumeInfo
	for i := range entries {
		if entries[i].Sink != sink {
			continue
		}
		entries[i].SinkInputIndex = index
		bound = append(bound, entries[i])
	}
	if len(bound) == 0 {
		return nil, ErrSinkMismatch
	}
	return bound, nil
}

// Unbind sink 关闭时调用
// 已注册 track 只清除匹配记录的 index，保留音量比例；默认桶按 index 删除
func (t *VolumeTable) Unbind(trackID string, sink audio.Sink, index int) {
	if t.HasTrack(trackID) {
		entries := t.tracks[trackID]
		for i := range entries {
			if entries[i].Sink == sink && entries[i].SinkInputIndex == index {
				entries[i].SinkInputIndex = audio.InvalidIndex
			}
		}
		return
	}

	bucket := t.tracks[audio.DefaultTrackID]
	kept := bucket[:0]
	for _, info := range bucket {
		if info.SinkInputIndex != index {
			kept = append(kept, info)
		}
	}
	if len(kept) == 0 {
		delete(t.tracks, audio.DefaultTrackID)
		return
	}
	t.tracks[audio.DefaultTrackID] = kept
}

// UnbindSink 后端断开时清除某个 sink 上的全部 sink input
func (t *VolumeTable) UnbindSink(sink audio.Sink) {
	for id, entries := range t.tracks {
		if id == audio.DefaultTrackID {
			continue
		}
		for i := range entries {
			if entries[i].Sink == sink {
				entries[i].SinkInputIndex = audio.InvalidIndex
			}
		}
	}

	bucket := t.tracks[audio.DefaultTrackID]
	kept := bucket[:0]
	for _, info := range bucket {
		if info.Sink != sink {
			kept = append(kept, info)
		}
	}
	if len(kept) == 0 {
		delete(t.tracks, audio.DefaultTrackID)
		return
	}
	t.tracks[audio.DefaultTrackID] = kept
}

// StoreTrackVolume 更新 track 所有记录的比例，返回 track 的 streamType
func (t *VolumeTable) StoreTrackVolume(trackID string, volume int) (string, error) {
	if !t.HasTrack(trackID) {
		return "", ErrUnknownTrack
	}
	entries := t.tracks[trackID]
	for i := range entries {
		entries[i].Volume = volume
	}
	return string(entries[0].Sink), nil
}

// Entries 返回 track 的记录副本
func (t *VolumeTable) Entries(trackID string) []VolumeInfo {
	return append([]VolumeInfo(nil), t.tracks[trackID]...)
}

// BoundTo 返回某个 sink 上所有已绑定的 sink input，按 track id 排序
// 默认桶的记录比例固定为 100
func (t *VolumeTable) BoundTo(sink audio.Sink) []Binding {
	ids := make([]string, 0, len(t.tracks))
	for id := range t.tracks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Binding
	for _, id := range ids {
		for _, info := range t.tracks[id] {
			if info.Sink != sink || info.SinkInputIndex == audio.InvalidIndex {
				continue
			}
			if id == audio.DefaultTrackID {
				info.Volume = audio.MaxVolume
			}
			out = append(out, Binding{TrackID: id, VolumeInfo: info})
		}
	}
	return out
}
