package playback

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sync"
)

// fakeStream Drain 阻塞到 finishPlayback 或 Close
type fakeStream struct {
	mu      sync.Mutex
	started int
	stopped int
	closed  int
	err     error

	finish    chan struct{}
	closeCh   chan struct{}
	closeOnce sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		finish:  make(chan struct{}),
		closeCh: make(chan struct{}),
	}
}

func (f *fakeStream) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *fakeStream) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func (f *fakeStream) Drain() {
	select {
	case <-f.finish:
	case <-f.closeCh:
	}
}

func (f *fakeStream) Close() {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.closeCh) })
}

func (f *fakeStream) Error() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeStream) finishPlayback(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	close(f.finish)
}

func (f *fakeStream) getStarted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *fakeStream) getStopped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *fakeStream) getClosed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeOpener 读出全部数据并返回新的 fakeStream
type fakeOpener struct {
	mu      sync.Mutex
	streams []*fakeStream
	data    [][]byte
	err     error
}

func (f *fakeOpener) Open(req Request, src io.Reader) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	s := newFakeStream()
	f.streams = append(f.streams, s)
	f.data = append(f.data, data)
	return s, nil
}

func (f *fakeOpener) getStream(i int) *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[i]
}

func (f *fakeOpener) getData(i int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[i]
}

type fakeFile struct {
	*bytes.Reader
	fs   *fakeFS
	name string
}

func (f *fakeFile) Close() error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	f.fs.closed[f.name]++
	return nil
}

// fakeFS 内存文件表
type fakeFS struct {
	mu     sync.Mutex
	files  map[string][]byte
	opened []string
	closed map[string]int
}

func newFakeFS(files map[string][]byte) *fakeFS {
	return &fakeFS{files: files, closed: make(map[string]int)}
}

func (f *fakeFS) open(name string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, name)
	data, ok := f.files[name]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
	return &fakeFile{Reader: bytes.NewReader(data), fs: f, name: name}, nil
}

func (f *fakeFS) getOpened() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.opened...)
}

func (f *fakeFS) getClosed(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed[name]
}

var errDevice = errors.New("device lost")
