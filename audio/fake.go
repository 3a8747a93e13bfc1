package audio

import (
	"encoding/binary"
	"os"
	"sync"
	"time"
)

const fakeFrameSize = 1024 // frames per fake buffer, 16-bit mono

// FakeContext replays canned PCM through the Context contract.
type FakeContext struct {
	pcm      []byte
	realtime bool
}

// NewFakeContext replays the data section of a WAV file. With realtime
// set, buffers arrive paced at the wall-clock rate; otherwise the whole
// clip is delivered on Start and silence follows.
func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	return &FakeContext{pcm: data, realtime: realtime}, nil
}

// NewFakePCMContext replays in-memory samples; most tests use this.
func NewFakePCMContext(samples []int16, realtime bool) *FakeContext {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return &FakeContext{pcm: data, realtime: realtime}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, cfg CaptureConfig, cb DataCallback) (CaptureDevice, error) {
	return &FakeCapture{
		pcm:        f.pcm,
		realtime:   f.realtime,
		sampleRate: int(cfg.SampleRate),
		cb:         cb,
		audioDone:  make(chan struct{}),
	}, nil
}

type FakeCapture struct {
	pcm        []byte
	realtime   bool
	sampleRate int
	cb         DataCallback
	audioDone  chan struct{}

	mu       sync.Mutex
	stopCh   chan struct{}
	feedDone chan struct{}
}

// AudioDone closes once the canned clip has been fully delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) feedChunk(pos, chunkBytes int) int {
	end := min(pos+chunkBytes, len(f.pcm))
	chunk := make([]byte, end-pos)
	copy(chunk, f.pcm[pos:end])
	f.cb(chunk, uint32(len(chunk)/2))
	return end
}

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stopCh := make(chan struct{})
	feedDone := make(chan struct{})
	f.stopCh = stopCh
	f.feedDone = feedDone

	chunkBytes := fakeFrameSize * 2

	if !f.realtime {
		for pos := 0; pos < len(f.pcm); {
			pos = f.feedChunk(pos, chunkBytes)
		}
		close(f.audioDone)

		go func() {
			defer close(feedDone)
			silence := make([]byte, chunkBytes)
			for {
				select {
				case <-stopCh:
					return
				case <-time.After(time.Millisecond):
				}
				f.cb(silence, fakeFrameSize)
			}
		}()
		return nil
	}

	interval := time.Duration(fakeFrameSize) * time.Second / time.Duration(f.sampleRate)
	go func() {
		defer close(feedDone)
		pos := 0
		silence := make([]byte, chunkBytes)
		audioFinished := false
		for {
			select {
			case <-stopCh:
				return
			default:
			}

			if pos < len(f.pcm) {
				pos = f.feedChunk(pos, chunkBytes)
			} else {
				if !audioFinished {
					audioFinished = true
					close(f.audioDone)
				}
				f.cb(silence, fakeFrameSize)
			}

			select {
			case <-stopCh:
				return
			case <-time.After(interval):
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	stopCh, feedDone := f.stopCh, f.feedDone
	f.mu.Unlock()
	if stopCh == nil {
		return
	}
	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	<-feedDone
}

func (f *FakeCapture) Close() {}
