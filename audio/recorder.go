package audio

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"murmur/vad"
)

const (
	// sinkDepth bounds the file-writer queue. The device callback drops
	// chunks rather than block when the disk falls behind; the in-memory
	// accumulator still keeps every sample.
	sinkDepth = 64

	waveRingCap  = 64
	waveDecimate = 3 // one waveform snapshot every N buffers
)

var ErrNotRecording = errors.New("no active recording")

// Clip is a finished recording: the temp WAV file plus the same samples
// in memory. Callers must Discard it when done.
type Clip struct {
	Path       string
	PCM        []int16
	SampleRate int
	Duration   time.Duration
}

// Discard removes the temp file. Safe to call more than once.
func (c *Clip) Discard() {
	if c != nil && c.Path != "" {
		os.Remove(c.Path)
		c.Path = ""
	}
}

type Metrics struct {
	Duration      time.Duration
	AvgRMS        float64
	Peak          float64
	Frames        uint64
	DroppedWrites uint64
}

// LevelUpdate carries live level data for the status UI. Waveform is a
// chronological snapshot of recent per-buffer levels.
type LevelUpdate struct {
	Level    float64
	Peak     float64
	Speech   bool
	Waveform []float64
}

// Recorder runs one capture session at a time.
type Recorder struct {
	actx    Context
	device  *DeviceInfo
	cfg     CaptureConfig
	det     *vad.Detector
	tempDir string
	levels  chan LevelUpdate

	mu   sync.Mutex
	sess *session
}

func NewRecorder(actx Context, device *DeviceInfo, cfg CaptureConfig, det *vad.Detector, tempDir string) *Recorder {
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	return &Recorder{
		actx:    actx,
		device:  device,
		cfg:     cfg,
		det:     det,
		tempDir: tempDir,
		levels:  make(chan LevelUpdate, 16),
	}
}

// Levels is the live level stream. Sends are non-blocking; a slow
// reader misses updates, nothing else.
func (r *Recorder) Levels() <-chan LevelUpdate { return r.levels }

// Detector exposes the streaming detector for the silence watchdog.
func (r *Recorder) Detector() *vad.Detector { return r.det }

// SetDevice switches the capture device for subsequent sessions; nil
// means system default. A session already running keeps its device.
func (r *Recorder) SetDevice(device *DeviceInfo) {
	r.mu.Lock()
	r.device = device
	r.mu.Unlock()
}

type session struct {
	capture CaptureDevice
	sink    *fileSink
	start   time.Time
	done    chan struct{}

	release sync.Once

	cbMu       sync.Mutex
	stopped    bool
	samples    []int16
	sumSquares float64
	peak       float64
	frames     uint64
	bufCount   int
	ring       [waveRingCap]float64
	ringLen    int
	ringPos    int
}

// Start opens the device and begins capturing. Cancelling ctx is
// equivalent to calling Cancel.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess != nil {
		return errors.New("recording already in progress")
	}

	r.det.Reset()

	sink, err := newFileSink(r.tempDir, r.cfg.SampleRate)
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}

	sess := &session{
		sink:  sink,
		start: time.Now(),
		done:  make(chan struct{}),
	}

	capture, err := r.actx.NewCapture(r.device, r.cfg, func(data []byte, frameCount uint32) {
		r.onData(sess, data, frameCount)
	})
	if err != nil {
		sink.close()
		sink.remove()
		return err
	}
	sess.capture = capture

	if err := capture.Start(); err != nil {
		capture.Close()
		sink.close()
		sink.remove()
		return err
	}

	r.sess = sess
	go func() {
		select {
		case <-ctx.Done():
			r.Cancel()
		case <-sess.done:
		}
	}()
	return nil
}

func (r *Recorder) onData(sess *session, data []byte, frameCount uint32) {
	if len(data) < 2 {
		return
	}

	sess.cbMu.Lock()
	if sess.stopped {
		sess.cbMu.Unlock()
		return
	}

	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}

	c := r.det.Classify(samples)

	sess.frames += uint64(frameCount)
	sess.samples = append(sess.samples, samples...)
	sess.sumSquares += c.Level * c.Level * float64(len(samples))
	if c.Peak > sess.peak {
		sess.peak = c.Peak
	}

	sess.ring[sess.ringPos] = c.Level
	sess.ringPos = (sess.ringPos + 1) % waveRingCap
	if sess.ringLen < waveRingCap {
		sess.ringLen++
	}

	sess.bufCount++
	var wave []float64
	if sess.bufCount%waveDecimate == 0 {
		wave = make([]float64, sess.ringLen)
		start := sess.ringPos - sess.ringLen
		for i := range wave {
			wave[i] = sess.ring[(start+i+waveRingCap)%waveRingCap]
		}
	}
	sess.cbMu.Unlock()

	sess.sink.write(data)

	if wave != nil {
		select {
		case r.levels <- LevelUpdate{Level: c.Level, Peak: c.Peak, Speech: c.Speech, Waveform: wave}:
		default:
		}
	}
}

// release stops the device and the sink exactly once, whatever order
// Stop, Cancel, and the ctx watcher fire in.
func (s *session) releaseOnce() {
	s.release.Do(func() {
		s.cbMu.Lock()
		s.stopped = true
		s.cbMu.Unlock()

		s.capture.Stop()
		s.capture.Close()
		s.sink.close()
		close(s.done)
	})
}

// Stop ends the session and returns the finished clip. The temp file
// stays on disk until the caller discards the clip.
func (r *Recorder) Stop() (*Clip, Metrics, error) {
	r.mu.Lock()
	sess := r.sess
	r.sess = nil
	r.mu.Unlock()
	if sess == nil {
		return nil, Metrics{}, ErrNotRecording
	}

	sess.releaseOnce()

	sess.cbMu.Lock()
	samples := sess.samples
	sumSquares := sess.sumSquares
	peak := sess.peak
	frames := sess.frames
	sess.cbMu.Unlock()

	metrics := Metrics{
		Duration:      time.Duration(frames) * time.Second / time.Duration(r.cfg.SampleRate),
		Peak:          peak,
		Frames:        frames,
		DroppedWrites: sess.sink.dropped.Load(),
	}
	if len(samples) > 0 {
		metrics.AvgRMS = math.Sqrt(sumSquares / float64(len(samples)))
	}

	if err := sess.sink.err(); err != nil {
		sess.sink.remove()
		return nil, metrics, fmt.Errorf("write recording: %w", err)
	}

	return &Clip{
		Path:       sess.sink.path,
		PCM:        samples,
		SampleRate: int(r.cfg.SampleRate),
		Duration:   metrics.Duration,
	}, metrics, nil
}

// Cancel ends the session and deletes the temp file unconditionally.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	sess := r.sess
	r.sess = nil
	r.mu.Unlock()
	if sess == nil {
		return
	}
	sess.releaseOnce()
	sess.sink.remove()
}

// fileSink streams PCM chunks to the temp WAV file through a bounded
// queue so the device callback never waits on the disk.
type fileSink struct {
	path    string
	ch      chan []byte
	done    chan struct{}
	dropped atomic.Uint64

	f       *os.File
	bw      *bufio.Writer
	written uint32
	wErr    error
	closed  bool
}

func newFileSink(dir string, sampleRate uint32) (*fileSink, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "murmur-*.wav")
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriterSize(f, 32*1024)
	if _, err := bw.Write(wavHeader(sampleRate, 0)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}

	s := &fileSink{
		path: f.Name(),
		ch:   make(chan []byte, sinkDepth),
		done: make(chan struct{}),
		f:    f,
		bw:   bw,
	}
	go s.drain()
	return s, nil
}

func (s *fileSink) drain() {
	defer close(s.done)
	for chunk := range s.ch {
		if s.wErr != nil {
			continue
		}
		n, err := s.bw.Write(chunk)
		s.written += uint32(n)
		if err != nil {
			s.wErr = err
		}
	}
	if s.wErr == nil {
		s.wErr = s.bw.Flush()
	}
	if s.wErr == nil {
		s.wErr = patchWAVSizes(s.f, s.written)
	}
	if err := s.f.Close(); s.wErr == nil {
		s.wErr = err
	}
}

func (s *fileSink) write(data []byte) {
	chunk := make([]byte, len(data))
	copy(chunk, data)
	select {
	case s.ch <- chunk:
	default:
		s.dropped.Add(1)
	}
}

// close finishes the file. Safe to call once per sink; releaseOnce
// guarantees that.
func (s *fileSink) close() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
	<-s.done
}

func (s *fileSink) err() error {
	<-s.done
	return s.wErr
}

func (s *fileSink) remove() {
	os.Remove(s.path)
}
