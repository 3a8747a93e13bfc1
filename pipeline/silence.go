package pipeline

import "time"

const (
	watchTickInterval    = 100 * time.Millisecond
	silenceWarnAfter     = 8 * time.Second
	silenceAutoStopAfter = 30 * time.Second
	speechMinRatio       = 0.10
	speechClearRatio     = 0.25 // higher threshold to clear the warning
)

type silenceEvent int

const (
	silenceNone silenceEvent = iota
	silenceWarn
	silenceWarnClear
	silenceRepeat
	silenceAutoStop // toggle sessions only
)

// silenceMonitor watches the speech ratio over a sliding window of
// watchdog ticks. Hold sessions only ever warn; toggle sessions with a
// long fully-silent window get stopped automatically, because nothing
// else would ever end them.
type silenceMonitor struct {
	warnAt   int
	windowSz int
	toggle   bool

	ticks       int
	window      []bool
	speechCount int
	warned      bool
	lastWarn    int
}

func newSilenceMonitor(toggle bool) *silenceMonitor {
	warnAt := int(silenceWarnAfter / watchTickInterval)
	windowSz := int(silenceAutoStopAfter / watchTickInterval)
	return &silenceMonitor{
		warnAt:   warnAt,
		windowSz: windowSz,
		toggle:   toggle,
		window:   make([]bool, windowSz),
	}
}

// recentRatio is the speech ratio over the last n ticks.
func (m *silenceMonitor) recentRatio(n int) float64 {
	if m.ticks < n {
		n = m.ticks
	}
	if n == 0 {
		return 1.0
	}
	count := 0
	for i := 0; i < n; i++ {
		if m.window[(m.ticks-1-i+m.windowSz)%m.windowSz] {
			count++
		}
	}
	return float64(count) / float64(n)
}

func (m *silenceMonitor) Tick(hasSpeech bool) silenceEvent {
	idx := m.ticks % m.windowSz
	if m.ticks >= m.windowSz && m.window[idx] {
		m.speechCount--
	}
	m.window[idx] = hasSpeech
	if hasSpeech {
		m.speechCount++
	}
	m.ticks++

	r := m.recentRatio(m.warnAt)

	if m.ticks >= m.warnAt && r < speechMinRatio && !m.warned {
		m.warned = true
		m.lastWarn = m.ticks
		return silenceWarn
	}
	if m.warned && r >= speechClearRatio {
		m.warned = false
		return silenceWarnClear
	}

	if !m.toggle {
		return silenceNone
	}

	if m.ticks >= m.windowSz && float64(m.speechCount)/float64(m.windowSz) < speechMinRatio {
		return silenceAutoStop
	}

	if m.warned && m.ticks-m.lastWarn >= m.warnAt {
		m.lastWarn = m.ticks
		return silenceRepeat
	}

	return silenceNone
}
