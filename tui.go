package main

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"murmur/pipeline"
)

// TUI message types
type stateMsg struct{ Update pipeline.Update }
type levelMsg struct {
	Level    float64
	Peak     float64
	Speech   bool
	Waveform []float64
}
type deviceMsg struct{ Text string }
type statusTextMsg struct{ Text string }
type tickMsg time.Time

type tuiInfo struct {
	Version   string
	Gesture   string
	Provider  string
	Device    string
	Bluetooth bool
}

var (
	tuiMu      sync.Mutex
	tuiProgram *tea.Program
	tuiDone    chan struct{}
)

func startTUI(info tuiInfo, onQuit func()) {
	m := tuiModel{
		info:       info,
		deviceLine: info.Device,
	}
	p := tea.NewProgram(m, tea.WithAltScreen())

	tuiMu.Lock()
	tuiProgram = p
	tuiDone = make(chan struct{})
	done := tuiDone
	tuiMu.Unlock()

	go func() {
		defer close(done)
		if _, err := p.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		}
		onQuit()
	}()
}

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func tuiQuit() {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Quit()
	}
}

func tuiWait() {
	tuiMu.Lock()
	done := tuiDone
	tuiMu.Unlock()
	if done != nil {
		<-done
	}
}

var (
	styleRec      = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleStage    = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
	styleStandby  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleWave     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	styleWaveHot  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleWarn     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	styleText     = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	styleDim      = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	styleHelp     = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	styleHelpBold = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
)

type tuiModel struct {
	info tuiInfo

	state      pipeline.State
	frame      int
	started    time.Time
	level      float64
	peak       float64
	waveform   []float64
	silence    bool
	deviceLine string
	statusText string

	msgCount int
	lastText string
	lastErr  string
	noSpeech bool

	width, height int
}

func tuiTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case stateMsg:
		u := msg.Update
		prev := m.state
		m.state = u.State
		if u.State == pipeline.Recording && prev != pipeline.Recording {
			m.started = time.Now()
			m.level = 0
			m.peak = 0
			m.waveform = nil
			m.silence = false
		}
		switch u.Event {
		case "silence_warning":
			m.silence = true
		case "silence_cleared":
			m.silence = false
		case "no_speech":
			m.msgCount++
			m.lastText = "(no speech detected)"
			m.noSpeech = true
			m.lastErr = ""
		case "cancelled":
			m.statusText = "cancelled"
		}
		if u.Text != "" {
			m.msgCount++
			m.lastText = u.Text
			m.noSpeech = false
			m.lastErr = ""
			m.statusText = ""
		}
		if u.Err != nil {
			m.lastErr = u.Err.Error()
		}

	case levelMsg:
		if m.state == pipeline.Recording {
			m.level = m.level*0.6 + msg.Level*0.4
			if msg.Peak > m.peak {
				m.peak = msg.Peak
			}
			m.waveform = msg.Waveform
		}

	case deviceMsg:
		m.deviceLine = msg.Text

	case statusTextMsg:
		m.statusText = msg.Text
	}
	return m, nil
}

var waveGlyphs = []rune(" ▁▂▃▄▅▆▇█")

// renderWaveform maps recent per-buffer levels onto block glyphs.
func renderWaveform(wave []float64, width int, hot bool) string {
	if width < 8 {
		width = 8
	}
	var b strings.Builder
	start := 0
	if len(wave) > width {
		start = len(wave) - width
	}
	for _, v := range wave[start:] {
		idx := int(v * 4 * float64(len(waveGlyphs)-1))
		if idx >= len(waveGlyphs) {
			idx = len(waveGlyphs) - 1
		}
		b.WriteRune(waveGlyphs[idx])
	}
	if hot {
		return styleWaveHot.Render(b.String())
	}
	return styleWave.Render(b.String())
}

func wrapText(text string, width int) []string {
	if width < 10 {
		width = 10
	}
	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len(word) > width {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var lines []string

	switch m.state {
	case pipeline.Recording:
		lines = append(lines, styleRec.Render(fmt.Sprintf("● REC %.1fs", time.Since(m.started).Seconds())))
		lines = append(lines, renderWaveform(m.waveform, m.width-4, m.peak > 0.5))
		if m.silence {
			lines = append(lines, styleWarn.Render("  ⚠ no voice detected"))
		}
	case pipeline.Transcribing, pipeline.Correcting, pipeline.Injecting:
		dots := strings.Repeat(".", m.frame%4)
		lines = append(lines, styleStage.Render("◌ "+m.state.String()+dots))
	default:
		lines = append(lines, styleStandby.Render("○ STANDBY"))
	}

	lines = append(lines, "")
	lines = append(lines, styleDim.Render("["+m.info.Provider+"]"))
	lines = append(lines, styleStandby.Render(m.deviceLine))
	if m.statusText != "" {
		lines = append(lines, styleWarn.Render(m.statusText))
	}
	lines = append(lines, "")

	if m.lastErr != "" {
		lines = append(lines, styleWarn.Render("error: "+m.lastErr))
		lines = append(lines, "")
	} else if m.lastText != "" {
		lines = append(lines, styleDim.Render(fmt.Sprintf("Last transcription (#%d)", m.msgCount)))
		style := styleText
		if m.noSpeech {
			style = styleWarn
		}
		for _, line := range wrapText(m.lastText, m.width-4) {
			lines = append(lines, style.Render(line))
		}
		lines = append(lines, "")
	}

	help := styleHelpBold.Render(m.info.Gesture) +
		styleHelp.Render(" hold to talk, double-tap to toggle")
	lines = append(lines, help)
	lines = append(lines, styleHelp.Render("murmur "+m.info.Version))

	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Padding(1, 2).
		Render(strings.Join(lines, "\n"))
}
