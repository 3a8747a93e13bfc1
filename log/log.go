package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcribeFile *os.File
	logMu          sync.Mutex
	logReady       bool
	pid            int
	dir            string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		if !filepath.IsAbs(flagPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, flagPath), nil
		}
		return flagPath, nil
	}

	// Priority 2: MURMUR_LOG_PATH environment variable
	envPath := os.Getenv("MURMUR_LOG_PATH")
	if envPath != "" {
		if !filepath.IsAbs(envPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, envPath), nil
		}
		return envPath, nil
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	transcribePath := filepath.Join(dir, "transcript_log.txt")
	transcribeFile, err = os.OpenFile(transcribePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcribeFile != nil {
		transcribeFile.Close()
		transcribeFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// SessionMetrics is the per-session timing breakdown logged after a
// pipeline session reaches a terminal state.
type SessionMetrics struct {
	SessionID    string
	Provider     string
	CaptureS     float64
	AvgLevel     float64
	PeakLevel    float64
	TranscribeMs float64
	CorrectMs    float64
	InjectMs     float64
	FirstTokenMs float64
	Corrected    bool
	NoSpeech     bool
}

func Session(m SessionMetrics) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", m.SessionID).
		Str("provider", m.Provider).
		Float64("capture_s", m.CaptureS).
		Float64("avg_level", m.AvgLevel).
		Float64("peak_level", m.PeakLevel).
		Float64("transcribe_ms", m.TranscribeMs).
		Float64("correct_ms", m.CorrectMs).
		Float64("inject_ms", m.InjectMs).
		Float64("first_token_ms", m.FirstTokenMs).
		Bool("corrected", m.Corrected).
		Bool("no_speech", m.NoSpeech).
		Msg("session")
}

// NetworkTiming logs the httptrace phase breakdown of one provider call.
func NetworkTiming(provider string, dnsMs, tlsMs, ttfbMs, totalMs float64, connReused bool) {
	if !logReady {
		return
	}
	conn := "new"
	if connReused {
		conn = "reused"
	}
	diagLog.Info().
		Str("provider", provider).
		Str("conn", conn).
		Float64("dns_ms", dnsMs).
		Float64("tls_ms", tlsMs).
		Float64("ttfb_ms", ttfbMs).
		Float64("total_ms", totalMs).
		Msg("network")
}

// TranscriptionText appends the final text of a session to the
// transcript log.
func TranscriptionText(text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, text)
	transcribeFile.WriteString(line)
}

func DaemonStart(provider string, correction bool) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("provider", provider).
		Bool("correction", correction).
		Msg("daemon_start")
}

func DaemonEnd(count int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("count", count).
		Msg("daemon_end")
}
