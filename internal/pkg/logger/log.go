package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Messages receives every encoded log entry, the host is responsible for draining it.
var Messages = make(chan []byte, 128)

const (
	ErrorLvl   = 0
	WarningLvl = 1
	InfoLvl    = 2
	StreamLvl  = 3
	SamplesLvl = 4

	DebugLvl = 378
)

var (
	Error   = zap.Int("level", ErrorLvl)
	Warning = zap.Int("level", WarningLvl)
	Info    = zap.Int("level", InfoLvl)
	Stream  = zap.Int("level", StreamLvl)
	Samples = zap.Int("level", SamplesLvl)

	Debug = zap.Int("level", DebugLvl)
)

type chanWriter struct {
	sync.Mutex
	out chan<- []byte
}

func (w *chanWriter) Write(p []byte) (n int, err error) {
	w.Lock()
	var newSlice = make([]byte, len(p))
	copy(newSlice, p)
	w.out <- newSlice
	w.Unlock()
	return len(p), nil
}

func (w *chanWriter) Sync() error {
	return nil
}

// GetLogger returns a logger writing JSON entries into Messages.
func GetLogger() *zap.Logger {
	return NewLogger(Messages)
}

// NewLogger builds a logger writing JSON entries into the given channel.
func NewLogger(out chan<- []byte) *zap.Logger {
	writer := &chanWriter{out: out}
	cfg := zap.NewProductionEncoderConfig()
	cfg.SkipLineEnding = true
	cfg.EncodeTime = zapcore.EpochNanosTimeEncoder
	cfg.LevelKey = ""
	encoder := zapcore.NewJSONEncoder(cfg)
	noSync := zapcore.Lock(writer)

	return zap.New(
		zapcore.NewCore(encoder, noSync, zap.DebugLevel),
		zap.AddCaller(),
	)
}

// Drain discards queued and future messages, for processes without a log consumer.
func Drain() {
	go func() {
		for range Messages {
		}
	}()
}
