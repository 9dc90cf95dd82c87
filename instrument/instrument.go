// Package instrument records operation traces and timings for networks and pipelines.
//
// A Recorder never touches the values it observes: turning it on or off, or reading what it
// captured, does not change any Run or Train result. Every network and pipeline is given a
// Recorder at construction; when none is given they use Default, which starts disabled.
package instrument

import (
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Tracer is what the engine needs from a Recorder.
type Tracer interface {
	// Op records that the named operation happened.
	Op(name string, fields ...zap.Field)
	// Time starts timing the named operation and returns the function that stops it.
	Time(name string, fields ...zap.Field) func()
}

// Recorder is a Tracer backed by a zap logger that can be switched on and off at any time.
type Recorder struct {
	enabled atomic.Bool
	logger  *zap.Logger
	logs    *observer.ObservedLogs // set only for capturing recorders
	now     func() time.Time
}

// New returns an enabled Recorder that writes debug entries to logger.
func New(logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{logger: logger, now: time.Now}
	r.enabled.Store(true)
	return r
}

// Nop returns a disabled Recorder with a no-op logger.
func Nop() *Recorder {
	r := New(nil)
	r.enabled.Store(false)
	return r
}

// Capture returns an enabled Recorder that keeps every entry in memory; see Captured.
func Capture() *Recorder {
	core, logs := observer.New(zapcore.DebugLevel)
	r := New(zap.New(core))
	r.logs = logs
	return r
}

var defaultRecorder = atomic.NewPointer(Nop())

// Default returns the process-wide Recorder.
func Default() *Recorder {
	return defaultRecorder.Load()
}

// SetDefault replaces the process-wide Recorder. It only affects networks and pipelines
// built afterwards.
func SetDefault(r *Recorder) {
	if r == nil {
		r = Nop()
	}
	defaultRecorder.Store(r)
}

// SetEnabled turns recording on or off.
func (r *Recorder) SetEnabled(on bool) {
	r.enabled.Store(on)
}

// Enabled reports whether the Recorder is recording.
func (r *Recorder) Enabled() bool {
	return r.enabled.Load()
}

// Logger returns the underlying logger.
func (r *Recorder) Logger() *zap.Logger {
	return r.logger
}

// Op implements Tracer.
func (r *Recorder) Op(name string, fields ...zap.Field) {
	if !r.Enabled() {
		return
	}
	r.logger.Debug(name, fields...)
}

// Time implements Tracer. The entry is written when the returned function is called, with
// the elapsed time in the "elapsed" field.
func (r *Recorder) Time(name string, fields ...zap.Field) func() {
	if !r.Enabled() {
		return func() {}
	}
	start := r.now()
	return func() {
		r.logger.Debug(name, append(fields, zap.Duration("elapsed", r.now().Sub(start)))...)
	}
}

// Captured returns the messages recorded so far, oldest first. It returns nil for
// recorders not created by Capture.
func (r *Recorder) Captured() []string {
	if r.logs == nil {
		return nil
	}
	entries := r.logs.All()
	msgs := make([]string, len(entries))
	for i, e := range entries {
		msgs[i] = e.Message
	}
	return msgs
}

// Entries returns the full captured entries, including their fields.
func (r *Recorder) Entries() []observer.LoggedEntry {
	if r.logs == nil {
		return nil
	}
	return r.logs.All()
}

// Reset discards everything captured so far.
func (r *Recorder) Reset() {
	if r.logs != nil {
		r.logs.TakeAll()
	}
}
