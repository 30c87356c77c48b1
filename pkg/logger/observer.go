package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// Observed records the entries written through an observer logger.
type Observed interface {
	Len() int
	All() []observer.LoggedEntry
	TakeAll() []observer.LoggedEntry
	// FilterMessage narrows the recorded entries to those with the given message.
	FilterMessage(msg string) *observer.ObservedLogs
}

var _ Observed = (*observer.ObservedLogs)(nil)

// NewObserverLogger returns a logger recording every entry at or above level. An
// unparsable level records everything.
func NewObserverLogger(level string) (Logger, Observed) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		lvl = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	core, observed := observer.New(lvl)
	return &ZapLogger{Logger: zap.New(core)}, observed
}

// Messages returns the messages of the recorded entries in order.
func Messages(observed Observed) []string {
	entries := observed.All()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Message)
	}
	return out
}
