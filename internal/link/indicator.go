package link

import (
	"log/slog"
	"sync"
)

// Indicator shows whether the link is up.
type Indicator interface {
	Set(on bool)
}

// IndicatorFunc adapts a function to Indicator.
type IndicatorFunc func(on bool)

func (f IndicatorFunc) Set(on bool) { f(on) }

type nopIndicator struct{}

func (nopIndicator) Set(bool) {}

// Indicators drives several indicators at once.
type Indicators []Indicator

func (is Indicators) Set(on bool) {
	for _, i := range is {
		i.Set(on)
	}
}

// LogIndicator logs state changes. It stands in for the status LED on hosts
// that have none.
type LogIndicator struct {
	Logger *slog.Logger
	Name   string

	mu    sync.Mutex
	on    bool
	known bool
}

func (l *LogIndicator) Set(on bool) {
	l.mu.Lock()
	changed := !l.known || l.on != on
	l.on, l.known = on, true
	l.mu.Unlock()
	if changed {
		loggerOr(l.Logger).Info("Status indicator", "name", l.Name, "on", on)
	}
}
