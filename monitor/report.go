package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
)

// LogReporter writes every poll outcome to a structured logger.
type LogReporter struct {
	log      *slog.Logger
	lastOK   time.Time
	failures int
}

func NewLogReporter(logger *slog.Logger) *LogReporter {
	return &LogReporter{log: logger}
}

func (r *LogReporter) Report(ctx context.Context, ev Event) {
	if ev.OK() {
		r.lastOK = ev.Time
		r.failures = 0
		msg := "reading"
		if ev.Initial() {
			msg = "initial reading"
		}
		r.log.InfoContext(ctx, msg,
			"temperature", fmt.Sprintf("%.2fC", ev.Reading.Temperature),
			"delta", fmt.Sprintf("%+.2f", ev.Delta),
			"humidity", fmt.Sprintf("%.2f%%", ev.Reading.Humidity))
		return
	}
	r.failures++
	msg := "read failed, sensor may be disconnected or bus busy"
	if ev.Initial() {
		msg = "initial read failed after retries"
	}
	r.log.WarnContext(ctx, msg, "error", ev.Err, "consecutive", r.failures, "last_success", r.since(ev.Time))
}

func (r *LogReporter) since(now time.Time) string {
	if r.lastOK.IsZero() {
		return "never"
	}
	return humanize.RelTime(r.lastOK, now, "ago", "from now")
}

// Reporters fans an event out to every reporter in order.
type Reporters []Reporter

func (rs Reporters) Report(ctx context.Context, ev Event) {
	for _, r := range rs {
		r.Report(ctx, ev)
	}
}
