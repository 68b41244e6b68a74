package workers

import (
	"context"
	"log/slog"
	"os"
	"reflect"
	"study-relay/domain"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

type NamedChannel struct {
	Name    string
	Channel any
}

// ProcessStats is the resource usage of the relay process.
type ProcessStats struct {
	RSS        uint64  `json:"rss"`
	CPUPercent float64 `json:"cpuPercent"`
}

// StatsWorker periodically samples the relay counters, the fill level of the
// internal channels and the process usage, then logs them.
// Reading len and cap of a channel never blocks.
type StatsWorker struct {
	log      *slog.Logger
	interval time.Duration
	snapshot func() domain.RelayStats
	channels []NamedChannel
	last     atomic.Pointer[domain.RelayStats]
}

func NewStatsWorker(log *slog.Logger, interval time.Duration, snapshot func() domain.RelayStats, channels []NamedChannel) *StatsWorker {
	return &StatsWorker{log: log, interval: interval, snapshot: snapshot, channels: channels}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sample(p)
		}
	}
}

func (w *StatsWorker) sample(p *process.Process) {
	stats := w.snapshot()
	w.last.Store(&stats)

	attrs := []any{
		"rooms", stats.Rooms,
		"sessions", stats.Sessions,
		"dispatched", stats.Dispatched,
		"failed_pushes", stats.FailedPushes,
		"signals_relayed", stats.SignalsRelayed,
		"signals_dropped", stats.SignalsDropped,
		"dropped_presence", stats.DroppedPresence,
		"disconnects", stats.Disconnects,
	}
	if usage, err := processStats(p); err != nil {
		w.log.Debug("Unable to read process stats", "error", err)
	} else {
		attrs = append(attrs, "rss", usage.RSS, "cpu", usage.CPUPercent)
	}
	w.log.Info("Relay stats", attrs...)

	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		if v.Cap() > 0 && v.Len() == v.Cap() {
			w.log.Warn("Channel saturated", "name", nc.Name, "capacity", v.Cap())
			continue
		}
		w.log.Debug("Channel capacity", "name", nc.Name, "length", v.Len(), "capacity", v.Cap())
	}
}

// Last returns the most recent sample, nil before the first tick.
func (w *StatsWorker) Last() *domain.RelayStats {
	return w.last.Load()
}

func processStats(p *process.Process) (ProcessStats, error) {
	mem, err := p.MemoryInfo()
	if err != nil {
		return ProcessStats{}, err
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		return ProcessStats{}, err
	}
	return ProcessStats{RSS: mem.RSS, CPUPercent: cpu}, nil
}
