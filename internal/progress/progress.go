// Package progress reports entity counts during long import runs.
package progress

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Reporter receives fire-and-forget count deltas as entities and properties
// are written.
type Reporter interface {
	Update(nodes, relationships, properties int64)
}

// Nop discards all updates.
type Nop struct{}

func (Nop) Update(int64, int64, int64) {}

// Tally accumulates totals and is safe for concurrent use.
type Tally struct {
	nodes         atomic.Int64
	relationships atomic.Int64
	properties    atomic.Int64
}

func (t *Tally) Update(nodes, relationships, properties int64) {
	t.nodes.Add(nodes)
	t.relationships.Add(relationships)
	t.properties.Add(properties)
}

func (t *Tally) Nodes() int64         { return t.nodes.Load() }
func (t *Tally) Relationships() int64 { return t.relationships.Load() }
func (t *Tally) Properties() int64    { return t.properties.Load() }

// Logged is a Tally that also emits a progress log line at most once per
// interval.
type Logged struct {
	Tally
	log      *zap.Logger
	interval time.Duration
	last     atomic.Int64 // unix nanos of the last emitted line
}

func NewLogged(log *zap.Logger, interval time.Duration) *Logged {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	l := &Logged{log: log.Named("progress"), interval: interval}
	l.last.Store(time.Now().UnixNano())
	return l
}

func (l *Logged) Update(nodes, relationships, properties int64) {
	l.Tally.Update(nodes, relationships, properties)

	now := time.Now().UnixNano()
	last := l.last.Load()
	if now-last < int64(l.interval) {
		return
	}
	if l.last.CompareAndSwap(last, now) {
		l.log.Info("import progress",
			zap.Int64("nodes", l.Nodes()),
			zap.Int64("relationships", l.Relationships()),
			zap.Int64("properties", l.Properties()))
	}
}

var (
	_ Reporter = Nop{}
	_ Reporter = (*Tally)(nil)
	_ Reporter = (*Logged)(nil)
)
