package client

import (
	"strconv"
	"time"

	"github.com/4cecoder/arena/protocol"
	"github.com/jonboulle/clockwork"
	"github.com/sasha-s/go-deadlock"
)

// latencyProbe measures round trips of ping/pong pairs. A measurement older
// than two probe intervals is treated as unknown.
type latencyProbe struct {
	mu       deadlock.Mutex
	clock    clockwork.Clock
	interval time.Duration

	seq      uint64
	pending  map[string]time.Time
	latency  time.Duration
	lastPong time.Time
}

func newLatencyProbe(clock clockwork.Clock, interval time.Duration) *latencyProbe {
	return &latencyProbe{clock: clock, interval: interval, pending: make(map[string]time.Time)}
}

// Next returns the next ping to send and records when it left.
func (p *latencyProbe) Next() protocol.Ping {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	for ack, sent := range p.pending {
		if now.Sub(sent) > 2*p.interval {
			delete(p.pending, ack)
		}
	}

	p.seq++
	ack := strconv.FormatUint(p.seq, 10)
	p.pending[ack] = now
	return protocol.Ping{Ack: ack}
}

// Pong records the answer to an earlier ping. Unknown acks are ignored.
func (p *latencyProbe) Pong(ack string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	sent, ok := p.pending[ack]
	if !ok {
		return false
	}
	delete(p.pending, ack)
	now := p.clock.Now()
	p.latency = now.Sub(sent)
	p.lastPong = now
	return true
}

func (p *latencyProbe) Latency() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastPong.IsZero() || p.clock.Since(p.lastPong) > 2*p.interval {
		return 0
	}
	return p.latency
}

func (p *latencyProbe) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending = make(map[string]time.Time)
	p.latency = 0
	p.lastPong = time.Time{}
}
