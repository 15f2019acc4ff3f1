package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide signaling counter.
var Stats = &stats{}

type stats struct {
	SessionsOpened    atomic.Int64 // peer sessions allocated since process start
	SessionsClosed    atomic.Int64 // peer sessions released since process start
	OffersSent        atomic.Int64 // local offers relayed to a peer
	AnswersSent       atomic.Int64 // local answers relayed to a peer
	CandidatesQueued  atomic.Int64 // remote candidates buffered before a remote description
	CandidatesApplied atomic.Int64 // remote candidates handed to the transport
	Dropped           atomic.Int64 // inbound signaling messages dropped as stale or out of order
}

func (s *stats) AddSession()      { s.SessionsOpened.Add(1) }
func (s *stats) RemoveSession()   { s.SessionsClosed.Add(1) }
func (s *stats) AddOffer()        { s.OffersSent.Add(1) }
func (s *stats) AddAnswer()       { s.AnswersSent.Add(1) }
func (s *stats) AddQueued()       { s.CandidatesQueued.Add(1) }
func (s *stats) AddApplied(n int) { s.CandidatesApplied.Add(int64(n)) }
func (s *stats) AddDropped()      { s.Dropped.Add(1) }

// snapshot is a point-in-time copy of the counters.
type snapshot struct {
	opened, closed, offers, answers, queued, applied, dropped int64
}

func (s *stats) snapshot() snapshot {
	return snapshot{
		opened:  s.SessionsOpened.Load(),
		closed:  s.SessionsClosed.Load(),
		offers:  s.OffersSent.Load(),
		answers: s.AnswersSent.Load(),
		queued:  s.CandidatesQueued.Load(),
		applied: s.CandidatesApplied.Load(),
		dropped: s.Dropped.Load(),
	}
}

func (a snapshot) sub(b snapshot) snapshot {
	return snapshot{
		opened:  a.opened - b.opened,
		closed:  a.closed - b.closed,
		offers:  a.offers - b.offers,
		answers: a.answers - b.answers,
		queued:  a.queued - b.queued,
		applied: a.applied - b.applied,
		dropped: a.dropped - b.dropped,
	}
}

func (a snapshot) zero() bool {
	return a == snapshot{}
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs signaling statistics
// every interval, skipping quiet intervals. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		prev := Stats.snapshot()
		for {
			select {
			case <-ticker.C:
				cur := Stats.snapshot()
				if delta := cur.sub(prev); !delta.zero() {
					pterm.DefaultLogger.Info(formatStats(delta, cur.opened-cur.closed))
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

// formatStats returns a one-line summary of a stats delta for the logger.
func formatStats(d snapshot, live int64) string {
	return fmt.Sprintf("Sessions: %2d live (%2d↑ %2d↓) | SDP: %2d offer %2d answer | ICE: %3d queued %3d applied | Dropped: %d",
		live,
		d.opened,
		d.closed,
		d.offers,
		d.answers,
		d.queued,
		d.applied,
		d.dropped,
	)
}
