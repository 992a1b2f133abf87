package key

import "time"

// rateWindow counts requests inside a rolling time span. A recorded request
// occupies its slot until exactly span later; windows are never aligned to
// clock boundaries, so there is no double allowance at minute/hour edges.
type rateWindow struct {
	span   time.Duration
	limit  int
	stamps []time.Time
}

// prune drops timestamps that have aged out of the window.
func (w *rateWindow) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

func (w *rateWindow) hasCapacity(now time.Time) bool {
	w.prune(now)
	return len(w.stamps) < w.limit
}

func (w *rateWindow) record(now time.Time) {
	w.stamps = append(w.stamps, now)
}

func (w *rateWindow) count(now time.Time) int {
	w.prune(now)
	return len(w.stamps)
}
