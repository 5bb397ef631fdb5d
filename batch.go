package connector

import "time"

type batchCounters struct {
	writeCount int
	batchStart time.Time
}

// batchPolicy flushes a batch once it holds maxWrites lines or is older than maxAge,
// whichever comes first.
type batchPolicy struct {
	maxWrites int
	maxAge    time.Duration
}

func (p batchPolicy) shouldFlush(c batchCounters, now time.Time) bool {
	if p.maxWrites > 0 && c.writeCount >= p.maxWrites {
		return true
	}
	return p.maxAge > 0 && now.Sub(c.batchStart) >= p.maxAge
}

func (p batchPolicy) recordWrite(c batchCounters) batchCounters {
	c.writeCount++
	return c
}

func (p batchPolicy) reset(now time.Time) batchCounters {
	return batchCounters{batchStart: now}
}
