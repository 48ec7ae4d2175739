package main

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// recorder collects latency samples from concurrent workers.
type recorder struct {
	mu       sync.Mutex
	samples  []time.Duration
	failures int64
}

func newRecorder(capacity int) *recorder {
	return &recorder{samples: make([]time.Duration, 0, capacity)}
}

func (r *recorder) add(d time.Duration, err error) {
	r.mu.Lock()
	r.samples = append(r.samples, d)
	if err != nil {
		r.failures++
	}
	r.mu.Unlock()
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func (r *recorder) stats(total time.Duration) phaseStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return computeStats(total, r.samples, r.failures)
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	s := phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
	}
	if total > 0 {
		s.opsPerS = float64(len(samples)) / total.Seconds()
	}
	return s
}

// percentile expects sorted samples and uses the nearest-rank below.
func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(w io.Writer, name string, s phaseStats) {
	fmt.Fprintf(w, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

type report struct {
	login   phaseStats
	refresh phaseStats
	race    phaseStats

	rounds     int
	violations int
	noWinner   int
}

func (r report) print(w io.Writer) {
	fmt.Fprintln(w, "---- results ----")
	printStats(w, "login", r.login)
	printStats(w, "refresh", r.refresh)
	printStats(w, "race", r.race)
	fmt.Fprintf(w, "race rounds=%d violations=%d no_winner=%d\n", r.rounds, r.violations, r.noWinner)
}
