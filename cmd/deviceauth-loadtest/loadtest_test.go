package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestPercentile(t *testing.T) {
	samples := make([]time.Duration, 100)
	for i := range samples {
		samples[i] = time.Duration(i+1) * time.Millisecond
	}
	cases := map[int]time.Duration{
		0:   time.Millisecond,
		50:  50 * time.Millisecond,
		95:  95 * time.Millisecond,
		99:  99 * time.Millisecond,
		100: 100 * time.Millisecond,
	}
	for p, want := range cases {
		if got := percentile(samples, p); got != want {
			t.Fatalf("p%d = %v, want %v", p, got, want)
		}
	}
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("empty samples must yield 0, got %v", got)
	}
}

func TestComputeStatsSortsAndCounts(t *testing.T) {
	samples := []time.Duration{3 * time.Millisecond, time.Millisecond, 2 * time.Millisecond}
	s := computeStats(time.Second, samples, 1)
	if s.ops != 3 || s.failures != 1 {
		t.Fatalf("unexpected counts %+v", s)
	}
	if s.p50 != 2*time.Millisecond || s.p99 != 2*time.Millisecond {
		t.Fatalf("unexpected percentiles %+v", s)
	}
	if s.opsPerS != 3 {
		t.Fatalf("unexpected throughput %v", s.opsPerS)
	}
}

func TestOptionsValidate(t *testing.T) {
	ok := options{Users: 1, Concurrency: 1, ChainLength: 1, RaceRounds: 1, Racers: 2}
	if err := ok.validate(); err != nil {
		t.Fatalf("expected valid options: %v", err)
	}
	bad := ok
	bad.Racers = 1
	if err := bad.validate(); err == nil {
		t.Fatal("a race needs at least two racers")
	}
	bad = ok
	bad.RPS = -1
	if err := bad.validate(); err == nil {
		t.Fatal("negative rps must be rejected")
	}
}

func TestRunReportsNoViolations(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	opts := options{
		Users:       4,
		Concurrency: 4,
		ChainLength: 3,
		RaceRounds:  6,
		Racers:      4,
		Prefix:      "lt",
	}
	var log bytes.Buffer
	rep, err := run(context.Background(), rdb, opts, &log)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if rep.login.ops != 4 || rep.login.failures != 0 {
		t.Fatalf("unexpected login stats %+v", rep.login)
	}
	if rep.refresh.ops != 12 || rep.refresh.failures != 0 {
		t.Fatalf("unexpected refresh stats %+v", rep.refresh)
	}
	if rep.race.ops != 24 {
		t.Fatalf("expected 24 race samples, got %d", rep.race.ops)
	}
	if rep.violations != 0 || rep.noWinner != 0 {
		t.Fatalf("expected exactly one winner per round, got violations=%d no_winner=%d", rep.violations, rep.noWinner)
	}

	var out bytes.Buffer
	rep.print(&out)
	if !strings.Contains(out.String(), "race rounds=6 violations=0 no_winner=0") {
		t.Fatalf("unexpected report:\n%s", out.String())
	}
}

func TestPacerLimitsRate(t *testing.T) {
	p := newPacer(20)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 30; i++ {
		if err := p.wait(ctx); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	// 20 burst tokens, then 10 more at 20/s.
	if elapsed := time.Since(start); elapsed < 400*time.Millisecond {
		t.Fatalf("pacer did not throttle, elapsed %v", elapsed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := newPacer(0).wait(ctx); err != nil {
		t.Fatalf("unlimited pacer must not wait: %v", err)
	}
}
