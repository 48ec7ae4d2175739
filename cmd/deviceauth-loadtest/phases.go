package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/MrEthical07/deviceauth"
	"github.com/MrEthical07/deviceauth/password"
	"github.com/MrEthical07/deviceauth/userstore"
)

const loadPassword = "loadtest-password"

func randomSecret() []byte {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return []byte(hex.EncodeToString(b))
}

func buildEngine(rdb redis.UniversalClient, opts options) (*deviceauth.Engine, *userstore.Memory, error) {
	cfg := deviceauth.DefaultConfig()
	cfg.JWT.AccessSecret = randomSecret()
	cfg.JWT.RefreshSecret = randomSecret()
	cfg.JWT.AccessTTL = time.Minute
	cfg.JWT.RefreshTTL = 24 * time.Hour
	cfg.Session.RedisPrefix = opts.Prefix
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.RateLimit.EnableLoginThrottle = false
	cfg.RateLimit.EnableRefreshThrottle = false

	hasher, err := password.NewAuto(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  16,
		KeyLength:   32,
	}, 0)
	if err != nil {
		return nil, nil, err
	}
	hash, err := hasher.Hash(loadPassword)
	if err != nil {
		return nil, nil, err
	}

	users := userstore.NewMemory()
	for i := 0; i < opts.Users; i++ {
		login := userLogin(i)
		if _, err := users.Create(context.Background(), login, login+"@load.test", hash); err != nil {
			return nil, nil, err
		}
	}

	engine, err := deviceauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(users).
		WithPasswordHasher(hasher).
		Build()
	if err != nil {
		return nil, nil, err
	}
	return engine, users, nil
}

func userLogin(i int) string {
	return fmt.Sprintf("user-%d", i)
}

func clientFor(i int) deviceauth.Client {
	return deviceauth.Client{
		IP:        fmt.Sprintf("10.%d.%d.%d", (i>>16)&0xff, (i>>8)&0xff, i&0xff),
		UserAgent: "loadtest/1.0 (deviceauth)",
	}
}

// pacer is shared by every worker of a run. A nil pacer never waits.
type pacer struct {
	lim *rate.Limiter
}

func newPacer(rps float64) *pacer {
	if rps <= 0 {
		return &pacer{}
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &pacer{lim: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (p *pacer) wait(ctx context.Context) error {
	if p.lim == nil {
		return nil
	}
	return p.lim.Wait(ctx)
}

// fanOut runs work(i) for i in [0,n) on the given number of workers.
func fanOut(n, workers int, work func(i int)) time.Duration {
	var (
		wg     sync.WaitGroup
		cursor int64
	)
	start := time.Now()
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= n {
					return
				}
				work(i)
			}
		}()
	}
	wg.Wait()
	return time.Since(start)
}

func run(ctx context.Context, rdb redis.UniversalClient, opts options, w io.Writer) (report, error) {
	engine, _, err := buildEngine(rdb, opts)
	if err != nil {
		return report{}, fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	p := newPacer(opts.RPS)
	var out report

	// -------- LOGIN --------
	fmt.Fprintf(w, "logging in %d users...\n", opts.Users)
	pairs := make([]deviceauth.TokenPair, opts.Users)
	logins := newRecorder(opts.Users)
	total := fanOut(opts.Users, opts.Concurrency, func(i int) {
		if err := p.wait(ctx); err != nil {
			logins.add(0, err)
			return
		}
		t0 := time.Now()
		pair, err := engine.Login(ctx, userLogin(i), loadPassword, clientFor(i))
		logins.add(time.Since(t0), err)
		if err == nil {
			pairs[i] = pair
		}
	})
	out.login = logins.stats(total)

	// -------- REFRESH CHAINS --------
	fmt.Fprintf(w, "refreshing %d devices %d times each...\n", opts.Users, opts.ChainLength)
	refreshes := newRecorder(opts.Users * opts.ChainLength)
	total = fanOut(opts.Users, opts.Concurrency, func(i int) {
		token := pairs[i].RefreshToken
		if token == "" {
			return
		}
		for step := 0; step < opts.ChainLength; step++ {
			if err := p.wait(ctx); err != nil {
				refreshes.add(0, err)
				return
			}
			t0 := time.Now()
			next, err := engine.Refresh(ctx, token, clientFor(i))
			refreshes.add(time.Since(t0), err)
			if err != nil {
				return
			}
			token = next.RefreshToken
		}
	})
	out.refresh = refreshes.stats(total)

	// -------- RACE --------
	fmt.Fprintf(w, "racing %d refreshes per token over %d rounds...\n", opts.Racers, opts.RaceRounds)
	races := newRecorder(opts.RaceRounds * opts.Racers)
	var violations, noWinner int64
	total = fanOut(opts.RaceRounds, opts.Concurrency, func(round int) {
		pair, err := engine.Login(ctx, userLogin(round%opts.Users), loadPassword, clientFor(round))
		if err != nil {
			races.add(0, err)
			return
		}
		if err := p.wait(ctx); err != nil {
			races.add(0, err)
			return
		}

		var (
			wins  int64
			wg    sync.WaitGroup
			start = make(chan struct{})
		)
		for r := 0; r < opts.Racers; r++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				t0 := time.Now()
				_, err := engine.Refresh(ctx, pair.RefreshToken, clientFor(round))
				d := time.Since(t0)
				if err == nil {
					atomic.AddInt64(&wins, 1)
				}
				// Losing a race is the expected outcome, not a failure.
				races.add(d, nil)
			}()
		}
		close(start)
		wg.Wait()

		switch {
		case wins > 1:
			atomic.AddInt64(&violations, 1)
		case wins == 0:
			atomic.AddInt64(&noWinner, 1)
		}
	})
	out.race = races.stats(total)
	out.rounds = opts.RaceRounds
	out.violations = int(violations)
	out.noWinner = int(noWinner)

	return out, nil
}
