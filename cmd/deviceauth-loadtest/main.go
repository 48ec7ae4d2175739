// Command deviceauth-loadtest drives an in-process engine through login,
// refresh chains and concurrent refresh races, and reports latency
// percentiles for each phase. Any race round with more than one winner is a
// rotation violation and makes the command exit non-zero.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := app().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func app() *cli.App {
	return &cli.App{
		Name:  "deviceauth-loadtest",
		Usage: "load and race test the device session engine",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "users", Value: 200, Usage: "accounts to create and log in"},
			&cli.IntFlag{Name: "concurrency", Value: 64, Usage: "concurrent workers per phase"},
			&cli.IntFlag{Name: "chain-length", Value: 20, Usage: "sequential refreshes per device"},
			&cli.IntFlag{Name: "race-rounds", Value: 200, Usage: "rounds in the race phase"},
			&cli.IntFlag{Name: "racers", Value: 8, Usage: "concurrent refreshes of one token per round"},
			&cli.Float64Flag{Name: "rps", Value: 0, Usage: "request pacing across all workers, 0 for unlimited"},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "redis address; miniredis is used when empty",
				EnvVars: []string{"REDIS_ADDR"},
			},
			&cli.StringFlag{Name: "prefix", Value: "das-load", Usage: "session key prefix"},
		},
		Action: func(c *cli.Context) error {
			opts := options{
				Users:       c.Int("users"),
				Concurrency: c.Int("concurrency"),
				ChainLength: c.Int("chain-length"),
				RaceRounds:  c.Int("race-rounds"),
				Racers:      c.Int("racers"),
				RPS:         c.Float64("rps"),
				Prefix:      c.String("prefix"),
			}
			if err := opts.validate(); err != nil {
				return cli.Exit(err.Error(), 2)
			}

			rdb, cleanup, err := connect(c.String("redis-addr"))
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := run(c.Context, rdb, opts, c.App.Writer)
			if err != nil {
				return err
			}
			report.print(c.App.Writer)
			if report.violations > 0 {
				return fmt.Errorf("%d race rounds had more than one successful refresh", report.violations)
			}
			return nil
		},
	}
}

type options struct {
	Users       int
	Concurrency int
	ChainLength int
	RaceRounds  int
	Racers      int
	RPS         float64
	Prefix      string
}

func (o options) validate() error {
	if o.Users <= 0 || o.Concurrency <= 0 || o.ChainLength <= 0 || o.RaceRounds <= 0 {
		return errors.New("users, concurrency, chain-length and race-rounds must be > 0")
	}
	if o.Racers < 2 {
		return errors.New("racers must be >= 2")
	}
	if o.RPS < 0 {
		return errors.New("rps must be >= 0")
	}
	return nil
}

func connect(addr string) (redis.UniversalClient, func(), error) {
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis %s: %w", addr, err)
		}
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}
