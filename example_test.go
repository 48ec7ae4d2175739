package deviceauth_test

import (
	"context"
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/deviceauth"
	"github.com/MrEthical07/deviceauth/password"
	"github.com/MrEthical07/deviceauth/userstore"
)

func exampleEngine() (*deviceauth.Engine, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := deviceauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("example-access-secret")
	cfg.JWT.RefreshSecret = []byte("example-refresh-secret")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	hasher, err := password.NewArgon2(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		panic(err)
	}
	users := userstore.NewMemory()
	for _, login := range []string{"alice", "bob"} {
		hash, err := hasher.Hash("secret-" + login)
		if err != nil {
			panic(err)
		}
		if _, err := users.Create(context.Background(), login, login+"@example.com", hash); err != nil {
			panic(err)
		}
	}

	engine, err := deviceauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(users).
		Build()
	if err != nil {
		panic(err)
	}
	return engine, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

// Refresh rotates the device credential; the predecessor stops working.
func ExampleEngine_Refresh() {
	engine, done := exampleEngine()
	defer done()
	ctx := context.Background()

	pair, _ := engine.Login(ctx, "alice", "secret-alice", deviceauth.Client{IP: "203.0.113.7", UserAgent: "Firefox/128.0 (X11)"})
	next, err := engine.Refresh(ctx, pair.RefreshToken, deviceauth.Client{IP: "203.0.113.8"})
	fmt.Println(err, next.DeviceID == pair.DeviceID)

	_, err = engine.Refresh(ctx, pair.RefreshToken, deviceauth.Client{})
	fmt.Println(err)
	// Output:
	// <nil> true
	// unauthorized
}

func ExampleEngine_RevokeDevice() {
	engine, done := exampleEngine()
	defer done()
	ctx := context.Background()

	phone, _ := engine.Login(ctx, "alice", "secret-alice", deviceauth.Client{UserAgent: "Phone/1"})
	laptop, _ := engine.Login(ctx, "alice", "secret-alice", deviceauth.Client{UserAgent: "Laptop/1"})
	other, _ := engine.Login(ctx, "bob", "secret-bob", deviceauth.Client{})

	for _, attempt := range []struct{ token, target string }{
		{"not-a-token", phone.DeviceID},
		{other.RefreshToken, "missing-device"},
		{other.RefreshToken, phone.DeviceID},
		{laptop.RefreshToken, phone.DeviceID},
	} {
		outcome, _ := engine.RevokeDevice(ctx, attempt.token, attempt.target)
		fmt.Println(outcome, outcome.HTTPStatus())
	}
	// Output:
	// unauthorized 401
	// not_found 404
	// forbidden 403
	// success 204
}
