package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
)

func passwordFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "password",
		Usage: "plaintext password; read from stdin when omitted",
	}
}

// readPassword returns --password or the first line of stdin.
func readPassword(c *cli.Context, stdin io.Reader) (string, error) {
	if pw := c.String("password"); pw != "" {
		return pw, nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password is required")
	}
	return line, nil
}

// stdinReader is swapped in tests.
var stdinReader io.Reader = os.Stdin

func HashPasswordCommand() *cli.Command {
	return &cli.Command{
		Name:  "hash-password",
		Usage: "print the Argon2id hash of a password",
		Flags: []cli.Flag{
			passwordFlag(),
			&cli.BoolFlag{
				Name:  "bcrypt",
				Usage: "emit a legacy bcrypt hash instead",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := configFrom(c)
			if err != nil {
				return err
			}
			pw, err := readPassword(c, stdinReader)
			if err != nil {
				return err
			}
			hasher, err := newHasher(cfg.Password)
			if err != nil {
				return err
			}

			var hash string
			if c.Bool("bcrypt") {
				hash, err = hasher.HashLegacy(pw)
			} else {
				hash, err = hasher.Hash(pw)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, hash)
			return nil
		},
	}
}

func SeedUserCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed-user",
		Usage: "insert a user into the Postgres user table",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "login", Required: true},
			&cli.StringFlag{Name: "email"},
			passwordFlag(),
		},
		Action: func(c *cli.Context) error {
			cfg, err := configFrom(c)
			if err != nil {
				return err
			}
			if cfg.Postgres.DSN == "" {
				return errors.New("postgres.dsn is required to seed users")
			}
			pw, err := readPassword(c, stdinReader)
			if err != nil {
				return err
			}
			hasher, err := newHasher(cfg.Password)
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(pw)
			if err != nil {
				return err
			}

			pg, err := openPostgres(c.Context, cfg.Postgres)
			if err != nil {
				return err
			}
			defer pg.pool.Close()

			user, err := pg.store.Create(c.Context, c.String("login"), c.String("email"), hash)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, user.UserID)
			return nil
		},
	}
}
