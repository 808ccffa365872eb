package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"go-realestate/internal/logger"
	"go-realestate/pkg/client"
)

const usage = `usage: client [flags] <command> [args]

commands:
  signup <name> <email> [password]
  signin <email> [password]
  me
  logout
  favorites list
  favorites add <propertyId>
  favorites remove <propertyId>

flags:
`

func main() {
	flags := flag.NewFlagSet("client", flag.ExitOnError)
	baseURL := flags.String("api", envOr("REALESTATE_API", "http://localhost:8080/api/v1"), "API base URL")
	tokenPath := flags.String("tokens", defaultTokenFile(), "file holding the session tokens")
	timeout := flags.Duration("timeout", 30*time.Second, "request timeout")
	verbose := flags.Bool("v", false, "debug logging")
	flags.Usage = func() {
		fmt.Fprint(flags.Output(), usage)
		flags.PrintDefaults()
	}
	_ = flags.Parse(os.Args[1:])

	level := "warn"
	if *verbose {
		level = "debug"
	}
	slog.SetDefault(logger.New(os.Stderr, level, "text"))

	if flags.NArg() == 0 {
		flags.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	api := client.NewAPI(*baseURL, client.WithTimeout(*timeout))
	store := tokenStore{path: *tokenPath}

	tokens, err := store.load()
	if err != nil {
		slog.Error("failed to read tokens", "path", store.path, "error", err)
		os.Exit(1)
	}
	api.Transport().SetTokens(tokens)

	session := client.NewSession(api)
	defer session.Dispose()

	runErr := run(ctx, api, session, flags.Args())

	// A failed refresh clears the tokens, so save even when the command failed.
	if err := store.save(api.Transport().Tokens()); err != nil {
		slog.Error("failed to write tokens", "path", store.path, "error", err)
		os.Exit(1)
	}

	if runErr != nil {
		fmt.Fprintln(os.Stderr, describe(runErr))
		os.Exit(1)
	}
}

func run(ctx context.Context, api *client.API, session *client.Session, args []string) error {
	cmd, args := args[0], args[1:]

	switch cmd {
	case "signup":
		if len(args) < 2 || len(args) > 3 {
			return errors.New("signup needs <name> <email> [password]")
		}
		password, err := passwordArg(args, 2, os.Stdin, os.Stderr)
		if err != nil {
			return err
		}
		user, err := session.Signup(ctx, args[0], args[1], password)
		if err != nil {
			return err
		}
		fmt.Printf("registered %s (%s); sign in to continue\n", user.Email, user.ID)
		return nil

	case "signin":
		if len(args) < 1 || len(args) > 2 {
			return errors.New("signin needs <email> [password]")
		}
		password, err := passwordArg(args, 1, os.Stdin, os.Stderr)
		if err != nil {
			return err
		}
		user, err := session.Login(ctx, args[0], password)
		if err != nil {
			return err
		}
		return printJSON(user)

	case "me":
		if err := session.Initialize(ctx); err != nil {
			return err
		}
		user, _ := session.User()
		return printJSON(user)

	case "logout":
		if !session.Logout(ctx) {
			fmt.Println("signed out locally; server did not confirm")
			return nil
		}
		fmt.Println("signed out")
		return nil

	case "favorites":
		return runFavorites(ctx, api, session, args)
	}

	return fmt.Errorf("unknown command %q", cmd)
}

func runFavorites(ctx context.Context, api *client.API, session *client.Session, args []string) error {
	if len(args) == 0 {
		return errors.New("favorites needs list, add or remove")
	}
	if err := session.Initialize(ctx); err != nil {
		return err
	}
	user, _ := session.User()

	switch args[0] {
	case "list":
		ids, err := api.Favorites(ctx, user.ID)
		if err != nil {
			return err
		}
		return printJSON(ids)
	case "add":
		if len(args) != 2 {
			return errors.New("favorites add needs <propertyId>")
		}
		return api.AddFavorite(ctx, user.ID, args[1])
	case "remove":
		if len(args) != 2 {
			return errors.New("favorites remove needs <propertyId>")
		}
		return api.RemoveFavorite(ctx, user.ID, args[1])
	}
	return fmt.Errorf("unknown favorites command %q", args[0])
}

func describe(err error) string {
	var validation *client.ValidationError
	switch {
	case errors.As(err, &validation):
		msg := "invalid input:"
		for field, reason := range validation.Fields {
			msg += fmt.Sprintf("\n  %s: %s", field, reason)
		}
		return msg
	case errors.Is(err, client.ErrInvalidCredentials):
		return "invalid email or password"
	case errors.Is(err, client.ErrDuplicateEmail):
		return "that email is already registered"
	case errors.Is(err, client.ErrSessionExpired), errors.Is(err, client.ErrUnauthorized):
		return "not signed in; run: client signin <email>"
	case errors.Is(err, client.ErrForbidden):
		return "access denied"
	}
	return err.Error()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type tokenStore struct {
	path string
}

type tokenFile struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (s tokenStore) load() (client.Tokens, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return client.Tokens{}, nil
	}
	if err != nil {
		return client.Tokens{}, err
	}

	var f tokenFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return client.Tokens{}, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return client.Tokens{AccessToken: f.AccessToken, RefreshToken: f.RefreshToken}, nil
}

func (s tokenStore) save(tokens client.Tokens) error {
	if tokens == (client.Tokens{}) {
		err := os.Remove(s.path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	raw, err := json.Marshal(tokenFile{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o600)
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".realestate-tokens.json"
	}
	return filepath.Join(dir, "realestate", "tokens.json")
}

func envOr(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
