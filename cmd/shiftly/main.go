// Command shiftly is a small terminal client for the marketplace API, mainly
// useful for poking at an environment: sign in, inspect the current profile,
// sign out.
package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/common-nighthawk/go-figure"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/shiftlyhq/shiftly-go/account"
	"github.com/shiftlyhq/shiftly-go/credentials/filestore"
	"github.com/shiftlyhq/shiftly-go/internal/config"
	"github.com/shiftlyhq/shiftly-go/session"
	"github.com/shiftlyhq/shiftly-go/transport"
)

const usage = `usage: shiftly <command> [flags]

commands:
  login            sign in (-email, -password, -kind)
  logout           sign out and clear stored credentials
  whoami           show the current profile
  forgot-password  trigger a password reset (-email, -kind)
  register-push    register a push-delivery token (-token)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return errors.New("no command given")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	store, err := openStore(cfg.CredentialsPath)
	if err != nil {
		return err
	}

	var manager *session.Manager
	client, err := transport.New(cfg.BaseURL, store,
		transport.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		transport.WithLogger(logger),
		transport.WithAuthExpiredHook(func() {
			if manager != nil {
				manager.AuthExpired()
			}
		}),
	)
	if err != nil {
		return err
	}
	manager, err = session.New(client, store, session.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx := context.Background()
	command, commandArgs := args[0], args[1:]

	switch command {
	case "login":
		return login(ctx, manager, commandArgs)
	case "logout":
		manager.Logout(ctx)
		fmt.Println("signed out")
		return nil
	case "whoami":
		return whoami(ctx, manager)
	case "forgot-password":
		return forgotPassword(ctx, manager, commandArgs)
	case "register-push":
		return registerPush(ctx, manager, commandArgs)
	default:
		fmt.Fprint(os.Stderr, usage)
		return errors.Errorf("unknown command %q", command)
	}
}

func login(ctx context.Context, manager *session.Manager, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	kind := fs.String("kind", account.KindJobSeeker.String(), "account kind (job_seeker or client)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	figure.NewFigure("Shiftly", "cybermedium", true).Print()
	fmt.Println()

	sess, err := manager.Login(ctx, session.Credentials{
		Email:    *email,
		Password: *password,
	}, account.Kind(*kind))
	if err != nil {
		return err
	}
	fmt.Printf("signed in as %s (%s)\n", sess.Profile.Email, sess.Kind)
	return nil
}

func whoami(ctx context.Context, manager *session.Manager) error {
	if _, ok := manager.Restore(); !ok {
		return errors.New("not signed in")
	}
	profile, err := manager.Me(ctx)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(json.RawMessage(profile.Raw), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func forgotPassword(ctx context.Context, manager *session.Manager, args []string) error {
	fs := flag.NewFlagSet("forgot-password", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	kind := fs.String("kind", account.KindJobSeeker.String(), "account kind")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := manager.RequestPasswordReset(ctx, *email, account.Kind(*kind)); err != nil {
		return err
	}
	fmt.Println("reset requested, check your inbox")
	return nil
}

func registerPush(ctx context.Context, manager *session.Manager, args []string) error {
	fs := flag.NewFlagSet("register-push", flag.ExitOnError)
	token := fs.String("token", "", "push-delivery token (generated when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, ok := manager.Restore(); !ok {
		return errors.New("not signed in")
	}
	deviceToken := *token
	if deviceToken == "" {
		deviceToken = uuid.New().String()
	}
	if err := manager.RegisterPushToken(ctx, deviceToken); err != nil {
		return err
	}
	fmt.Println("push token registered")
	return nil
}

// openStore opens the encrypted credential file, provisioning a per-install
// sealing secret next to it on first use.
func openStore(path string) (*filestore.Store, error) {
	secretPath := filepath.Join(filepath.Dir(path), "secret")
	secret, err := os.ReadFile(secretPath)
	if os.IsNotExist(err) {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, errors.Wrap(err, "generate store secret")
		}
		if err := os.MkdirAll(filepath.Dir(secretPath), 0o700); err != nil {
			return nil, errors.Wrap(err, "create config dir")
		}
		if err := os.WriteFile(secretPath, secret, 0o600); err != nil {
			return nil, errors.Wrap(err, "write store secret")
		}
	} else if err != nil {
		return nil, errors.Wrap(err, "read store secret")
	}

	key, err := filestore.DeriveKey(secret, []byte("shiftly-cli"))
	if err != nil {
		return nil, err
	}
	return filestore.New(path, key)
}
