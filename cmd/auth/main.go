package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aussiebroadwan/petauth/internal/auth/app"
	"github.com/aussiebroadwan/petauth/internal/auth/domain"
	"github.com/aussiebroadwan/petauth/pkg/authsdk"
	"github.com/aussiebroadwan/petauth/pkg/cryptox"
	"github.com/spf13/pflag"
)

const usage = `petauth issues, rotates and revokes access tokens.

Usage:
  auth serve  [--config FILE] [flags]   run the HTTP service
  auth sweep  [--config FILE] [flags]   delete expired revocations and refresh states once
  auth keygen --out FILE [--alg RS256|ES256] [--master-key FILE]
  auth issue  --kind admin|user --id ID --key-file FILE [--config FILE] [flags]

Every setting can also be given through its environment variable
(AUTH_ISSUER, AUTH_STORE_DRIVER, PORT, ...). Flags beat the environment,
which beats the config file.
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return errors.New("missing command")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "serve":
		return serve(rest)
	case "sweep":
		return sweep(rest)
	case "keygen":
		return keygen(rest)
	case "issue":
		return issue(rest)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// parse registers the shared config flags on fs, parses args and loads the
// configuration. It returns a nil config when help was requested.
func parse(fs *pflag.FlagSet, args []string) (*app.Config, error) {
	configPath := fs.String("config", "", "YAML config file")
	app.AddFlags(fs)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, nil
		}
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	cfg, err := app.LoadConfig(*configPath, fs)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func serve(args []string) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	cfg, err := parse(fs, args)
	if err != nil || cfg == nil {
		return err
	}

	application, err := app.New(*cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return application.Run()
}

func sweep(args []string) error {
	fs := pflag.NewFlagSet("sweep", pflag.ContinueOnError)
	timeout := fs.Duration("timeout", time.Minute, "give up after this long")
	cfg, err := parse(fs, args)
	if err != nil || cfg == nil {
		return err
	}

	application, err := app.New(*cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	res, err := application.Sweep(ctx)
	fmt.Fprintf(os.Stdout, "blacklist entries removed: %d\nrefresh states removed: %d\n", res.Blacklist, res.RefreshStates)
	return err
}

func keygen(args []string) error {
	fs := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
	out := fs.String("out", "", "file to write the private key to (must not exist)")
	alg := fs.String("alg", cryptox.AlgRS256, "key algorithm: RS256 or ES256")
	masterKey := fs.String("master-key", "", "seal the key with this master key file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *out == "" {
		return errors.New("--out is required")
	}

	if err := app.WriteSigningKey(*out, *alg, *masterKey); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "wrote %s key to %s\n", *alg, *out)
	return nil
}

func issue(args []string) error {
	fs := pflag.NewFlagSet("issue", pflag.ContinueOnError)
	kind := fs.String("kind", string(domain.KindRegularUser), "principal kind: admin or user")
	id := fs.String("id", "", "principal id from the config file")
	cfg, err := parse(fs, args)
	if err != nil || cfg == nil {
		return err
	}

	ref := domain.PrincipalRef{Kind: domain.PrincipalKind(*kind), ID: *id}
	if !ref.Kind.Valid() || ref.ID == "" {
		return errors.New("--kind must be admin or user and --id is required")
	}
	if err := cfg.RequireSigningKeyFile(); err != nil {
		return err
	}

	application, err := app.New(*cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	pair, err := application.Issue(context.Background(), ref)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(authsdk.TokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        int(time.Until(pair.AccessExpiresAt).Seconds()),
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}
