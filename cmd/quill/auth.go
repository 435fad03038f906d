package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
)

func runAuth(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: quill auth <login|token>")
	}
	switch args[0] {
	case "login":
		return runAuthLogin(args[1:])
	case "token":
		return runAuthToken(args[1:])
	default:
		return fmt.Errorf("unknown auth subcommand %q", args[0])
	}
}

// runAuthLogin obtains a token via the OAuth device flow and stores it.
func runAuthLogin(args []string) error {
	fs := flag.NewFlagSet("auth login", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	a, err := buildApp(ctx, loadConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.tokens.DeviceLogin(ctx, os.Stdout); err != nil {
		return err
	}
	fmt.Println("Token stored. The server can reach Blogger now.")
	return nil
}

// runAuthToken stores a token obtained elsewhere, from a file or stdin.
// The payload must include refresh_token; client fields are filled from the
// credentials file when missing.
func runAuthToken(args []string) error {
	fs := flag.NewFlagSet("auth token", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	var raw []byte
	var err error
	if fs.NArg() > 0 {
		raw, err = os.ReadFile(fs.Arg(0))
	} else {
		raw, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := buildApp(ctx, loadConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.tokens.Store(ctx, raw); err != nil {
		return err
	}
	fmt.Println("Token stored.")
	return nil
}
