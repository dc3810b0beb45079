package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/purestorage-openconnect/hanasnap/internal/config"
	"github.com/purestorage-openconnect/hanasnap/pkg/errors"
	"golang.org/x/term"
)

// ensureDirectories creates all necessary directories for the application
func ensureDirectories(catalogPath, fsmDBPath string) error {
	if err := os.MkdirAll(filepath.Dir(catalogPath), 0755); err != nil {
		return errors.Wrap(err, "failed to create catalog directory")
	}

	if fsmDBPath != "" {
		if err := os.MkdirAll(fsmDBPath, 0755); err != nil {
			return errors.Wrap(err, "failed to create FSM directory")
		}
	}

	return nil
}

// promptPassword reads a password from the terminal without echo.
func promptPassword(label string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", label)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", errors.Wrap(err, "password prompt failed")
	}
	return string(pw), nil
}

// fillPasswords prompts for any credential not supplied via flag, env, or
// config file.
func fillPasswords(cfg *config.Config) error {
	prompts := []struct {
		label string
		dest  *string
	}{
		{"Database password for " + cfg.DatabaseUser, &cfg.DatabasePass},
		{"OS password for " + cfg.OSUser, &cfg.OSPass},
		{"FlashArray password for " + cfg.ArrayUser, &cfg.ArrayPass},
	}

	for _, p := range prompts {
		if *p.dest != "" {
			continue
		}
		pw, err := promptPassword(p.label)
		if err != nil {
			return err
		}
		*p.dest = pw
	}
	return nil
}
