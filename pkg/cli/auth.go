package cli

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
	"github.com/zalando/go-keyring"
)

const (
	tokenFileName  = "model_token"
	keyringService = "credscore"
	keyringUser    = "model_token"
)

var (
	tokenFlag = &cli.StringFlag{
		Name:    "token",
		Usage:   "Model server token (read from stdin when omitted)",
		EnvVars: []string{"CREDSCORE_MODEL_TOKEN"},
	}

	clearFlag = &cli.BoolFlag{
		Name:  "clear",
		Usage: "Remove the stored token",
	}

	authCmd = &cli.Command{
		Name:            "auth",
		HideHelpCommand: true,
		Usage:           "Store the bearer token used to call the model server",
		Action:          cmdAuth,
		Flags: []cli.Flag{
			tokenFlag,
			clearFlag,
		},
	}
)

func cmdAuth(c *cli.Context) error {
	home := getConfig(c).HomeDir

	if c.Bool(clearFlag.Name) {
		if err := deleteModelToken(home); err != nil {
			return fmt.Errorf("removing token: %w", err)
		}
		fmt.Fprintln(stdout, "Token removed")
		return nil
	}

	token := c.String(tokenFlag.Name)
	if token == "" {
		fmt.Fprint(stdout, "Model server token: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading user input: %w", err)
		}
		token = line
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token cannot be empty")
	}

	if err := saveModelToken(home, token); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}

	fmt.Fprintln(stdout, "Token saved")
	return nil
}

func saveModelToken(home, token string) error {
	if err := keyring.Set(keyringService, keyringUser, token); err != nil {
		slog.Warn("keychain unavailable, falling back to file", "error", err)
		return saveModelTokenFile(home, token)
	}

	// Clean up legacy file if it exists
	os.Remove(filepath.Join(home, tokenFileName))

	return nil
}

func getModelToken(home string) (string, error) {
	// Try keychain first
	token, err := keyring.Get(keyringService, keyringUser)
	if err == nil && token != "" {
		return token, nil
	}

	// Fall back to file
	token, err = getModelTokenFile(home)
	if err != nil {
		return "", err
	}

	// Migrate to keychain
	if migrateErr := keyring.Set(keyringService, keyringUser, token); migrateErr == nil {
		slog.Info("migrated token from file to OS keychain")
		os.Remove(filepath.Join(home, tokenFileName))
	}

	return token, nil
}

func deleteModelToken(home string) error {
	err := keyring.Delete(keyringService, keyringUser)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		slog.Debug("keychain delete failed", "error", err)
	}
	if err := os.Remove(filepath.Join(home, tokenFileName)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func saveModelTokenFile(home, token string) error {
	return os.WriteFile(filepath.Join(home, tokenFileName), []byte(token), 0600)
}

func getModelTokenFile(home string) (string, error) {
	tokenPath := filepath.Join(home, tokenFileName)
	b, err := os.ReadFile(tokenPath)
	if err != nil {
		return "", fmt.Errorf("reading token file %s: %w", tokenPath, err)
	}
	return strings.TrimSpace(string(b)), nil
}
