package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/good-yellow-bee/climalert/internal/auth"
)

var tokenFile string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the agent's bearer token",
}

var tokenSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store a bearer token for the agent",
	Long: `Read a token from the terminal (without echo) or stdin and write it to
the token file. An agent configured with auth.token_file picks it up
without a restart; run "climactl subscribe" if the stream had failed.

Examples:
  climactl token set
  echo "$TOKEN" | climactl token set --file /etc/climalert/token`,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := promptSecret("Token: ")
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		token = strings.TrimSpace(token)
		if token == "" {
			return fmt.Errorf("token is empty")
		}

		if claims, err := auth.ParseClaims(token); err == nil {
			if claims.ExpiresAt != nil && !claims.ExpiresAt.After(time.Now()) {
				return fmt.Errorf("token expired at %s", claims.ExpiresAt.Local().Format(time.DateTime))
			}
			PrintVerbose("token for user %s (%s)", claims.UserID, claims.Subject)
		}

		if err := auth.WriteTokenFile(tokenFile, token); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Token written to %s\n", tokenFile)
		return nil
	},
}

// promptSecret prompts for a secret without echoing to the terminal.
func promptSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(secret), nil
	}

	// Piped input
	reader := bufio.NewReader(os.Stdin)
	secret, err := reader.ReadString('\n')
	if err != nil && secret == "" {
		return "", err
	}
	return strings.TrimSpace(secret), nil
}

func defaultTokenFile() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".climalert", "token")
	}
	return filepath.Join(".climalert", "token")
}

func init() {
	tokenSetCmd.Flags().StringVar(&tokenFile, "file", defaultTokenFile(), "token file path")
	tokenCmd.AddCommand(tokenSetCmd)
	rootCmd.AddCommand(tokenCmd)
}
