package cmd

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"
)

const keygenBytes = 32

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Print a random base64 key",
	Long: `Prints 32 random bytes, base64 encoded. The output is suitable for
GOIDENTITY_SIGNING_KEY and GOIDENTITY_TOKEN_ENCRYPTION_KEY.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := generateKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

func generateKey() (string, error) {
	b := make([]byte, keygenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
