package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Desk-Guard/Deskguard/internal/domain/auth"
)

var hashKeyArgon2id bool

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [api-key]",
	Short: "Generate a hash for an API key",
	Long: `Generate a hash of an API key for use in config.

By default the output is "sha256:<hex>", directly usable in the
auth.api_keys.key_hash field. With --argon2id the output is an
Argon2id PHC hash (salted, memory-hard) which the keyring also accepts.

Example:
  deskguard hash-key "my-secret-api-key"
  # Output: sha256:7d5e8c...

  deskguard hash-key --argon2id "my-secret-api-key"
  # Output: $argon2id$v=19$m=48128,t=1,p=1$...

Security note: The key will appear in shell history.
Consider clearing history after use or using environment variable:
  deskguard hash-key "$MY_API_KEY"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if hashKeyArgon2id {
			hash, err := auth.HashKeyArgon2id(key)
			if err != nil {
				return fmt.Errorf("hash key: %w", err)
			}
			fmt.Println(hash)
			return nil
		}
		fmt.Printf("sha256:%s\n", auth.HashKey(key))
		return nil
	},
}

func init() {
	hashKeyCmd.Flags().BoolVar(&hashKeyArgon2id, "argon2id", false, "produce an Argon2id PHC hash instead of SHA-256")
	rootCmd.AddCommand(hashKeyCmd)
}
