// Command keygen prints a fresh base64-encoded vault key for APILOT_VAULT_KEY.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ericfisherdev/accountpilot/internal/vault"
)

func main() {
	key, err := vault.GenerateKey()
	if err != nil {
		slog.Error("failed to generate key", "error", err)
		os.Exit(1)
	}
	fmt.Println(key)
}
