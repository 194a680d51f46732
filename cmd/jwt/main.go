// Command jwt generates a signing secret, or an API token when a secret and
// subject are supplied.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"log/slog"
	"os"

	"mathchat-backend/middleware"
)

func generateSecret(bytes int) (string, error) {
	key := make([]byte, bytes)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(key), nil
}

func main() {
	secret := flag.String("secret", "", "signing secret; when set, a token is issued instead")
	subject := flag.String("subject", "api-client", "token subject")
	bytes := flag.Int("n", 32, "secret length in bytes")
	flag.Parse()

	if *secret != "" {
		token, err := middleware.GenerateToken(*secret, *subject)
		if err != nil {
			slog.Error("failed to generate token", "err", err)
			os.Exit(1)
		}
		slog.Info("generated token", "subject", *subject, "token", token)
		return
	}

	generated, err := generateSecret(*bytes)
	if err != nil {
		slog.Error("failed to generate secret", "err", err)
		os.Exit(1)
	}
	slog.Info("generated jwt secret", "secret", generated)
}
