package app

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tidewater/gatehouse/pkg/jwtx"
)

// initSigningKeys returns the Ed25519 key pair used for access tokens.
//
// With SIGNING_SEED_FILE set, the 32-byte seed (raw or hex-encoded) is
// loaded from disk so tokens survive restarts. Without it an ephemeral
// pair is generated and every outstanding token dies with the process.
func initSigningKeys(cfg Config, logger *slog.Logger) (jwtx.KeyPair, error) {
	if cfg.SigningSeed == "" {
		kp, err := jwtx.GenerateKeyPair()
		if err != nil {
			return jwtx.KeyPair{}, fmt.Errorf("generate signing key: %w", err)
		}
		logger.Warn("using ephemeral signing key, outstanding tokens will not survive a restart")
		return kp, nil
	}

	raw, err := os.ReadFile(cfg.SigningSeed)
	if err != nil {
		return jwtx.KeyPair{}, fmt.Errorf("read signing seed file: %w", err)
	}

	seed := []byte(strings.TrimSpace(string(raw)))
	if len(seed) == 64 {
		decoded, err := hex.DecodeString(string(seed))
		if err != nil {
			return jwtx.KeyPair{}, fmt.Errorf("decode hex signing seed: %w", err)
		}
		seed = decoded
	}

	kp, err := jwtx.KeyPairFromSeed(seed)
	if err != nil {
		return jwtx.KeyPair{}, fmt.Errorf("load signing seed: %w", err)
	}

	logger.Info("persistent signing key loaded", "path", cfg.SigningSeed)
	return kp, nil
}
