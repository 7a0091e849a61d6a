package push

import (
	"fmt"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"push-vault-go/internal/config"
)

// ResolveVAPIDKeys fills in missing VAPID keys. Generated keys only live for
// this process, so they are logged for the operator to persist.
func ResolveVAPIDKeys(cfg config.VAPIDConfig, log *zap.Logger) (config.VAPIDConfig, error) {
	if cfg.PublicKey != "" && cfg.PrivateKey != "" {
		return cfg, nil
	}

	log.Warn("VAPID keys not found in environment, generating new keys")
	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return cfg, fmt.Errorf("generate VAPID keys: %w", err)
	}
	cfg.PrivateKey = privateKey
	cfg.PublicKey = publicKey

	log.Info("generated VAPID keys; add them to your .env file to persist them",
		zap.String("VAPID_PUBLIC_KEY", publicKey),
		zap.String("VAPID_PRIVATE_KEY", privateKey),
	)
	return cfg, nil
}
