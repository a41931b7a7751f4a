package routes

import (
	"time"

	"github.com/xf00889/alumnisystem-sub000/internal/infra/config"
)

const defaultResetTokenTTL = 10 * time.Minute

func resetTokenTTL(cfg *config.AppConfig) time.Duration {
	if cfg == nil || cfg.Auth.ResetTokenTTL <= 0 {
		return defaultResetTokenTTL
	}
	return cfg.Auth.ResetTokenTTL
}

func socialSecret(cfg *config.AppConfig) string {
	if cfg == nil {
		return ""
	}
	return cfg.Social.AssertionSecret
}
