package providers

import (
	"github.com/samber/do/v2"

	"github.com/neobackupapp/neobackup-server/internal/auth"
	"github.com/neobackupapp/neobackup-server/internal/config"
	"github.com/neobackupapp/neobackup-server/internal/logger"
	"github.com/neobackupapp/neobackup-server/internal/ratelimit"
)

// AuthKey wraps the token key bytes.
type AuthKey []byte

// ProvideAuthKey loads or generates the token key.
func ProvideAuthKey(i do.Injector) (AuthKey, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	key, err := auth.LoadOrGenerateKey(cfg.Auth.KeyPath)
	if err != nil {
		return nil, err
	}

	log.Info("Token key loaded",
		"path", cfg.Auth.KeyPath,
		"auth_required", cfg.Auth.Required,
		"token_ttl", cfg.Auth.TokenTTL,
	)

	return AuthKey(key), nil
}

// ProvideTokenService provides the PASETO token service.
func ProvideTokenService(i do.Injector) (*auth.TokenService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	authKey := do.MustInvoke[AuthKey](i)

	return auth.NewTokenService([]byte(authKey), cfg.Auth.TokenTTL)
}

// CommandLimiterHandle wraps the command rate limiter with Shutdownable.
type CommandLimiterHandle struct {
	*ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *CommandLimiterHandle) Shutdown() error {
	if h.KeyedRateLimiter != nil {
		h.Stop()
	}
	return nil
}

// ProvideCommandLimiter provides the per-client command rate limiter. A
// limit of zero disables it.
func ProvideCommandLimiter(i do.Injector) (*CommandLimiterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	if cfg.RateLimit.CommandsPerMinute <= 0 {
		return &CommandLimiterHandle{}, nil
	}
	return &CommandLimiterHandle{
		KeyedRateLimiter: ratelimit.PerMinute(cfg.RateLimit.CommandsPerMinute, cfg.RateLimit.Burst),
	}, nil
}
