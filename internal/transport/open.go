package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/arrivals-intake/internal/common"
)

// Open builds the RemoteStore selected by cfg.Kind.
func Open(ctx context.Context, cfg common.TransportConfig, collision string, logger *slog.Logger) (RemoteStore, error) {
	policy, err := ParseCollisionPolicy(collision)
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", "invalid move collision policy", fmt.Errorf("%w: %w", common.ErrInvalidInput, err))
	}

	switch cfg.Kind {
	case common.TransportSFTP:
		store, err := DialSFTP(ctx, SFTPConfig{
			Host:           cfg.Host,
			Port:           cfg.Port,
			Username:       cfg.Username,
			Password:       cfg.Password,
			KnownHostsFile: cfg.KnownHostsFile,
			DialTimeout:    cfg.DialTimeout,
			Collision:      policy,
		}, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case common.TransportGCS:
		store, err := NewGCSStore(ctx, cfg.Bucket, "", policy, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case common.TransportLocal:
		store, err := NewLocalStore(cfg.LocalRoot, policy, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Kind)
	}
}
