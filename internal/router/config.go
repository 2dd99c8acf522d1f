package router

import (
	"context"
	"database/sql"
	"errors"

	"github.com/redis/go-redis/v9"

	"medication-reminder/internal/adapters/auth/odin"
	"medication-reminder/internal/adapters/capabilities/plansfeatures"
	"medication-reminder/internal/adapters/notify/gateway"
	"medication-reminder/internal/adapters/notify/sendgrid"
	"medication-reminder/internal/adapters/notify/twilio"
	pg "medication-reminder/internal/adapters/storage/postgres"
	"medication-reminder/internal/notify"
	"medication-reminder/internal/platform/config"
	"medication-reminder/internal/platform/logger"
	"medication-reminder/internal/ports/auth"
	"medication-reminder/internal/ports/capabilities"
)

// Stores son las conexiones externas opcionales. Close libera lo que se abrió.
type Stores struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

func (s Stores) Close() {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.DB != nil {
		_ = s.DB.Close()
	}
}

// OpenStores abre Postgres (si DB_DSN) y Redis (si REDIS_ADDR). Sin ninguno,
// todo queda in-memory.
func OpenStores(ctx context.Context, cfg config.Config, log logger.Logger) (Stores, error) {
	var st Stores

	if cfg.DB.DSN != "" {
		db, err := pg.Open(cfg.DB.DSN)
		if err != nil {
			return Stores{}, err
		}
		st.DB = db
		if cfg.DB.AutoMigrate {
			if err := pg.Migrate(ctx, db); err != nil {
				st.Close()
				return Stores{}, err
			}
			log.Info("schema migrated", nil)
		}
	} else {
		log.Warn("DB_DSN not set, using in-memory storage", nil)
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		st.Redis = rdb
		if err := rdb.Ping(ctx).Err(); err != nil {
			st.Close()
			return Stores{}, err
		}
	}
	return st, nil
}

// OptionsFromConfig arma las Options del router a partir de la config:
// verifier de Odin, resolver de plans-features y senders HTTP.
func OptionsFromConfig(cfg config.Config, log logger.Logger, st Stores) (Options, error) {
	verifier, err := newVerifier(cfg)
	if err != nil {
		return Options{}, err
	}
	caps, err := newCapabilities(cfg)
	if err != nil {
		return Options{}, err
	}

	return Options{
		AuthVerifier:          verifier,
		DB:                    st.DB,
		Redis:                 st.Redis,
		LockTTL:               cfg.Redis.LockTTL,
		LockWait:              cfg.Redis.LockWait,
		PushRequireSubscriber: cfg.Channels.Push.RequireSubscriber,
		Logger:                log,
		Capabilities:          caps,
		Senders:               newSenders(cfg, log),
		DispatchTimeout:       cfg.App.DispatchTimeout,
	}, nil
}

func newVerifier(cfg config.Config) (auth.AuthVerifier, error) {
	if cfg.Auth.OdinBaseURL == "" {
		return nil, nil // modo dev
	}
	client, err := odin.NewClient(odin.Config{
		BaseURL: cfg.Auth.OdinBaseURL,
		APIKey:  cfg.Auth.OdinAPIKey,
	})
	if err != nil {
		return nil, err
	}
	return odin.NewVerifier(client), nil
}

func newCapabilities(cfg config.Config) (capabilities.CapabilitiesResolver, error) {
	if cfg.Plans.BaseURL == "" && !cfg.Plans.AllowAll {
		return nil, nil
	}
	client, err := plansfeatures.NewClient(plansfeatures.Config{
		BaseURL: cfg.Plans.BaseURL,
		APIKey:  cfg.Plans.APIKey,
	})
	if err != nil {
		return nil, err
	}
	return plansfeatures.NewResolver(client, plansfeatures.ResolverOptions{
		AllowAll: cfg.Plans.AllowAll,
		CacheTTL: cfg.Plans.CacheTTL,
	}), nil
}

// newSenders arma los canales HTTP configurados. push lo agrega Build cuando hay Redis.
func newSenders(cfg config.Config, log logger.Logger) []notify.Sender {
	var out []notify.Sender

	if s, err := sendgrid.New(sendgrid.Config{
		APIKey:    cfg.Channels.SendGrid.APIKey,
		FromEmail: cfg.Channels.SendGrid.FromEmail,
		FromName:  cfg.Channels.SendGrid.FromName,
	}); err == nil {
		out = append(out, s)
	} else if !errors.Is(err, sendgrid.ErrNotConfigured) {
		log.Error("sendgrid sender disabled", map[string]any{"error": err})
	}

	if s, err := twilio.New(twilio.Config{
		AccountSID: cfg.Channels.Twilio.AccountSID,
		AuthToken:  cfg.Channels.Twilio.AuthToken,
		From:       cfg.Channels.Twilio.From,
	}); err == nil {
		out = append(out, s)
	} else if !errors.Is(err, twilio.ErrNotConfigured) {
		log.Error("twilio sender disabled", map[string]any{"error": err})
	}

	if s, err := gateway.New(gateway.Config{
		BaseURL: cfg.Channels.Gateway.BaseURL,
		APIKey:  cfg.Channels.Gateway.APIKey,
	}); err == nil {
		out = append(out, s)
	} else if !errors.Is(err, gateway.ErrNotConfigured) {
		log.Error("device gateway sender disabled", map[string]any{"error": err})
	}

	chans := make([]string, 0, len(out))
	for _, s := range out {
		chans = append(chans, string(s.Channel()))
	}
	log.Info("notification channels", map[string]any{"channels": chans})
	return out
}
