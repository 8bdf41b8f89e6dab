package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	EnvBotToken    = "BOT_TOKEN"
	EnvDatabaseURL = "PAGEWATCH_DATABASE_URL"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
			d, err := time.ParseDuration(strings.TrimSpace(fl.Field().String()))
			return err == nil && d >= 0
		})
		_ = v.RegisterValidation("tzname", func(fl validator.FieldLevel) bool {
			_, err := time.LoadLocation(strings.TrimSpace(fl.Field().String()))
			return err == nil
		})
		_ = v.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
			switch strings.ToLower(strings.TrimSpace(fl.Field().String())) {
			case "trace", "debug", "info", "warn", "error":
				return true
			}
			return false
		})
		_ = v.RegisterValidation("chatid", func(fl validator.FieldLevel) bool {
			_, err := strconv.ParseInt(strings.TrimSpace(fl.Field().String()), 10, 64)
			return err == nil
		})
		validate = v
	})
	return validate
}

// Validate checks struct tags plus rules spanning several fields.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := validatorInstance().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msg := fmt.Sprintf("%s: rule %q", fieldPath(e.Namespace()), e.Tag())
				if e.Param() != "" {
					msg += " (" + e.Param() + ")"
				}
				msgs = append(msgs, msg)
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Ops.Enabled && cfg.Ops.Addr == "" {
		return errors.New("invalid config: ops.addr is required when ops is enabled")
	}
	return nil
}

// fieldPath drops the root type from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	return strings.ToLower(ns)
}

// applyEnv lets the environment supply secrets.
func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvBotToken)); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDatabaseURL)); v != "" {
		cfg.Storage.DSN = v
		if cfg.Storage.Driver == "" {
			cfg.Storage.Driver = "postgres"
		}
	}
}
