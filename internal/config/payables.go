package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/smallbiznis/freightdesk/internal/observability/metrics"
	"github.com/smallbiznis/freightdesk/internal/payables/calc"
	"github.com/smallbiznis/freightdesk/internal/payables/format"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// PayablesConfig holds the hot-reloadable AP settings.
type PayablesConfig struct {
	Currency              string  `json:"currency"`
	DefaultBIRPercentage  float64 `json:"default_bir_percentage"`
	GrossIncomeOnAutoExit string  `json:"gross_income_on_auto_exit"`
	ReferenceTemplate     string  `json:"reference_template"`
}

func DefaultPayablesConfig() PayablesConfig {
	return PayablesConfig{
		Currency:              format.DefaultCurrency,
		DefaultBIRPercentage:  0,
		GrossIncomeOnAutoExit: string(calc.ExitDiscard),
		ReferenceTemplate:     format.DefaultReferenceTemplate,
	}
}

type PayablesParams struct {
	fx.In

	Config  Config
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

type PayablesConfigHolder struct {
	current atomic.Value // holds PayablesConfig
}

// NewPayablesConfigHolder reads payables.yml and watches it for changes.
// A missing file leaves the defaults in place.
func NewPayablesConfigHolder(p PayablesParams) (*PayablesConfigHolder, error) {
	log := p.Log.Named("config.payables")

	v := viper.New()
	if p.Config.PayablesConfigFile != "" {
		v.SetConfigFile(p.Config.PayablesConfigFile)
	} else {
		v.SetConfigName("payables")
		v.SetConfigType("yml")
		v.AddConfigPath("/var/lib/freightdesk/config") // Volume-mounted config
		v.AddConfigPath("/etc/freightdesk")            // System config
		v.AddConfigPath(".")                           // Current directory (dev mode)
	}

	v.SetEnvPrefix("FREIGHTDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPayablesConfig()
	v.SetDefault("payables.currency", defaults.Currency)
	v.SetDefault("payables.defaultBirPercentage", defaults.DefaultBIRPercentage)
	v.SetDefault("payables.grossIncomeOnAutoExit", defaults.GrossIncomeOnAutoExit)
	v.SetDefault("payables.referenceTemplate", defaults.ReferenceTemplate)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodePayablesConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticPayablesConfig(cfg)
	if !fileLoaded {
		log.Info("payables config file not found, using defaults")
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePayablesConfig(v)
		if err != nil {
			log.Warn("invalid payables config ignored", zap.String("file", e.Name), zap.Error(err))
			p.Metrics.RecordConfigReload(context.Background(), "payables", "invalid")
			return
		}
		holder.current.Store(updated)
		p.Metrics.RecordConfigReload(context.Background(), "payables", "applied")
		log.Info("payables config reloaded",
			zap.String("file", e.Name),
			zap.String("gross_income_on_auto_exit", updated.GrossIncomeOnAutoExit),
		)
	})
	v.WatchConfig()

	return holder, nil
}

// NewStaticPayablesConfig returns a holder that never reloads.
func NewStaticPayablesConfig(cfg PayablesConfig) *PayablesConfigHolder {
	holder := &PayablesConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PayablesConfigHolder) Get() PayablesConfig {
	return h.current.Load().(PayablesConfig)
}

// GrossIncomeExitPolicy is read by the wizard manager on every session open.
func (h *PayablesConfigHolder) GrossIncomeExitPolicy() calc.ExitPolicy {
	return calc.ParseExitPolicy(h.Get().GrossIncomeOnAutoExit)
}

func decodePayablesConfig(v *viper.Viper) (PayablesConfig, error) {
	// keys are read one by one so defaults fill in keys a partial file omits
	cfg := PayablesConfig{
		Currency:              strings.ToUpper(strings.TrimSpace(v.GetString("payables.currency"))),
		DefaultBIRPercentage:  v.GetFloat64("payables.defaultBirPercentage"),
		GrossIncomeOnAutoExit: strings.ToLower(strings.TrimSpace(v.GetString("payables.grossIncomeOnAutoExit"))),
		ReferenceTemplate:     strings.TrimSpace(v.GetString("payables.referenceTemplate")),
	}
	if err := validatePayablesConfig(cfg); err != nil {
		return PayablesConfig{}, err
	}
	return cfg, nil
}

func validatePayablesConfig(cfg PayablesConfig) error {
	if len(cfg.Currency) != 3 {
		return fmt.Errorf("payables.currency must be a 3-letter code, got %q", cfg.Currency)
	}
	if cfg.DefaultBIRPercentage < 0 || cfg.DefaultBIRPercentage > 100 {
		return errors.New("payables.defaultBirPercentage must be between 0 and 100")
	}
	switch calc.ExitPolicy(cfg.GrossIncomeOnAutoExit) {
	case calc.ExitDiscard, calc.ExitRestore:
	default:
		return fmt.Errorf("payables.grossIncomeOnAutoExit must be discard or restore, got %q", cfg.GrossIncomeOnAutoExit)
	}
	if err := format.ValidateTemplate(cfg.ReferenceTemplate); err != nil {
		return fmt.Errorf("payables.referenceTemplate: %w", err)
	}
	return nil
}
