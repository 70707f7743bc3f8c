package config

import (
	"errors"
	"log"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
)

// OperationsConfig holds the thresholds used by stock and invoice alerts.
// It is read from operations.yml and reloaded on change.
type OperationsConfig struct {
	Stock   StockAlertConfig `mapstructure:"stock"`
	Overdue OverdueConfig    `mapstructure:"overdue"`
}

type StockAlertConfig struct {
	DefaultThreshold int64 `mapstructure:"defaultThreshold"`
}

type OverdueConfig struct {
	MinAge time.Duration  `mapstructure:"minAge"`
	Levels []OverdueLevel `mapstructure:"levels"`
}

type OverdueLevel struct {
	Severity string        `mapstructure:"severity"`
	MinAge   time.Duration `mapstructure:"minAge"`
}

func DefaultOperationsConfig() OperationsConfig {
	return OperationsConfig{
		Stock: StockAlertConfig{DefaultThreshold: 5},
		Overdue: OverdueConfig{
			MinAge: 24 * time.Hour,
			Levels: []OverdueLevel{
				{Severity: SeverityCritical, MinAge: 168 * time.Hour},
				{Severity: SeverityHigh, MinAge: 72 * time.Hour},
				{Severity: SeverityMedium, MinAge: 24 * time.Hour},
			},
		},
	}
}

// SeverityFor returns the severity of an unpaid invoice of the given age.
// Levels are evaluated from the oldest bucket down.
func (c OverdueConfig) SeverityFor(age time.Duration) (string, bool) {
	if age <= c.MinAge {
		return "", false
	}
	levels := append([]OverdueLevel(nil), c.Levels...)
	sort.Slice(levels, func(i, j int) bool { return levels[i].MinAge > levels[j].MinAge })
	for _, level := range levels {
		if age > level.MinAge {
			return level.Severity, true
		}
	}
	return SeverityMedium, true
}

type OperationsConfigHolder struct {
	current atomic.Value // holds OperationsConfig
}

// NewOperationsConfigHolder reads operations.yml from the usual locations and
// keeps the holder updated when the file changes.
func NewOperationsConfigHolder() (*OperationsConfigHolder, error) {
	return LoadOperationsConfig("/etc/comptoir", ".")
}

// NewStaticOperationsConfigHolder returns a holder that never reloads.
func NewStaticOperationsConfigHolder(cfg OperationsConfig) *OperationsConfigHolder {
	holder := &OperationsConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func LoadOperationsConfig(paths ...string) (*OperationsConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("operations")
	v.SetConfigType("yml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("COMPTOIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultOperationsConfig()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		return NewStaticOperationsConfigHolder(defaults), nil
	}

	cfg, err := decodeOperations(v, defaults)
	if err != nil {
		return nil, err
	}

	holder := NewStaticOperationsConfigHolder(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeOperations(v, defaults)
		if err != nil {
			log.Printf("[operations-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[operations-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *OperationsConfigHolder) Get() OperationsConfig {
	return h.current.Load().(OperationsConfig)
}

func decodeOperations(v *viper.Viper, defaults OperationsConfig) (OperationsConfig, error) {
	var cfg OperationsConfig
	if err := v.UnmarshalKey("operations", &cfg); err != nil {
		return OperationsConfig{}, err
	}
	if cfg.Stock.DefaultThreshold == 0 {
		cfg.Stock.DefaultThreshold = defaults.Stock.DefaultThreshold
	}
	if cfg.Overdue.MinAge == 0 {
		cfg.Overdue.MinAge = defaults.Overdue.MinAge
	}
	if len(cfg.Overdue.Levels) == 0 {
		cfg.Overdue.Levels = defaults.Overdue.Levels
	}
	if err := validateOperations(cfg); err != nil {
		return OperationsConfig{}, err
	}
	return cfg, nil
}

func validateOperations(cfg OperationsConfig) error {
	if cfg.Stock.DefaultThreshold < 0 {
		return errors.New("operations.stock.defaultThreshold cannot be negative")
	}
	if cfg.Overdue.MinAge < 0 {
		return errors.New("operations.overdue.minAge cannot be negative")
	}
	for _, level := range cfg.Overdue.Levels {
		if strings.TrimSpace(level.Severity) == "" {
			return errors.New("operations.overdue.levels[].severity is required")
		}
	}
	return nil
}
