package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Synonym rewrites a raw product label onto a canonical product-type bucket.
type Synonym struct {
	Match     string `mapstructure:"match" yaml:"match"`
	Canonical string `mapstructure:"canonical" yaml:"canonical"`
}

// ClassificationConfig drives the name-parsing fallback of the product classifier.
// Synonym order is significant: the first match wins.
type ClassificationConfig struct {
	Separator string    `mapstructure:"separator"`
	Synonyms  []Synonym `mapstructure:"synonyms"`
}

func DefaultClassificationConfig() ClassificationConfig {
	return ClassificationConfig{
		Separator: " - ",
		Synonyms:  []Synonym{},
	}
}

type ClassificationConfigHolder struct {
	current atomic.Value // holds ClassificationConfig
}

// NewStaticClassificationConfigHolder wraps a fixed configuration without file watching.
func NewStaticClassificationConfigHolder(cfg ClassificationConfig) *ClassificationConfigHolder {
	holder := &ClassificationConfigHolder{}
	holder.current.Store(normalizeClassificationConfig(cfg))
	return holder
}

func NewClassificationConfigHolder() (*ClassificationConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("classification")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/commissionhub")
	v.AddConfigPath(".")

	v.SetEnvPrefix("COMMISSIONHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultClassificationConfig()
	v.SetDefault("classification.separator", defaults.Separator)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	var cfg ClassificationConfig
	if err := v.UnmarshalKey("classification", &cfg); err != nil {
		return nil, err
	}
	cfg = normalizeClassificationConfig(cfg)
	if err := validateClassificationConfig(cfg); err != nil {
		return nil, err
	}

	holder := &ClassificationConfigHolder{}
	holder.current.Store(cfg)

	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ClassificationConfig
		if err := v.UnmarshalKey("classification", &updated); err != nil {
			log.Printf("[classification-config] reload failed: %v", err)
			return
		}
		updated = normalizeClassificationConfig(updated)
		if err := validateClassificationConfig(updated); err != nil {
			log.Printf("[classification-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[classification-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *ClassificationConfigHolder) Get() ClassificationConfig {
	if h == nil {
		return DefaultClassificationConfig()
	}
	return h.current.Load().(ClassificationConfig)
}

func normalizeClassificationConfig(cfg ClassificationConfig) ClassificationConfig {
	if cfg.Separator == "" {
		cfg.Separator = DefaultClassificationConfig().Separator
	}
	synonyms := make([]Synonym, 0, len(cfg.Synonyms))
	for _, s := range cfg.Synonyms {
		s.Match = strings.TrimSpace(s.Match)
		s.Canonical = strings.TrimSpace(s.Canonical)
		synonyms = append(synonyms, s)
	}
	cfg.Synonyms = synonyms
	return cfg
}

func validateClassificationConfig(cfg ClassificationConfig) error {
	for _, s := range cfg.Synonyms {
		if s.Match == "" {
			return errors.New("classification.synonyms[].match cannot be empty")
		}
		if s.Canonical == "" {
			return errors.New("classification.synonyms[].canonical cannot be empty")
		}
	}
	return nil
}
