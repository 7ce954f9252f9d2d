package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Orphan escalation policies for requests whose reviewing organization
// lost its last admin while the request was pending.
const (
	OrphanEscalate = "escalate"
	OrphanFreeze   = "freeze"
)

// ReviewConfig carries hot-reloadable review policy.
type ReviewConfig struct {
	// OrphanEscalation decides whether orphaned pending requests surface in
	// the top-authority queue ("escalate") or wait for an explicit override
	// ("freeze").
	OrphanEscalation string `mapstructure:"orphanEscalation"`

	// SubmissionRate / SubmissionBurst bound how fast a single applicant may
	// create requests.
	SubmissionRate  float64 `mapstructure:"submissionRate"`
	SubmissionBurst int     `mapstructure:"submissionBurst"`

	// NotificationPollSeconds is advertised to clients as the minimum
	// polling interval.
	NotificationPollSeconds int `mapstructure:"notificationPollSeconds"`
}

func DefaultReviewConfig() ReviewConfig {
	return ReviewConfig{
		OrphanEscalation:        OrphanEscalate,
		SubmissionRate:          0.2,
		SubmissionBurst:         5,
		NotificationPollSeconds: 30,
	}
}

// ReviewConfigHolder exposes the current review policy and reloads it when
// the backing file changes.
type ReviewConfigHolder struct {
	current atomic.Value // holds ReviewConfig
}

func NewReviewConfigHolder() (*ReviewConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("review")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/bridge/config")
	v.AddConfigPath("/etc/bridge")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultReviewConfig()
		v.SetDefault("review.orphanEscalation", defaults.OrphanEscalation)
		v.SetDefault("review.submissionRate", defaults.SubmissionRate)
		v.SetDefault("review.submissionBurst", defaults.SubmissionBurst)
		v.SetDefault("review.notificationPollSeconds", defaults.NotificationPollSeconds)
	}

	var cfg ReviewConfig
	if err := v.UnmarshalKey("review", &cfg); err != nil {
		return nil, err
	}
	if err := validateReviewConfig(cfg); err != nil {
		return nil, err
	}

	holder := &ReviewConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ReviewConfig
		if err := v.UnmarshalKey("review", &updated); err != nil {
			log.Printf("[review-config] reload failed: %v", err)
			return
		}
		if err := validateReviewConfig(updated); err != nil {
			log.Printf("[review-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[review-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticReviewConfigHolder returns a holder pinned to cfg, for tests.
func NewStaticReviewConfigHolder(cfg ReviewConfig) *ReviewConfigHolder {
	holder := &ReviewConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *ReviewConfigHolder) Get() ReviewConfig {
	return h.current.Load().(ReviewConfig)
}

func validateReviewConfig(cfg ReviewConfig) error {
	switch cfg.OrphanEscalation {
	case OrphanEscalate, OrphanFreeze:
	default:
		return errors.New("review.orphanEscalation must be escalate or freeze")
	}
	if cfg.SubmissionRate <= 0 {
		return errors.New("review.submissionRate must be positive")
	}
	if cfg.SubmissionBurst <= 0 {
		return errors.New("review.submissionBurst must be positive")
	}
	return nil
}
