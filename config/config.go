// Package config loads and hot-reloads this service's configuration via
// spf13/viper, matching the teacher's configuration layer.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully-resolved configuration for one process.
type Config struct {
	Mailboxes     []string
	EmailUser     string
	EmailPass     string
	AllowBackfill bool
	Port          int

	IMAPHost string
	IMAPPort int
	IMAPTLS  bool

	CapacityDefault float64
	DataDir         string

	Holidays []string

	InitialDelay  time.Duration
	MaxDelay      time.Duration
	MaxRetries    int
	MaxRetryDelay time.Duration

	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
	AlertWindow         time.Duration
	AlertReconnects     int
	AlertConsecutive    int

	HeartbeatInterval time.Duration

	AMQPURL    string
	AMQPQueue  string

	viper *viper.Viper
}

// LoadConfig builds a Config from the environment, an optional config file,
// and the process's command-line flags. It does not arm hot-reload; that is
// WatchHolidays' job.
func LoadConfig(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", 3000)
	v.SetDefault("capacity_default", 5000)
	v.SetDefault("data_dir", "./data")
	v.SetDefault("imap_port", 993)
	v.SetDefault("imap_tls", true)
	v.SetDefault("allow_backfill", false)
	v.SetDefault("initial_delay", 3*time.Second)
	v.SetDefault("max_delay", 5*time.Minute)
	v.SetDefault("max_retries", 5)
	v.SetDefault("max_retry_delay", 30*time.Minute)
	v.SetDefault("health_check_interval", 3*time.Minute)
	v.SetDefault("health_check_timeout", 15*time.Second)
	v.SetDefault("alert_window", 5*time.Minute)
	v.SetDefault("alert_reconnects", 10)
	v.SetDefault("alert_consecutive", 3)
	v.SetDefault("heartbeat_interval", 30*time.Second)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("config: bind flags: %w", err)
		}
		if cf, _ := flags.GetString("config_file"); cf != "" {
			v.SetConfigFile(cf)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("config: read %s: %w", cf, err)
			}
		}
	}

	mailboxes := v.GetStringSlice("mailboxes")
	if len(mailboxes) == 0 {
		if raw := v.GetString("mailboxes"); raw != "" {
			for _, m := range strings.Split(raw, ",") {
				if m = strings.TrimSpace(m); m != "" {
					mailboxes = append(mailboxes, m)
				}
			}
		}
	}
	if len(mailboxes) == 0 {
		if single := v.GetString("mailbox"); single != "" {
			mailboxes = []string{single}
		}
	}

	cfg := &Config{
		Mailboxes:           mailboxes,
		EmailUser:           v.GetString("email_user"),
		EmailPass:           v.GetString("email_pass"),
		AllowBackfill:       v.GetBool("allow_backfill"),
		Port:                v.GetInt("port"),
		IMAPHost:            v.GetString("imap_host"),
		IMAPPort:            v.GetInt("imap_port"),
		IMAPTLS:             v.GetBool("imap_tls"),
		CapacityDefault:     v.GetFloat64("capacity_default"),
		DataDir:             v.GetString("data_dir"),
		Holidays:            v.GetStringSlice("holidays"),
		InitialDelay:        v.GetDuration("initial_delay"),
		MaxDelay:            v.GetDuration("max_delay"),
		MaxRetries:          v.GetInt("max_retries"),
		MaxRetryDelay:       v.GetDuration("max_retry_delay"),
		HealthCheckInterval: v.GetDuration("health_check_interval"),
		HealthCheckTimeout:  v.GetDuration("health_check_timeout"),
		AlertWindow:         v.GetDuration("alert_window"),
		AlertReconnects:     v.GetInt("alert_reconnects"),
		AlertConsecutive:    v.GetInt("alert_consecutive"),
		HeartbeatInterval:   v.GetDuration("heartbeat_interval"),
		AMQPURL:             v.GetString("amqp_url"),
		AMQPQueue:           v.GetString("amqp_queue"),
	}

	cfg.viper = v
	return cfg, nil
}

// WatchHolidays arms viper's fsnotify-backed config watcher and calls onChange
// with the fresh holiday list whenever the config file changes. Callers pass
// a closure that swaps a bizday.HolidayTable's contents rather than mutating
// Config directly, since Config itself carries no synchronization.
func (c *Config) WatchHolidays(onChange func([]string)) {
	if c.viper == nil || c.viper.ConfigFileUsed() == "" {
		return
	}
	c.viper.WatchConfig()
	c.viper.OnConfigChange(func(_ fsnotify.Event) {
		onChange(c.viper.GetStringSlice("holidays"))
	})
}
