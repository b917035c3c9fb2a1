package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissing marks a required setting that is not set.
var ErrMissing = errors.New("required setting missing")

type Config struct {
	Discord  DiscordConfig  `mapstructure:"discord"`
	Slack    SlackConfig    `mapstructure:"slack"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Database DatabaseConfig `mapstructure:"database"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

type DiscordConfig struct {
	Token      string `mapstructure:"token"`
	ChannelID  string `mapstructure:"channel_id"`
	WebhookURL string `mapstructure:"webhook_url"`
	// ApprovalEmoji is a unicode emoji or a custom emoji id.
	ApprovalEmoji     string   `mapstructure:"approval_emoji"`
	PrivilegedRoles   []string `mapstructure:"privileged_roles"`
	GatedChannelTypes []string `mapstructure:"gated_channel_types"`
}

type SlackConfig struct {
	BotToken  string `mapstructure:"bot_token"`
	AppToken  string `mapstructure:"app_token"`
	ChannelID string `mapstructure:"channel_id"`
}

type RelayConfig struct {
	OneWay          bool          `mapstructure:"one_way"`
	ForwardAvatars  bool          `mapstructure:"forward_avatars"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"`
	RedisURL string `mapstructure:"redis_url"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		if port, err = strconv.Atoi(u.Port()); err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port %q: %w", u.Port(), err)
		}
	}

	// Remove leading slash from path to get database name
	dbName := strings.TrimPrefix(u.Path, "/")

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Driver:   "postgres",
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  sslMode,
	}, nil
}

// envOverrides maps the bridge's historical environment variable names to config keys.
var envOverrides = map[string]string{
	"DISCORD_API_KEY":     "discord.token",
	"DISCORD_CHAT_ID":     "discord.channel_id",
	"DISCORD_WEBHOOK_URL": "discord.webhook_url",
	"SLACK_BOT_KEY":       "slack.bot_token",
	"SLACK_SOCKET_KEY":    "slack.app_token",
	"SLACK_CHAT_ID":       "slack.channel_id",
}

// LoadConfig reads path (if it exists), then applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("discord.approval_emoji", "✅")
	v.SetDefault("discord.privileged_roles", []string{"Staff"})
	v.SetDefault("discord.gated_channel_types", []string{"forum"})
	v.SetDefault("relay.one_way", false)
	v.SetDefault("relay.forward_avatars", false)
	v.SetDefault("relay.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("log.level", "info")

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	for env, key := range envOverrides {
		if value := os.Getenv(env); value != "" {
			if err := setField(&config, key, value); err != nil {
				return nil, err
			}
		}
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Database = dbConfig
	}

	if redisURL := v.GetString("REDIS_URL"); redisURL != "" {
		config.Database.RedisURL = redisURL
		if config.Database.Driver == "" || config.Database.Driver == "sqlite" {
			config.Database.Driver = "redis"
		}
	}

	return &config, nil
}

func setField(c *Config, key, value string) error {
	switch key {
	case "discord.token":
		c.Discord.Token = value
	case "discord.channel_id":
		c.Discord.ChannelID = value
	case "discord.webhook_url":
		c.Discord.WebhookURL = value
	case "slack.bot_token":
		c.Slack.BotToken = value
	case "slack.app_token":
		c.Slack.AppToken = value
	case "slack.channel_id":
		c.Slack.ChannelID = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

// Validate reports every missing required setting.
func (c *Config) Validate() error {
	var missing []string
	require := func(value, name string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	require(c.Discord.Token, "discord.token (DISCORD_API_KEY)")
	require(c.Discord.ChannelID, "discord.channel_id (DISCORD_CHAT_ID)")
	require(c.Slack.BotToken, "slack.bot_token (SLACK_BOT_KEY)")
	require(c.Slack.ChannelID, "slack.channel_id (SLACK_CHAT_ID)")
	if !c.Relay.OneWay {
		require(c.Slack.AppToken, "slack.app_token (SLACK_SOCKET_KEY)")
		require(c.Discord.WebhookURL, "discord.webhook_url (DISCORD_WEBHOOK_URL)")
	}
	if c.Database.Driver == "redis" {
		require(c.Database.RedisURL, "database.redis_url (REDIS_URL)")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}
	return nil
}
