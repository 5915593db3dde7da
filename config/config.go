package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Inverter  InverterConfig  `mapstructure:"inverter"`
	Log       LogConfig       `mapstructure:"log"`
	Output    OutputConfig    `mapstructure:"output"`
	Collector CollectorConfig `mapstructure:"collector"`
	API       APIConfig       `mapstructure:"api"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
}

type InverterConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	SlaveID     uint8         `mapstructure:"slave_id"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	Client      string        `mapstructure:"client"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type OutputConfig struct {
	Format string `mapstructure:"format"`
}

type CollectorConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	Selection string        `mapstructure:"selection"`
}

type APIConfig struct {
	Port    int  `mapstructure:"port"`
	Enabled bool `mapstructure:"enabled"`
}

type MQTTConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Broker      string        `mapstructure:"broker"`
	TopicPrefix string        `mapstructure:"topic_prefix"`
	ClientID    string        `mapstructure:"client_id"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	Discovery   bool          `mapstructure:"discovery"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// EnvPrefix prefixes environment overrides, e.g. HUAWEI_SOLAR_INVERTER_TIMEOUT.
const EnvPrefix = "huawei_solar"

// Load reads configPath (or config.yaml from the usual places), a .env file if
// present, and the environment into v. Flags bound to v before Load win over
// all of them.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/huawei-solar")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("inverter.host", "")
	v.SetDefault("inverter.port", 502)
	v.SetDefault("inverter.slave_id", 0)
	v.SetDefault("inverter.timeout", "5s")
	v.SetDefault("inverter.settle_delay", "1s")
	v.SetDefault("inverter.client", "simonvetter")
	v.SetDefault("log.level", "info")
	v.SetDefault("output.format", "json")
	v.SetDefault("collector.interval", "30s")
	v.SetDefault("collector.selection", "all")
	v.SetDefault("api.port", 8045)
	v.SetDefault("api.enabled", true)
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic_prefix", "huawei_solar")
	v.SetDefault("mqtt.client_id", "huawei-solar")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.discovery", true)
	v.SetDefault("mqtt.timeout", "10s")
}
