package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// StorageConfig selects and configures a store backend.
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`
}

// MemoryConfig holds JSON-file storage backend settings.
type MemoryConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// Load reads configuration from a JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.jwtSecret", "")
	viper.SetDefault("server.corsOrigins", []string{"http://localhost:3000"})

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.path", "./memorymap.json")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "memorymap")
	viper.SetDefault("db.sqlitePath", "./memorymap.db")

	viper.SetDefault("geocoder.url", "https://nominatim.openstreetmap.org/search")
	viper.SetDefault("geocoder.userAgent", "memorymap/1.0")

	viper.SetDefault("map.minZoom", 1.0)
	viper.SetDefault("map.maxZoom", 22.0)
	viper.SetDefault("map.center", "20,0")
	viper.SetDefault("map.zoom", 2.0)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "memorymap-metrics")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("monitor.interval", "30s")

	viper.SetConfigName("memorymap.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// Storage returns the storage section of the loaded configuration.
func Storage() (StorageConfig, error) {
	var cfg StorageConfig
	if err := viper.UnmarshalKey("storage", &cfg); err != nil {
		return StorageConfig{}, fmt.Errorf("error parsing storage config: %w", err)
	}
	return cfg, nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetFloat64 returns a float config value.
func GetFloat64(key string) float64 {
	return viper.GetFloat64(key)
}
