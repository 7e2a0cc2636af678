package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	StationID string `yaml:"station_id"`

	Store     StoreConfig     `yaml:"store"`
	Masters   MastersConfig   `yaml:"masters"`
	Web       WebConfig       `yaml:"web"`
	Messaging MessagingConfig `yaml:"messaging"`
}

// StoreConfig locates the persisted line store, lock and journal.
type StoreConfig struct {
	OrdersPath  string `yaml:"orders_path"`
	LockPath    string `yaml:"lock_path"`
	JournalPath string `yaml:"journal_path"`
}

// MastersConfig locates the SKU classification master data.
type MastersConfig struct {
	SKUMasterPath    string `yaml:"sku_master_path"`
	ExtrasNoScanPath string `yaml:"extras_noscan_path"`
}

// WebConfig defines the web server settings.
type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
	AdminUser     string `yaml:"admin_user"`
	AdminPassword string `yaml:"admin_password"` // bootstrap only; hashed into the journal on first run
}

// MessagingConfig defines the messaging backend.
type MessagingConfig struct {
	Enabled             bool          `yaml:"enabled"`
	Backend             string        `yaml:"backend"` // "mqtt" or "kafka"
	MQTT                MQTTConfig    `yaml:"mqtt"`
	Kafka               KafkaConfig   `yaml:"kafka"`
	PrintTopic          string        `yaml:"print_topic"`
	ScanTopic           string        `yaml:"scan_topic"`
	OutboxDrainInterval time.Duration `yaml:"outbox_drain_interval"`
}

// MQTTConfig defines MQTT broker settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// KafkaConfig defines Kafka broker settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		StationID: "pack-1",
		Store: StoreConfig{
			OrdersPath:  "data/orders_db.csv",
			LockPath:    "data/scan_lock.json",
			JournalPath: "data/packscan.db",
		},
		Masters: MastersConfig{
			SKUMasterPath:    "data/sku_master.csv",
			ExtrasNoScanPath: "data/extras_noscan.csv",
		},
		Web: WebConfig{
			Host:      "127.0.0.1",
			Port:      8090,
			AdminUser: "admin",
		},
		Messaging: MessagingConfig{
			Enabled:             false,
			Backend:             "mqtt",
			PrintTopic:          "packscan/print",
			ScanTopic:           "packscan/scans",
			OutboxDrainInterval: 5 * time.Second,
			MQTT: MQTTConfig{
				Broker: "localhost",
				Port:   1883,
			},
		},
	}
}

// Load reads the config file at path, applying defaults for missing fields.
// A missing file is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config back to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
