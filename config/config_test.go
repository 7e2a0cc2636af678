package config

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Web.Port != 8090 || cfg.StationID != "pack-1" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Messaging.Enabled {
		t.Error("messaging should default off")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packscan.yaml")

	cfg := Defaults()
	cfg.StationID = "pack-7"
	cfg.Web.Port = 9000
	cfg.Messaging.Backend = "kafka"
	cfg.Messaging.Kafka.Brokers = []string{"kafka-1:9092"}
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.StationID != "pack-7" || got.Web.Port != 9000 {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if got.Messaging.Backend != "kafka" || len(got.Messaging.Kafka.Brokers) != 1 {
		t.Errorf("messaging config lost: %+v", got.Messaging)
	}
	// Fields absent from the file keep their defaults.
	if got.Store.OrdersPath != "data/orders_db.csv" {
		t.Errorf("orders path = %q", got.Store.OrdersPath)
	}
}
