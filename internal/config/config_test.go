package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"staybook/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("STAYBOOK_TEST_DB", "test.db")
	yamlContent := `
database:
  path: "${STAYBOOK_TEST_DB}"
booking:
  tax_rate: 12
  pending_timeout: 20m
payment:
  gateway: demo
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Database.Path != "test.db" {
		t.Errorf("expected database path test.db, got %s", cfg.Database.Path)
	}
	if cfg.Booking.TaxRate != 12 {
		t.Errorf("expected tax rate 12, got %v", cfg.Booking.TaxRate)
	}
	if cfg.Booking.PendingTimeout != 20*time.Minute {
		t.Errorf("expected pending timeout 20m, got %s", cfg.Booking.PendingTimeout)
	}
}

func TestValidateConfig(t *testing.T) {
	base := func() Config {
		c := Config{Database: DatabaseConfig{Path: "path"}}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "negative tax", mutate: func(c *Config) { c.Booking.TaxRate = -1 }, wantErr: true},
		{name: "unknown gateway", mutate: func(c *Config) { c.Payment.Gateway = "cash" }, wantErr: true},
		{
			name:    "signature gateway without keys",
			mutate:  func(c *Config) { c.Payment.Gateway = "signature" },
			wantErr: true,
		},
		{
			name: "signature gateway with keys",
			mutate: func(c *Config) {
				c.Payment.Gateway = "signature"
				c.Payment.KeyID = "key"
				c.Payment.KeySecret = "secret"
			},
		},
		{
			name: "inverted hourly window",
			mutate: func(c *Config) {
				c.Booking.HourlyOpenHour = 20
				c.Booking.HourlyCloseHour = 8
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.Booking.PendingTimeout != 15*time.Minute {
		t.Errorf("expected default pending timeout 15m, got %s", cfg.Booking.PendingTimeout)
	}
	if cfg.Booking.HourlyOpenHour != models.DefaultHourlyOpenHour || cfg.Booking.HourlyCloseHour != models.DefaultHourlyCloseHour {
		t.Errorf("unexpected hourly window %d-%d", cfg.Booking.HourlyOpenHour, cfg.Booking.HourlyCloseHour)
	}
	if cfg.API.GRPC.Port != 8081 {
		t.Errorf("expected default gRPC port 8081, got %d", cfg.API.GRPC.Port)
	}
	if cfg.Payment.Gateway != "demo" {
		t.Errorf("expected demo gateway by default, got %s", cfg.Payment.Gateway)
	}
	if cfg.Events.MaxRetries != models.DefaultRelayMaxRetries {
		t.Errorf("expected relay retries %d, got %d", models.DefaultRelayMaxRetries, cfg.Events.MaxRetries)
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := `
hotels:
  - id: 1
    name: "Harbor View"
    commission_rate: 15
    hourly_min_hours: 3
    is_active: true
    room_types:
      - id: 10
        name: "Deluxe"
        base_price_daily: 500000
        base_price_hourly: 60000
        max_guests: 2
        total_rooms: 10
        is_active: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}

	hotels, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("failed to load catalog: %v", err)
	}
	if len(hotels) != 1 || len(hotels[0].RoomTypes) != 1 {
		t.Fatalf("expected 1 hotel with 1 room type, got %+v", hotels)
	}
	rt := hotels[0].RoomTypes[0]
	if rt.BasePriceHourly == nil || *rt.BasePriceHourly != 60000 {
		t.Errorf("expected hourly price 60000")
	}
}

func TestValidateCatalog(t *testing.T) {
	tests := []struct {
		name    string
		hotels  []models.Hotel
		wantErr bool
	}{
		{
			name: "valid",
			hotels: []models.Hotel{{ID: 1, Name: "A", RoomTypes: []models.RoomType{
				{ID: 1, Name: "Std", BasePriceDaily: 100, MaxGuests: 2, TotalRooms: 1},
			}}},
		},
		{
			name:    "duplicate hotel",
			hotels:  []models.Hotel{{ID: 1, Name: "A"}, {ID: 1, Name: "B"}},
			wantErr: true,
		},
		{
			name: "duplicate room type across hotels",
			hotels: []models.Hotel{
				{ID: 1, Name: "A", RoomTypes: []models.RoomType{{ID: 5, Name: "x", BasePriceDaily: 1, MaxGuests: 1}}},
				{ID: 2, Name: "B", RoomTypes: []models.RoomType{{ID: 5, Name: "y", BasePriceDaily: 1, MaxGuests: 1}}},
			},
			wantErr: true,
		},
		{
			name:    "zero price",
			hotels:  []models.Hotel{{ID: 1, Name: "A", RoomTypes: []models.RoomType{{ID: 1, Name: "x", MaxGuests: 1}}}},
			wantErr: true,
		},
		{
			name:    "hotel ID 0",
			hotels:  []models.Hotel{{ID: 0, Name: "A"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCatalog(tt.hotels)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCatalog() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
