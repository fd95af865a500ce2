package config

import (
	"fmt"
	"os"

	"staybook/internal/models"

	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Hotels []models.Hotel `yaml:"hotels"`
}

// LoadCatalog reads the hotel and room type definitions that are upserted
// into the store at startup.
func LoadCatalog(path string) ([]models.Hotel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file catalogFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	if err := ValidateCatalog(file.Hotels); err != nil {
		return nil, fmt.Errorf("catalog validation failed: %w", err)
	}
	return file.Hotels, nil
}

func ValidateCatalog(hotels []models.Hotel) error {
	hotelIDs := make(map[int64]bool)
	roomTypeIDs := make(map[int64]bool)
	for _, h := range hotels {
		if h.ID == 0 {
			return fmt.Errorf("hotel '%s' has invalid ID 0", h.Name)
		}
		if hotelIDs[h.ID] {
			return fmt.Errorf("duplicate hotel ID found: %d", h.ID)
		}
		hotelIDs[h.ID] = true

		if h.CommissionRate < 0 || h.CommissionRate > 100 {
			return fmt.Errorf("hotel %d commission rate %.2f out of range", h.ID, h.CommissionRate)
		}
		if h.HourlyMinHours > 0 && h.HourlyMaxHours > 0 && h.HourlyMinHours > h.HourlyMaxHours {
			return fmt.Errorf("hotel %d hourly min hours exceed max hours", h.ID)
		}

		for _, rt := range h.RoomTypes {
			if rt.ID == 0 {
				return fmt.Errorf("room type '%s' has invalid ID 0", rt.Name)
			}
			if roomTypeIDs[rt.ID] {
				return fmt.Errorf("duplicate room type ID found: %d", rt.ID)
			}
			roomTypeIDs[rt.ID] = true

			if rt.TotalRooms < 0 {
				return fmt.Errorf("room type %d has negative total rooms", rt.ID)
			}
			if rt.BasePriceDaily <= 0 {
				return fmt.Errorf("room type %d needs a positive daily price", rt.ID)
			}
			if rt.MaxGuests < 1 {
				return fmt.Errorf("room type %d needs max_guests >= 1", rt.ID)
			}
		}
	}
	return nil
}
