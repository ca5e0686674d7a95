package config

import (
	"encoding/json"
	"fmt"
)

// LoadCarTable reads a JSON object mapping car codes to display names, e.g.
// {"1234": "Example GT3"}. An empty path yields an empty table.
func LoadCarTable(path string) (map[int32]string, error) {
	table := map[int32]string{}
	if path == "" {
		return table, nil
	}
	if err := loadTable(path, &table); err != nil {
		return nil, fmt.Errorf("car table: %w", err)
	}
	return table, nil
}

// LoadDownforceTable reads a JSON object mapping car codes to downforce
// estimates in lbs. An empty path yields an empty table.
func LoadDownforceTable(path string) (map[int32]float64, error) {
	table := map[int32]float64{}
	if path == "" {
		return table, nil
	}
	if err := loadTable(path, &table); err != nil {
		return nil, fmt.Errorf("downforce table: %w", err)
	}
	for code, v := range table {
		if v < 0 {
			return nil, fmt.Errorf("downforce table: car %d has negative downforce %f", code, v)
		}
	}
	return table, nil
}

func loadTable(path string, dst any) error {
	data, err := readLimited(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
