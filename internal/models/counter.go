package models

import (
	"fmt"
	"strings"
)

// CounterScope keys a sequential counter by category (sector or document kind) and year.
type CounterScope struct {
	Category string `json:"category"`
	Year     int    `json:"year"`
}

// Key renders the composite scope id, e.g. "sectorA-2024".
func (s CounterScope) Key() string {
	return fmt.Sprintf("%s-%d", strings.TrimSpace(s.Category), s.Year)
}

// Valid reports whether the scope can address a counter row.
func (s CounterScope) Valid() bool {
	return strings.TrimSpace(s.Category) != "" && s.Year > 0
}
