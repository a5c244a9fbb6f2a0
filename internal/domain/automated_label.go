package domain

import "time"

// AutomatedLabel marks an address as a router, market maker or bot so wash-trading
// analysis keeps it out of the suspicious count.
type AutomatedLabel struct {
	Address   string    `json:"address"`
	Label     string    `json:"label"`
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
}
