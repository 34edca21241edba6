package models

import "time"

// Delivery is one sent (or dry-run) SMS, as recorded in the delivery log.
type Delivery struct {
	ID     int       `json:"id"`
	City   string    `json:"city"`
	Phone  string    `json:"phone"`
	Status string    `json:"status"`
	Body   string    `json:"body"`
	DryRun bool      `json:"dry_run"`
	SentAt time.Time `json:"sent_at"`
}
