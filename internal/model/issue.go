package model

import "time"

// DefaultIssueStatus is assigned to newly reported issues.
const DefaultIssueStatus = "Pending"

// Issue is a defect or task reported against a machine.
type Issue struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	MachineID uint   `gorm:"index;not null" json:"machine_id"`
	Issue     string `gorm:"not null" json:"issue"`
	Status    string `gorm:"size:64;not null;default:Pending" json:"status"`
	Note      string `json:"note"`
	Severity  string `gorm:"size:64" json:"severity"`

	// Shipment tracking for parts ordered against this issue.
	TrackingNumber string     `gorm:"size:128;index" json:"tracking_number,omitempty"`
	CarrierCode    string     `gorm:"size:64" json:"carrier_code,omitempty"`
	TrackingData   string     `json:"tracking_data,omitempty"`
	TrackedAt      *time.Time `json:"tracked_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
