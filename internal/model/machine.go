package model

import (
	"time"

	"repair-tracker-backend/internal/timer"
)

// Machine is a physical machine moving through the repair workflow.
type Machine struct {
	ID         uint   `gorm:"primaryKey"`
	Name       string `gorm:"size:256;not null"`
	Status     string `gorm:"size:64;not null;default:Pending"`
	WorkerName string `gorm:"size:256"`
	Photo      string `gorm:"size:1024"`

	// Version is bumped on every timer write and guards the compare-and-swap
	// in the store.
	Version int64 `gorm:"not null;default:0"`

	General    timer.State `gorm:"embedded"`
	Inspection timer.State `gorm:"embedded;embeddedPrefix:inspection_"`
	Servicing  timer.State `gorm:"embedded;embeddedPrefix:servicing_"`

	CreatedAt time.Time
	UpdatedAt time.Time

	// Associations
	Issues []Issue `gorm:"foreignKey:MachineID"`
}

// Phase returns the timer record for p.
func (m *Machine) Phase(p timer.Phase) *timer.State {
	switch p {
	case timer.Inspection:
		return &m.Inspection
	case timer.Servicing:
		return &m.Servicing
	default:
		return &m.General
	}
}

// PhaseColumns returns the start and total column names backing p.
func PhaseColumns(p timer.Phase) (start, total string) {
	switch p {
	case timer.Inspection:
		return "inspection_start_time", "inspection_total_time"
	case timer.Servicing:
		return "servicing_start_time", "servicing_total_time"
	default:
		return "start_time", "total_time"
	}
}
