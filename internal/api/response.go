package api

import (
	"time"

	"repair-tracker-backend/internal/model"
	"repair-tracker-backend/internal/timer"
)

// machineResponse is the read model of a machine. Totals are "H:MM" strings.
type machineResponse struct {
	ID                  uint                 `json:"id"`
	Name                string               `json:"name"`
	Status              string               `json:"status"`
	WorkerName          string               `json:"worker_name"`
	Photo               string               `json:"photo"`
	StartTime           *time.Time           `json:"start_time"`
	TotalTime           string               `json:"total_time"`
	InspectionStartTime *time.Time           `json:"inspection_start_time"`
	InspectionTotalTime string               `json:"inspection_total_time"`
	ServicingStartTime  *time.Time           `json:"servicing_start_time"`
	ServicingTotalTime  string               `json:"servicing_total_time"`
	Running             map[timer.Phase]bool `json:"running"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

type machineDetailResponse struct {
	machineResponse
	Issues []model.Issue `json:"issues"`
}

func newMachineResponse(m *model.Machine) machineResponse {
	running := make(map[timer.Phase]bool, 3)
	for _, p := range timer.Phases() {
		running[p] = m.Phase(p).Running()
	}
	return machineResponse{
		ID:                  m.ID,
		Name:                m.Name,
		Status:              m.Status,
		WorkerName:          m.WorkerName,
		Photo:               m.Photo,
		StartTime:           m.General.StartTime,
		TotalTime:           timer.Format(m.General.TotalTime),
		InspectionStartTime: m.Inspection.StartTime,
		InspectionTotalTime: timer.Format(m.Inspection.TotalTime),
		ServicingStartTime:  m.Servicing.StartTime,
		ServicingTotalTime:  timer.Format(m.Servicing.TotalTime),
		Running:             running,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}
