package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"repair-tracker-backend/internal/model"
	"repair-tracker-backend/internal/timer"
)

// maxCASAttempts bounds how often UpdatePhase re-reads a machine after losing
// a compare-and-swap to another writer.
const maxCASAttempts = 5

// IssueField names a free-text issue attribute that can be edited in place.
type IssueField string

const (
	IssueNote     IssueField = "note"
	IssueSeverity IssueField = "severity"
	IssueStatus   IssueField = "status"
)

// Store defines the interface for all database operations.
type Store interface {
	timer.Store

	CreateMachine(ctx context.Context, m *model.Machine) error
	GetMachine(ctx context.Context, id uint) (*model.Machine, error)
	ListMachines(ctx context.Context) ([]model.Machine, error)
	DeleteMachine(ctx context.Context, id uint) error
	SetMachineStatus(ctx context.Context, id uint, status string) error
	SetMachinePhoto(ctx context.Context, id uint, ref string) error

	AddIssue(ctx context.Context, issue *model.Issue) error
	ListIssues(ctx context.Context, machineID uint) ([]model.Issue, error)
	DeleteIssue(ctx context.Context, machineID, issueID uint) error
	UpdateIssueField(ctx context.Context, machineID, issueID uint, field IssueField, value string) error
	SetIssueTracking(ctx context.Context, machineID, issueID uint, number, carrier string) error
	ListTrackedIssues(ctx context.Context) ([]model.Issue, error)
	SaveTrackingData(ctx context.Context, issueID uint, data string, at time.Time) error

	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying handle for components that run their own queries.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// CreateMachine inserts m with idle timers and the pending status.
func (s *gormStore) CreateMachine(ctx context.Context, m *model.Machine) error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return validationErr("name is required")
	}
	m.Status = string(timer.StatusPending)
	m.General, m.Inspection, m.Servicing = timer.State{}, timer.State{}, timer.State{}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return storageErr("create machine", err)
	}
	return nil
}

// GetMachine loads a machine without its issues.
func (s *gormStore) GetMachine(ctx context.Context, id uint) (*model.Machine, error) {
	var m model.Machine
	err := s.db.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("machine %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get machine", err)
	}
	return &m, nil
}

// ListMachines returns every machine ordered by id.
func (s *gormStore) ListMachines(ctx context.Context) ([]model.Machine, error) {
	var machines []model.Machine
	if err := s.db.WithContext(ctx).Order("id").Find(&machines).Error; err != nil {
		return nil, storageErr("list machines", err)
	}
	return machines, nil
}

// DeleteMachine removes a machine together with its issues and push
// subscription links.
func (s *gormStore) DeleteMachine(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Dependents go first so no foreign key points at a missing machine.
		if err := tx.Where("machine_id = ?", id).Delete(&model.Issue{}).Error; err != nil {
			return storageErr("delete machine issues", err)
		}
		if err := tx.Exec("DELETE FROM subscription_machine_mapping WHERE machine_id = ?", id).Error; err != nil {
			return storageErr("delete machine subscriptions", err)
		}
		res := tx.Delete(&model.Machine{}, id)
		if res.Error != nil {
			return storageErr("delete machine", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("machine %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// SetMachineStatus overwrites the workflow status of a machine.
func (s *gormStore) SetMachineStatus(ctx context.Context, id uint, status string) error {
	status = strings.TrimSpace(status)
	if status == "" {
		return validationErr("status is required")
	}
	return s.updateMachine(ctx, id, "status", status)
}

// SetMachinePhoto records the reference of an uploaded photo.
func (s *gormStore) SetMachinePhoto(ctx context.Context, id uint, ref string) error {
	return s.updateMachine(ctx, id, "photo", ref)
}

func (s *gormStore) updateMachine(ctx context.Context, id uint, column string, value any) error {
	res := s.db.WithContext(ctx).Model(&model.Machine{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return storageErr("update machine "+column, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("machine %d: %w", id, ErrNotFound)
	}
	return nil
}

// UpdatePhase reads the phase timer, runs fn and writes the result only if no
// other timer write landed in between. On a lost race it re-reads and runs fn
// again, so fn always sees the state it replaces.
func (s *gormStore) UpdatePhase(ctx context.Context, id uint, phase timer.Phase, status timer.Status, fn timer.Transition) (timer.State, timer.State, error) {
	startCol, totalCol := model.PhaseColumns(phase)

	for attempt := 1; attempt <= maxCASAttempts; attempt++ {
		m, err := s.GetMachine(ctx, id)
		if err != nil {
			return timer.State{}, timer.State{}, err
		}

		before := *m.Phase(phase)
		after, err := fn(before)
		if err != nil {
			return before, before, err
		}

		res := s.db.WithContext(ctx).Model(&model.Machine{}).
			Where("id = ? AND version = ?", id, m.Version).
			Updates(map[string]any{
				startCol:  after.StartTime,
				totalCol:  after.TotalTime,
				"status":  string(status),
				"version": m.Version + 1,
			})
		if res.Error != nil {
			return before, before, storageErr("update "+string(phase)+" timer", res.Error)
		}
		if res.RowsAffected == 1 {
			return before, after, nil
		}
		log.Printf("timer update on machine %d phase %s lost a race (attempt %d), retrying", id, phase, attempt)
	}
	return timer.State{}, timer.State{}, fmt.Errorf("machine %d phase %s: %w", id, phase, ErrConflict)
}

// AddIssue attaches a new pending issue to an existing machine.
func (s *gormStore) AddIssue(ctx context.Context, issue *model.Issue) error {
	issue.Issue = strings.TrimSpace(issue.Issue)
	if issue.Issue == "" {
		return validationErr("issue is required")
	}
	if _, err := s.GetMachine(ctx, issue.MachineID); err != nil {
		return err
	}
	if issue.Status == "" {
		issue.Status = model.DefaultIssueStatus
	}
	if err := s.db.WithContext(ctx).Create(issue).Error; err != nil {
		return storageErr("create issue", err)
	}
	return nil
}

// ListIssues returns the issues of a machine ordered by id.
func (s *gormStore) ListIssues(ctx context.Context, machineID uint) ([]model.Issue, error) {
	issues := []model.Issue{}
	if err := s.db.WithContext(ctx).Where("machine_id = ?", machineID).Order("id").Find(&issues).Error; err != nil {
		return nil, storageErr("list issues", err)
	}
	return issues, nil
}

// DeleteIssue removes an issue owned by the given machine.
func (s *gormStore) DeleteIssue(ctx context.Context, machineID, issueID uint) error {
	res := s.db.WithContext(ctx).Where("id = ? AND machine_id = ?", issueID, machineID).Delete(&model.Issue{})
	if res.Error != nil {
		return storageErr("delete issue", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("issue %d on machine %d: %w", issueID, machineID, ErrNotFound)
	}
	return nil
}

// UpdateIssueField overwrites one free-text attribute of an issue.
func (s *gormStore) UpdateIssueField(ctx context.Context, machineID, issueID uint, field IssueField, value string) error {
	switch field {
	case IssueNote, IssueSeverity:
	case IssueStatus:
		value = strings.TrimSpace(value)
		if value == "" {
			return validationErr("status is required")
		}
	default:
		return validationErr(fmt.Sprintf("unknown issue field %q", field))
	}
	return s.updateIssue(ctx, machineID, issueID, map[string]any{string(field): value})
}

// SetIssueTracking sets or clears the shipment tracking reference of an issue.
func (s *gormStore) SetIssueTracking(ctx context.Context, machineID, issueID uint, number, carrier string) error {
	number, carrier = strings.TrimSpace(number), strings.TrimSpace(carrier)
	if number != "" && carrier == "" {
		return validationErr("carrier_code is required with a tracking number")
	}
	return s.updateIssue(ctx, machineID, issueID, map[string]any{
		"tracking_number": number,
		"carrier_code":    carrier,
		"tracking_data":   "",
		"tracked_at":      nil,
	})
}

func (s *gormStore) updateIssue(ctx context.Context, machineID, issueID uint, values map[string]any) error {
	res := s.db.WithContext(ctx).Model(&model.Issue{}).
		Where("id = ? AND machine_id = ?", issueID, machineID).
		Updates(values)
	if res.Error != nil {
		return storageErr("update issue", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("issue %d on machine %d: %w", issueID, machineID, ErrNotFound)
	}
	return nil
}

// ListTrackedIssues returns every issue that carries a tracking number.
func (s *gormStore) ListTrackedIssues(ctx context.Context) ([]model.Issue, error) {
	var issues []model.Issue
	if err := s.db.WithContext(ctx).Where("tracking_number <> ?", "").Order("id").Find(&issues).Error; err != nil {
		return nil, storageErr("list tracked issues", err)
	}
	return issues, nil
}

// SaveTrackingData stores the latest carrier response for an issue.
func (s *gormStore) SaveTrackingData(ctx context.Context, issueID uint, data string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.Issue{}).Where("id = ?", issueID).
		Updates(map[string]any{"tracking_data": data, "tracked_at": at.UTC()})
	if res.Error != nil {
		return storageErr("save tracking data", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("issue %d: %w", issueID, ErrNotFound)
	}
	return nil
}
