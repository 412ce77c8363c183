// Package datastore persists incident, user and invitation records behind a
// storage-agnostic interface with SQLite and MySQL implementations.
package datastore

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/roadwatch/roadwatch-go/internal/conf"
	"github.com/roadwatch/roadwatch-go/internal/errors"
	"github.com/roadwatch/roadwatch-go/internal/logging"
)

// IncidentFilters narrows incident queries. Zero-valued fields are ignored.
// Region fields match case-insensitively.
type IncidentFilters struct {
	Severity string
	Status   string
	State    string
	District string
	Mandal   string
	From     time.Time
	To       time.Time
}

// SeverityCount pairs a severity tier with its record count.
type SeverityCount struct {
	Severity string
	Count    int64
}

// StatusCount pairs a status with its record count.
type StatusCount struct {
	Status string
	Count  int64
}

// Interface is the contract the rest of the application programs against.
type Interface interface {
	Open() error
	Close() error

	SaveIncident(incident *Incident) error
	UpdateIncident(incident *Incident) error
	GetIncident(id uint) (*Incident, error)
	GetIncidentByReference(reference string) (*Incident, error)
	ReferenceExists(reference string) (bool, error)
	SearchIncidents(filters IncidentFilters) ([]Incident, error)
	ActiveIncidentsWithCoordinates() ([]Incident, error)
	BoostPriority(id uint, delta int, reporter string) (*Incident, error)

	CountsBySeverity() ([]SeverityCount, error)
	CountsByStatus() ([]StatusCount, error)
	TotalIncidents() (int64, error)
	RecentIncidents(limit int) ([]Incident, error)
	AverageResolutionDays() (float64, error)

	CreateUser(user *User) error
	GetUserByEmail(email string) (*User, error)
	GetUserByID(id uint) (*User, error)
	UpdateUser(user *User) error

	CreateInvitation(code *InvitationCode) error
	GetInvitationByCode(code string) (*InvitationCode, error)
	MarkInvitationUsed(code, usedBy string, usedAt time.Time) error
	DeleteInvitation(code string) error
	ListInvitationsByCreator(email string) ([]InvitationCode, error)
}

// DataStore implements Interface on a GORM connection. Database-specific
// stores embed it and provide Open/Close.
type DataStore struct {
	DB *gorm.DB
}

// New creates the store selected by the output settings. Exactly one backend
// must be enabled.
func New(settings *conf.Settings) (Interface, error) {
	switch {
	case settings.Output.SQLite.Enabled && settings.Output.MySQL.Enabled:
		return nil, errors.Newf("both SQLite and MySQL outputs are enabled, pick one").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}, nil
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{Settings: settings}, nil
	default:
		return nil, errors.Newf("no database output enabled").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

func (ds *DataStore) ready() error {
	if ds.DB == nil {
		return errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

func dbError(err error, operation string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Build()
}

// SaveIncident inserts a new incident record.
func (ds *DataStore) SaveIncident(incident *Incident) error {
	if err := ds.ready(); err != nil {
		return err
	}
	if err := ds.DB.Create(incident).Error; err != nil {
		return dbError(err, "save_incident")
	}
	getLogger().Info("incident saved",
		"reference", incident.Reference,
		"severity", incident.Severity,
		"source", incident.Source)
	return nil
}

// UpdateIncident persists changes to an existing incident. Fixed records are
// refused here as a last line of defense behind the access filter.
func (ds *DataStore) UpdateIncident(incident *Incident) error {
	if err := ds.ready(); err != nil {
		return err
	}

	var current Incident
	if err := ds.DB.First(&current, incident.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.NotFoundError("incident", fmt.Sprintf("%d", incident.ID))
		}
		return dbError(err, "update_incident_load")
	}
	if current.IsFixed() {
		return errors.Newf("incident %s is fixed and immutable", current.Reference).
			Component("datastore").
			Category(errors.CategoryImmutableState).
			Build()
	}
	if incident.PriorityScore < current.PriorityScore {
		return errors.Newf("priority score may not decrease (current %d, requested %d)",
			current.PriorityScore, incident.PriorityScore).
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}

	// Region tags are set once at creation; silently keep the stored values.
	incident.State = current.State
	incident.District = current.District
	incident.Mandal = current.Mandal

	if incident.Status == StatusFixed && incident.FixedAt == nil {
		now := time.Now()
		incident.FixedAt = &now
	}
	if err := ds.DB.Save(incident).Error; err != nil {
		return dbError(err, "update_incident")
	}
	return nil
}

// GetIncident fetches a record by primary key.
func (ds *DataStore) GetIncident(id uint) (*Incident, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	var incident Incident
	if err := ds.DB.First(&incident, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundError("incident", fmt.Sprintf("%d", id))
		}
		return nil, dbError(err, "get_incident")
	}
	return &incident, nil
}

// GetIncidentByReference fetches a record by its public reference.
func (ds *DataStore) GetIncidentByReference(reference string) (*Incident, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	var incident Incident
	err := ds.DB.Where("reference = ?", strings.ToUpper(strings.TrimSpace(reference))).
		First(&incident).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundError("incident", reference)
		}
		return nil, dbError(err, "get_incident_by_reference")
	}
	return &incident, nil
}

// ReferenceExists reports whether a reference is already assigned.
func (ds *DataStore) ReferenceExists(reference string) (bool, error) {
	if err := ds.ready(); err != nil {
		return false, err
	}
	var count int64
	err := ds.DB.Model(&Incident{}).
		Where("reference = ?", reference).
		Count(&count).Error
	if err != nil {
		return false, dbError(err, "reference_exists")
	}
	return count > 0, nil
}

// SearchIncidents returns records matching the filters, newest first.
func (ds *DataStore) SearchIncidents(filters IncidentFilters) ([]Incident, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}

	query := ds.DB.Model(&Incident{})
	if filters.Severity != "" {
		query = query.Where("severity = ?", filters.Severity)
	}
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	if filters.State != "" {
		query = query.Where("LOWER(state) = ?", strings.ToLower(strings.TrimSpace(filters.State)))
	}
	if filters.District != "" {
		query = query.Where("LOWER(district) = ?", strings.ToLower(strings.TrimSpace(filters.District)))
	}
	if filters.Mandal != "" {
		query = query.Where("LOWER(mandal) = ?", strings.ToLower(strings.TrimSpace(filters.Mandal)))
	}
	if !filters.From.IsZero() {
		query = query.Where("created_at >= ?", filters.From)
	}
	if !filters.To.IsZero() {
		query = query.Where("created_at <= ?", filters.To)
	}

	var incidents []Incident
	if err := query.Order("created_at DESC").Find(&incidents).Error; err != nil {
		return nil, dbError(err, "search_incidents")
	}
	return incidents, nil
}

// ActiveIncidentsWithCoordinates returns every non-fixed record that has a
// location, the candidate set for proximity dedup.
func (ds *DataStore) ActiveIncidentsWithCoordinates() ([]Incident, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	var incidents []Incident
	err := ds.DB.
		Where("status <> ?", StatusFixed).
		Where("latitude IS NOT NULL AND longitude IS NOT NULL").
		Find(&incidents).Error
	if err != nil {
		return nil, dbError(err, "active_incidents")
	}
	return incidents, nil
}

// BoostPriority merges another observation into an existing record: the
// priority score rises by delta, the reporter is appended, and the report
// count tracks the reporter list. Fixed records are refused.
func (ds *DataStore) BoostPriority(id uint, delta int, reporter string) (*Incident, error) {
	if delta <= 0 {
		return nil, errors.ValidationError("delta", "must be a positive integer")
	}

	incident, err := ds.GetIncident(id)
	if err != nil {
		return nil, err
	}
	if incident.IsFixed() {
		return nil, errors.Newf("incident %s is fixed and immutable", incident.Reference).
			Component("datastore").
			Category(errors.CategoryImmutableState).
			Build()
	}

	incident.PriorityScore += delta
	if incident.AddReporter(reporter) {
		incident.ReportCount = len(incident.ReporterList())
	}
	if err := ds.DB.Save(incident).Error; err != nil {
		return nil, dbError(err, "boost_priority")
	}
	getLogger().Info("priority boosted",
		"reference", incident.Reference,
		"delta", delta,
		"priority_score", incident.PriorityScore)
	return incident, nil
}

// CreateUser inserts a new account, mapping unique-constraint violations to
// a conflict error.
func (ds *DataStore) CreateUser(user *User) error {
	if err := ds.ready(); err != nil {
		return err
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if err := ds.DB.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.Newf("email %s is already registered", user.Email).
				Component("datastore").
				Category(errors.CategoryConflict).
				Build()
		}
		return dbError(err, "create_user")
	}
	return nil
}

// GetUserByEmail fetches an account by its lowercased email.
func (ds *DataStore) GetUserByEmail(email string) (*User, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	var user User
	err := ds.DB.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundError("user", email)
		}
		return nil, dbError(err, "get_user_by_email")
	}
	return &user, nil
}

// GetUserByID fetches an account by primary key.
func (ds *DataStore) GetUserByID(id uint) (*User, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	var user User
	if err := ds.DB.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundError("user", fmt.Sprintf("%d", id))
		}
		return nil, dbError(err, "get_user_by_id")
	}
	return &user, nil
}

// UpdateUser persists account changes.
func (ds *DataStore) UpdateUser(user *User) error {
	if err := ds.ready(); err != nil {
		return err
	}
	if err := ds.DB.Save(user).Error; err != nil {
		return dbError(err, "update_user")
	}
	return nil
}

// CreateInvitation inserts a new invitation code.
func (ds *DataStore) CreateInvitation(code *InvitationCode) error {
	if err := ds.ready(); err != nil {
		return err
	}
	if err := ds.DB.Create(code).Error; err != nil {
		return dbError(err, "create_invitation")
	}
	return nil
}

// GetInvitationByCode fetches an invitation by its code string.
func (ds *DataStore) GetInvitationByCode(code string) (*InvitationCode, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	var invitation InvitationCode
	err := ds.DB.Where("code = ?", strings.TrimSpace(code)).First(&invitation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundError("invitation", code)
		}
		return nil, dbError(err, "get_invitation")
	}
	return &invitation, nil
}

// MarkInvitationUsed consumes a code, recording which account used it.
func (ds *DataStore) MarkInvitationUsed(code, usedBy string, usedAt time.Time) error {
	if err := ds.ready(); err != nil {
		return err
	}
	result := ds.DB.Model(&InvitationCode{}).
		Where("code = ? AND used_at IS NULL", code).
		Updates(map[string]any{
			"used_at": usedAt,
			"used_by": strings.ToLower(strings.TrimSpace(usedBy)),
		})
	if result.Error != nil {
		return dbError(result.Error, "mark_invitation_used")
	}
	if result.RowsAffected == 0 {
		return errors.Newf("invitation %s is already used or unknown", code).
			Component("datastore").
			Category(errors.CategoryConflict).
			Build()
	}
	return nil
}

// DeleteInvitation revokes a code. When the code has already been redeemed
// the account registered through it is removed as well, so revoking an
// invitation always revokes the access it granted.
func (ds *DataStore) DeleteInvitation(code string) error {
	if err := ds.ready(); err != nil {
		return err
	}

	invitation, err := ds.GetInvitationByCode(code)
	if err != nil {
		return err
	}

	err = ds.DB.Transaction(func(tx *gorm.DB) error {
		if invitation.UsedBy != "" {
			if err := tx.Where("email = ?", invitation.UsedBy).Delete(&User{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&InvitationCode{}, invitation.ID).Error
	})
	if err != nil {
		return dbError(err, "delete_invitation")
	}

	if invitation.UsedBy != "" {
		getLogger().Info("invitation revoked with linked account",
			"code", invitation.Code, "account", invitation.UsedBy)
	}
	return nil
}

// ListInvitationsByCreator returns codes issued by the given admin.
func (ds *DataStore) ListInvitationsByCreator(email string) ([]InvitationCode, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	var codes []InvitationCode
	err := ds.DB.Where("created_by = ?", strings.ToLower(strings.TrimSpace(email))).
		Order("created_at DESC").
		Find(&codes).Error
	if err != nil {
		return nil, dbError(err, "list_invitations")
	}
	return codes, nil
}

func getLogger() *slog.Logger {
	return logging.ForService("datastore")
}
