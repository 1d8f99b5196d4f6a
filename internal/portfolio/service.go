package portfolio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew     = "portfolio.service.new"
	opGetBio         = "portfolio.get_bio"
	opUpdateBio      = "portfolio.update_bio"
	opListProjects   = "portfolio.list_projects"
	opSyncProjects   = "portfolio.sync_projects"
	opDeleteProject  = "portfolio.delete_project"
	opListInterests  = "portfolio.list_interests"
	opSyncInterests  = "portfolio.sync_interests"
	opDeleteInterest = "portfolio.delete_interest"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type IDProvider interface {
	NewID() (string, error)
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service manages the owner's bio, projects and interests.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// GetBio returns the stored bio; ok is false when none was saved yet.
func (s *Service) GetBio(ctx context.Context) (Bio, bool, error) {
	var record BioRecord
	err := s.db.WithContext(ctx).Order("bio_id ASC").Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Bio{}, false, nil
	}
	if err != nil {
		s.logError(opGetBio, "query_failed", err)
		return Bio{}, false, newServiceError(opGetBio, "query_failed", err)
	}
	return Bio{
		Name:        record.Name,
		Profession:  record.Profession,
		Description: record.Description,
		Email:       record.Email,
		LinkedIn:    record.LinkedIn,
		Location:    record.Location,
	}, true, nil
}

// UpdateBio replaces the bio, reusing the existing row id.
func (s *Service) UpdateBio(ctx context.Context, bio Bio) (Bio, error) {
	record := BioRecord{
		Name:        strings.TrimSpace(bio.Name),
		Profession:  strings.TrimSpace(bio.Profession),
		Description: strings.TrimSpace(bio.Description),
		Email:       strings.TrimSpace(bio.Email),
		LinkedIn:    strings.TrimSpace(bio.LinkedIn),
		Location:    strings.TrimSpace(bio.Location),
	}
	if record.Name == "" {
		return Bio{}, newServiceError(opUpdateBio, "invalid_bio", fmt.Errorf("%w: name is required", ErrInvalidInput))
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing BioRecord
		err := tx.Order("bio_id ASC").Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			bioID, err := s.idProvider.NewID()
			if err != nil {
				return newServiceError(opUpdateBio, "id_generation_failed", err)
			}
			record.BioID = bioID
		case err != nil:
			return newServiceError(opUpdateBio, "select_failed", err)
		default:
			record.BioID = existing.BioID
		}
		if err := tx.Save(&record).Error; err != nil {
			return newServiceError(opUpdateBio, "save_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opUpdateBio, "transaction_failed", txErr)
		return Bio{}, txErr
	}

	return Bio{
		Name:        record.Name,
		Profession:  record.Profession,
		Description: record.Description,
		Email:       record.Email,
		LinkedIn:    record.LinkedIn,
		Location:    record.Location,
	}, nil
}

// ListProjects returns projects newest first.
func (s *Service) ListProjects(ctx context.Context) ([]Project, error) {
	var records []ProjectRecord
	err := s.db.WithContext(ctx).Order("created_at_ms DESC").Order("project_id DESC").Find(&records).Error
	if err != nil {
		s.logError(opListProjects, "query_failed", err)
		return nil, newServiceError(opListProjects, "query_failed", err)
	}
	projects := make([]Project, 0, len(records))
	for _, record := range records {
		projects = append(projects, record.toProject())
	}
	return projects, nil
}

// SyncProjects upserts every project of the list. Projects without an id
// get a fresh one; existing projects keep their creation time. Projects
// missing from the list are left alone.
func (s *Service) SyncProjects(ctx context.Context, projects []Project) ([]Project, error) {
	normalized := make([]Project, 0, len(projects))
	for index, project := range projects {
		cleaned, err := normalizeProject(project)
		if err != nil {
			return nil, newServiceError(opSyncProjects, "invalid_project", fmt.Errorf("project %d: %w", index, err))
		}
		normalized = append(normalized, cleaned)
	}

	now := s.clock().UTC().UnixMilli()
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for index := range normalized {
			project := &normalized[index]
			record := ProjectRecord{
				ProjectID:   project.ID,
				Title:       project.Title,
				Description: project.Description,
				Tech:        project.Tech,
				GitHubURL:   project.GitHubURL,
				LiveURL:     project.LiveURL,
			}
			createdAt, err := s.creationTime(tx, &ProjectRecord{}, "project_id", project.ID, now)
			if err != nil {
				return newServiceError(opSyncProjects, "select_failed", err)
			}
			record.CreatedAtMillis = createdAt
			if record.ProjectID == "" {
				if record.ProjectID, err = s.idProvider.NewID(); err != nil {
					return newServiceError(opSyncProjects, "id_generation_failed", err)
				}
				project.ID = record.ProjectID
			}
			if err := tx.Save(&record).Error; err != nil {
				return newServiceError(opSyncProjects, "save_failed", err)
			}
		}
		return nil
	})
	if txErr != nil {
		s.logError(opSyncProjects, "transaction_failed", txErr, zap.Int("count", len(normalized)))
		return nil, txErr
	}
	return normalized, nil
}

func (s *Service) DeleteProject(ctx context.Context, projectID string) error {
	return s.deleteByID(ctx, opDeleteProject, &ProjectRecord{}, "project_id", projectID)
}

// ListInterests returns interests newest first.
func (s *Service) ListInterests(ctx context.Context) ([]Interest, error) {
	var records []InterestRecord
	err := s.db.WithContext(ctx).Order("created_at_ms DESC").Order("interest_id DESC").Find(&records).Error
	if err != nil {
		s.logError(opListInterests, "query_failed", err)
		return nil, newServiceError(opListInterests, "query_failed", err)
	}
	interests := make([]Interest, 0, len(records))
	for _, record := range records {
		interests = append(interests, record.toInterest())
	}
	return interests, nil
}

// SyncInterests upserts every interest of the list, like SyncProjects.
func (s *Service) SyncInterests(ctx context.Context, interests []Interest) ([]Interest, error) {
	normalized := make([]Interest, 0, len(interests))
	for index, interest := range interests {
		cleaned, err := normalizeInterest(interest)
		if err != nil {
			return nil, newServiceError(opSyncInterests, "invalid_interest", fmt.Errorf("interest %d: %w", index, err))
		}
		normalized = append(normalized, cleaned)
	}

	now := s.clock().UTC().UnixMilli()
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for index := range normalized {
			interest := &normalized[index]
			createdAt, err := s.creationTime(tx, &InterestRecord{}, "interest_id", interest.ID, now)
			if err != nil {
				return newServiceError(opSyncInterests, "select_failed", err)
			}
			if interest.ID == "" {
				if interest.ID, err = s.idProvider.NewID(); err != nil {
					return newServiceError(opSyncInterests, "id_generation_failed", err)
				}
			}
			record := InterestRecord{
				InterestID:      interest.ID,
				Category:        string(interest.Category),
				Title:           interest.Title,
				Description:     interest.Description,
				Icon:            interest.Icon,
				CreatedAtMillis: createdAt,
			}
			if err := tx.Save(&record).Error; err != nil {
				return newServiceError(opSyncInterests, "save_failed", err)
			}
		}
		return nil
	})
	if txErr != nil {
		s.logError(opSyncInterests, "transaction_failed", txErr, zap.Int("count", len(normalized)))
		return nil, txErr
	}
	return normalized, nil
}

func (s *Service) DeleteInterest(ctx context.Context, interestID string) error {
	return s.deleteByID(ctx, opDeleteInterest, &InterestRecord{}, "interest_id", interestID)
}

// Snapshot assembles the public profile.
func (s *Service) Snapshot(ctx context.Context) (Profile, error) {
	profile := Profile{}
	bio, ok, err := s.GetBio(ctx)
	if err != nil {
		return Profile{}, err
	}
	if ok {
		profile.Bio = &bio
	}
	if profile.Projects, err = s.ListProjects(ctx); err != nil {
		return Profile{}, err
	}
	if profile.Interests, err = s.ListInterests(ctx); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// creationTime returns the stored creation time of the row with id, or now
// for a row that does not exist yet.
func (s *Service) creationTime(tx *gorm.DB, model any, column, id string, now int64) (int64, error) {
	if id == "" {
		return now, nil
	}
	var createdAt []int64
	err := tx.Model(model).Where(column+" = ?", id).Limit(1).Pluck("created_at_ms", &createdAt).Error
	if err != nil {
		return 0, err
	}
	if len(createdAt) == 0 {
		return now, nil
	}
	return createdAt[0], nil
}

func (s *Service) deleteByID(ctx context.Context, operation string, model any, column, id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return newServiceError(operation, "missing_id", ErrInvalidInput)
	}
	result := s.db.WithContext(ctx).Where(column+" = ?", trimmed).Delete(model)
	if result.Error != nil {
		s.logError(operation, "delete_failed", result.Error, zap.String("id", trimmed))
		return newServiceError(operation, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(operation, "not_found", ErrNotFound)
	}
	return nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("portfolio service error", attrs...)
}
