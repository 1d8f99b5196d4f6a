package portfolio

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
)

// Category groups interests on the public page.
type Category string

const (
	CategoryMovie Category = "Movie"
	CategoryGame  Category = "Game"
	CategoryMusic Category = "Music"
	CategorySerie Category = "Serie"

	DefaultCategory     = CategoryGame
	DefaultInterestIcon = "🐾"
)

var (
	// ErrInvalidInput indicates that a profile entry failed validation.
	ErrInvalidInput = errors.New("portfolio: invalid input")
	// ErrNotFound indicates that no entry exists with the id.
	ErrNotFound = errors.New("portfolio: entry not found")
)

// ParseCategory maps raw to a category; an empty value selects DefaultCategory.
func ParseCategory(raw string) (Category, error) {
	switch Category(strings.TrimSpace(raw)) {
	case "":
		return DefaultCategory, nil
	case CategoryMovie:
		return CategoryMovie, nil
	case CategoryGame:
		return CategoryGame, nil
	case CategoryMusic:
		return CategoryMusic, nil
	case CategorySerie:
		return CategorySerie, nil
	default:
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalidInput, raw)
	}
}

// Bio is the owner's public profile.
type Bio struct {
	Name        string `json:"name"`
	Profession  string `json:"profession"`
	Description string `json:"description"`
	Email       string `json:"email"`
	LinkedIn    string `json:"linkedin"`
	Location    string `json:"location"`
}

// Project is one showcased piece of work.
type Project struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tech        []string `json:"tech"`
	GitHubURL   string   `json:"github_url,omitempty"`
	LiveURL     string   `json:"live_url,omitempty"`
}

// Interest is one personal interest.
type Interest struct {
	ID          string   `json:"id"`
	Category    Category `json:"category"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Icon        string   `json:"icon"`
}

// Profile is everything the public page renders about the owner.
type Profile struct {
	Bio       *Bio       `json:"bio"`
	Projects  []Project  `json:"projects"`
	Interests []Interest `json:"interests"`
}

// BioRecord is the single stored bio row.
type BioRecord struct {
	BioID       string `gorm:"column:bio_id;primaryKey;size:190;not null"`
	Name        string `gorm:"column:name;type:text;not null"`
	Profession  string `gorm:"column:profession;type:text;not null"`
	Description string `gorm:"column:description;type:text;not null"`
	Email       string `gorm:"column:email;size:320;not null"`
	LinkedIn    string `gorm:"column:linkedin;type:text;not null"`
	Location    string `gorm:"column:location;type:text;not null"`
}

// TableName provides the explicit table binding for GORM.
func (BioRecord) TableName() string {
	return "portfolio_bio"
}

type ProjectRecord struct {
	ProjectID       string                      `gorm:"column:project_id;primaryKey;size:190;not null"`
	Title           string                      `gorm:"column:title;type:text;not null"`
	Description     string                      `gorm:"column:description;type:text;not null"`
	Tech            datatypes.JSONSlice[string] `gorm:"column:tech_json;not null"`
	GitHubURL       string                      `gorm:"column:github_url;type:text;not null;default:''"`
	LiveURL         string                      `gorm:"column:live_url;type:text;not null;default:''"`
	CreatedAtMillis int64                       `gorm:"column:created_at_ms;not null;index:idx_projects_created"`
}

// TableName provides the explicit table binding for GORM.
func (ProjectRecord) TableName() string {
	return "portfolio_projects"
}

type InterestRecord struct {
	InterestID      string `gorm:"column:interest_id;primaryKey;size:190;not null"`
	Category        string `gorm:"column:category;size:32;not null"`
	Title           string `gorm:"column:title;type:text;not null"`
	Description     string `gorm:"column:description;type:text;not null"`
	Icon            string `gorm:"column:icon;size:64;not null"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null;index:idx_interests_created"`
}

// TableName provides the explicit table binding for GORM.
func (InterestRecord) TableName() string {
	return "portfolio_interests"
}

// Models lists the tables owned by this package for schema migration.
func Models() []any {
	return []any{&BioRecord{}, &ProjectRecord{}, &InterestRecord{}}
}

func normalizeProject(project Project) (Project, error) {
	project.ID = strings.TrimSpace(project.ID)
	project.Title = strings.TrimSpace(project.Title)
	if project.Title == "" {
		return Project{}, fmt.Errorf("%w: project title is required", ErrInvalidInput)
	}
	tech := make([]string, 0, len(project.Tech))
	for _, entry := range project.Tech {
		if trimmed := strings.TrimSpace(entry); trimmed != "" {
			tech = append(tech, trimmed)
		}
	}
	project.Tech = tech
	project.GitHubURL = strings.TrimSpace(project.GitHubURL)
	project.LiveURL = strings.TrimSpace(project.LiveURL)
	return project, nil
}

func normalizeInterest(interest Interest) (Interest, error) {
	interest.ID = strings.TrimSpace(interest.ID)
	interest.Title = strings.TrimSpace(interest.Title)
	if interest.Title == "" {
		return Interest{}, fmt.Errorf("%w: interest title is required", ErrInvalidInput)
	}
	category, err := ParseCategory(string(interest.Category))
	if err != nil {
		return Interest{}, err
	}
	interest.Category = category
	if strings.TrimSpace(interest.Icon) == "" {
		interest.Icon = DefaultInterestIcon
	}
	return interest, nil
}

func (r ProjectRecord) toProject() Project {
	tech := []string(r.Tech)
	if tech == nil {
		tech = []string{}
	}
	return Project{
		ID:          r.ProjectID,
		Title:       r.Title,
		Description: r.Description,
		Tech:        tech,
		GitHubURL:   r.GitHubURL,
		LiveURL:     r.LiveURL,
	}
}

func (r InterestRecord) toInterest() Interest {
	return Interest{
		ID:          r.InterestID,
		Category:    Category(r.Category),
		Title:       r.Title,
		Description: r.Description,
		Icon:        r.Icon,
	}
}
