package models

import (
	"fmt"
	"strings"
	"time"
)

// Category enumerates the kinds of postable opportunities.
type Category string

const (
	CategoryInternship  Category = "INTERNSHIP"
	CategoryScholarship Category = "SCHOLARSHIP"
	CategoryCompetition Category = "COMPETITION"
	CategoryGig         Category = "GIG"
	CategoryPitch       Category = "PITCH"
	CategoryOther       Category = "OTHER"
)

var categories = []Category{
	CategoryInternship,
	CategoryScholarship,
	CategoryCompetition,
	CategoryGig,
	CategoryPitch,
	CategoryOther,
}

// Categories returns the enumeration in declaration order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ParseCategory normalizes and validates a raw category string.
func ParseCategory(raw string) (Category, error) {
	normalized := Category(strings.ToUpper(strings.TrimSpace(raw)))
	for _, c := range categories {
		if normalized == c {
			return c, nil
		}
	}
	return "", fmt.Errorf("category must be one of %s", categoryList())
}

func categoryList() string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

// Opportunity is a posted listing. CreatedBy is set once at creation and
// never altered by updates.
type Opportunity struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Category     Category   `json:"category"`
	Location     *string    `json:"location"`
	IsRemote     bool       `json:"isRemote"`
	Deadline     *time.Time `json:"deadline"`
	ContactEmail *string    `json:"contactEmail"`
	Organization *string    `json:"organization"`
	Image        *string    `json:"image"`
	Excerpt      *string    `json:"excerpt"`
	Requirements *string    `json:"requirements"`
	Tags         []string   `json:"tags"`
	CreatedBy    string     `json:"createdBy"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}
