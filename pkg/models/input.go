package models

import (
	"fmt"
	"strings"
	"time"
)

const maxTitleLen = 255
const maxLocationLen = 255

// FieldError names a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors accumulates every field-level violation so callers see
// the full list in one response.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(v))
	for i, fe := range v {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// CreateInput is the request body for creating an opportunity.
type CreateInput struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	Location     *string  `json:"location"`
	IsRemote     bool     `json:"isRemote"`
	Deadline     *string  `json:"deadline"`
	ContactEmail *string  `json:"contactEmail"`
	Organization *string  `json:"organization"`
	Image        *string  `json:"image"`
	Excerpt      *string  `json:"excerpt"`
	Requirements *string  `json:"requirements"`
	Tags         []string `json:"tags"`
}

// Validate checks every field and returns the complete violation list.
func (in *CreateInput) Validate() ValidationErrors {
	var errs ValidationErrors
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		errs = append(errs, FieldError{Field: "title", Message: "title is required"})
	} else if len(in.Title) > maxTitleLen {
		errs = append(errs, FieldError{Field: "title", Message: fmt.Sprintf("title must be at most %d characters", maxTitleLen)})
	}
	in.Description = strings.TrimSpace(in.Description)
	if in.Description == "" {
		errs = append(errs, FieldError{Field: "description", Message: "description is required"})
	}
	if _, err := ParseCategory(in.Category); err != nil {
		errs = append(errs, FieldError{Field: "category", Message: err.Error()})
	}
	if in.Location != nil && len(*in.Location) > maxLocationLen {
		errs = append(errs, FieldError{Field: "location", Message: fmt.Sprintf("location must be at most %d characters", maxLocationLen)})
	}
	if in.Deadline != nil && *in.Deadline != "" {
		if _, err := ParseDeadline(*in.Deadline); err != nil {
			errs = append(errs, FieldError{Field: "deadline", Message: "deadline must be an ISO-8601 date"})
		}
	}
	return errs
}

// UpdateInput carries any subset of the create fields. Nil pointers mean
// "leave unchanged". createdBy is deliberately absent: ownership is
// immutable.
type UpdateInput struct {
	Title        *string  `json:"title"`
	Description  *string  `json:"description"`
	Category     *string  `json:"category"`
	Location     *string  `json:"location"`
	IsRemote     *bool    `json:"isRemote"`
	Deadline     *string  `json:"deadline"`
	ContactEmail *string  `json:"contactEmail"`
	Organization *string  `json:"organization"`
	Image        *string  `json:"image"`
	Excerpt      *string  `json:"excerpt"`
	Requirements *string  `json:"requirements"`
	Tags         []string `json:"tags"`
}

// Validate checks the provided subset and returns the complete violation list.
func (in *UpdateInput) Validate() ValidationErrors {
	var errs ValidationErrors
	if in.Title != nil {
		trimmed := strings.TrimSpace(*in.Title)
		if trimmed == "" {
			errs = append(errs, FieldError{Field: "title", Message: "title must be a non-empty string"})
		} else if len(trimmed) > maxTitleLen {
			errs = append(errs, FieldError{Field: "title", Message: fmt.Sprintf("title must be at most %d characters", maxTitleLen)})
		} else {
			*in.Title = trimmed
		}
	}
	if in.Description != nil {
		trimmed := strings.TrimSpace(*in.Description)
		if trimmed == "" {
			errs = append(errs, FieldError{Field: "description", Message: "description must be a non-empty string"})
		} else {
			*in.Description = trimmed
		}
	}
	if in.Category != nil {
		if _, err := ParseCategory(*in.Category); err != nil {
			errs = append(errs, FieldError{Field: "category", Message: err.Error()})
		}
	}
	if in.Location != nil && len(*in.Location) > maxLocationLen {
		errs = append(errs, FieldError{Field: "location", Message: fmt.Sprintf("location must be at most %d characters", maxLocationLen)})
	}
	if in.Deadline != nil && *in.Deadline != "" {
		if _, err := ParseDeadline(*in.Deadline); err != nil {
			errs = append(errs, FieldError{Field: "deadline", Message: "deadline must be an ISO-8601 date"})
		}
	}
	return errs
}

// Empty reports whether the update carries no fields at all.
func (in *UpdateInput) Empty() bool {
	return in.Title == nil && in.Description == nil && in.Category == nil &&
		in.Location == nil && in.IsRemote == nil && in.Deadline == nil &&
		in.ContactEmail == nil && in.Organization == nil && in.Image == nil &&
		in.Excerpt == nil && in.Requirements == nil && in.Tags == nil
}

// ParseDeadline accepts RFC 3339 timestamps or bare dates.
func ParseDeadline(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
