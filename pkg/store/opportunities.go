package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"opportunities/pkg/models"
	"opportunities/pkg/query"
)

var (
	// ErrNotFound means no record exists with the given id.
	ErrNotFound = errors.New("opportunity not found")
	// ErrForbidden means the record exists but is owned by someone else.
	ErrForbidden = errors.New("not the owner")
)

// DB is the subset of pgxpool.Pool the repository needs; tests provide fakes.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const opportunityColumns = `id, title, description, category, location, is_remote, deadline, contact_email, organization, image, excerpt, requirements, tags, created_by, created_at, updated_at`

// Opportunities is the relational repository for the opportunity entity.
type Opportunities struct {
	DB DB
}

func NewOpportunities(db DB) *Opportunities {
	return &Opportunities{DB: db}
}

func scanOpportunity(row pgx.Row) (models.Opportunity, error) {
	var o models.Opportunity
	err := row.Scan(
		&o.ID, &o.Title, &o.Description, &o.Category, &o.Location, &o.IsRemote,
		&o.Deadline, &o.ContactEmail, &o.Organization, &o.Image, &o.Excerpt,
		&o.Requirements, &o.Tags, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return models.Opportunity{}, err
	}
	if o.Tags == nil {
		o.Tags = []string{}
	}
	return o, nil
}

// Create inserts a validated opportunity owned by createdBy and returns the
// stored record.
func (s *Opportunities) Create(ctx context.Context, in models.CreateInput, createdBy string) (models.Opportunity, error) {
	category, err := models.ParseCategory(in.Category)
	if err != nil {
		return models.Opportunity{}, err
	}
	var deadline *time.Time
	if in.Deadline != nil && *in.Deadline != "" {
		t, err := models.ParseDeadline(*in.Deadline)
		if err != nil {
			return models.Opportunity{}, err
		}
		deadline = &t
	}
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	now := time.Now().UTC()
	o := models.Opportunity{
		ID:           uuid.New().String(),
		Title:        in.Title,
		Description:  in.Description,
		Category:     category,
		Location:     in.Location,
		IsRemote:     in.IsRemote,
		Deadline:     deadline,
		ContactEmail: in.ContactEmail,
		Organization: in.Organization,
		Image:        in.Image,
		Excerpt:      in.Excerpt,
		Requirements: in.Requirements,
		Tags:         tags,
		CreatedBy:    createdBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO opportunities(`+opportunityColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, o.ID, o.Title, o.Description, string(o.Category), o.Location, o.IsRemote,
		o.Deadline, o.ContactEmail, o.Organization, o.Image, o.Excerpt,
		o.Requirements, o.Tags, o.CreatedBy, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return models.Opportunity{}, fmt.Errorf("insert opportunity: %w", err)
	}
	return o, nil
}

// Get fetches a single record by id.
func (s *Opportunities) Get(ctx context.Context, id string) (models.Opportunity, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+opportunityColumns+` FROM opportunities WHERE id=$1`, id)
	o, err := scanOpportunity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Opportunity{}, ErrNotFound
	}
	if err != nil {
		return models.Opportunity{}, fmt.Errorf("get opportunity: %w", err)
	}
	return o, nil
}

// List returns one page of records matching the filter plus the unpaged total.
func (s *Opportunities) List(ctx context.Context, f query.Filter) ([]models.Opportunity, int, error) {
	where, args := f.Where()
	var total int
	if err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM opportunities`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count opportunities: %w", err)
	}
	limitPh := "$" + strconv.Itoa(len(args)+1)
	offsetPh := "$" + strconv.Itoa(len(args)+2)
	pageArgs := append(append([]any{}, args...), f.Limit, f.Skip())
	rows, err := s.DB.Query(ctx, `SELECT `+opportunityColumns+` FROM opportunities`+where+f.OrderBy()+` LIMIT `+limitPh+` OFFSET `+offsetPh, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list opportunities: %w", err)
	}
	defer rows.Close()
	items := make([]models.Opportunity, 0, f.Limit)
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan opportunity: %w", err)
		}
		items = append(items, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list opportunities: %w", err)
	}
	return items, total, nil
}

// Update applies the provided subset in one owner-conditional statement.
// The check and the write are a single SQL operation, so a concurrent owner
// change cannot slip between them; the follow-up existence probe only picks
// ErrNotFound vs ErrForbidden for the response.
func (s *Opportunities) Update(ctx context.Context, id, owner string, in models.UpdateInput) (models.Opportunity, error) {
	sets, args, err := buildUpdateSets(in)
	if err != nil {
		return models.Opportunity{}, err
	}
	idPh := "$" + strconv.Itoa(len(args)+1)
	ownerPh := "$" + strconv.Itoa(len(args)+2)
	args = append(args, id, owner)
	row := s.DB.QueryRow(ctx, `
		UPDATE opportunities SET `+strings.Join(sets, ", ")+`
		WHERE id=`+idPh+` AND created_by=`+ownerPh+`
		RETURNING `+opportunityColumns, args...)
	o, err := scanOpportunity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Opportunity{}, s.classifyMiss(ctx, id)
	}
	if err != nil {
		return models.Opportunity{}, fmt.Errorf("update opportunity: %w", err)
	}
	return o, nil
}

// Delete removes a record, again owner-conditionally in a single statement.
func (s *Opportunities) Delete(ctx context.Context, id, owner string) error {
	tag, err := s.DB.Exec(ctx, `DELETE FROM opportunities WHERE id=$1 AND created_by=$2`, id, owner)
	if err != nil {
		return fmt.Errorf("delete opportunity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.classifyMiss(ctx, id)
	}
	return nil
}

// classifyMiss distinguishes "no such record" from "wrong owner" after a
// zero-row conditional mutation.
func (s *Opportunities) classifyMiss(ctx context.Context, id string) error {
	var exists bool
	if err := s.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM opportunities WHERE id=$1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("ownership probe: %w", err)
	}
	if exists {
		return ErrForbidden
	}
	return ErrNotFound
}

// buildUpdateSets renders SET fragments for the provided fields only,
// in a fixed column order. created_by is never assignable.
func buildUpdateSets(in models.UpdateInput) ([]string, []any, error) {
	var sets []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if in.Title != nil {
		sets = append(sets, "title="+next(*in.Title))
	}
	if in.Description != nil {
		sets = append(sets, "description="+next(*in.Description))
	}
	if in.Category != nil {
		category, err := models.ParseCategory(*in.Category)
		if err != nil {
			return nil, nil, err
		}
		sets = append(sets, "category="+next(string(category)))
	}
	if in.Location != nil {
		sets = append(sets, "location="+next(*in.Location))
	}
	if in.IsRemote != nil {
		sets = append(sets, "is_remote="+next(*in.IsRemote))
	}
	if in.Deadline != nil {
		if *in.Deadline == "" {
			sets = append(sets, "deadline=NULL")
		} else {
			t, err := models.ParseDeadline(*in.Deadline)
			if err != nil {
				return nil, nil, err
			}
			sets = append(sets, "deadline="+next(t))
		}
	}
	if in.ContactEmail != nil {
		sets = append(sets, "contact_email="+next(*in.ContactEmail))
	}
	if in.Organization != nil {
		sets = append(sets, "organization="+next(*in.Organization))
	}
	if in.Image != nil {
		sets = append(sets, "image="+next(*in.Image))
	}
	if in.Excerpt != nil {
		sets = append(sets, "excerpt="+next(*in.Excerpt))
	}
	if in.Requirements != nil {
		sets = append(sets, "requirements="+next(*in.Requirements))
	}
	if in.Tags != nil {
		sets = append(sets, "tags="+next(in.Tags))
	}
	sets = append(sets, "updated_at="+next(time.Now().UTC()))
	return sets, args, nil
}
