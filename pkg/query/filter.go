// Package query turns untrusted list-request parameters into a bounded,
// deterministic SQL predicate with stable pagination.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"opportunities/pkg/models"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100

	defaultSortField = "createdAt"
	defaultSortDir   = "desc"
)

// sortColumns is the allow-list of sortable attributes. Anything outside it
// falls back to the default ordering; field names never reach the SQL text
// unmapped.
var sortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"deadline":  "deadline",
	"title":     "title",
}

// ParamError reports a malformed query parameter by name.
type ParamError struct {
	Param   string
	Message string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid query parameter %q: %s", e.Param, e.Message)
}

// Filter is the structured, validated form of a list request.
type Filter struct {
	Category      *models.Category
	CategoryNotIn []models.Category
	Location      string
	Organization  string
	Search        string
	IsRemote      *bool
	Tags          []string
	Page          int
	Limit         int
	SortField     string
	SortDir       string
}

// Parse builds a Filter from raw query values. Defaults: page 1, limit 20
// (clamped to [1,100]), sort createdAt:desc. Malformed values fail with a
// ParamError naming the parameter; absent isRemote means "no filter".
func Parse(values url.Values) (Filter, error) {
	f := Filter{
		Page:      DefaultPage,
		Limit:     DefaultLimit,
		SortField: defaultSortField,
		SortDir:   defaultSortDir,
	}
	if raw := strings.TrimSpace(values.Get("page")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Filter{}, &ParamError{Param: "page", Message: "must be an integer"}
		}
		if n < 1 {
			n = 1
		}
		f.Page = n
	}
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Filter{}, &ParamError{Param: "limit", Message: "must be an integer"}
		}
		if n < 1 {
			n = 1
		}
		if n > MaxLimit {
			n = MaxLimit
		}
		f.Limit = n
	}
	if raw := strings.TrimSpace(values.Get("category")); raw != "" {
		cat, err := models.ParseCategory(raw)
		if err != nil {
			return Filter{}, &ParamError{Param: "category", Message: err.Error()}
		}
		f.Category = &cat
	}
	if raw := strings.TrimSpace(values.Get("isRemote")); raw != "" {
		switch raw {
		case "true":
			v := true
			f.IsRemote = &v
		case "false":
			v := false
			f.IsRemote = &v
		default:
			return Filter{}, &ParamError{Param: "isRemote", Message: "must be true or false"}
		}
	}
	f.Location = strings.TrimSpace(values.Get("location"))
	f.Organization = strings.TrimSpace(values.Get("organization"))
	f.Search = strings.TrimSpace(values.Get("search"))
	if q := strings.TrimSpace(values.Get("q")); q != "" {
		f.Search = q
	}
	f.Tags = parseTags(values["tags"])
	if raw := strings.TrimSpace(values.Get("sort")); raw != "" {
		f.SortField, f.SortDir = parseSort(raw)
	}
	return f, nil
}

// parseTags accepts repeated tags params and comma-separated lists.
func parseTags(raw []string) []string {
	var out []string
	for _, group := range raw {
		for _, tag := range strings.Split(group, ",") {
			tag = strings.TrimSpace(tag)
			if tag != "" {
				out = append(out, tag)
			}
		}
	}
	return out
}

// parseSort restricts field to the allow-list and direction to asc/desc,
// falling back to the default on anything unrecognized.
func parseSort(raw string) (field, dir string) {
	field, dir = defaultSortField, defaultSortDir
	parts := strings.SplitN(raw, ":", 2)
	candidate := strings.TrimSpace(parts[0])
	if _, ok := sortColumns[candidate]; ok {
		field = candidate
	}
	if len(parts) == 2 {
		switch strings.ToLower(strings.TrimSpace(parts[1])) {
		case "asc":
			dir = "asc"
		case "desc":
			dir = "desc"
		}
	}
	return field, dir
}

// Skip is the row offset implied by page and limit.
func (f Filter) Skip() int {
	return (f.Page - 1) * f.Limit
}

// searchColumns are the fields covered by free-text search, OR-combined.
var searchColumns = []string{"title", "description", "location", "organization", "requirements"}

// Where renders the filter predicate as a SQL fragment with positional
// placeholders starting at $1. An empty filter yields an empty clause.
func (f Filter) Where() (string, []any) {
	var conds []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.Search != "" {
		ph := next("%" + escapeLike(f.Search) + "%")
		ors := make([]string, len(searchColumns))
		for i, col := range searchColumns {
			ors[i] = col + " ILIKE " + ph
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}
	if f.Category != nil {
		conds = append(conds, "category = "+next(string(*f.Category)))
	}
	if len(f.CategoryNotIn) > 0 {
		ph := make([]string, len(f.CategoryNotIn))
		for i, c := range f.CategoryNotIn {
			ph[i] = next(string(c))
		}
		conds = append(conds, "category NOT IN ("+strings.Join(ph, ", ")+")")
	}
	if f.Location != "" {
		conds = append(conds, "location ILIKE "+next("%"+escapeLike(f.Location)+"%"))
	}
	if f.Organization != "" {
		conds = append(conds, "organization ILIKE "+next("%"+escapeLike(f.Organization)+"%"))
	}
	if f.IsRemote != nil {
		conds = append(conds, "is_remote = "+next(*f.IsRemote))
	}
	if len(f.Tags) > 0 {
		conds = append(conds, "tags && "+next(f.Tags))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// OrderBy renders the sort clause. The secondary id tie-break keeps page
// boundaries stable when the primary key has duplicates.
func (f Filter) OrderBy() string {
	col, ok := sortColumns[f.SortField]
	if !ok {
		col = sortColumns[defaultSortField]
	}
	dir := "DESC"
	if f.SortDir == "asc" {
		dir = "ASC"
	}
	return " ORDER BY " + col + " " + dir + ", id ASC"
}

// escapeLike neutralizes LIKE wildcards in caller-supplied substrings.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}
