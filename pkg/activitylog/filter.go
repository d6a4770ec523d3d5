package activitylog

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
	// MaxPage keeps Offset within int for any limit
	MaxPage = math.MaxInt / MaxPageLimit
	// ActionAll in a Filter matches every action
	ActionAll Action = "all"
)

// Filter selects entries for the paged log listing.
//
// Search matches entries whose IP contains the text (case-insensitive) or
// whose user is in UserIDs; callers resolve users matching Search by name or
// email into UserIDs before listing.
type Filter struct {
	Search         string
	UserIDs        []uuid.UUID
	Action         Action
	SuspiciousOnly bool
	Page           int
	Limit          int
}

// Normalize clamps Page to [1, MaxPage] and Limit to [1, 100], defaulting
// Limit to 10, and turns the "all" action into no action filter.
func (f Filter) Normalize() Filter {
	f.Search = strings.TrimSpace(f.Search)
	if f.Action == ActionAll {
		f.Action = ""
	}
	switch {
	case f.Page < 1:
		f.Page = 1
	case f.Page > MaxPage:
		f.Page = MaxPage
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultPageLimit
	case f.Limit > MaxPageLimit:
		f.Limit = MaxPageLimit
	}
	return f
}

// Offset is the number of entries before the page
func (f Filter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Page is one page of a listing
type Page struct {
	Entries []Entry `json:"logs"`
	Total   int     `json:"total"`
	Page    int     `json:"page"`
	Limit   int     `json:"limit"`
	Pages   int     `json:"pages"`
}

// NewPage computes the page count for a normalized filter
func NewPage(entries []Entry, total int, f Filter) Page {
	pages := 0
	if total > 0 {
		pages = (total + f.Limit - 1) / f.Limit
	}
	if entries == nil {
		entries = []Entry{}
	}
	return Page{Entries: entries, Total: total, Page: f.Page, Limit: f.Limit, Pages: pages}
}

func (f Filter) matches(e Entry) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.SuspiciousOnly && !e.IsSuspicious {
		return false
	}
	if f.Search == "" {
		return true
	}
	if strings.Contains(strings.ToLower(e.IPAddress), strings.ToLower(f.Search)) {
		return true
	}
	for _, id := range f.UserIDs {
		if id == e.UserID {
			return true
		}
	}
	return false
}

// sqlWhere renders the filter as a WHERE clause. placeholder returns the
// driver's marker for the n-th argument and like is the case-insensitive
// match operator of the dialect.
func (f Filter) sqlWhere(placeholder func(n int) string, like string, idList func(ids []uuid.UUID, next func(v interface{}) string) string) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	next := func(v interface{}) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if f.Action != "" {
		clauses = append(clauses, "action = "+next(string(f.Action)))
	}
	if f.SuspiciousOnly {
		clauses = append(clauses, "is_suspicious")
	}
	if f.Search != "" {
		pattern := "%" + escapeLike(f.Search) + "%"
		search := fmt.Sprintf(`ip_address %s %s ESCAPE '\'`, like, next(pattern))
		if len(f.UserIDs) > 0 {
			search = "(" + search + " OR " + idList(f.UserIDs, next) + ")"
		}
		clauses = append(clauses, search)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
