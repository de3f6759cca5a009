package storage

import (
	"fmt"
	"strings"

	"github.com/gofrs/uuid"

	"github.com/retosmicro/authsvc/internal/models"
)

const (
	defaultLimit = 25
	maxLimit     = 100

	defaultSortColumn = "created_at"
)

// sortColumns is the fixed set of columns the listing may order by.
// Anything outside it silently falls back to created_at.
var sortColumns = map[string]struct{}{
	"id":            {},
	"username":      {},
	"email":         {},
	"created_at":    {},
	"updated_at":    {},
	"last_login_at": {},
}

type ListParams struct {
	Page   int
	Limit  int
	Search string
	Status string
	SortBy string
	Order  string
}

// Normalized clamps pagination, applies the sort allowlist and
// canonicalizes the direction. Order is "asc" only when asked exactly.
func (p ListParams) Normalized() ListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if _, ok := sortColumns[p.SortBy]; !ok {
		p.SortBy = defaultSortColumn
	}
	if p.Order != "asc" {
		p.Order = "desc"
	}
	return p
}

// buildFilter renders the WHERE fragment shared by the count and list
// queries. Column names are fixed; only values travel as parameters.
func buildFilter(p ListParams) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)

	if p.Search != "" {
		args = append(args, "%"+p.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(username ILIKE $%d OR email ILIKE $%d)", n, n))
	}
	if p.Status != "" {
		args = append(args, p.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func buildCountQuery(table string, p ListParams) (string, []interface{}) {
	where, args := buildFilter(p)
	return fmt.Sprintf("SELECT count(*) FROM %s%s;", table, where), args
}

func buildListQuery(table, columns string, p ListParams) (string, []interface{}) {
	where, args := buildFilter(p)

	args = append(args, p.Limit, (p.Page-1)*p.Limit)
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s %s LIMIT $%d OFFSET $%d;",
		columns, table, where, p.SortBy, strings.ToUpper(p.Order), len(args)-1, len(args))

	return query, args
}

// buildProfileUpdate maps the optional profile fields onto a
// parameterized UPDATE. An empty update yields an empty query.
func buildProfileUpdate(table string, userID uuid.UUID, upd models.ProfileUpdate) (string, []interface{}) {
	var (
		sets []string
		args []interface{}
	)

	add := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}

	add("first_name", upd.FirstName)
	add("last_name", upd.LastName)
	add("phone", upd.Phone)

	if len(sets) == 0 {
		return "", nil
	}

	sets = append(sets, "updated_at=now()")
	args = append(args, userID)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id=$%d;", table, strings.Join(sets, ", "), len(args))

	return query, args
}
