// Package registry holds the leaf data consumed by ledger entries:
// imputation accounts and external link types.
package registry

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// Sentinel errors for the registry.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("conflict")
)

// Account is one cost-imputation account. Numbers are unique among active
// accounts only; a deactivated account may share its number with a newer one.
type Account struct {
	ID          int64  `json:"id"`
	Number      string `json:"number"`
	Description string `json:"description"`
	Project     string `json:"project"`
	OpenDate    string `json:"open_date,omitempty"`
	CloseDate   string `json:"close_date,omitempty"`
	Active      bool   `json:"active"`
}

// LinkType describes one external system entries can reference. The URL
// template, when set, contains a {value} placeholder for deep links.
type LinkType struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	URLTemplate string `json:"url_template,omitempty"`
}

const templatePlaceholder = "{value}"

// Resolve expands the URL template for a reference value. Empty when the
// link type carries no template.
func (lt LinkType) Resolve(value string) string {
	if lt.URLTemplate == "" {
		return ""
	}
	return strings.ReplaceAll(lt.URLTemplate, templatePlaceholder, url.PathEscape(value))
}

// AccountPatch carries a partial account update; nil fields are untouched.
type AccountPatch struct {
	Number      *string
	Description *string
	Project     *string
	OpenDate    *string
	CloseDate   *string
	Active      *bool
}

// LinkTypePatch carries a partial link-type update.
type LinkTypePatch struct {
	Title       *string
	URLTemplate *string
}

// Repository persists registry rows.
type Repository interface {
	ListAccounts(ctx context.Context, includeInactive bool) ([]Account, error)
	GetAccount(ctx context.Context, id int64) (Account, error)
	InsertAccount(ctx context.Context, a Account) (int64, error)
	UpdateAccount(ctx context.Context, a Account) error

	ListLinkTypes(ctx context.Context) ([]LinkType, error)
	GetLinkType(ctx context.Context, id int64) (LinkType, error)
	InsertLinkType(ctx context.Context, lt LinkType) (int64, error)
	UpdateLinkType(ctx context.Context, lt LinkType) error
	DeleteLinkType(ctx context.Context, id int64) error
}
