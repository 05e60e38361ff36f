package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quokka-track/quokka/internal/ledger"
)

// Service provides registry business logic.
type Service struct {
	repo Repository
}

// NewService constructs a registry service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// AccountInput groups the fields of a new account.
type AccountInput struct {
	Number      string
	Description string
	Project     string
	OpenDate    string
	CloseDate   string
}

// ListAccounts returns accounts, active only unless includeInactive is set.
func (s *Service) ListAccounts(ctx context.Context, includeInactive bool) ([]Account, error) {
	return s.repo.ListAccounts(ctx, includeInactive)
}

// CreateAccount registers a new active account.
func (s *Service) CreateAccount(ctx context.Context, in AccountInput) (Account, error) {
	a := Account{
		Number:      strings.TrimSpace(in.Number),
		Description: in.Description,
		Project:     in.Project,
		OpenDate:    in.OpenDate,
		CloseDate:   in.CloseDate,
		Active:      true,
	}
	if a.Number == "" {
		return Account{}, fmt.Errorf("%w: number is required", ErrInvalidArgument)
	}
	if err := validateWindow(a.OpenDate, a.CloseDate); err != nil {
		return Account{}, err
	}
	id, err := s.repo.InsertAccount(ctx, a)
	if err != nil {
		return Account{}, fmt.Errorf("create account: %w", err)
	}
	a.ID = id
	return a, nil
}

// UpdateAccount applies a partial patch to an account.
func (s *Service) UpdateAccount(ctx context.Context, id int64, patch AccountPatch) (Account, error) {
	a, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	if patch.Number != nil {
		a.Number = strings.TrimSpace(*patch.Number)
		if a.Number == "" {
			return Account{}, fmt.Errorf("%w: number is required", ErrInvalidArgument)
		}
	}
	if patch.Description != nil {
		a.Description = *patch.Description
	}
	if patch.Project != nil {
		a.Project = *patch.Project
	}
	if patch.OpenDate != nil {
		a.OpenDate = *patch.OpenDate
	}
	if patch.CloseDate != nil {
		a.CloseDate = *patch.CloseDate
	}
	if patch.Active != nil {
		a.Active = *patch.Active
	}
	if err := validateWindow(a.OpenDate, a.CloseDate); err != nil {
		return Account{}, err
	}
	if err := s.repo.UpdateAccount(ctx, a); err != nil {
		return Account{}, fmt.Errorf("update account: %w", err)
	}
	return a, nil
}

// DeactivateAccount soft-deletes an account. Entries keep referencing it;
// listings flag such splits instead of failing.
func (s *Service) DeactivateAccount(ctx context.Context, id int64) error {
	a, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if !a.Active {
		return nil
	}
	a.Active = false
	if err := s.repo.UpdateAccount(ctx, a); err != nil {
		return fmt.Errorf("deactivate account: %w", err)
	}
	return nil
}

// AccountWindows exposes activity windows in the shape the ledger expects
// for split warnings.
func (s *Service) AccountWindows(ctx context.Context) (map[int64]ledger.AccountWindow, error) {
	accounts, err := s.repo.ListAccounts(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	windows := make(map[int64]ledger.AccountWindow, len(accounts))
	for _, a := range accounts {
		windows[a.ID] = ledger.AccountWindow{
			Number:    a.Number,
			OpenDate:  a.OpenDate,
			CloseDate: a.CloseDate,
			Active:    a.Active,
		}
	}
	return windows, nil
}

// ListLinkTypes returns all link types.
func (s *Service) ListLinkTypes(ctx context.Context) ([]LinkType, error) {
	return s.repo.ListLinkTypes(ctx)
}

// LinkTemplates exposes deep-link templates in the shape the ledger expects
// for reference decoration.
func (s *Service) LinkTemplates(ctx context.Context) (map[int64]ledger.LinkTemplate, error) {
	types, err := s.repo.ListLinkTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list link types: %w", err)
	}
	templates := make(map[int64]ledger.LinkTemplate, len(types))
	for _, lt := range types {
		templates[lt.ID] = lt
	}
	return templates, nil
}

// CreateLinkType registers a new link type.
func (s *Service) CreateLinkType(ctx context.Context, title, urlTemplate string) (LinkType, error) {
	lt := LinkType{Title: strings.TrimSpace(title), URLTemplate: strings.TrimSpace(urlTemplate)}
	if lt.Title == "" {
		return LinkType{}, fmt.Errorf("%w: title is required", ErrInvalidArgument)
	}
	if err := validateTemplate(lt.URLTemplate); err != nil {
		return LinkType{}, err
	}
	id, err := s.repo.InsertLinkType(ctx, lt)
	if err != nil {
		return LinkType{}, fmt.Errorf("create link type: %w", err)
	}
	lt.ID = id
	return lt, nil
}

// UpdateLinkType applies a partial patch to a link type.
func (s *Service) UpdateLinkType(ctx context.Context, id int64, patch LinkTypePatch) (LinkType, error) {
	lt, err := s.repo.GetLinkType(ctx, id)
	if err != nil {
		return LinkType{}, fmt.Errorf("get link type: %w", err)
	}
	if patch.Title != nil {
		lt.Title = strings.TrimSpace(*patch.Title)
		if lt.Title == "" {
			return LinkType{}, fmt.Errorf("%w: title is required", ErrInvalidArgument)
		}
	}
	if patch.URLTemplate != nil {
		lt.URLTemplate = strings.TrimSpace(*patch.URLTemplate)
	}
	if err := validateTemplate(lt.URLTemplate); err != nil {
		return LinkType{}, err
	}
	if err := s.repo.UpdateLinkType(ctx, lt); err != nil {
		return LinkType{}, fmt.Errorf("update link type: %w", err)
	}
	return lt, nil
}

// DeleteLinkType removes a link type.
func (s *Service) DeleteLinkType(ctx context.Context, id int64) error {
	if err := s.repo.DeleteLinkType(ctx, id); err != nil {
		return fmt.Errorf("delete link type: %w", err)
	}
	return nil
}

func validateWindow(open, close string) error {
	if open != "" && !validDate(open) {
		return fmt.Errorf("%w: open_date must be YYYY-MM-DD", ErrInvalidArgument)
	}
	if close != "" && !validDate(close) {
		return fmt.Errorf("%w: close_date must be YYYY-MM-DD", ErrInvalidArgument)
	}
	if open != "" && close != "" && open > close {
		return fmt.Errorf("%w: open_date is after close_date", ErrInvalidArgument)
	}
	return nil
}

func validateTemplate(t string) error {
	if t != "" && !strings.Contains(t, templatePlaceholder) {
		return fmt.Errorf("%w: url_template must contain %s", ErrInvalidArgument, templatePlaceholder)
	}
	return nil
}

func validDate(s string) bool {
	_, err := time.Parse(ledger.DateLayout, s)
	return err == nil
}
