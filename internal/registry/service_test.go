package registry

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepository is a map-backed Repository with the active-number
// uniqueness rule the SQL schemas enforce.
type mockRepository struct {
	accounts  map[int64]Account
	linkTypes map[int64]LinkType
	nextID    int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		accounts:  make(map[int64]Account),
		linkTypes: make(map[int64]LinkType),
	}
}

func (m *mockRepository) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *mockRepository) ListAccounts(ctx context.Context, includeInactive bool) ([]Account, error) {
	var out []Account
	for _, a := range m.accounts {
		if a.Active || includeInactive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockRepository) GetAccount(ctx context.Context, id int64) (Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("%w: account %d", ErrNotFound, id)
	}
	return a, nil
}

func (m *mockRepository) InsertAccount(ctx context.Context, a Account) (int64, error) {
	if err := m.checkNumber(a); err != nil {
		return 0, err
	}
	a.ID = m.id()
	m.accounts[a.ID] = a
	return a.ID, nil
}

func (m *mockRepository) UpdateAccount(ctx context.Context, a Account) error {
	if _, ok := m.accounts[a.ID]; !ok {
		return fmt.Errorf("%w: account %d", ErrNotFound, a.ID)
	}
	if err := m.checkNumber(a); err != nil {
		return err
	}
	m.accounts[a.ID] = a
	return nil
}

func (m *mockRepository) checkNumber(a Account) error {
	if !a.Active {
		return nil
	}
	for _, other := range m.accounts {
		if other.ID != a.ID && other.Active && other.Number == a.Number {
			return fmt.Errorf("%w: account number %s already active", ErrConflict, a.Number)
		}
	}
	return nil
}

func (m *mockRepository) ListLinkTypes(ctx context.Context) ([]LinkType, error) {
	var out []LinkType
	for _, lt := range m.linkTypes {
		out = append(out, lt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockRepository) GetLinkType(ctx context.Context, id int64) (LinkType, error) {
	lt, ok := m.linkTypes[id]
	if !ok {
		return LinkType{}, fmt.Errorf("%w: link type %d", ErrNotFound, id)
	}
	return lt, nil
}

func (m *mockRepository) InsertLinkType(ctx context.Context, lt LinkType) (int64, error) {
	lt.ID = m.id()
	m.linkTypes[lt.ID] = lt
	return lt.ID, nil
}

func (m *mockRepository) UpdateLinkType(ctx context.Context, lt LinkType) error {
	if _, ok := m.linkTypes[lt.ID]; !ok {
		return fmt.Errorf("%w: link type %d", ErrNotFound, lt.ID)
	}
	m.linkTypes[lt.ID] = lt
	return nil
}

func (m *mockRepository) DeleteLinkType(ctx context.Context, id int64) error {
	if _, ok := m.linkTypes[id]; !ok {
		return fmt.Errorf("%w: link type %d", ErrNotFound, id)
	}
	delete(m.linkTypes, id)
	return nil
}

func TestCreateAccount(t *testing.T) {
	svc := NewService(newMockRepository())
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx, AccountInput{Number: " 1000 ", Description: "infra", OpenDate: "2024-01-01"})
	require.NoError(t, err)
	assert.Equal(t, "1000", a.Number, "number is trimmed")
	assert.True(t, a.Active)
	assert.NotZero(t, a.ID)

	_, err = svc.CreateAccount(ctx, AccountInput{Number: "  "})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.CreateAccount(ctx, AccountInput{Number: "2000", OpenDate: "2024-06-01", CloseDate: "2024-01-01"})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.CreateAccount(ctx, AccountInput{Number: "2000", OpenDate: "June 1st"})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCreateAccountNumberUniqueAmongActive(t *testing.T) {
	svc := NewService(newMockRepository())
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx, AccountInput{Number: "1000"})
	require.NoError(t, err)

	_, err = svc.CreateAccount(ctx, AccountInput{Number: "1000"})
	require.ErrorIs(t, err, ErrConflict)

	require.NoError(t, svc.DeactivateAccount(ctx, a.ID))

	// A deactivated account frees its number.
	_, err = svc.CreateAccount(ctx, AccountInput{Number: "1000"})
	require.NoError(t, err)
}

func TestUpdateAccount(t *testing.T) {
	svc := NewService(newMockRepository())
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx, AccountInput{Number: "1000", Description: "infra"})
	require.NoError(t, err)

	desc := "platform"
	close := "2024-12-31"
	updated, err := svc.UpdateAccount(ctx, a.ID, AccountPatch{Description: &desc, CloseDate: &close})
	require.NoError(t, err)
	assert.Equal(t, "platform", updated.Description)
	assert.Equal(t, close, updated.CloseDate)
	assert.Equal(t, "1000", updated.Number, "unpatched fields persist")

	empty := " "
	_, err = svc.UpdateAccount(ctx, a.ID, AccountPatch{Number: &empty})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.UpdateAccount(ctx, 999, AccountPatch{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeactivateAccountIsIdempotent(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx, AccountInput{Number: "1000"})
	require.NoError(t, err)

	require.NoError(t, svc.DeactivateAccount(ctx, a.ID))
	require.NoError(t, svc.DeactivateAccount(ctx, a.ID))

	active, err := svc.ListAccounts(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := svc.ListAccounts(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Active)
}

func TestAccountWindows(t *testing.T) {
	svc := NewService(newMockRepository())
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx, AccountInput{Number: "1000", OpenDate: "2024-01-01", CloseDate: "2024-12-31"})
	require.NoError(t, err)
	b, err := svc.CreateAccount(ctx, AccountInput{Number: "2000"})
	require.NoError(t, err)
	require.NoError(t, svc.DeactivateAccount(ctx, b.ID))

	windows, err := svc.AccountWindows(ctx)
	require.NoError(t, err)
	require.Len(t, windows, 2, "windows cover inactive accounts too")

	assert.Equal(t, "1000", windows[a.ID].Number)
	assert.Equal(t, "2024-01-01", windows[a.ID].OpenDate)
	assert.True(t, windows[a.ID].Active)
	assert.False(t, windows[b.ID].Active)
}

func TestCreateLinkType(t *testing.T) {
	svc := NewService(newMockRepository())
	ctx := context.Background()

	lt, err := svc.CreateLinkType(ctx, "Jira", "https://jira.example.com/browse/{value}")
	require.NoError(t, err)
	assert.NotZero(t, lt.ID)

	_, err = svc.CreateLinkType(ctx, "", "")
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.CreateLinkType(ctx, "Bad", "https://example.com/static")
	require.ErrorIs(t, err, ErrInvalidArgument)

	// Empty template is allowed; the reference is then plain text.
	_, err = svc.CreateLinkType(ctx, "Plain", "")
	require.NoError(t, err)
}

func TestUpdateLinkType(t *testing.T) {
	svc := NewService(newMockRepository())
	ctx := context.Background()

	lt, err := svc.CreateLinkType(ctx, "Jira", "https://jira.example.com/browse/{value}")
	require.NoError(t, err)

	title := "Jira Cloud"
	updated, err := svc.UpdateLinkType(ctx, lt.ID, LinkTypePatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Jira Cloud", updated.Title)
	assert.Equal(t, lt.URLTemplate, updated.URLTemplate)

	bad := "https://example.com/static"
	_, err = svc.UpdateLinkType(ctx, lt.ID, LinkTypePatch{URLTemplate: &bad})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.UpdateLinkType(ctx, 999, LinkTypePatch{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteLinkType(t *testing.T) {
	svc := NewService(newMockRepository())
	ctx := context.Background()

	lt, err := svc.CreateLinkType(ctx, "Jira", "")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteLinkType(ctx, lt.ID))
	require.ErrorIs(t, svc.DeleteLinkType(ctx, lt.ID), ErrNotFound)

	all, err := svc.ListLinkTypes(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestLinkTemplates(t *testing.T) {
	svc := NewService(newMockRepository())
	ctx := context.Background()

	jira, err := svc.CreateLinkType(ctx, "Jira", "https://jira.example.com/browse/{value}")
	require.NoError(t, err)
	plain, err := svc.CreateLinkType(ctx, "Plain", "")
	require.NoError(t, err)

	templates, err := svc.LinkTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, "https://jira.example.com/browse/WI-7", templates[jira.ID].Resolve("WI-7"))
	assert.Empty(t, templates[plain.ID].Resolve("WI-7"), "templateless link types yield no deep link")
}

func TestLinkTypeResolve(t *testing.T) {
	lt := LinkType{Title: "Jira", URLTemplate: "https://jira.example.com/browse/{value}"}
	assert.Equal(t, "https://jira.example.com/browse/WI-100", lt.Resolve("WI-100"))
	assert.Equal(t, "https://jira.example.com/browse/a%2Fb", lt.Resolve("a/b"), "values are escaped")

	plain := LinkType{Title: "Plain"}
	assert.Empty(t, plain.Resolve("WI-100"))
}
