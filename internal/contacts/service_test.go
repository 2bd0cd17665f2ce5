package contacts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-books/internal/balances"
	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

type recordingAudit struct {
	entries []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}

func newTestService() (*Service, *memoryRepo, *recordingAudit) {
	repo := newMemoryRepo()
	audit := &recordingAudit{}
	dispatcher := balances.NewDispatcher(balances.NewRecalculator(nil), nil, nil)
	return NewService(repo, dispatcher, audit, nil), repo, audit
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestCreateDefaultsToCustomer(t *testing.T) {
	svc, _, _ := newTestService()
	c, err := svc.Create(context.Background(), CreateContactRequest{Name: "  Acme Ltd ", Email: strPtr(" Billing@Acme.IO ")})
	require.NoError(t, err)
	assert.Equal(t, "Acme Ltd", c.Name)
	assert.Equal(t, "billing@acme.io", *c.Email)
	assert.True(t, c.IsCustomer)
	assert.False(t, c.IsVendor)
	assert.Regexp(t, `^CON-[0-9A-Z]{6}$`, c.ContactUID)
	assert.True(t, c.CustomerBalance.IsZero())
}

func TestCreateRetriesCodeCollision(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.collisions = 2
	c, err := svc.Create(context.Background(), CreateContactRequest{Name: "Vendor Co", IsCustomer: boolPtr(false), IsVendor: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, c.IsVendor)
	assert.Zero(t, repo.collisions)
}

func TestCreateRequiresARole(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Create(context.Background(), CreateContactRequest{Name: "Nobody", IsCustomer: boolPtr(false)})
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestUpdateLeavesBalancesAlone(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	c, err := svc.Create(ctx, CreateContactRequest{Name: "Acme"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, c.ID, UpdateContactRequest{Name: strPtr("Acme Holdings"), IsVendor: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, "Acme Holdings", updated.Name)
	assert.True(t, updated.IsVendor)
	assert.Zero(t, repo.ledger.Saves["contact"])
}

func TestUpdateRollsBackOnFailure(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	c, err := svc.Create(ctx, CreateContactRequest{Name: "Acme"})
	require.NoError(t, err)

	repo.failUpdate = errors.New("disk full")
	_, err = svc.Update(ctx, c.ID, UpdateContactRequest{Name: strPtr("Other")})
	require.Error(t, err)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)
}

func TestDeleteBlockedByDocuments(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	c, err := svc.Create(ctx, CreateContactRequest{Name: "Acme"})
	require.NoError(t, err)

	repo.documents[c.ID] = 2
	err = svc.Delete(ctx, c.ID)
	assert.ErrorIs(t, err, httpx.ErrValidation)

	repo.documents[c.ID] = 0
	require.NoError(t, svc.Delete(ctx, c.ID))
	_, err = svc.Get(ctx, c.ID)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestSetPortalAccessHashesPIN(t *testing.T) {
	svc, repo, audit := newTestService()
	ctx := context.Background()
	c, err := svc.Create(ctx, CreateContactRequest{Name: "Acme"})
	require.NoError(t, err)

	got, err := svc.SetPortalAccess(ctx, c.ID, PortalAccessRequest{PIN: "123456"})
	require.NoError(t, err)
	assert.True(t, got.PortalEnabled)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.portal[c.ID].hash), []byte("123456")))
	require.Len(t, audit.entries, 1)
	assert.Equal(t, "contact.portal_access", audit.entries[0].Action)

	_, err = svc.SetPortalAccess(ctx, 999, PortalAccessRequest{PIN: "123456"})
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}
