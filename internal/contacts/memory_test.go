package contacts

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-books/internal/balances"
	"github.com/odyssey-erp/odyssey-books/internal/balances/balancestest"
	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

type portalEntry struct {
	hash   string
	active bool
}

// memoryRepo keeps contact attributes in a map and balances in the ledger.
type memoryRepo struct {
	ledger     *balancestest.Ledger
	contacts   map[int64]Contact
	portal     map[int64]portalEntry
	documents  map[int64]int
	collisions int
	failUpdate error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		ledger:    balancestest.NewLedger(),
		contacts:  map[int64]Contact{},
		portal:    map[int64]portalEntry{},
		documents: map[int64]int{},
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	saved := maps.Clone(m.contacts)
	return m.ledger.Tx(func() error {
		if err := fn(ctx, m); err != nil {
			m.contacts = saved
			return err
		}
		return nil
	})
}

func (m *memoryRepo) Balances() balances.Store { return m.ledger }

func (m *memoryRepo) Get(_ context.Context, id int64) (*Contact, error) {
	c, ok := m.contacts[id]
	if !ok {
		return nil, fmt.Errorf("%w: contact %d", httpx.ErrNotFound, id)
	}
	st := m.ledger.Contacts[id]
	c.CustomerBalance, c.VendorBalance, c.NetBalance = st.CustomerBalance, st.VendorBalance, st.NetBalance
	c.PortalEnabled = m.portal[id].active
	return &c, nil
}

func (m *memoryRepo) List(ctx context.Context, req ListContactsRequest) ([]Contact, int, error) {
	var out []Contact
	for id := range m.contacts {
		c, _ := m.Get(ctx, id)
		if req.Kind == "customer" && !c.IsCustomer || req.Kind == "vendor" && !c.IsVendor {
			continue
		}
		if req.Search != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(req.Search)) {
			continue
		}
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *memoryRepo) Create(_ context.Context, c Contact) (int64, error) {
	if m.collisions > 0 {
		m.collisions--
		return 0, shared.ErrCodeTaken
	}
	c.ID = m.ledger.NextID()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.contacts[c.ID] = c
	m.ledger.Contacts[c.ID] = balances.ContactState{}
	return c.ID, nil
}

func (m *memoryRepo) Update(_ context.Context, id int64, updates map[string]any) error {
	if m.failUpdate != nil {
		return m.failUpdate
	}
	c, ok := m.contacts[id]
	if !ok {
		return fmt.Errorf("%w: contact %d", httpx.ErrNotFound, id)
	}
	for col, v := range updates {
		switch col {
		case "name":
			c.Name = v.(string)
		case "email":
			c.Email = v.(*string)
		case "phone":
			s := v.(string)
			c.Phone = &s
		case "address":
			s := v.(string)
			c.Address = &s
		case "is_customer":
			c.IsCustomer = v.(bool)
		case "is_vendor":
			c.IsVendor = v.(bool)
		case "notes":
			s := v.(string)
			c.Notes = &s
		default:
			return fmt.Errorf("column %q is not updatable", col)
		}
	}
	m.contacts[id] = c
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.contacts[id]; !ok {
		return fmt.Errorf("%w: contact %d", httpx.ErrNotFound, id)
	}
	delete(m.contacts, id)
	delete(m.ledger.Contacts, id)
	return nil
}

func (m *memoryRepo) DocumentCount(_ context.Context, id int64) (int, error) {
	return m.documents[id], nil
}

func (m *memoryRepo) UpsertPortalAccess(_ context.Context, contactID int64, pinHash string, active bool) error {
	m.portal[contactID] = portalEntry{hash: pinHash, active: active}
	return nil
}

var _ Repository = (*memoryRepo)(nil)
