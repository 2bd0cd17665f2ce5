package contacts

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-books/internal/balances"
	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

// AuditPort records audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

type Service struct {
	repo       Repository
	dispatcher *balances.Dispatcher
	audit      AuditPort
	logger     *slog.Logger
}

func NewService(repo Repository, dispatcher *balances.Dispatcher, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, dispatcher: dispatcher, audit: audit, logger: logger}
}

func (s *Service) mutate(ctx context.Context, fn func(context.Context, Repository) error) error {
	return s.dispatcher.WithRetry(ctx, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, fn)
	})
}

func (s *Service) Create(ctx context.Context, req CreateContactRequest) (*Contact, error) {
	contact := Contact{
		Name:       strings.TrimSpace(req.Name),
		Email:      normalizeEmail(req.Email),
		Phone:      req.Phone,
		Address:    req.Address,
		IsCustomer: req.IsCustomer == nil || *req.IsCustomer,
		IsVendor:   req.IsVendor != nil && *req.IsVendor,
		Notes:      req.Notes,
	}
	if !contact.IsCustomer && !contact.IsVendor {
		return nil, fmt.Errorf("%w: contact must be a customer, a vendor or both", httpx.ErrValidation)
	}

	var id int64
	err := shared.WithDocumentCode(shared.PrefixContact, func(code string) error {
		contact.ContactUID = code
		return s.mutate(ctx, func(ctx context.Context, repo Repository) error {
			var err error
			id, err = repo.Create(ctx, contact)
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateContactRequest) (*Contact, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]any)
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		updates["email"] = normalizeEmail(req.Email)
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.Address != nil {
		updates["address"] = *req.Address
	}
	if req.IsCustomer != nil {
		updates["is_customer"] = *req.IsCustomer
	}
	if req.IsVendor != nil {
		updates["is_vendor"] = *req.IsVendor
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}
	if len(updates) == 0 {
		return existing, nil
	}

	err = s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.Update(ctx, id, updates); err != nil {
			return err
		}
		after, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		return s.dispatcher.Dispatch(ctx, repo.Balances(), balances.Event{
			Table:  balances.TableContacts,
			ID:     id,
			Op:     balances.OpUpdate,
			Row:    after.eventRow(),
			OldRow: existing.eventRow(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("update contact: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a contact that no document references.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.mutate(ctx, func(ctx context.Context, repo Repository) error {
		n, err := repo.DocumentCount(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: contact still has %d documents", httpx.ErrValidation, n)
		}
		return repo.Delete(ctx, id)
	})
}

func (s *Service) Get(ctx context.Context, id int64) (*Contact, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListContactsRequest) ([]Contact, int, error) {
	return s.repo.List(ctx, req)
}

// SetPortalAccess stores a bcrypt hash of the PIN and enables or disables
// portal sign-in for the contact.
func (s *Service) SetPortalAccess(ctx context.Context, id int64, req PortalAccessRequest) (*Contact, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.PIN), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash portal pin: %w", err)
	}
	active := req.IsActive == nil || *req.IsActive
	if err := s.repo.UpsertPortalAccess(ctx, id, string(hash), active); err != nil {
		return nil, fmt.Errorf("set portal access: %w", err)
	}
	s.recordAudit(ctx, "contact.portal_access", id, map[string]any{"active": active})
	return s.repo.Get(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "contact",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("contact audit failed", slog.String("action", action), slog.Any("error", err))
	}
}

func normalizeEmail(email *string) *string {
	if email == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*email))
	if v == "" {
		return nil
	}
	return &v
}
