package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"

	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
)

var errInvalidLogin = fmt.Errorf("%w: invalid identifier or PIN", httpx.ErrUnauthorized)

// dummyHash keeps unknown identifiers as slow as wrong PINs.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("000000"), bcrypt.DefaultCost)

type Service struct {
	repo   Repository
	tokens *TokenStore
	logger *slog.Logger
}

func NewService(repo Repository, tokens *TokenStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tokens: tokens, logger: logger}
}

// Login checks the PIN of the contact named by identifier (contact uid or
// email, compared case-insensitively) and issues a portal token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	identifier := cases.Fold().String(strings.TrimSpace(req.Identifier))
	creds, err := s.repo.FindCredentials(ctx, identifier)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(req.PIN))
			return nil, errInvalidLogin
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(creds.PinHash), []byte(req.PIN)); err != nil {
		s.logger.Info("portal login rejected", slog.Int64("contact_id", creds.ContactID))
		return nil, errInvalidLogin
	}
	if !creds.Active {
		return nil, fmt.Errorf("%w: portal access is disabled", httpx.ErrForbidden)
	}

	account, err := s.repo.Account(ctx, creds.ContactID)
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.Issue(ctx, creds.ContactID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.TouchLogin(ctx, creds.ContactID); err != nil {
		s.logger.Warn("portal last login not recorded", slog.Int64("contact_id", creds.ContactID), slog.Any("error", err))
	}
	s.logger.Info("portal login", slog.Int64("contact_id", creds.ContactID))
	return &LoginResponse{Token: token, Account: *account}, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}

// Authenticate resolves a bearer token to its contact id.
func (s *Service) Authenticate(ctx context.Context, token string) (int64, error) {
	return s.tokens.Resolve(ctx, token)
}

func (s *Service) Account(ctx context.Context, contactID int64) (*Account, error) {
	return s.repo.Account(ctx, contactID)
}

func (s *Service) Invoices(ctx context.Context, contactID int64) ([]Invoice, error) {
	return s.repo.Invoices(ctx, contactID)
}

func (s *Service) Estimates(ctx context.Context, contactID int64) ([]Estimate, error) {
	return s.repo.Estimates(ctx, contactID)
}

func (s *Service) PurchaseOrders(ctx context.Context, contactID int64) ([]PurchaseOrder, error) {
	return s.repo.PurchaseOrders(ctx, contactID)
}

func (s *Service) Payments(ctx context.Context, contactID int64) ([]Payment, error) {
	return s.repo.Payments(ctx, contactID)
}
