package invoices

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func (a *recordingAudit) actions() []string {
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

func newTestService() (*Service, *memoryRepo, *recordingAudit) {
	repo := newMemoryRepo()
	audit := &recordingAudit{}
	dispatcher := balances.NewDispatcher(balances.NewRecalculator(nil), nil, nil)
	return NewService(repo, dispatcher, audit, nil), repo, audit
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func int64Ptr(v int64) *int64 { return &v }

func date(s string) *shared.Date {
	t, err := time.Parse(shared.DateLayout, s)
	if err != nil {
		panic(err)
	}
	d := shared.NewDate(t)
	return &d
}

func line(desc string, qty int64, price string) LineInput {
	return LineInput{Description: desc, Quantity: qty, UnitPrice: dec(price)}
}

func TestCreateDerivesTotalsFromLines(t *testing.T) {
	svc, repo, audit := newTestService()
	ctx := context.Background()
	contact := repo.addContact()

	inv, err := svc.Create(ctx, CreateInvoiceRequest{
		ContactID: contact,
		LineItems: []LineInput{line("Widget", 2, "10"), line("Gadget", 1, "5")},
	})
	require.NoError(t, err)
	assert.Regexp(t, `^INV-[0-9A-Z]{6}$`, inv.InvoiceUID)
	assert.Len(t, inv.LineItems, 2)
	assert.True(t, inv.TotalAmount.Equal(dec("25")), inv.TotalAmount.String())
	assert.True(t, inv.Balance.Equal(dec("25")))
	assert.Equal(t, balances.StatusPending, inv.PaymentStatus)
	require.NotNil(t, inv.DueDate)
	assert.Equal(t, inv.IssueDate.AddDate(0, 0, DefaultTermsDays), *inv.DueDate)

	assert.True(t, repo.ledger.Contacts[contact].CustomerBalance.Equal(dec("25")))
	assert.True(t, repo.ledger.Contacts[contact].NetBalance.Equal(dec("25")))
	assert.Equal(t, []string{"invoice.create"}, audit.actions())
}

func TestCreateWithUnknownContactFails(t *testing.T) {
	svc, repo, _ := newTestService()
	_, err := svc.Create(context.Background(), CreateInvoiceRequest{ContactID: 999, LineItems: []LineInput{line("x", 1, "1")}})
	assert.ErrorIs(t, err, httpx.ErrValidation)
	assert.Empty(t, repo.invoices)
	assert.Empty(t, repo.ledger.InvoiceLines)
}

func TestCreateRetriesCodeCollision(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.collisions = 1
	inv, err := svc.Create(context.Background(), CreateInvoiceRequest{ContactID: repo.addContact()})
	require.NoError(t, err)
	assert.NotEmpty(t, inv.InvoiceUID)
}

func TestPartialPaymentScenario(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	contact := repo.addContact()
	inv, err := svc.Create(ctx, CreateInvoiceRequest{ContactID: contact, LineItems: []LineInput{line("Consulting", 1, "100")}})
	require.NoError(t, err)

	p, replayed, err := svc.RecordPayment(ctx, CreatePaymentRequest{InvoiceID: inv.ID, Amount: dec("40")})
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, PaymentPending, p.Status)
	assert.Equal(t, "transfer", p.Method)

	got, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalPaid.IsZero(), "pending payments do not count")

	_, err = svc.ApprovePayment(ctx, p.ID)
	require.NoError(t, err)
	_, err = svc.ApplyCredit(ctx, CreateCreditRequest{InvoiceID: int64Ptr(inv.ID), Amount: dec("10")})
	require.NoError(t, err)

	got, err = svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalPaid.Equal(dec("40")))
	assert.True(t, got.TotalCredits.Equal(dec("10")))
	assert.True(t, got.Balance.Equal(dec("50")))
	assert.Equal(t, balances.StatusPartial, got.PaymentStatus)
	assert.True(t, repo.ledger.Contacts[contact].CustomerBalance.Equal(dec("50")))
}

func TestSubCentAmountsAreRejected(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	contact := repo.addContact()
	inv, err := svc.Create(ctx, CreateInvoiceRequest{ContactID: contact, LineItems: []LineInput{line("Consulting", 1, "100")}})
	require.NoError(t, err)

	require.NoError(t, httpx.Validate(httpx.NewValidator(), CreatePaymentRequest{InvoiceID: inv.ID, Amount: dec("0.004")}))
	_, _, err = svc.RecordPayment(ctx, CreatePaymentRequest{InvoiceID: inv.ID, Amount: dec("0.004")})
	require.ErrorIs(t, err, httpx.ErrValidation)
	_, err = svc.ApplyCredit(ctx, CreateCreditRequest{InvoiceID: int64Ptr(inv.ID), Amount: dec("0.001")})
	require.ErrorIs(t, err, httpx.ErrValidation)
	assert.Empty(t, repo.payments)
	assert.Empty(t, repo.credits)

	p, _, err := svc.RecordPayment(ctx, CreatePaymentRequest{InvoiceID: inv.ID, Amount: dec("0.005")})
	require.NoError(t, err)
	assert.Equal(t, "0.01", p.Amount.StringFixed(shared.MoneyScale))

	tiny := dec("0.001")
	_, err = svc.UpdatePayment(ctx, p.ID, UpdatePaymentRequest{Amount: &tiny})
	require.ErrorIs(t, err, httpx.ErrValidation)
	assert.True(t, repo.payments[p.ID].Amount.Equal(dec("0.01")))
}

func TestFullPaymentMarksPaid(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	contact := repo.addContact()
	inv, err := svc.Create(ctx, CreateInvoiceRequest{ContactID: contact, LineItems: []LineInput{line("Consulting", 1, "100")}})
	require.NoError(t, err)

	p, _, err := svc.RecordPayment(ctx, CreatePaymentRequest{InvoiceID: inv.ID, Amount: dec("100")})
	require.NoError(t, err)
	_, err = svc.ApprovePayment(ctx, p.ID)
	require.NoError(t, err)

	got, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, balances.StatusPaid, got.PaymentStatus)
	assert.True(t, got.Balance.IsZero())
	assert.True(t, repo.ledger.Contacts[contact].CustomerBalance.IsZero())
}

func TestPastDueInvoiceIsOverdue(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	inv, err := svc.Create(ctx, CreateInvoiceRequest{
		ContactID: repo.addContact(),
		IssueDate: date("2020-01-01"),
		DueDate:   date("2020-01-31"),
		LineItems: []LineInput{line("Old work", 1, "70")},
	})
	require.NoError(t, err)
	assert.Equal(t, balances.StatusOverdue, inv.PaymentStatus)
}

func TestUpdateDueDateRederivesStatus(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	inv, err := svc.Create(ctx, CreateInvoiceRequest{ContactID: repo.addContact(), LineItems: []LineInput{line("Work", 1, "70")}})
	require.NoError(t, err)
	require.Equal(t, balances.StatusPending, inv.PaymentStatus)

	inv, err = svc.Update(ctx, inv.ID, UpdateInvoiceRequest{DueDate: date("2020-01-31")})
	require.NoError(t, err)
	assert.Equal(t, balances.StatusOverdue, inv.PaymentStatus)
}

func TestUpdateContactMovesBalance(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	first, second := repo.addContact(), repo.addContact()
	inv, err := svc.Create(ctx, CreateInvoiceRequest{ContactID: first, LineItems: []LineInput{line("Work", 3, "10")}})
	require.NoError(t, err)

	_, err = svc.Update(ctx, inv.ID, UpdateInvoiceRequest{ContactID: int64Ptr(second)})
	require.NoError(t, err)
	assert.True(t, repo.ledger.Contacts[first].CustomerBalance.IsZero())
	assert.True(t, repo.ledger.Contacts[second].CustomerBalance.Equal(dec("30")))
}

func TestLineEditsRecomputeTotals(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	contact := repo.addContact()
	inv, err := svc.Create(ctx, CreateInvoiceRequest{ContactID: contact})
	require.NoError(t, err)

	l, err := svc.AddLine(ctx, CreateLineRequest{InvoiceID: inv.ID, LineInput: line("Hours", 4, "12.50")})
	require.NoError(t, err)
	assert.True(t, l.LineTotal.Equal(dec("50")))

	qty := int64(2)
	l, err = svc.UpdateLine(ctx, l.ID, UpdateLineRequest{Quantity: &qty})
	require.NoError(t, err)
	assert.True(t, l.LineTotal.Equal(dec("25")))

	got, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalAmount.Equal(dec("25")))

	require.NoError(t, svc.DeleteLine(ctx, l.ID))
	got, err = svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalAmount.IsZero())
	assert.True(t, repo.ledger.Contacts[contact].CustomerBalance.IsZero())
}

func TestDeleteConvertedInvoiceReleasesEstimate(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	contact := repo.addContact()
	est, other := repo.addEstimate(contact, "25"), repo.addEstimate(contact, "10")
	inv, err := svc.Create(ctx, CreateInvoiceRequest{ContactID: contact, LineItems: []LineInput{line("Design", 1, "25")}})
	require.NoError(t, err)
	kept, err := svc.Create(ctx, CreateInvoiceRequest{ContactID: contact, LineItems: []LineInput{line("Print", 1, "10")}})
	require.NoError(t, err)
	repo.conversions[est], repo.conversions[other] = inv.ID, kept.ID

	require.NoError(t, svc.Delete(ctx, inv.ID))
	assert.NotContains(t, repo.conversions, est)
	assert.Equal(t, kept.ID, repo.conversions[other])
	assert.True(t, repo.ledger.Contacts[contact].CustomerBalance.Equal(dec("10")))
}

func TestDeleteInvoiceClearsContactBalance(t *testing.T) {
	svc, repo, audit := newTestService()
	ctx := context.Background()
	contact := repo.addContact()
	inv, err := svc.Create(ctx, CreateInvoiceRequest{ContactID: contact, LineItems: []LineInput{line("Work", 1, "80")}})
	require.NoError(t, err)
	require.True(t, repo.ledger.Contacts[contact].CustomerBalance.Equal(dec("80")))

	require.NoError(t, svc.Delete(ctx, inv.ID))
	assert.True(t, repo.ledger.Contacts[contact].CustomerBalance.IsZero())
	assert.Empty(t, repo.ledger.InvoiceLines)
	assert.Contains(t, audit.actions(), "invoice.delete")

	_, err = svc.Get(ctx, inv.ID)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestIdempotentPaymentReplay(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	inv, err := svc.Create(ctx, CreateInvoiceRequest{ContactID: repo.addContact(), LineItems: []LineInput{line("Work", 1, "100")}})
	require.NoError(t, err)

	req := CreatePaymentRequest{InvoiceID: inv.ID, Amount: dec("30"), IdempotencyKey: "abc-123"}
	first, replayed, err := svc.RecordPayment(ctx, req)
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := svc.RecordPayment(ctx, req)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.payments, 1)
}

func TestFailedPaymentReleasesIdempotencyKey(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	inv, err := svc.Create(ctx, CreateInvoiceRequest{ContactID: repo.addContact(), LineItems: []LineInput{line("Work", 1, "100")}})
	require.NoError(t, err)

	repo.failPayment = errors.New("disk full")
	req := CreatePaymentRequest{InvoiceID: inv.ID, Amount: dec("30"), IdempotencyKey: "retry-me"}
	_, _, err = svc.RecordPayment(ctx, req)
	require.Error(t, err)
	assert.Empty(t, repo.idempotency)

	repo.failPayment = nil
	_, replayed, err := svc.RecordPayment(ctx, req)
	require.NoError(t, err)
	assert.False(t, replayed)
}

func TestRejectAfterApproveStopsCounting(t *testing.T) {
	svc, repo, audit := newTestService()
	ctx := shared.ContextWithSession(context.Background(), signedIn(7))
	inv, err := svc.Create(ctx, CreateInvoiceRequest{ContactID: repo.addContact(), LineItems: []LineInput{line("Work", 1, "100")}})
	require.NoError(t, err)
	p, _, err := svc.RecordPayment(ctx, CreatePaymentRequest{InvoiceID: inv.ID, Amount: dec("60")})
	require.NoError(t, err)

	approved, err := svc.ApprovePayment(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, int64(7), *approved.ApprovedBy)
	assert.NotNil(t, approved.ApprovedAt)

	again, err := svc.ApprovePayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentApproved, again.Status)

	got, _ := svc.Get(ctx, inv.ID)
	assert.True(t, got.Balance.Equal(dec("40")))

	_, err = svc.RejectPayment(ctx, p.ID)
	require.NoError(t, err)
	got, _ = svc.Get(ctx, inv.ID)
	assert.True(t, got.Balance.Equal(dec("100")))
	assert.Equal(t, balances.StatusPending, got.PaymentStatus)

	_, err = svc.ApprovePayment(ctx, p.ID)
	assert.ErrorIs(t, err, httpx.ErrValidation)
	_, err = svc.UpdatePayment(ctx, p.ID, UpdatePaymentRequest{Amount: decPtr("10")})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	assert.Equal(t, []string{"invoice.create", "customer_payment.approve", "customer_payment.reject"}, audit.actions())
}

func TestUpdateApprovedPaymentAmount(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	inv, err := svc.Create(ctx, CreateInvoiceRequest{ContactID: repo.addContact(), LineItems: []LineInput{line("Work", 1, "100")}})
	require.NoError(t, err)
	p, _, err := svc.RecordPayment(ctx, CreatePaymentRequest{InvoiceID: inv.ID, Amount: dec("60")})
	require.NoError(t, err)
	_, err = svc.ApprovePayment(ctx, p.ID)
	require.NoError(t, err)

	_, err = svc.UpdatePayment(ctx, p.ID, UpdatePaymentRequest{Amount: decPtr("75.555")})
	require.NoError(t, err)
	got, _ := svc.Get(ctx, inv.ID)
	assert.True(t, got.TotalPaid.Equal(dec("75.56")), got.TotalPaid.String())

	require.NoError(t, svc.DeletePayment(ctx, p.ID))
	got, _ = svc.Get(ctx, inv.ID)
	assert.True(t, got.TotalPaid.IsZero())
}

func TestCreditTargetsExactlyOneDocument(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	contact := repo.addContact()
	inv, err := svc.Create(ctx, CreateInvoiceRequest{ContactID: contact, LineItems: []LineInput{line("Work", 1, "100")}})
	require.NoError(t, err)
	estimate := repo.addEstimate(contact, "40")

	_, err = svc.ApplyCredit(ctx, CreateCreditRequest{Amount: dec("5")})
	assert.ErrorIs(t, err, httpx.ErrValidation)
	_, err = svc.ApplyCredit(ctx, CreateCreditRequest{InvoiceID: int64Ptr(inv.ID), EstimateID: int64Ptr(estimate), Amount: dec("5")})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	credit, err := svc.ApplyCredit(ctx, CreateCreditRequest{EstimateID: int64Ptr(estimate), Amount: dec("15")})
	require.NoError(t, err)
	assert.Equal(t, contact, credit.ContactID)
	assert.True(t, repo.ledger.Estimates[estimate].Balance.Equal(dec("25")))

	require.NoError(t, svc.DeleteCredit(ctx, credit.ID))
	assert.True(t, repo.ledger.Estimates[estimate].Balance.Equal(dec("40")))
}

func TestRecomputeFailureRollsBackMutation(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	contact := repo.addContact()
	inv, err := svc.Create(ctx, CreateInvoiceRequest{ContactID: contact, LineItems: []LineInput{line("Work", 1, "100")}})
	require.NoError(t, err)

	repo.ledger.Fail["SaveContact"] = errors.New("lock timeout")
	_, err = svc.AddLine(ctx, CreateLineRequest{InvoiceID: inv.ID, LineInput: line("Extra", 1, "50")})
	require.Error(t, err)
	assert.ErrorIs(t, err, httpx.ErrRecomputeFailure)

	delete(repo.ledger.Fail, "SaveContact")
	got, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, got.LineItems, 1)
	assert.True(t, got.TotalAmount.Equal(dec("100")))
	assert.True(t, repo.ledger.Contacts[contact].CustomerBalance.Equal(dec("100")))
}

func TestListFiltersByStatus(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	contact := repo.addContact()
	_, err := svc.Create(ctx, CreateInvoiceRequest{ContactID: contact, LineItems: []LineInput{line("Now", 1, "10")}})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInvoiceRequest{ContactID: contact, DueDate: date("2020-02-01"), LineItems: []LineInput{line("Late", 1, "10")}})
	require.NoError(t, err)

	items, total, err := svc.List(ctx, ListInvoicesRequest{Status: "overdue"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, balances.StatusOverdue, items[0].PaymentStatus)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func signedIn(userID int64) *shared.Session {
	sess := &shared.Session{}
	sess.SetUser(strconv.FormatInt(userID, 10))
	sess.SetRole("admin")
	return sess
}
