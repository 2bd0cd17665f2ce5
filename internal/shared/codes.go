package shared

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Document code prefixes.
const (
	PrefixInvoice       = "INV"
	PrefixEstimate      = "EST"
	PrefixPurchaseOrder = "PO"
	PrefixContact       = "CON"
)

const (
	codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeLength   = 6
	// CodeAttempts bounds collision retries when inserting a coded document.
	CodeAttempts = 5
)

// randomBytes indexes the uuid v4 bytes that carry no version or variant bits.
var randomBytes = [2 * codeLength]int{0, 1, 2, 3, 4, 5, 9, 10, 11, 12, 13, 14}

// NewDocumentCode returns PREFIX-XXXXXX drawn from 36^6 values. Callers insert
// with ON CONFLICT DO NOTHING and retry on collision.
func NewDocumentCode(prefix string) string {
	id := uuid.New()
	var b strings.Builder
	b.Grow(len(prefix) + 1 + codeLength)
	b.WriteString(prefix)
	b.WriteByte('-')
	for i := 0; i < codeLength; i++ {
		v := int(id[randomBytes[2*i]])<<8 | int(id[randomBytes[2*i+1]])
		b.WriteByte(codeAlphabet[v%len(codeAlphabet)])
	}
	return b.String()
}

// ErrCodeTaken is returned by inserts whose generated code already exists.
var ErrCodeTaken = errors.New("document code already taken")

// WithDocumentCode calls insert with fresh codes until one is accepted or
// CodeAttempts is exhausted.
func WithDocumentCode(prefix string, insert func(code string) error) error {
	var err error
	for attempt := 0; attempt < CodeAttempts; attempt++ {
		err = insert(NewDocumentCode(prefix))
		if !errors.Is(err, ErrCodeTaken) {
			return err
		}
	}
	return fmt.Errorf("generate %s code: %w", prefix, err)
}
