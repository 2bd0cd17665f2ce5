package balances

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
)

// MessageState is the product link of a stored message.
type MessageState struct {
	ProductID     *int64
	ExtractedData map[string]any
}

// MessageStore is the optional part of a Store that links inbound messages
// to products. Both the Postgres store and the test ledger implement it.
type MessageStore interface {
	LockMessage(ctx context.Context, id int64) (MessageState, error)
	// ProductBySKU matches sku case-insensitively and wraps
	// httpx.ErrNotFound when no product carries it.
	ProductBySKU(ctx context.Context, sku string) (int64, error)
	ProductExists(ctx context.Context, id int64) (bool, error)
	SaveMessageProduct(ctx context.Context, id, productID int64) error
}

var (
	productIDKeys  = []string{"productId", "product_id"}
	productSKUKeys = []string{"sku", "productSku", "product_sku"}
)

// ProductReference reads the product named by extracted message data. An
// explicit product id wins over a SKU.
func ProductReference(data map[string]any) (id int64, sku string) {
	if id, ok := Row(data).Int64(productIDKeys...); ok {
		return id, ""
	}
	for _, key := range productSKUKeys {
		if s, ok := data[key].(string); ok && strings.TrimSpace(s) != "" {
			return 0, strings.TrimSpace(s)
		}
	}
	return 0, ""
}

// LinkMessageProduct points message id at the product its extracted data
// names. A reference to an unknown product leaves the current link alone.
// It reports whether the stored link changed.
func LinkMessageProduct(ctx context.Context, store MessageStore, id int64) (bool, error) {
	msg, err := store.LockMessage(ctx, id)
	if err != nil {
		return false, err
	}
	productID, sku := ProductReference(msg.ExtractedData)
	switch {
	case productID > 0:
		ok, err := store.ProductExists(ctx, productID)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	case sku != "":
		productID, err = store.ProductBySKU(ctx, sku)
		if errors.Is(err, httpx.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	default:
		return false, nil
	}
	if msg.ProductID != nil && *msg.ProductID == productID {
		return false, nil
	}
	if err := store.SaveMessageProduct(ctx, id, productID); err != nil {
		return false, err
	}
	return true, nil
}

// messageLinkRule links inserted or updated messages that carry extracted
// data. Deletes need nothing.
func messageLinkRule() Rule {
	return Rule{
		Name: "message product link",
		Apply: func(ctx context.Context, store Store, ev Event) error {
			if ev.Op == OpDelete || ev.ID <= 0 || ev.Row["extractedData"] == nil {
				return nil
			}
			ms, ok := store.(MessageStore)
			if !ok {
				return fmt.Errorf("store %T cannot link messages", store)
			}
			_, err := LinkMessageProduct(ctx, ms, ev.ID)
			return err
		},
	}
}
