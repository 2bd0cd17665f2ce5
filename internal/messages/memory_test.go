package messages

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/odyssey-erp/odyssey-books/internal/balances"
	"github.com/odyssey-erp/odyssey-books/internal/balances/balancestest"
	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
)

// memoryRepo keeps message attributes in a map and the product link in the
// ledger, so the link rule and the reads agree.
type memoryRepo struct {
	ledger   *balancestest.Ledger
	messages map[int64]Message
	names    map[int64]string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		ledger:   balancestest.NewLedger(),
		messages: map[int64]Message{},
		names:    map[int64]string{},
	}
}

func (m *memoryRepo) addProduct(name, sku string) int64 {
	id := m.ledger.NextID()
	m.ledger.Products[id] = sku
	m.names[id] = name
	return id
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	messages := maps.Clone(m.messages)
	return m.ledger.Tx(func() error {
		if err := fn(ctx, m); err != nil {
			m.messages = messages
			return err
		}
		return nil
	})
}

func (m *memoryRepo) Balances() balances.Store { return m.ledger }

func (m *memoryRepo) Get(_ context.Context, id int64) (*Message, error) {
	msg, ok := m.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: message %d", httpx.ErrNotFound, id)
	}
	st := m.ledger.Messages[id]
	msg.ExtractedData = st.ExtractedData
	msg.ProductID = st.ProductID
	msg.ProductName = nil
	if st.ProductID != nil {
		if name, ok := m.names[*st.ProductID]; ok {
			msg.ProductName = &name
		}
	}
	return &msg, nil
}

func (m *memoryRepo) List(ctx context.Context, req ListMessagesRequest) ([]Message, int, error) {
	var out []Message
	for _, id := range slices.Sorted(maps.Keys(m.messages)) {
		msg, _ := m.Get(ctx, id)
		if req.Source != "" && msg.Source != req.Source {
			continue
		}
		if req.ProductID > 0 && (msg.ProductID == nil || *msg.ProductID != req.ProductID) {
			continue
		}
		out = append(out, *msg)
	}
	return out, len(out), nil
}

func (m *memoryRepo) Create(_ context.Context, msg Message) (int64, error) {
	for _, existing := range m.messages {
		if existing.Source == msg.Source && existing.MessageID == msg.MessageID {
			return 0, fmt.Errorf("%w: messages_source_message_id_key", httpx.ErrDuplicate)
		}
	}
	id := m.ledger.NextID()
	msg.ID = id
	msg.CreatedAt = time.Now()
	msg.UpdatedAt = msg.CreatedAt
	m.messages[id] = msg
	m.ledger.Messages[id] = balances.MessageState{ProductID: msg.ProductID, ExtractedData: msg.ExtractedData}
	return id, nil
}

func (m *memoryRepo) Update(_ context.Context, id int64, updates map[string]any) error {
	msg, ok := m.messages[id]
	if !ok {
		return fmt.Errorf("%w: message %d", httpx.ErrNotFound, id)
	}
	st := m.ledger.Messages[id]
	for k, v := range updates {
		switch k {
		case "content":
			s := v.(string)
			msg.Content = &s
		case "extracted_data":
			st.ExtractedData = v.(map[string]any)
		case "product_id":
			p := v.(int64)
			st.ProductID = &p
		default:
			return fmt.Errorf("%w: unknown field %s", httpx.ErrValidation, k)
		}
	}
	msg.UpdatedAt = time.Now()
	m.messages[id] = msg
	m.ledger.Messages[id] = st
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.messages[id]; !ok {
		return fmt.Errorf("%w: message %d", httpx.ErrNotFound, id)
	}
	delete(m.messages, id)
	delete(m.ledger.Messages, id)
	return nil
}
