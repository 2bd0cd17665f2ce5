package messages

import (
	"time"

	"github.com/odyssey-erp/odyssey-books/internal/balances"
)

// Message is an inbound chat message, for example from a Telegram bot.
// ExtractedData is whatever the sender parsed out of the text; a product id
// or SKU in it links the message to a product.
type Message struct {
	ID            int64          `json:"id"`
	Source        string         `json:"source"`
	MessageID     string         `json:"messageId"`
	Content       *string        `json:"content,omitempty"`
	ExtractedData map[string]any `json:"extractedData,omitempty"`
	ProductID     *int64         `json:"productId,omitempty"`
	ProductName   *string        `json:"productName,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

func (m Message) eventRow() balances.Row {
	row := balances.Row{"source": m.Source, "messageId": m.MessageID}
	if m.ExtractedData != nil {
		row["extractedData"] = m.ExtractedData
	}
	if m.ProductID != nil {
		row["productId"] = *m.ProductID
	}
	return row
}
