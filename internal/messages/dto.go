package messages

import "github.com/odyssey-erp/odyssey-books/internal/shared"

type CreateMessageRequest struct {
	Source        string         `json:"source" validate:"required,max=50"`
	MessageID     string         `json:"messageId" validate:"required,max=200"`
	Content       *string        `json:"content,omitempty" validate:"omitempty,max=4000"`
	ExtractedData map[string]any `json:"extractedData,omitempty"`
	ProductID     *int64         `json:"productId,omitempty" validate:"omitempty,gt=0"`
}

// UpdateMessageRequest replaces the given fields. A new ExtractedData is
// linked again.
type UpdateMessageRequest struct {
	Content       *string        `json:"content,omitempty" validate:"omitempty,max=4000"`
	ExtractedData map[string]any `json:"extractedData,omitempty"`
	ProductID     *int64         `json:"productId,omitempty" validate:"omitempty,gt=0"`
}

type ListMessagesRequest struct {
	Source    string
	ProductID int64
	Page      shared.PageRequest
}
