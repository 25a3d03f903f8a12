package models

import "time"

// ShoppingList belongs to a family group.
type ShoppingList struct {
	ID            string    `json:"id"`
	FamilyGroupID string    `json:"familyGroupId"`
	Name          string    `json:"name"`
	CreatedBy     string    `json:"createdBy"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ListItem is an entry on a shopping list.
type ListItem struct {
	ID            string    `json:"id"`
	ListID        string    `json:"listId"`
	FamilyGroupID string    `json:"familyGroupId"`
	Name          string    `json:"name"`
	Quantity      int       `json:"quantity"`
	Urgent        bool      `json:"urgent"`
	CreatedBy     string    `json:"createdBy"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ReceiptScan is the stored result of an OCR run.
type ReceiptScan struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	FamilyGroupID string    `json:"familyGroupId"`
	Text          string    `json:"text"`
	ArchiveKey    string    `json:"archiveKey,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// CreateListRequest is the body of the create-list action.
type CreateListRequest struct {
	FamilyGroupID string `json:"familyGroupId" validate:"required"`
	Name          string `json:"name" validate:"required,max=120"`
}

// CreateUrgentItemRequest is the body of the create-urgent-item action.
type CreateUrgentItemRequest struct {
	FamilyGroupID string `json:"familyGroupId" validate:"required"`
	ListID        string `json:"listId" validate:"required"`
	Name          string `json:"name" validate:"required,max=120"`
	Quantity      int    `json:"quantity" validate:"omitempty,min=1,max=999"`
}

// ProcessOCRRequest is the body of the process-OCR action. Image is base64,
// optionally as a data URL.
type ProcessOCRRequest struct {
	FamilyGroupID string `json:"familyGroupId" validate:"required"`
	Image         string `json:"image" validate:"required"`
}

// ProcessOCRResponse carries the detected text.
type ProcessOCRResponse struct {
	ScanID string `json:"scanId"`
	Text   string `json:"text"`
}
