package models

import "time"

// Item is a single ingested document reference.
type Item struct {
	ID             string    `json:"id"`
	FileName       string    `json:"file_name"`
	MimeType       string    `json:"mime_type"`
	Size           int64     `json:"size"`
	SourceURI      string    `json:"source_uri,omitempty"`
	Active         bool      `json:"active"`
	ConversationID string    `json:"conversation_id,omitempty"`
	UserID         string    `json:"user_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ItemUpdate carries a partial item update. Nil fields are left untouched.
type ItemUpdate struct {
	FileName *string `json:"file_name,omitempty"`
	Active   *bool   `json:"active,omitempty"`
}

// ItemsResponse is the list envelope returned by the items endpoint.
type ItemsResponse struct {
	Items []Item `json:"items"`
	Total int    `json:"total"`
}

// ItemResponse is the single-item envelope.
type ItemResponse struct {
	Item Item `json:"item"`
}

// UploadRequest asks the ingestion service to ingest a document from a source link.
type UploadRequest struct {
	DriverID       string `json:"driver_id"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// UploadResponse describes the item created by an ingestion request.
type UploadResponse struct {
	ItemID   string `json:"item_id"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}
