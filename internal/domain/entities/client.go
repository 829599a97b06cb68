package entities

import "time"

// Client represents one sales-meeting/lead record. Clients are created
// exclusively by the upload ingestion pipeline and are immutable afterwards.
// The (Email, Phone) pair is unique across the store and serves as the
// deduplication key for repeated uploads.
type Client struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	MeetingDate   time.Time `json:"meeting_date"`
	Seller        string    `json:"seller"`
	Closed        bool      `json:"closed"`
	Transcription string    `json:"transcription"`
	UploadID      string    `json:"upload_id"`
	CreatedAt     time.Time `json:"created_at"`

	// Categorization is populated on joined reads; nil means uncategorized.
	Categorization *Categorization `json:"categorization,omitempty"`
}
