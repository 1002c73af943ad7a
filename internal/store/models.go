package store

import "time"

type AssetKind string

const (
	KindImage    AssetKind = "image"
	KindAudio    AssetKind = "audio"
	KindVideo    AssetKind = "video"
	KindDocument AssetKind = "document"
	KindNote     AssetKind = "note"
	KindLink     AssetKind = "link"
)

type ScheduleStatus string

const (
	StatusDraft     ScheduleStatus = "draft"
	StatusScheduled ScheduleStatus = "scheduled"
	StatusPublished ScheduleStatus = "published"
)

type Asset struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	Name        string         `json:"name"`
	Kind        AssetKind      `json:"kind"`
	URL         string         `json:"url"`
	Content     string         `json:"content,omitempty"`
	Embedding   []float32      `json:"-"`
	ScheduledAt *time.Time     `json:"scheduledAt"`
	Status      ScheduleStatus `json:"status"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// AssetMatch is one semantic search hit.
type AssetMatch struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Kind       AssetKind `json:"kind"`
	URL        string    `json:"url"`
	Similarity float64   `json:"similarity"`
}

type Profile struct {
	UserID       string    `json:"userId"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	Industry     string    `json:"industry"`
	Goals        string    `json:"goals"`
	WritingStyle string    `json:"writingStyle"`
	Languages    []string  `json:"languages"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type StagingStatus string

const (
	StagingActive   StagingStatus = "active"
	StagingAging    StagingStatus = "aging"
	StagingArchived StagingStatus = "archived"
)

type StagingItem struct {
	ID        string        `json:"id"`
	UserID    string        `json:"userId"`
	Title     string        `json:"title"`
	Content   string        `json:"content"`
	Category  *string       `json:"category"`
	Status    StagingStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

type VaultItem struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
}
