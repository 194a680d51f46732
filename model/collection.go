package model

import "time"

// Collection is a named partition of documents and their vectors. The name
// doubles as the Milvus collection name, so relational and vector partitions
// always address each other by the same string.
type Collection struct {
	ID          int64     `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
	Name        string    `gorm:"size:255;not null;uniqueIndex" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
}

func (Collection) TableName() string {
	return "collections"
}
