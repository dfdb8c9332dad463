// internal/domain/models/task.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Task natures.
const (
	TaskInteractive = "Interactive"
	TaskProcedural  = "Procedural"
)

// Task is a follow-up action item for a lead.
// LeadID is a lookup reference only; merges relink it to the surviving lead.
type Task struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	LeadID      primitive.ObjectID `bson:"lead_id" json:"lead_id"`
	LeadName    string             `bson:"lead_name" json:"lead_name"`
	Description string             `bson:"description" json:"description"`
	Nature      string             `bson:"nature,omitempty" json:"nature,omitempty"`
	Completed   bool               `bson:"completed" json:"completed"`
	DueDate     *time.Time         `bson:"due_date,omitempty" json:"due_date,omitempty"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}
