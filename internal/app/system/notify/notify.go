// Package notify delivers the "new lead created" signal that starts a lead's
// follow-up cycle. Backends are independent; Multi fans out to several.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EventLeadCreated is the type tag of a LeadCreated event.
const EventLeadCreated = "lead.created"

// Notifier is told once about every newly committed lead.
type Notifier interface {
	OnLeadCreated(ctx context.Context, leadID primitive.ObjectID, name string) error
}

// LeadCreated is the wire payload published to queue backends.
type LeadCreated struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	LeadID     string    `json:"lead_id"`
	LeadName   string    `json:"lead_name"`
	OccurredAt time.Time `json:"occurred_at"`
}

func newLeadCreated(leadID primitive.ObjectID, name string, now time.Time) LeadCreated {
	return LeadCreated{
		ID:         uuid.NewString(),
		Type:       EventLeadCreated,
		LeadID:     leadID.Hex(),
		LeadName:   name,
		OccurredAt: now.UTC(),
	}
}

// Multi calls every notifier in order and joins their errors.
type Multi []Notifier

func (m Multi) OnLeadCreated(ctx context.Context, leadID primitive.ObjectID, name string) error {
	var errs []error
	for _, n := range m {
		if err := n.OnLeadCreated(ctx, leadID, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Backend names accepted by ParseBackends.
const (
	BackendTask  = "task"
	BackendRedis = "redis"
	BackendAMQP  = "amqp"
)

// ParseBackends splits a comma list of backend names, dropping blanks and
// duplicates. Unknown names are an error.
func ParseBackends(s string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" || seen[name] {
			continue
		}
		switch name {
		case BackendTask, BackendRedis, BackendAMQP:
		default:
			return nil, fmt.Errorf("unknown notify backend %q", name)
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, nil
}
