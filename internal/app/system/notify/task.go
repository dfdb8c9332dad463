package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/leadtrack/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FollowUpDescription is the first task of every follow-up cycle.
const FollowUpDescription = "Day 1 Follow-up"

// DefaultFollowUpDelay is how far out the first task is due.
const DefaultFollowUpDelay = 24 * time.Hour

// TaskCreator persists a task.
type TaskCreator interface {
	Create(ctx context.Context, t models.Task) (models.Task, error)
}

// StepSetter records a lead's follow-up cycle step.
type StepSetter interface {
	SetAFCStep(ctx context.Context, id primitive.ObjectID, step int) error
}

// TaskNotifier starts the follow-up cycle in-process: it creates the first
// interactive task and moves the lead to step 1.
type TaskNotifier struct {
	tasks TaskCreator
	leads StepSetter
	delay time.Duration
	now   func() time.Time
}

func NewTaskNotifier(tasks TaskCreator, leads StepSetter, delay time.Duration) *TaskNotifier {
	if delay <= 0 {
		delay = DefaultFollowUpDelay
	}
	return &TaskNotifier{tasks: tasks, leads: leads, delay: delay, now: time.Now}
}

func (n *TaskNotifier) OnLeadCreated(ctx context.Context, leadID primitive.ObjectID, name string) error {
	due := n.now().UTC().Add(n.delay)
	_, err := n.tasks.Create(ctx, models.Task{
		LeadID:      leadID,
		LeadName:    name,
		Description: FollowUpDescription,
		Nature:      models.TaskInteractive,
		DueDate:     &due,
	})
	if err != nil {
		return fmt.Errorf("create follow-up task: %w", err)
	}
	if err := n.leads.SetAFCStep(ctx, leadID, 1); err != nil {
		return fmt.Errorf("set follow-up step: %w", err)
	}
	return nil
}
