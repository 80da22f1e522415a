package services

import (
	"github.com/google/uuid"

	"github.com/taskflow/core/internal/infrastructure/clock"
	"github.com/taskflow/core/internal/ports"
)

// maxNotifications bounds the queue; the oldest entries are dropped first
const maxNotifications = 20

// Notification messages
const (
	msgLoadFailed      = "Failed to load tasks"
	msgTaskAdded       = "Task added successfully!"
	msgAddFailed       = "Failed to add task"
	msgTaskCompleted   = "Task completed! 🎉"
	msgTaskReopened    = "Task marked as incomplete"
	msgTaskUpdated     = "Task updated"
	msgUpdateFailed    = "Failed to update task"
	msgTaskDeleted     = "Task deleted"
	msgDeleteFailed    = "Failed to delete task"
	msgNothingToClear  = "No completed tasks to clear"
	msgClearFailed     = "Failed to clear completed tasks"
	msgReorderFailed   = "Failed to reorder tasks"
	msgLoadErrorDetail = "Failed to load tasks. Please try again."
)

type notifications struct {
	clock clock.Clock
	queue []ports.Notification
}

func (n *notifications) push(level ports.NotificationLevel, msg string) ports.Notification {
	note := ports.Notification{
		ID:        uuid.New(),
		Level:     level,
		Message:   msg,
		CreatedAt: n.clock.Now().UTC(),
	}
	n.queue = append(n.queue, note)
	if over := len(n.queue) - maxNotifications; over > 0 {
		n.queue = append([]ports.Notification(nil), n.queue[over:]...)
	}
	return note
}

func (n *notifications) success(msg string) { n.push(ports.NotificationSuccess, msg) }
func (n *notifications) info(msg string) { n.push(ports.NotificationInfo, msg) }
func (n *notifications) failure(msg string) { n.push(ports.NotificationError, msg) }

func (n *notifications) dismiss(id uuid.UUID) bool {
	for i, note := range n.queue {
		if note.ID == id {
			n.queue = append(n.queue[:i:i], n.queue[i+1:]...)
			return true
		}
	}
	return false
}

func (n *notifications) snapshot() []ports.Notification {
	out := make([]ports.Notification, len(n.queue))
	copy(out, n.queue)
	return out
}
