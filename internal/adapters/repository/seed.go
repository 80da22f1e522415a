package repository

import (
	"time"

	"github.com/taskflow/core/internal/domain/entities"
)

// SeedTasks returns the demo collection written on first run: one task
// due tomorrow, one due today and one completed task that is overdue.
func SeedTasks(now time.Time) []entities.Task {
	today := entities.DateOf(now)
	tomorrow := today.AddDays(1)
	yesterday := today.AddDays(-1)
	createdAt := now.UTC()

	return []entities.Task{
		{
			ID:        1,
			Text:      "Complete project presentation",
			Completed: false,
			Priority:  entities.PriorityHigh,
			Category:  entities.CategoryWork,
			CreatedAt: createdAt,
			DueDate:   &tomorrow,
		},
		{
			ID:        2,
			Text:      "Review team feedback",
			Completed: false,
			Priority:  entities.PriorityMedium,
			Category:  entities.CategoryWork,
			CreatedAt: createdAt,
			DueDate:   &today,
		},
		{
			ID:        3,
			Text:      "Update project documentation",
			Completed: true,
			Priority:  entities.PriorityLow,
			Category:  entities.CategoryWork,
			CreatedAt: createdAt,
			DueDate:   &yesterday,
		},
	}
}
