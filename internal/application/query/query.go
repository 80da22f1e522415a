// Package query derives the visible task list from a collection and a
// view state. Every function is pure: inputs are never modified and the
// returned slices hold copies.
package query

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/taskflow/core/internal/domain/entities"
)

// FilterBySearch keeps tasks whose text contains q, ignoring case.
// A blank query keeps everything.
func FilterBySearch(tasks []entities.Task, q string) []entities.Task {
	q = strings.TrimSpace(q)
	if q == "" {
		return cloneTasks(tasks)
	}

	fold := cases.Fold()
	needle := fold.String(q)

	out := make([]entities.Task, 0, len(tasks))
	for _, t := range tasks {
		if strings.Contains(fold.String(t.Text), needle) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// FilterByCategory keeps tasks in category c. CategoryAll keeps everything.
func FilterByCategory(tasks []entities.Task, c entities.Category) []entities.Task {
	if c == entities.CategoryAll || c == "" {
		return cloneTasks(tasks)
	}

	out := make([]entities.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Category == c {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Sort returns tasks ordered by key in the given direction. The sort is
// stable, so tasks that compare equal keep their input order. Tasks
// without a due date sort after all dated tasks ascending and before
// them descending. An unrecognised key leaves the order unchanged.
func Sort(tasks []entities.Task, key entities.SortKey, dir entities.SortDirection) []entities.Task {
	out := cloneTasks(tasks)

	var cmp func(a, b entities.Task) int
	switch key {
	case entities.SortByDueDate:
		cmp = compareDueDate
	case entities.SortByPriority:
		cmp = func(a, b entities.Task) int {
			return a.Priority.Weight() - b.Priority.Weight()
		}
	case entities.SortByDateAdded:
		cmp = func(a, b entities.Task) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	case entities.SortByAlphabetical:
		// Collators keep internal buffers and are not safe to share
		coll := collate.New(language.Und, collate.IgnoreCase)
		if dir == entities.SortDesc {
			cmp = func(a, b entities.Task) int { return coll.CompareString(b.Text, a.Text) }
		} else {
			cmp = func(a, b entities.Task) int { return coll.CompareString(a.Text, b.Text) }
		}
		slices.SortStableFunc(out, cmp)
		return out
	default:
		return out
	}

	if dir == entities.SortDesc {
		asc := cmp
		cmp = func(a, b entities.Task) int { return asc(b, a) }
	}
	slices.SortStableFunc(out, cmp)
	return out
}

func compareDueDate(a, b entities.Task) int {
	switch {
	case a.DueDate == nil && b.DueDate == nil:
		return 0
	case a.DueDate == nil:
		return 1
	case b.DueDate == nil:
		return -1
	default:
		return a.DueDate.Compare(*b.DueDate)
	}
}

// Apply filters by search, then by category, then sorts.
func Apply(tasks []entities.Task, vs entities.ViewState) []entities.Task {
	visible := FilterBySearch(tasks, vs.Search)
	visible = FilterByCategory(visible, vs.Category)
	return Sort(visible, vs.SortBy, vs.Direction)
}

// Counts reports the size of the visible list, how many of those are
// completed, and per-category badges. Badges are computed over the
// search-filtered set before category filtering, so each badge shows
// how many tasks selecting that category would display. The CategoryAll
// badge is the size of that set.
func Counts(tasks []entities.Task, vs entities.ViewState) entities.TaskCounts {
	searched := FilterBySearch(tasks, vs.Search)

	byCategory := make(map[entities.Category]int, len(entities.Categories)+1)
	byCategory[entities.CategoryAll] = len(searched)
	for _, c := range entities.Categories {
		byCategory[c] = 0
	}
	for _, t := range searched {
		byCategory[t.Category]++
	}

	visible := FilterByCategory(searched, vs.Category)
	completed := 0
	for _, t := range visible {
		if t.Completed {
			completed++
		}
	}

	return entities.TaskCounts{
		Visible:    len(visible),
		Completed:  completed,
		ByCategory: byCategory,
	}
}

// Partition splits tasks into open and completed lists, keeping order.
func Partition(tasks []entities.Task) (active, completed []entities.Task) {
	active = make([]entities.Task, 0, len(tasks))
	completed = make([]entities.Task, 0)
	for _, t := range tasks {
		if t.Completed {
			completed = append(completed, t.Clone())
		} else {
			active = append(active, t.Clone())
		}
	}
	return active, completed
}

func cloneTasks(tasks []entities.Task) []entities.Task {
	out := make([]entities.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
