package entities

import (
	"errors"
	"math"
	"strings"
	"time"
)

// Common errors
var (
	ErrEmptyText       = errors.New("task text cannot be empty")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidSortKey  = errors.New("invalid sort key")
	ErrInvalidSortDir  = errors.New("invalid sort direction")
	ErrInvalidReorder  = errors.New("reorder must be a permutation of the stored tasks")
	ErrCorruptStore    = errors.New("stored task collection is corrupt")
	ErrNotConfirmed    = errors.New("operation was not confirmed")
)

// Enums and types
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

type Category string

const (
	CategoryWork     Category = "Work"
	CategoryPersonal Category = "Personal"
	CategoryShopping Category = "Shopping"
	CategoryHealth   Category = "Health"

	// CategoryAll is the filter sentinel that matches every category.
	// It is never stored on a task.
	CategoryAll Category = "All"
)

// Categories lists the storable categories in display order.
var Categories = []Category{CategoryWork, CategoryPersonal, CategoryShopping, CategoryHealth}

// Defaults applied on creation when a field is omitted
const (
	DefaultPriority = PriorityMedium
	DefaultCategory = CategoryPersonal
)

// Task represents a single to-do item.
//
// JSON field names match the persisted layout and must not change:
// existing data files are keyed on them.
type Task struct {
	ID        int       `json:"Id"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	Priority  Priority  `json:"priority"`
	Category  Category  `json:"category"`
	CreatedAt time.Time `json:"createdAt"`
	DueDate   *Date     `json:"dueDate"`
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	return t
}

// DueStatus classifies the task's due date relative to today.
func (t *Task) DueStatus(today Date) DueStatus {
	if t.DueDate == nil {
		return DueStatusNone
	}
	switch days := t.DueDate.DaysSince(today); {
	case days < 0:
		return DueStatusOverdue
	case days == 0:
		return DueStatusToday
	case days == 1:
		return DueStatusTomorrow
	default:
		return DueStatusUpcoming
	}
}

// IsOverdue reports whether an open task is past its due date.
func (t *Task) IsOverdue(today Date) bool {
	return !t.Completed && t.DueStatus(today) == DueStatusOverdue
}

type DueStatus string

const (
	DueStatusNone     DueStatus = "none"
	DueStatusOverdue  DueStatus = "overdue"
	DueStatusToday    DueStatus = "today"
	DueStatusTomorrow DueStatus = "tomorrow"
	DueStatusUpcoming DueStatus = "upcoming"
)

// SortKey selects the comparator used to order the visible list.
type SortKey string

const (
	SortByDueDate      SortKey = "Due Date"
	SortByPriority     SortKey = "Priority"
	SortByDateAdded    SortKey = "Date Added"
	SortByAlphabetical SortKey = "Alphabetical"
)

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ViewState is the transient filter/sort/search selection. It is never
// persisted.
type ViewState struct {
	Category  Category      `json:"category"`
	Search    string        `json:"search"`
	SortBy    SortKey       `json:"sortBy"`
	Direction SortDirection `json:"direction"`
}

// DefaultViewState shows every category, newest first.
func DefaultViewState() ViewState {
	return ViewState{
		Category:  CategoryAll,
		SortBy:    SortByDateAdded,
		Direction: SortDesc,
	}
}

// Utility methods
func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Weight ranks priorities for sorting. Unknown values rank below Low.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

func (c Category) IsValid() bool {
	switch c {
	case CategoryWork, CategoryPersonal, CategoryShopping, CategoryHealth:
		return true
	default:
		return false
	}
}

// IsFilter reports whether c can be used as a category filter.
func (c Category) IsFilter() bool {
	return c == CategoryAll || c.IsValid()
}

func (k SortKey) IsValid() bool {
	switch k {
	case SortByDueDate, SortByPriority, SortByDateAdded, SortByAlphabetical:
		return true
	default:
		return false
	}
}

func (d SortDirection) IsValid() bool {
	return d == SortAsc || d == SortDesc
}

// Opposite flips the direction.
func (d SortDirection) Opposite() SortDirection {
	if d == SortAsc {
		return SortDesc
	}
	return SortAsc
}

// ParsePriority matches a priority name case-insensitively.
func ParsePriority(s string) (Priority, error) {
	for _, p := range []Priority{PriorityHigh, PriorityMedium, PriorityLow} {
		if strings.EqualFold(strings.TrimSpace(s), string(p)) {
			return p, nil
		}
	}
	return "", ErrInvalidPriority
}

// ParseCategory matches a category name case-insensitively, including
// the All sentinel.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, string(CategoryAll)) {
		return CategoryAll, nil
	}
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c, nil
		}
	}
	return "", ErrInvalidCategory
}

// ParseSortKey accepts the display names ("Due Date") as well as
// compact forms ("due-date", "duedate", "due_date").
func ParseSortKey(s string) (SortKey, error) {
	norm := strings.NewReplacer(" ", "", "-", "", "_", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch norm {
	case "duedate", "due":
		return SortByDueDate, nil
	case "priority":
		return SortByPriority, nil
	case "dateadded", "created", "createdat":
		return SortByDateAdded, nil
	case "alphabetical", "alpha", "text":
		return SortByAlphabetical, nil
	default:
		return "", ErrInvalidSortKey
	}
}

func ParseSortDirection(s string) (SortDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "ascending":
		return SortAsc, nil
	case "desc", "descending":
		return SortDesc, nil
	default:
		return "", ErrInvalidSortDir
	}
}

// NormalizeText trims surrounding whitespace and rejects empty text.
func NormalizeText(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyText
	}
	return s, nil
}

// TaskCounts summarises a view for badges and headers.
type TaskCounts struct {
	Visible    int              `json:"visible"`
	Completed  int              `json:"completed"`
	ByCategory map[Category]int `json:"byCategory"`
}

// CompletionPercent rounds completed/visible to the nearest whole percent.
func (c TaskCounts) CompletionPercent() int {
	if c.Visible == 0 {
		return 0
	}
	return int(math.Round(float64(c.Completed) * 100 / float64(c.Visible)))
}
