package entities

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateJSON(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2024-02-29"`, string(data))

	var back Date
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, d, back)

	// full timestamps written by older clients keep only the day
	require.NoError(t, json.Unmarshal([]byte(`"2024-03-01T00:00:00.000Z"`), &back))
	assert.Equal(t, "2024-03-01", back.String())

	require.NoError(t, json.Unmarshal([]byte(`""`), &back))
	assert.True(t, back.IsZero())
	assert.False(t, d.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`"03/01/2024"`), &back))
	assert.Error(t, json.Unmarshal([]byte(`20240301`), &back))
}

func TestDateArithmetic(t *testing.T) {
	d := Date{Year: 2024, Month: time.December, Day: 31}

	assert.Equal(t, "2025-01-01", d.AddDays(1).String())
	assert.Equal(t, "2024-12-30", d.AddDays(-1).String())
	assert.Equal(t, 1, d.AddDays(1).DaysSince(d))
	assert.Equal(t, -366, Date{Year: 2023, Month: time.December, Day: 31}.DaysSince(d))
	assert.Equal(t, 0, d.Compare(d))
	assert.Equal(t, -1, d.Compare(d.AddDays(1)))
}

func TestDueStatus(t *testing.T) {
	today := Date{Year: 2024, Month: time.May, Day: 10}
	due := func(days int) *Date {
		d := today.AddDays(days)
		return &d
	}

	tests := []struct {
		name      string
		task      Task
		want      DueStatus
		isOverdue bool
	}{
		{"no due date", Task{}, DueStatusNone, false},
		{"yesterday", Task{DueDate: due(-1)}, DueStatusOverdue, true},
		{"yesterday but done", Task{DueDate: due(-1), Completed: true}, DueStatusOverdue, false},
		{"today", Task{DueDate: due(0)}, DueStatusToday, false},
		{"tomorrow", Task{DueDate: due(1)}, DueStatusTomorrow, false},
		{"next week", Task{DueDate: due(7)}, DueStatusUpcoming, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.task.DueStatus(today))
			assert.Equal(t, tt.isOverdue, tt.task.IsOverdue(today))
		})
	}
}

func TestCloneCopiesDueDate(t *testing.T) {
	d := Date{Year: 2024, Month: time.May, Day: 10}
	orig := Task{ID: 1, DueDate: &d}

	c := orig.Clone()
	c.DueDate.Day = 20
	assert.Equal(t, 10, orig.DueDate.Day)
}

func TestParsers(t *testing.T) {
	p, err := ParsePriority(" high ")
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, p)
	_, err = ParsePriority("urgent")
	assert.ErrorIs(t, err, ErrInvalidPriority)

	c, err := ParseCategory("all")
	require.NoError(t, err)
	assert.Equal(t, CategoryAll, c)
	assert.False(t, c.IsValid())
	assert.True(t, c.IsFilter())
	_, err = ParseCategory("Errands")
	assert.ErrorIs(t, err, ErrInvalidCategory)

	for _, in := range []string{"Due Date", "due-date", "due_date", "DUEDATE"} {
		k, err := ParseSortKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, SortByDueDate, k)
	}
	_, err = ParseSortKey("size")
	assert.ErrorIs(t, err, ErrInvalidSortKey)

	dir, err := ParseSortDirection("Descending")
	require.NoError(t, err)
	assert.Equal(t, SortDesc, dir)
	assert.Equal(t, SortAsc, dir.Opposite())
	_, err = ParseSortDirection("up")
	assert.ErrorIs(t, err, ErrInvalidSortDir)
}

func TestNormalizeText(t *testing.T) {
	got, err := NormalizeText("  Call mom \n")
	require.NoError(t, err)
	assert.Equal(t, "Call mom", got)

	_, err = NormalizeText(" \t ")
	assert.ErrorIs(t, err, ErrEmptyText)

	long := strings.Repeat("é", 2000)
	got, err = NormalizeText(" " + long + " ")
	require.NoError(t, err)
	assert.Equal(t, long, got)
}

func TestCompletionPercent(t *testing.T) {
	assert.Equal(t, 0, TaskCounts{}.CompletionPercent())
	assert.Equal(t, 33, TaskCounts{Visible: 3, Completed: 1}.CompletionPercent())
	assert.Equal(t, 67, TaskCounts{Visible: 3, Completed: 2}.CompletionPercent())
	assert.Equal(t, 100, TaskCounts{Visible: 2, Completed: 2}.CompletionPercent())
}

func TestTaskJSONFieldNames(t *testing.T) {
	task := Task{ID: 7, Text: "x", Priority: PriorityLow, Category: CategoryHealth}
	data, err := json.Marshal(task)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"Id", "text", "completed", "priority", "category", "createdAt", "dueDate"} {
		assert.Contains(t, raw, key)
	}
	assert.Nil(t, raw["dueDate"])
}
