package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow/core/internal/domain/entities"
)

var base = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func date(s string) *entities.Date {
	d, err := entities.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func task(id int, text string, p entities.Priority, c entities.Category, due *entities.Date) entities.Task {
	return entities.Task{
		ID:        id,
		Text:      text,
		Priority:  p,
		Category:  c,
		CreatedAt: base.Add(time.Duration(id) * time.Minute),
		DueDate:   due,
	}
}

func seedTasks() []entities.Task {
	done := task(3, "Update project documentation", entities.PriorityLow, entities.CategoryWork, date("2024-05-09"))
	done.Completed = true
	return []entities.Task{
		task(1, "Complete project presentation", entities.PriorityHigh, entities.CategoryWork, date("2024-05-11")),
		task(2, "Review team feedback", entities.PriorityMedium, entities.CategoryWork, date("2024-05-10")),
		done,
	}
}

func mixedTasks() []entities.Task {
	return []entities.Task{
		task(1, "buy Milk", entities.PriorityMedium, entities.CategoryShopping, nil),
		task(2, "Gym session", entities.PriorityHigh, entities.CategoryHealth, date("2024-05-12")),
		task(3, "Call mom", entities.PriorityMedium, entities.CategoryPersonal, date("2024-05-11")),
		task(4, "Milk the deadline", entities.PriorityLow, entities.CategoryWork, nil),
		task(5, "apples", "", entities.CategoryShopping, date("2024-05-11")),
		task(6, "Dentist", entities.PriorityHigh, entities.CategoryHealth, nil),
	}
}

func ids(tasks []entities.Task) []int {
	out := make([]int, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestFilterBySearch(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []int
	}{
		{"empty is identity", "", []int{1, 2, 3, 4, 5, 6}},
		{"whitespace is identity", "   ", []int{1, 2, 3, 4, 5, 6}},
		{"case insensitive", "MILK", []int{1, 4}},
		{"substring", "ent", []int{6}},
		{"no match", "zebra", []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(FilterBySearch(mixedTasks(), tt.query)))
		})
	}
}

func TestFilterBySearchFoldsUnicode(t *testing.T) {
	tasks := []entities.Task{
		task(1, "Straße kehren", entities.PriorityLow, entities.CategoryPersonal, nil),
		task(2, "ÉCOLE meeting", entities.PriorityLow, entities.CategoryWork, nil),
	}

	assert.Equal(t, []int{1}, ids(FilterBySearch(tasks, "STRASSE")))
	assert.Equal(t, []int{2}, ids(FilterBySearch(tasks, "école")))
}

func TestFilterByCategoryPartitions(t *testing.T) {
	tasks := mixedTasks()

	assert.Equal(t, ids(tasks), ids(FilterByCategory(tasks, entities.CategoryAll)))

	for _, c := range entities.Categories {
		t.Run(string(c), func(t *testing.T) {
			in := FilterByCategory(tasks, c)
			for _, task := range in {
				assert.Equal(t, c, task.Category)
			}

			complement := 0
			for _, task := range tasks {
				if task.Category != c {
					complement++
				}
			}
			assert.Equal(t, len(tasks), len(in)+complement)
		})
	}
}

func TestSort(t *testing.T) {
	tests := []struct {
		name string
		key  entities.SortKey
		dir  entities.SortDirection
		want []int
	}{
		{"due date asc", entities.SortByDueDate, entities.SortAsc, []int{3, 5, 2, 1, 4, 6}},
		{"due date desc", entities.SortByDueDate, entities.SortDesc, []int{1, 4, 6, 2, 3, 5}},
		{"priority asc", entities.SortByPriority, entities.SortAsc, []int{5, 4, 1, 3, 2, 6}},
		{"priority desc", entities.SortByPriority, entities.SortDesc, []int{2, 6, 1, 3, 4, 5}},
		{"date added asc", entities.SortByDateAdded, entities.SortAsc, []int{1, 2, 3, 4, 5, 6}},
		{"date added desc", entities.SortByDateAdded, entities.SortDesc, []int{6, 5, 4, 3, 2, 1}},
		{"alphabetical asc", entities.SortByAlphabetical, entities.SortAsc, []int{5, 1, 3, 6, 2, 4}},
		{"alphabetical desc", entities.SortByAlphabetical, entities.SortDesc, []int{4, 2, 6, 3, 1, 5}},
		{"unknown key keeps order", entities.SortKey("Colour"), entities.SortAsc, []int{1, 2, 3, 4, 5, 6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Sort(mixedTasks(), tt.key, tt.dir)))
		})
	}
}

func TestSortIsStable(t *testing.T) {
	// Every task shares the same key value, so any reordering is a
	// stability violation.
	same := func() []entities.Task {
		tasks := make([]entities.Task, 5)
		for i := range tasks {
			tasks[i] = entities.Task{
				ID:        i + 1,
				Text:      "Same text",
				Priority:  entities.PriorityMedium,
				Category:  entities.CategoryWork,
				CreatedAt: base,
				DueDate:   date("2024-05-11"),
			}
		}
		// Mixed case must compare equal alphabetically
		tasks[2].Text = "SAME TEXT"
		return tasks
	}

	keys := []entities.SortKey{entities.SortByDueDate, entities.SortByPriority, entities.SortByDateAdded, entities.SortByAlphabetical}
	for _, key := range keys {
		for _, dir := range []entities.SortDirection{entities.SortAsc, entities.SortDesc} {
			t.Run(string(key)+"/"+string(dir), func(t *testing.T) {
				assert.Equal(t, []int{1, 2, 3, 4, 5}, ids(Sort(same(), key, dir)))
			})
		}
	}
}

func TestSortDueDateTotality(t *testing.T) {
	tasks := mixedTasks()

	asc := Sort(tasks, entities.SortByDueDate, entities.SortAsc)
	seenUndated := false
	for _, task := range asc {
		if task.DueDate == nil {
			seenUndated = true
			continue
		}
		assert.False(t, seenUndated, "dated task %d after an undated one", task.ID)
	}

	desc := Sort(tasks, entities.SortByDueDate, entities.SortDesc)
	seenDated := false
	for _, task := range desc {
		if task.DueDate != nil {
			seenDated = true
			continue
		}
		assert.False(t, seenDated, "undated task %d after a dated one", task.ID)
	}
}

func TestSortDoesNotMutateInput(t *testing.T) {
	tasks := mixedTasks()
	before := ids(tasks)

	sorted := Sort(tasks, entities.SortByPriority, entities.SortDesc)
	sorted[0].Text = "changed"

	assert.Equal(t, before, ids(tasks))
	assert.Equal(t, "buy Milk", tasks[0].Text)
}

func TestApplySeedScenario(t *testing.T) {
	vs := entities.ViewState{
		Category:  entities.CategoryWork,
		SortBy:    entities.SortByPriority,
		Direction: entities.SortDesc,
	}

	assert.Equal(t, []int{1, 2, 3}, ids(Apply(seedTasks(), vs)))
}

func TestApplyComposesFilters(t *testing.T) {
	vs := entities.ViewState{
		Category:  entities.CategoryShopping,
		Search:    "milk",
		SortBy:    entities.SortByDateAdded,
		Direction: entities.SortDesc,
	}

	assert.Equal(t, []int{1}, ids(Apply(mixedTasks(), vs)))

	vs.Category = entities.CategoryAll
	assert.Equal(t, []int{4, 1}, ids(Apply(mixedTasks(), vs)))
}

func TestApplyDefaultView(t *testing.T) {
	got := Apply(seedTasks(), entities.DefaultViewState())
	assert.Equal(t, []int{3, 2, 1}, ids(got))
}

func TestCounts(t *testing.T) {
	tasks := mixedTasks()
	tasks[0].Completed = true
	tasks[4].Completed = true

	t.Run("no search", func(t *testing.T) {
		vs := entities.DefaultViewState()
		vs.Category = entities.CategoryShopping
		counts := Counts(tasks, vs)

		assert.Equal(t, 2, counts.Visible)
		assert.Equal(t, 2, counts.Completed)
		assert.Equal(t, 100, counts.CompletionPercent())
		assert.Equal(t, map[entities.Category]int{
			entities.CategoryAll:      6,
			entities.CategoryWork:     1,
			entities.CategoryPersonal: 1,
			entities.CategoryShopping: 2,
			entities.CategoryHealth:   2,
		}, counts.ByCategory)
	})

	t.Run("badges follow search", func(t *testing.T) {
		vs := entities.DefaultViewState()
		vs.Search = "milk"
		counts := Counts(tasks, vs)

		assert.Equal(t, 2, counts.Visible)
		assert.Equal(t, 1, counts.Completed)
		assert.Equal(t, 50, counts.CompletionPercent())
		assert.Equal(t, 2, counts.ByCategory[entities.CategoryAll])
		assert.Equal(t, 1, counts.ByCategory[entities.CategoryShopping])
		assert.Equal(t, 1, counts.ByCategory[entities.CategoryWork])
		assert.Equal(t, 0, counts.ByCategory[entities.CategoryHealth])
	})

	t.Run("empty", func(t *testing.T) {
		counts := Counts(nil, entities.DefaultViewState())
		assert.Zero(t, counts.Visible)
		assert.Zero(t, counts.CompletionPercent())
		require.Contains(t, counts.ByCategory, entities.CategoryAll)
	})
}

func TestPartition(t *testing.T) {
	active, completed := Partition(seedTasks())
	assert.Equal(t, []int{1, 2}, ids(active))
	assert.Equal(t, []int{3}, ids(completed))
}
