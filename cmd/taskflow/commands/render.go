package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/taskflow/core/internal/domain/entities"
	"github.com/taskflow/core/internal/ports"
)

func renderJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderView prints the visible list as a table followed by a summary
func renderView(w io.Writer, view ports.TaskView) error {
	if len(view.Tasks) == 0 {
		fmt.Fprintln(w, "No tasks")
		return nil
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tDONE\tPRIORITY\tCATEGORY\tDUE\tTASK")
	for _, t := range view.Tasks {
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\t%s\n",
			t.ID,
			checkbox(t.Completed),
			t.Priority,
			t.Category,
			dueDisplay(t, view.Today),
			t.Text,
		)
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%s, %d completed (%d%%)\n",
		plural(view.Counts.Visible, "task"),
		view.Counts.Completed,
		view.CompletionPercent,
	)
	return nil
}

func checkbox(done bool) string {
	if done {
		return "[x]"
	}
	return "[ ]"
}

func dueDisplay(t entities.Task, today entities.Date) string {
	switch t.DueStatus(today) {
	case entities.DueStatusNone:
		return "-"
	case entities.DueStatusOverdue:
		if t.Completed {
			return t.DueDate.String()
		}
		return t.DueDate.String() + " (overdue)"
	case entities.DueStatusToday:
		return "today"
	case entities.DueStatusTomorrow:
		return "tomorrow"
	default:
		return t.DueDate.String()
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
