package tasklist

import (
	"testing"
	"time"

	"github.com/nhle/uptask/internal/model"
)

func fixedNow() time.Time {
	return time.Date(2024, 5, 10, 23, 30, 0, 0, time.UTC)
}

func TestOverdue(t *testing.T) {
	d := TaskDelegate{Now: fixedNow}
	day := func(y int, m time.Month, dd int) time.Time { return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name string
		task model.Task
		want bool
	}{
		{"yesterday", model.Task{Deadline: day(2024, 5, 9)}, true},
		{"today", model.Task{Deadline: day(2024, 5, 10)}, false},
		{"tomorrow", model.Task{Deadline: day(2024, 5, 11)}, false},
		{"completed", model.Task{Deadline: day(2024, 5, 1), Completed: true}, false},
		{"no deadline", model.Task{}, false},
	}
	for _, tt := range tests {
		if got := d.overdue(tt.task); got != tt.want {
			t.Fatalf("%s: overdue = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestTaskItemDescription(t *testing.T) {
	item := TaskItem{Task: model.Task{
		Priority:  model.PriorityHigh,
		Deadline:  time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC),
		Completed: true,
	}}
	if got, want := item.Description(), "High | due 2024-05-12 | done"; got != want {
		t.Fatalf("Description() = %q, want %q", got, want)
	}
}
