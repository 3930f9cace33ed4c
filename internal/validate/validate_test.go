package validate

import (
	"testing"
	"time"

	"github.com/nhle/uptask/internal/model"
)

var fixedNow = time.Date(2026, 3, 14, 22, 30, 0, 0, time.UTC)

func TestIsPastOrPresentAt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		date time.Time
		want bool
	}{
		{"yesterday", fixedNow.AddDate(0, 0, -1), true},
		{"long ago", time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"today midnight", time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), true},
		{"today later", time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC), true},
		{"tomorrow", time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), false},
		{"next year", fixedNow.AddDate(1, 0, 0), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsPastOrPresentAt(tt.date, fixedNow); got != tt.want {
				t.Errorf("IsPastOrPresentAt(%s) = %v, want %v", tt.date, got, tt.want)
			}
		})
	}
}

func TestIsPastOrPresentUsesUTCCalendarDay(t *testing.T) {
	t.Parallel()

	// 01:00 on the 15th in UTC+3 is still the 14th in UTC.
	zone := time.FixedZone("UTC+3", 3*60*60)
	date := time.Date(2026, 3, 15, 1, 0, 0, 0, zone)
	if !IsPastOrPresentAt(date, fixedNow) {
		t.Fatalf("expected %s to count as today in UTC", date)
	}
}

func TestIsPastOrPresentAgainstClock(t *testing.T) {
	t.Parallel()

	if !IsPastOrPresent(time.Now()) {
		t.Error("today must be past-or-present")
	}
	if IsPastOrPresent(time.Now().AddDate(0, 0, 2)) {
		t.Error("the day after tomorrow must be in the future")
	}
}

func TestParseDeadline(t *testing.T) {
	t.Parallel()

	got, err := ParseDeadline("2026-04-01T00:00:00.000Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Format(model.DateLayout) != "2026-04-01" {
		t.Fatalf("unexpected date %s", got)
	}

	if _, err := ParseDeadline("01/04/2026"); !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func validTaskInput() model.TaskInput {
	return model.TaskInput{
		Name:        "Draft brief",
		Description: "write it",
		Deadline:    "2026-03-15",
		Priority:    model.PriorityMedium,
		Project:     "p1",
	}
}

func TestTaskInputRequiredFields(t *testing.T) {
	t.Parallel()

	blanks := map[string]func(*model.TaskInput){
		"name":        func(in *model.TaskInput) { in.Name = "" },
		"description": func(in *model.TaskInput) { in.Description = "   " },
		"deadline":    func(in *model.TaskInput) { in.Deadline = "" },
		"priority":    func(in *model.TaskInput) { in.Priority = "" },
	}

	for field, blank := range blanks {
		field, blank := field, blank
		t.Run(field, func(t *testing.T) {
			t.Parallel()
			in := validTaskInput()
			blank(&in)
			err := TaskInput(&in, fixedNow)
			if !IsValidationError(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if err.Error() != MsgRequired {
				t.Errorf("unexpected message %q", err.Error())
			}
		})
	}
}

func TestTaskInputDeadline(t *testing.T) {
	t.Parallel()

	in := validTaskInput()
	in.Deadline = "2026-03-14"
	err := TaskInput(&in, fixedNow)
	if err == nil || err.Error() != MsgDateNotFuture {
		t.Fatalf("expected %q, got %v", MsgDateNotFuture, err)
	}

	in = validTaskInput()
	if err := TaskInput(&in, fixedNow); err != nil {
		t.Fatalf("tomorrow should be accepted: %v", err)
	}
}

func TestTaskInputPriority(t *testing.T) {
	t.Parallel()

	in := validTaskInput()
	in.Priority = "urgent"
	err := TaskInput(&in, fixedNow)
	if err == nil || err.Error() != MsgInvalidPriority {
		t.Fatalf("expected %q, got %v", MsgInvalidPriority, err)
	}
}

func TestTaskInputTrims(t *testing.T) {
	t.Parallel()

	in := validTaskInput()
	in.Name = "  Draft brief  "
	in.Deadline = " 2026-03-20T10:00:00Z "
	if err := TaskInput(&in, fixedNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Name != "Draft brief" {
		t.Errorf("name not trimmed: %q", in.Name)
	}
	if in.Deadline != "2026-03-20" {
		t.Errorf("deadline not normalized: %q", in.Deadline)
	}
}

func TestProjectInput(t *testing.T) {
	t.Parallel()

	in := model.ProjectInput{Name: "Site", Description: "Rebuild", Deadline: "2026-01-01", Client: "ACME"}
	if err := ProjectInput(&in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in.Client = ""
	if err := ProjectInput(&in); err == nil || err.Error() != MsgRequired {
		t.Fatalf("expected required error, got %v", err)
	}
}

func TestEmailAndPassword(t *testing.T) {
	t.Parallel()

	if err := Email("ana@example.com"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := Email("not-an-email"); err == nil || err.Error() != MsgInvalidEmail {
		t.Errorf("expected invalid email, got %v", err)
	}
	if err := Password("abc", nil); err == nil || err.Error() != MsgPasswordShort {
		t.Errorf("expected short password, got %v", err)
	}
	other := "secret2"
	if err := Password("secret1", &other); err == nil || err.Error() != MsgPasswordMatch {
		t.Errorf("expected mismatch, got %v", err)
	}
}
