package views

import (
	"bytes"
	"strings"
	"testing"

	"todosync/backend"
)

func sampleTasks() []backend.Task {
	return []backend.Task{
		{ID: 1, Text: "Meet the professor", Category: "today", Priority: "high", DueDate: "2026-03-30", TimeSlot: "14:00", ReminderSet: true},
		{ID: 2, Text: "Dashboard project for school", Category: "upcoming", Priority: "medium"},
		{ID: 3, Text: "Meeting with Brian", Category: "today", Completed: true},
		{ID: 4, Text: "Go to the bank", Priority: "high"},
		{ID: 5, Text: "Buy milk"},
	}
}

func TestFilterByStatus(t *testing.T) {
	tasks := sampleTasks()

	if got := FilterByStatus(tasks, StatusAll); len(got) != 5 {
		t.Errorf("all: got %d tasks", len(got))
	}
	if got := FilterByStatus(tasks, StatusActive); len(got) != 4 {
		t.Errorf("active: got %d tasks", len(got))
	}
	got := FilterByStatus(tasks, StatusCompleted)
	if len(got) != 1 || got[0].ID != 3 {
		t.Errorf("completed: got %+v", got)
	}
}

func TestParseStatus(t *testing.T) {
	cases := map[string]Status{"": StatusAll, "ALL": StatusAll, "active": StatusActive, "done": StatusCompleted}
	for in, want := range cases {
		got, err := ParseStatus(in)
		if err != nil || got != want {
			t.Errorf("ParseStatus(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseStatus("someday"); err == nil {
		t.Error("expected error for unknown status")
	}
	if StatusCompleted.Next() != StatusAll {
		t.Error("Next should wrap to all")
	}
}

func TestSearchIsCaseInsensitive(t *testing.T) {
	tasks := sampleTasks()

	got := Search(tasks, "MEET")
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 3 {
		t.Errorf("Search(MEET) = %+v", got)
	}
	if got := Search(tasks, "  "); len(got) != len(tasks) {
		t.Errorf("blank query should match all, got %d", len(got))
	}
	if got := Search(tasks, "zebra"); len(got) != 0 {
		t.Errorf("expected no matches, got %d", len(got))
	}
}

func TestApplyFiltersThenSearches(t *testing.T) {
	got := Apply(sampleTasks(), Query{Status: StatusActive, Search: "meet"})
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("Apply = %+v", got)
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name      string
		completed []bool
		want      Summary
	}{
		{"empty", nil, Summary{}},
		{"two of three", []bool{true, false, true}, Summary{Total: 3, Completed: 2, Percent: 67}},
		{"one of three", []bool{true, false, false}, Summary{Total: 3, Completed: 1, Percent: 33}},
		{"all", []bool{true, true}, Summary{Total: 2, Completed: 2, Percent: 100}},
		{"half rounds up", []bool{true, false, false, false, false, false, false, false}, Summary{Total: 8, Completed: 1, Percent: 13}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tasks []backend.Task
			for i, c := range tt.completed {
				tasks = append(tasks, backend.Task{ID: int64(i + 1), Completed: c})
			}
			if got := Summarize(tasks); got != tt.want {
				t.Errorf("Summarize = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestGroupByCategory(t *testing.T) {
	groups := GroupByCategory(sampleTasks())

	var names []string
	for _, g := range groups {
		names = append(names, g.Name)
	}
	want := "today,upcoming,completed,priority,other"
	if strings.Join(names, ",") != want {
		t.Fatalf("group order = %v, want %s", names, want)
	}

	ids := func(g Group) []int64 { return backend.IDs(g.Tasks) }
	if got := ids(groups[0]); len(got) != 1 || got[0] != 1 {
		t.Errorf("today = %v (completed tasks belong in completed)", got)
	}
	if got := ids(groups[3]); len(got) != 1 || got[0] != 4 {
		t.Errorf("priority = %v", got)
	}
	if got := ids(groups[4]); len(got) != 1 || got[0] != 5 {
		t.Errorf("other = %v", got)
	}
}

func TestGroupByCategoryOmitsEmptyGroups(t *testing.T) {
	groups := GroupByCategory([]backend.Task{{ID: 1, Text: "a"}})
	if len(groups) != 1 || groups[0].Name != GroupOther {
		t.Errorf("groups = %+v", groups)
	}
}

func TestRenderKeepsCollectionPositions(t *testing.T) {
	tasks := sampleTasks()
	var buf bytes.Buffer

	Render(&buf, FilterByStatus(tasks, StatusCompleted), RenderOptions{Positions: Positions(tasks)})

	want := "  2. [DONE] Meeting with Brian {today}\n"
	if buf.String() != want {
		t.Errorf("Render = %q, want %q", buf.String(), want)
	}
}

func TestRenderOptionalFields(t *testing.T) {
	var buf bytes.Buffer
	Render(&buf, sampleTasks()[:1], RenderOptions{ShowIDs: true})

	want := "  0. [TODO] Meet the professor {today} [high] due 2026-03-30 14:00 (reminder) #1\n"
	if buf.String() != want {
		t.Errorf("Render = %q, want %q", buf.String(), want)
	}
}

func TestFormatSummary(t *testing.T) {
	if got := FormatSummary(Summary{Total: 3, Completed: 2, Percent: 67}); got != "2/3 completed (67%)" {
		t.Errorf("FormatSummary = %q", got)
	}
}
