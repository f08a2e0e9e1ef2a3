package timeline

import (
	"strings"
	"testing"
	"time"
)

var base = time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

func at(offset time.Duration) time.Time { return base.Add(offset) }

func TestSortEventsStable(t *testing.T) {
	events := []Event{
		{Timestamp: at(2 * time.Hour), Description: "third"},
		{Timestamp: at(time.Hour), Description: "first"},
		{Timestamp: at(time.Hour), Description: "second"},
		{Timestamp: at(0), Description: "creation"},
	}

	sortEvents(events)

	want := []string{"creation", "first", "second", "third"}
	for i, w := range want {
		if events[i].Description != w {
			t.Errorf("events[%d] = %q, want %q", i, events[i].Description, w)
		}
	}
}

func TestDetectViolations(t *testing.T) {
	deadline := at(ReviewSLA)

	t.Run("clean case", func(t *testing.T) {
		events := []Event{
			{Timestamp: at(0), Description: "created"},
			{Timestamp: at(24 * time.Hour), Description: "acknowledged"},
		}
		reviewed := at(24 * time.Hour)
		got := detectViolations(events, base, &reviewed, &deadline, at(48*time.Hour))
		if len(got) != 0 {
			t.Fatalf("got violations %v, want none", got)
		}
	})

	t.Run("sla breach when unreviewed past deadline", func(t *testing.T) {
		events := []Event{{Timestamp: at(0), Description: "created"}}
		got := detectViolations(events, base, nil, &deadline, deadline.Add(time.Second))
		if len(got) != 1 || got[0].Kind != ViolationSLABreach {
			t.Fatalf("got %v, want one %s", got, ViolationSLABreach)
		}
	})

	t.Run("no sla breach exactly at deadline", func(t *testing.T) {
		events := []Event{{Timestamp: at(0), Description: "created"}}
		got := detectViolations(events, base, nil, &deadline, deadline)
		if len(got) != 0 {
			t.Fatalf("got %v, want none", got)
		}
	})

	t.Run("nil deadline disables sla check", func(t *testing.T) {
		events := []Event{{Timestamp: at(0), Description: "created"}}
		got := detectViolations(events, base, nil, nil, at(30*24*time.Hour))
		if len(got) != 0 {
			t.Fatalf("got %v, want none", got)
		}
	})

	t.Run("gap over 48h flagged", func(t *testing.T) {
		reviewed := at(49 * time.Hour)
		events := []Event{
			{Timestamp: at(0), Description: "created"},
			{Timestamp: at(49 * time.Hour), Description: "decided"},
		}
		got := detectViolations(events, base, &reviewed, &deadline, at(50*time.Hour))
		if len(got) != 1 || got[0].Kind != ViolationEventGap {
			t.Fatalf("got %v, want one %s", got, ViolationEventGap)
		}
		if !strings.Contains(got[0].Detail, "49h") {
			t.Errorf("detail %q missing gap size", got[0].Detail)
		}
	})

	t.Run("gap of exactly 48h allowed", func(t *testing.T) {
		reviewed := at(48 * time.Hour)
		events := []Event{
			{Timestamp: at(0), Description: "created"},
			{Timestamp: at(48 * time.Hour), Description: "decided"},
		}
		got := detectViolations(events, base, &reviewed, &deadline, at(48*time.Hour))
		if len(got) != 0 {
			t.Fatalf("got %v, want none", got)
		}
	})

	t.Run("backdated event flagged", func(t *testing.T) {
		reviewed := at(time.Hour)
		events := []Event{
			{Timestamp: at(-time.Minute), Description: "suspicious"},
			{Timestamp: at(0), Description: "created"},
			{Timestamp: at(time.Hour), Description: "decided"},
		}
		got := detectViolations(events, base, &reviewed, &deadline, at(2*time.Hour))
		if len(got) != 1 || got[0].Kind != ViolationBackdated {
			t.Fatalf("got %v, want one %s", got, ViolationBackdated)
		}
	})

	t.Run("multiple violations reported together", func(t *testing.T) {
		events := []Event{
			{Timestamp: at(-time.Hour), Description: "suspicious"},
			{Timestamp: at(0), Description: "created"},
			{Timestamp: at(100 * time.Hour), Description: "late note"},
		}
		got := detectViolations(events, base, nil, &deadline, deadline.Add(time.Hour))
		kinds := map[string]int{}
		for _, v := range got {
			kinds[v.Kind]++
		}
		if kinds[ViolationSLABreach] != 1 || kinds[ViolationEventGap] != 1 || kinds[ViolationBackdated] != 1 {
			t.Fatalf("got %v, want one of each kind", got)
		}
	})
}

func TestClassifyAction(t *testing.T) {
	if got := classifyAction("warning_escalated"); got != EventStatusChange {
		t.Errorf("warning_escalated classified %q, want %q", got, EventStatusChange)
	}
	if got := classifyAction("warning_issued"); got != EventAudit {
		t.Errorf("warning_issued classified %q, want %q", got, EventAudit)
	}
}

func TestReviewDeadline(t *testing.T) {
	stored := at(3 * 24 * time.Hour)

	t.Run("appeal uses stored deadline", func(t *testing.T) {
		got := reviewDeadline(CaseAppeal, caseHeader{CreatedAt: base, DeadlineAt: &stored})
		if got == nil || !got.Equal(stored) {
			t.Fatalf("got %v, want %v", got, stored)
		}
	})

	t.Run("warning without stored deadline falls back to creation plus sla", func(t *testing.T) {
		got := reviewDeadline(CaseWarning, caseHeader{CreatedAt: base})
		if got == nil || !got.Equal(base.Add(ReviewSLA)) {
			t.Fatalf("got %v, want %v", got, base.Add(ReviewSLA))
		}
	})

	t.Run("restriction has none", func(t *testing.T) {
		if got := reviewDeadline(CaseRestriction, caseHeader{CreatedAt: base}); got != nil {
			t.Fatalf("got %v, want nil", got)
		}
	})
}
