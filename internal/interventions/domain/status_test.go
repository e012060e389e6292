package domain

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"new to assigned", StatusNew, StatusAssigned, true},
		{"new to cancelled", StatusNew, StatusCancelled, true},
		{"new to on_route skips assignment", StatusNew, StatusOnRoute, false},
		{"new to completed", StatusNew, StatusCompleted, false},
		{"assigned to on_route", StatusAssigned, StatusOnRoute, true},
		{"assigned to cancelled", StatusAssigned, StatusCancelled, true},
		{"assigned to in_progress skips travel", StatusAssigned, StatusInProgress, false},
		{"on_route to in_progress", StatusOnRoute, StatusInProgress, true},
		{"on_route to cancelled", StatusOnRoute, StatusCancelled, true},
		{"in_progress to completed", StatusInProgress, StatusCompleted, true},
		{"in_progress cannot cancel", StatusInProgress, StatusCancelled, false},
		{"completed is terminal", StatusCompleted, StatusNew, false},
		{"cancelled is terminal", StatusCancelled, StatusAssigned, false},
		{"no backward edge", StatusOnRoute, StatusAssigned, false},
		{"unknown status", Status("unknown"), StatusAssigned, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanTransition(tc.from, tc.to); got != tc.want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestStatusRequiresTechnician(t *testing.T) {
	withTech := []Status{StatusAssigned, StatusOnRoute, StatusInProgress, StatusCompleted}
	withoutTech := []Status{StatusNew, StatusCancelled}

	for _, s := range withTech {
		if !s.RequiresTechnician() {
			t.Errorf("status %s should require a technician", s)
		}
	}
	for _, s := range withoutTech {
		if s.RequiresTechnician() {
			t.Errorf("status %s should not require a technician", s)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if !StatusCompleted.Terminal() || !StatusCancelled.Terminal() {
		t.Fatal("completed and cancelled must be terminal")
	}
	for _, s := range []Status{StatusNew, StatusAssigned, StatusOnRoute, StatusInProgress} {
		if s.Terminal() {
			t.Errorf("status %s must not be terminal", s)
		}
	}
}

func TestNewTrackingCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := NewTrackingCode()
		if len(code) != 13 {
			t.Fatalf("unexpected tracking code length: %q", code)
		}
		if code[:3] != "FS-" {
			t.Fatalf("unexpected tracking code prefix: %q", code)
		}
		if seen[code] {
			t.Fatalf("duplicate tracking code generated: %q", code)
		}
		seen[code] = true
	}
}
