package calls

import "testing"

func TestCanTransition_ForwardOnly(t *testing.T) {
	for _, to := range []Status{StatusCompleted, StatusMissed, StatusVoicemail} {
		if !CanTransition(StatusInProgress, to) {
			t.Fatalf("expected in_progress -> %s", to)
		}
		for _, next := range []Status{StatusInProgress, StatusCompleted, StatusMissed, StatusVoicemail} {
			if CanTransition(to, next) {
				t.Fatalf("terminal %s must not move to %s", to, next)
			}
		}
	}
	if CanTransition(StatusInProgress, StatusInProgress) {
		t.Fatalf("in_progress -> in_progress is not a transition")
	}
}

func TestProviderTerminalStatus(t *testing.T) {
	cases := map[string]Status{
		"completed": StatusCompleted,
		"busy":      StatusMissed,
		"no-answer": StatusMissed,
		"canceled":  StatusMissed,
		"failed":    StatusMissed,
	}
	for in, want := range cases {
		got, ok := ProviderTerminalStatus(in)
		if !ok || got != want {
			t.Fatalf("%s: expected %s, got %s (%v)", in, want, got, ok)
		}
	}
	for _, in := range []string{"ringing", "in-progress", "queued", ""} {
		if _, ok := ProviderTerminalStatus(in); ok {
			t.Fatalf("%q must not be terminal", in)
		}
	}
}
