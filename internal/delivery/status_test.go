package delivery

import "testing"

func TestStatusValid(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, true},
		{StatusProcessing, true},
		{StatusSuccess, true},
		{StatusFailed, true},
		{Status("queued"), false},
		{Status(""), false},
	}
	for _, tt := range tests {
		if got := tt.status.Valid(); got != tt.want {
			t.Errorf("Status(%q).Valid() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusProcessing, false},
		{StatusSuccess, true},
		{StatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("Status(%q).Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestStatusCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"pending to processing", StatusPending, StatusProcessing, true},
		{"processing to success", StatusProcessing, StatusSuccess, true},
		{"processing to failed", StatusProcessing, StatusFailed, true},
		{"pending straight to success", StatusPending, StatusSuccess, false},
		{"pending straight to failed", StatusPending, StatusFailed, false},
		{"success regressing to processing", StatusSuccess, StatusProcessing, false},
		{"failed regressing to pending", StatusFailed, StatusPending, false},
		{"success flipping to failed", StatusSuccess, StatusFailed, false},
		{"failed flipping to success", StatusFailed, StatusSuccess, false},
		{"processing re-applied", StatusProcessing, StatusProcessing, true},
		{"success re-applied", StatusSuccess, StatusSuccess, true},
		{"failed re-applied", StatusFailed, StatusFailed, true},
		{"pending re-applied", StatusPending, StatusPending, false},
		{"unknown source", Status("queued"), StatusProcessing, false},
		{"unknown target", StatusPending, Status("dead"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%q -> %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}
