package app

import (
	"testing"
	"time"
)

func TestNewOperation(t *testing.T) {
	tests := []struct {
		name    string
		opName  string
		started time.Time
		wantID  string
	}{
		{
			name:    "utc start",
			opName:  "serve",
			started: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
			wantID:  "20240115T103000Z",
		},
		{
			name:    "local start is normalized",
			opName:  "reconcile",
			started: time.Date(2024, 1, 15, 19, 30, 5, 0, time.FixedZone("JST", 9*60*60)),
			wantID:  "20240115T103005Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation(tt.opName, tt.started)

			if op.Name != tt.opName {
				t.Errorf("Name = %q, want %q", op.Name, tt.opName)
			}
			if op.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", op.ID, tt.wantID)
			}
			if !op.StartedAt.Equal(tt.started) {
				t.Errorf("StartedAt = %v, want %v", op.StartedAt, tt.started)
			}
		})
	}
}

func TestOperation_Elapsed(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	op := NewOperation("serve", start)

	got := op.Elapsed(start.Add(1500*time.Millisecond + 300*time.Microsecond))
	if got != 1500*time.Millisecond {
		t.Errorf("Elapsed() = %v, want %v", got, 1500*time.Millisecond)
	}
}
