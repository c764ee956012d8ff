package scheduler

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCalendar_Today(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)

	tests := []struct {
		name string
		loc  *time.Location
		now  time.Time
		want time.Time
	}{
		{
			name: "utc",
			loc:  nil,
			now:  time.Date(2025, time.March, 10, 23, 30, 0, 0, time.UTC),
			want: time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "late utc evening is next day in library zone",
			loc:  tokyo,
			now:  time.Date(2025, time.March, 10, 16, 0, 0, 0, time.UTC),
			want: time.Date(2025, time.March, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "month rollover",
			loc:  tokyo,
			now:  time.Date(2025, time.March, 31, 15, 1, 0, 0, time.UTC),
			want: time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal := NewCalendar(tt.loc)
			if got := cal.Today(tt.now); !got.Equal(tt.want) {
				t.Fatalf("Today() = %v, want %v", got, tt.want)
			}
			if got := cal.Tomorrow(tt.now); !got.Equal(tt.want.AddDate(0, 0, 1)) {
				t.Fatalf("Tomorrow() = %v, want %v", got, tt.want.AddDate(0, 0, 1))
			}
		})
	}
}

func TestCalendar_DueDate(t *testing.T) {
	cal := NewCalendar(nil)
	borrowed := time.Date(2025, time.February, 25, 14, 0, 0, 0, time.UTC)
	want := time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC)
	if got := cal.DueDate(borrowed, 7); !got.Equal(want) {
		t.Fatalf("DueDate() = %v, want %v", got, want)
	}
}

func TestDaysOverdue(t *testing.T) {
	today := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		due  time.Time
		want int
	}{
		{"due today", today, 0},
		{"due tomorrow", today.AddDate(0, 0, 1), 0},
		{"one day late", today.AddDate(0, 0, -1), 1},
		{"three days late", today.AddDate(0, 0, -3), 3},
		{"partial day rounds up", today.Add(-30 * time.Hour), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysOverdue(tt.due, today); got != tt.want {
				t.Fatalf("DaysOverdue() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPenaltyPolicy(t *testing.T) {
	policy, err := NewPenaltyPolicy("0.50", "USD")
	if err != nil {
		t.Fatalf("NewPenaltyPolicy failed: %v", err)
	}

	if got := policy.Amount(3); !got.Equal(decimal.RequireFromString("1.50")) {
		t.Fatalf("Amount(3) = %s, want 1.50", got)
	}
	if got := policy.Amount(0); !got.IsZero() {
		t.Fatalf("Amount(0) = %s, want 0", got)
	}
	if got := policy.Format(policy.Amount(3)); got != "1.50 USD" {
		t.Fatalf("Format() = %q", got)
	}

	if _, err := NewPenaltyPolicy("abc", ""); err == nil {
		t.Fatal("expected error for invalid amount")
	}
	if _, err := NewPenaltyPolicy("-1", ""); err == nil {
		t.Fatal("expected error for negative amount")
	}
}
