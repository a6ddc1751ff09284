package recurrence

import (
	"fmt"
	"testing"
	"time"

	"github.com/example/autoscaler-scheduler/internal/schedule"
)

func BenchmarkEngineMaterialize(b *testing.B) {
	engine := NewEngine()
	now := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

	p := schedule.Policy{AppID: "app-bench", Timezone: "UTC"}
	for i := 0; i < 20; i++ {
		p.Specific = append(p.Specific, schedule.SpecificSchedule{
			StartDateTime: fmt.Sprintf("2030-01-%02dT09:00", i+1),
			EndDateTime:   fmt.Sprintf("2030-01-%02dT10:00", i+1),
			Counts:        counts(),
		})
		p.Recurring = append(p.Recurring, schedule.RecurringSchedule{
			StartTime:  fmt.Sprintf("%02d:00", i),
			EndTime:    fmt.Sprintf("%02d:30", i),
			DaysOfWeek: []int{1, 2, 3, 4, 5},
			Counts:     counts(),
		})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		descriptors, err := engine.Materialize(p, "guid", now)
		if err != nil {
			b.Fatalf("unexpected error: %v", err)
		}
		if len(descriptors) != 80 {
			b.Fatalf("expected 80 descriptors, got %d", len(descriptors))
		}
	}
}
