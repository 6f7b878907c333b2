package domain

import (
	"fmt"
	"time"
)

type UsageWindow struct {
	Label         string
	UsedPercent   float64
	WindowSeconds int64
	ResetsAt      time.Time
}

func (w UsageWindow) LeftPercent() float64 {
	left := 100 - w.UsedPercent
	switch {
	case left < 0:
		return 0
	case left > 100:
		return 100
	default:
		return left
	}
}

type Usage struct {
	PlanType   string
	Windows    []UsageWindow
	CapturedAt time.Time
}

func (u Usage) IsStale(now time.Time, maxAge time.Duration) bool {
	if u.CapturedAt.IsZero() {
		return true
	}

	if maxAge <= 0 {
		return false
	}

	return now.Sub(u.CapturedAt) > maxAge
}

func WindowLabel(seconds int64) string {
	switch {
	case seconds <= 0:
		return ""
	case seconds%86400 == 0:
		return fmt.Sprintf("%dd", seconds/86400)
	case seconds%3600 == 0:
		return fmt.Sprintf("%dh", seconds/3600)
	default:
		return fmt.Sprintf("%dm", (seconds+59)/60)
	}
}
