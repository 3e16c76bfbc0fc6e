package app

import (
	"math"
	"time"
)

const (
	// BasePoints is awarded for every correct answer.
	BasePoints = 1000
	// SpeedBonusPerSecond is awarded per second left in the answer window.
	SpeedBonusPerSecond = 50
)

// Score returns the points for an answer given the seconds elapsed since the question opened.
// Late correct answers keep the base points; the bonus never goes negative.
func Score(correct bool, elapsedSeconds float64, window time.Duration) int {
	if !correct {
		return 0
	}
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}
	bonus := max(0, (window.Seconds()-elapsedSeconds)*SpeedBonusPerSecond)
	return int(math.Round(BasePoints + bonus))
}

// ElapsedSeconds measures answer time on the server. The client-reported value is only
// used when the room carries no question start timestamp.
func ElapsedSeconds(questionStartedAt *time.Time, now time.Time, clientElapsed float64) float64 {
	if questionStartedAt == nil {
		return max(0, clientElapsed)
	}
	return max(0, now.Sub(*questionStartedAt).Seconds())
}
