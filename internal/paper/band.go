package paper

import "github.com/abhisek/papersmith/internal/bank"

// Accuracy thresholds for the starting difficulty band.
const (
	easyBelow   = 0.4
	mediumBelow = 0.7
)

// BandFor picks the starting band for a topic from MCQ accuracy: weak
// students start easy and escalate.
func BandFor(accuracy float64) bank.Difficulty {
	switch {
	case accuracy < easyBelow:
		return bank.DifficultyEasy
	case accuracy < mediumBelow:
		return bank.DifficultyMedium
	default:
		return bank.DifficultyHard
	}
}

// bandOrder is the start band, harder bands ascending, then easier bands
// descending.
func bandOrder(start bank.Difficulty) []bank.Difficulty {
	r := start.Rank()
	if r < 0 {
		r = 0
	}
	order := make([]bank.Difficulty, 0, len(bank.Bands))
	order = append(order, bank.Bands[r:]...)
	for i := r - 1; i >= 0; i-- {
		order = append(order, bank.Bands[i])
	}
	return order
}
