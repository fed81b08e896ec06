// Package scoring turns raw batting and bowling statistics into the single
// utility value the optimizer maximizes.
package scoring

import "github.com/jstittsworth/cricket-optimizer/internal/models"

// Weights applied to each statistic. All are positive, which keeps Score
// monotonically non-decreasing in every input.
const (
	RunWeight        = 0.5
	WicketWeight     = 20.0
	StrikeRateWeight = 0.3
)

// Score computes a player's utility:
//
//	score = runs*0.5 + wickets*20 + strike_rate*0.3
//
// Integer inputs are converted before multiplying so nothing is truncated.
func Score(runs, wickets int, strikeRate float64) float64 {
	return float64(runs)*RunWeight + float64(wickets)*WicketWeight + strikeRate*StrikeRateWeight
}

// PlayerScore scores a single player record.
func PlayerScore(p models.Player) float64 {
	return Score(p.Runs, p.Wickets, p.StrikeRate)
}

// ScorePlayers returns a copy of players with Score populated. The input slice
// is left untouched.
func ScorePlayers(players []models.Player) []models.Player {
	scored := make([]models.Player, len(players))
	for i, p := range players {
		p.Score = PlayerScore(p)
		scored[i] = p
	}
	return scored
}
