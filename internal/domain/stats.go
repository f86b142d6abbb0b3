package domain

import (
	"math"
	"time"
)

// ResultType is the per-user delta produced by a completed bet.
type ResultType string

const (
	ResultWin  ResultType = "win"
	ResultLoss ResultType = "loss"
	ResultDraw ResultType = "draw"
)

// UserStats is a per-user betting aggregate. CurrentStreak is signed: a
// positive value is a run of consecutive wins, a negative value a run of
// consecutive losses, and a draw resets it to zero. LongestStreak is the
// largest absolute streak ever reached. Version supports optimistic
// concurrency in the store.
type UserStats struct {
	UserID        string    `json:"userId"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	Draws         int       `json:"draws"`
	CurrentStreak int       `json:"currentStreak"`
	LongestStreak int       `json:"longestStreak"`
	TotalBets     int       `json:"totalBets"`
	WinRate       float64   `json:"winRate"`
	Version       int64     `json:"-"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Apply folds one result into the aggregate: counter bump, streak extension
// or reset, then the derived longest-streak, total and win-rate fields.
func (s *UserStats) Apply(result ResultType) {
	switch result {
	case ResultWin:
		s.Wins++
		if s.CurrentStreak > 0 {
			s.CurrentStreak++
		} else {
			s.CurrentStreak = 1
		}
	case ResultLoss:
		s.Losses++
		if s.CurrentStreak < 0 {
			s.CurrentStreak--
		} else {
			s.CurrentStreak = -1
		}
	case ResultDraw:
		s.Draws++
		s.CurrentStreak = 0
	default:
		return
	}

	if abs := absInt(s.CurrentStreak); abs > s.LongestStreak {
		s.LongestStreak = abs
	}
	s.TotalBets = s.Wins + s.Losses + s.Draws
	if s.TotalBets > 0 {
		s.WinRate = round2(100 * float64(s.Wins) / float64(s.TotalBets))
	} else {
		s.WinRate = 0
	}
}

// OutcomeResults maps a bet outcome to the creator's and opponent's result
// deltas. ok is false for voided outcomes, which apply no deltas at all.
func OutcomeResults(outcome BetOutcome) (creator, opponent ResultType, ok bool) {
	switch outcome {
	case OutcomeWinCreator:
		return ResultWin, ResultLoss, true
	case OutcomeWinOpponent:
		return ResultLoss, ResultWin, true
	case OutcomeDraw:
		return ResultDraw, ResultDraw, true
	}
	return "", "", false
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
