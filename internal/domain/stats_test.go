package domain

import "testing"

func TestApplyWinResetsLosingStreak(t *testing.T) {
	s := UserStats{UserID: "u1", Wins: 2, Losses: 4, CurrentStreak: -2, LongestStreak: 4}
	s.Apply(ResultWin)

	if s.Wins != 3 {
		t.Errorf("wins = %d, want 3", s.Wins)
	}
	if s.CurrentStreak != 1 {
		t.Errorf("currentStreak = %d, want 1 (reset, not incremented)", s.CurrentStreak)
	}
	if s.LongestStreak != 4 {
		t.Errorf("longestStreak = %d, want unchanged 4", s.LongestStreak)
	}
}

func TestApplyExtendsStreaks(t *testing.T) {
	s := UserStats{CurrentStreak: 2, Wins: 2, LongestStreak: 2}
	s.Apply(ResultWin)
	if s.CurrentStreak != 3 || s.LongestStreak != 3 {
		t.Errorf("after third win: streak=%d longest=%d, want 3/3", s.CurrentStreak, s.LongestStreak)
	}

	s = UserStats{CurrentStreak: -1, Losses: 1, LongestStreak: 3}
	s.Apply(ResultLoss)
	if s.CurrentStreak != -2 {
		t.Errorf("losing streak = %d, want -2", s.CurrentStreak)
	}
	if s.LongestStreak != 3 {
		t.Errorf("longestStreak = %d, want 3", s.LongestStreak)
	}
}

func TestApplyDrawResetsStreak(t *testing.T) {
	s := UserStats{CurrentStreak: 5, Wins: 5, LongestStreak: 5}
	s.Apply(ResultDraw)
	if s.CurrentStreak != 0 {
		t.Errorf("currentStreak = %d, want 0", s.CurrentStreak)
	}
	if s.Draws != 1 {
		t.Errorf("draws = %d, want 1", s.Draws)
	}
}

func TestApplyDerivedFields(t *testing.T) {
	s := UserStats{Wins: 2, Losses: 1}
	s.Apply(ResultWin)

	if s.TotalBets != 4 {
		t.Errorf("totalBets = %d, want 4", s.TotalBets)
	}
	if s.WinRate != 75.00 {
		t.Errorf("winRate = %.2f, want 75.00", s.WinRate)
	}
}

func TestApplyWinRateRounding(t *testing.T) {
	s := UserStats{}
	s.Apply(ResultWin)
	s.Apply(ResultLoss)
	s.Apply(ResultLoss)
	// 1/3 = 33.333... rounds to 33.33
	if s.WinRate != 33.33 {
		t.Errorf("winRate = %.4f, want 33.33", s.WinRate)
	}
}

func TestOutcomeResults(t *testing.T) {
	cases := []struct {
		outcome           BetOutcome
		creator, opponent ResultType
		ok                bool
	}{
		{OutcomeWinCreator, ResultWin, ResultLoss, true},
		{OutcomeWinOpponent, ResultLoss, ResultWin, true},
		{OutcomeDraw, ResultDraw, ResultDraw, true},
		{OutcomeVoided, "", "", false},
	}
	for _, tc := range cases {
		c, o, ok := OutcomeResults(tc.outcome)
		if c != tc.creator || o != tc.opponent || ok != tc.ok {
			t.Errorf("OutcomeResults(%s) = (%s, %s, %v), want (%s, %s, %v)",
				tc.outcome, c, o, ok, tc.creator, tc.opponent, tc.ok)
		}
	}
}
