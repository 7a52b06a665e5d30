package model

import "testing"

func TestParseDifficulty(t *testing.T) {
	cases := []struct {
		in      string
		want    Difficulty
		wantErr bool
	}{
		{"easy", DifficultyEasy, false},
		{"MEDIUM", DifficultyMedium, false},
		{" hard ", DifficultyHard, false},
		{"", 0, true},
		{"extreme", 0, true},
	}

	for _, tc := range cases {
		got, err := ParseDifficulty(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseDifficulty(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDifficulty(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseDifficulty(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestMinDifficulty(t *testing.T) {
	cases := []struct {
		a, b, want Difficulty
	}{
		{DifficultyEasy, DifficultyHard, DifficultyEasy},
		{DifficultyHard, DifficultyEasy, DifficultyEasy},
		{DifficultyMedium, DifficultyHard, DifficultyMedium},
		{DifficultyMedium, DifficultyMedium, DifficultyMedium},
	}

	for _, tc := range cases {
		if got := MinDifficulty(tc.a, tc.b); got != tc.want {
			t.Errorf("MinDifficulty(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestMatchedPair_Peer(t *testing.T) {
	pair := &MatchedPair{UserA: "alice", UserB: "bob"}

	if got := pair.Peer("alice"); got != "bob" {
		t.Errorf("Peer(alice) = %q, want bob", got)
	}
	if got := pair.Peer("bob"); got != "alice" {
		t.Errorf("Peer(bob) = %q, want alice", got)
	}
	if got := pair.Peer("carol"); got != "" {
		t.Errorf("Peer(carol) = %q, want empty", got)
	}
}
