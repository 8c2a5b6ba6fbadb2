package store

import "testing"

func TestJoinCodeFromMatchID(t *testing.T) {
	cases := []struct {
		matchID int64
		want    string
	}{
		{1, "M1"},
		{10, "MA"},
		{35, "MZ"},
		{36, "M10"},
		{12345, "M9IX"},
		{1679615, "MZZZZ"},
	}
	for _, tc := range cases {
		got, err := JoinCodeFromMatchID(tc.matchID)
		if err != nil {
			t.Errorf("JoinCodeFromMatchID(%d) failed: %v", tc.matchID, err)
			continue
		}
		if got != tc.want {
			t.Errorf("JoinCodeFromMatchID(%d) = %q, want %q", tc.matchID, got, tc.want)
		}
	}
}

func TestJoinCodeFromMatchIDRejectsNonPositive(t *testing.T) {
	for _, matchID := range []int64{0, -1} {
		if _, err := JoinCodeFromMatchID(matchID); err == nil {
			t.Errorf("JoinCodeFromMatchID(%d) should fail", matchID)
		}
	}
}
