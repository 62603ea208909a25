package accounts

import "testing"

func TestIncrementName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Account", "Account1"},
		{"Account1", "Account2"},
		{"Account9", "Account10"},
		{"Account19", "Account20"},
		{"účet9", "účet10"},
		{"7", "8"},
		{"", "1"},
	}
	for _, c := range cases {
		if got := incrementName(c.in); got != c.want {
			t.Errorf("incrementName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
