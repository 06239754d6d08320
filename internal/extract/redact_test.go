package extract

import "testing"

func TestRedactDigits(t *testing.T) {
	cases := map[string]string{
		"": "",
		"You have received 5000 RWF from 0781234123. Ref: ABCD12": "You have received 5000 RWF from *******123. Ref: ABCD12",
		"no digits here":    "no digits here",
		"12345":             "12345",             // below threshold, untouched
		"123456":            "***456",            // exactly at threshold
		"acct 00112233 ok":  "acct *****233 ok",  // account number
		"+250788123456":     "+*********456",     // international msisdn
		"5000 then 1234567": "5000 then ****567", // amount survives, long run masked
	}
	for in, want := range cases {
		if got := RedactDigits(in); got != want {
			t.Errorf("RedactDigits(%q) = %q; want %q", in, got, want)
		}
	}
}
