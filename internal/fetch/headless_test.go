package fetch

import "testing"

func TestCleanHeadlessContent_CollapsesBlankLinesAndDropsPromoLines(t *testing.T) {
	raw := "first paragraph\n\n\n\nsecond paragraph\n扫码关注公众号\nthird paragraph"
	got := cleanHeadlessContent(raw)
	want := "first paragraph\n\nsecond paragraph\nthird paragraph"
	if got != want {
		t.Errorf("cleanHeadlessContent() = %q, want %q", got, want)
	}
}

func TestParsePublishTime(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"2024-05-01T12:30:00Z", true},
		{"2024-05-01 12:30:00", true},
		{"2024-05-01", true},
		{"", false},
		{"not a time", false},
	}
	for _, c := range cases {
		_, ok := parsePublishTime(c.in)
		if ok != c.want {
			t.Errorf("parsePublishTime(%q) ok = %v, want %v", c.in, ok, c.want)
		}
	}
}
