package scoring

import "testing"

func TestTopicFingerprint(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Samsung Wins Big Contract", "samsung wins big contract"},
		{"[Breaking] Samsung wins big contract!", "samsung wins big contract"},
		{"(photo) Samsung   wins big contract...", "samsung wins big contract"},
		{"삼성전자, 대규모 수주 '확정'", "삼성전자 대규모 수주 확정"},
		{"[photo]", ""},
	}
	for _, tc := range cases {
		if got := TopicFingerprint(tc.in); got != tc.want {
			t.Fatalf("TopicFingerprint(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestUniqueTopics(t *testing.T) {
	titles := []string{
		"Samsung wins big contract",
		"[Breaking] Samsung wins big contract!",
		"SK Hynix expands fab",
		"",
		"[photo]",
	}
	if got := UniqueTopics(titles); got != 2 {
		t.Fatalf("UniqueTopics=%d want=2", got)
	}
}

func TestDuplicateRatio(t *testing.T) {
	titles := []string{
		"story one",
		"Story One!",
		"story two",
		"story three",
	}
	if got := DuplicateRatio(titles); got != 0.5 {
		t.Fatalf("DuplicateRatio=%v want=0.5", got)
	}
	if got := DuplicateRatio(nil); got != 0 {
		t.Fatalf("DuplicateRatio(nil)=%v want=0", got)
	}
	if got := DuplicateRatio([]string{"a", "b", "c"}); got != 0 {
		t.Fatalf("DuplicateRatio(unique)=%v want=0", got)
	}
}
