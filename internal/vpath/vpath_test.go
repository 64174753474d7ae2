package vpath

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/home/user/../user/file.txt", "/home/user/file.txt"},
		{"/home//user//file.txt", "/home/user/file.txt"},
		{"/../..", "/"},
		{"user/../file.txt", "file.txt"},
		{"", "/"},
		{"/", "/"},
	}
	for _, c := range cases {
		got, err := Normalize(c.in)
		if err != nil {
			t.Fatalf("normalize(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeRejectsEscapeAndNul(t *testing.T) {
	for _, in := range []string{"../etc/passwd", "..", "a\x00b"} {
		if _, err := Normalize(in); err != ErrInvalidPath {
			t.Fatalf("normalize(%q): expected ErrInvalidPath, got %v", in, err)
		}
	}
}

func TestJoin(t *testing.T) {
	got, err := Join("/home/user", "docs")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if got != "/home/user/docs" {
		t.Fatalf("join = %q, want /home/user/docs", got)
	}
}
