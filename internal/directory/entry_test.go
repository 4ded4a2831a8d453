package directory

import "testing"

func TestEscapeCNPlainValueUnchanged(t *testing.T) {
	if got := EscapeCN("Smith"); got != "Smith" {
		t.Fatalf("expected plain value to pass through, got %q", got)
	}
}

func TestEscapeCNSpecialCharacters(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`Doe, John`, `Doe\, John`},
		{`a+b`, `a\+b`},
		{`say "hi"`, `say \"hi\"`},
		{`back\slash`, `back\\slash`},
		{`a<b>c`, `a\<b\>c`},
		{`semi;colon`, `semi\;colon`},
	}
	for _, c := range cases {
		if got := EscapeCN(c.in); got != c.want {
			t.Fatalf("EscapeCN(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestEscapeCNLeadingTrailingSpace(t *testing.T) {
	if got := EscapeCN(" padded "); got != `\ padded\ ` {
		t.Fatalf("expected leading and trailing spaces escaped, got %q", got)
	}
	if got := EscapeCN("in the middle"); got != "in the middle" {
		t.Fatalf("expected interior spaces untouched, got %q", got)
	}
}

func TestEscapeCNLeadingHash(t *testing.T) {
	if got := EscapeCN("#7"); got != `\#7` {
		t.Fatalf("expected leading # escaped, got %q", got)
	}
	if got := EscapeCN("no#7"); got != "no#7" {
		t.Fatalf("expected interior # untouched, got %q", got)
	}
}

func TestEscapeCNNulByte(t *testing.T) {
	if got := EscapeCN("a\x00b"); got != `a\00b` {
		t.Fatalf("expected NUL encoded as \\00, got %q", got)
	}
}

func TestBuildDN(t *testing.T) {
	if got := BuildDN("7", "dc=example,dc=com"); got != "cn=7,dc=example,dc=com" {
		t.Fatalf("unexpected DN %q", got)
	}
	if got := BuildDN("O'Neil", "dc=example,dc=com"); got != "cn=O'Neil,dc=example,dc=com" {
		t.Fatalf("expected apostrophe to pass through unescaped, got %q", got)
	}
}

func TestAddAttributeSkipsEmptyValues(t *testing.T) {
	e := &Entry{DN: "cn=7,dc=example,dc=com"}
	e.AddAttribute("sn", "")
	if len(e.Attributes) != 0 {
		t.Fatal("expected empty value to be omitted")
	}
	e.AddAttribute("sn", "Smith")
	if got := e.Attributes["sn"]; len(got) != 1 || got[0] != "Smith" {
		t.Fatalf("unexpected sn values: %v", got)
	}
}
