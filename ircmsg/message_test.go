package ircmsg

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Line
	}{
		{
			name: "no prefix",
			line: "PING :1234567",
			want: Line{Command: "PING", Args: []string{"1234567"}},
		},
		{
			name: "prefix and middle args",
			line: ":42XAAAAAB PRIVMSG #chan :hello there world",
			want: Line{
				Sender:  "42XAAAAAB",
				Command: "PRIVMSG",
				Args:    []string{"#chan", "hello there world"},
			},
		},
		{
			name: "encap unwrap target stays a plain arg",
			line: ":00A ENCAP * SU 42XAAAAAC :GL",
			want: Line{
				Sender:  "00A",
				Command: "ENCAP",
				Args:    []string{"*", "SU", "42XAAAAAC", "GL"},
			},
		},
		{
			name: "no trailing arg at all",
			line: ":00A SJOIN 1000 #chan",
			want: Line{
				Sender:  "00A",
				Command: "SJOIN",
				Args:    []string{"1000", "#chan"},
			},
		},
		{
			name: "command only",
			line: "EOS",
			want: Line{Command: "EOS"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := Tokenize(test.line)
			if !reflect.DeepEqual(got, test.want) {
				t.Errorf("Tokenize(%q) = %+v, wanted %+v", test.line, got, test.want)
			}
		})
	}
}

func TestParsePrefixedArgsStripsLeadingColonFromFirstArg(t *testing.T) {
	l := ParsePrefixedArgs(":00A PASS :somepass")
	if len(l.Args) != 1 || l.Args[0] != "somepass" {
		t.Errorf("Args = %v, wanted [somepass]", l.Args)
	}
}
