package ids

import "testing"

func TestMakeTS6ID(t *testing.T) {
	tests := []struct {
		input   uint64
		output  string
		success bool
	}{
		{0, "AAAAAA", true},
		{1, "AAAAAB", true},
		{2, "AAAAAC", true},
		{25, "AAAAAZ", true},
		{26, "AAAAA0", true},
		{27, "AAAAA1", true},
		{35, "AAAAA9", true},
		{36, "AAAABA", true},
		{maxTS6Counter, "999999", true},
		{maxTS6Counter + 1, "", false},
	}

	for _, test := range tests {
		id, err := MakeTS6ID(test.input)
		if test.success {
			if err != nil {
				t.Errorf("MakeTS6ID(%d) = error %s, wanted %s", test.input, err, test.output)
				continue
			}
			if id != test.output {
				t.Errorf("MakeTS6ID(%d) = %s, wanted %s", test.input, id, test.output)
			}
			continue
		}
		if err == nil {
			t.Errorf("MakeTS6ID(%d) = %s, wanted an error", test.input, id)
		}
	}
}

func TestPUIDGeneratorIsUniquePerCall(t *testing.T) {
	var g PUIDGenerator
	a := g.Next("relayuser")
	b := g.Next("relayuser")
	if a == b {
		t.Errorf("Next() returned the same PUID twice: %s", a)
	}
	if !IsPUID(a) || !IsPUID(b) {
		t.Errorf("IsPUID false for generated PUIDs %s, %s", a, b)
	}
}

func TestIsPUID(t *testing.T) {
	if IsPUID("42XAAAAAB") {
		t.Error("IsPUID(42XAAAAAB) = true, wanted false")
	}
	if !IsPUID("relaybot@3") {
		t.Error("IsPUID(relaybot@3) = false, wanted true")
	}
}

func TestSIDGeneratorTemplate(t *testing.T) {
	g := SIDGenerator{Template: "1##"}
	sid, err := g.Next()
	if err != nil {
		t.Fatalf("Next() error: %s", err)
	}
	if len(sid) != 3 || sid[0] != '1' {
		t.Errorf("Next() = %s, wanted a 3-char SID starting with '1'", sid)
	}

	sid2, err := g.Next()
	if err != nil {
		t.Fatalf("Next() error: %s", err)
	}
	if sid == sid2 {
		t.Errorf("Next() returned the same SID twice: %s", sid)
	}
}
