package state

import (
	"testing"

	"github.com/horgh/netlink/ids"
)

func TestToLowerIdempotentAndFoldsRFC1459(t *testing.T) {
	s := NewStore("rfc1459")

	for _, n := range []string{"Abc", "A12", "{}|^~", "[]\\~"} {
		once := s.ToLower(n)
		twice := s.ToLower(once)
		if once != twice {
			t.Errorf("ToLower not idempotent for %q: %q vs %q", n, once, twice)
		}
	}

	if s.ToLower("{}|^") != s.ToLower("[]\\~") {
		t.Errorf("rfc1459 fold mismatch: %q vs %q", s.ToLower("{}|^"), s.ToLower("[]\\~"))
	}
}

func TestGetOrCreateChannelAndGC(t *testing.T) {
	s := NewStore("rfc1459")

	c, created := s.GetOrCreateChannel("#Test", 1000)
	if !created {
		t.Fatal("expected channel to be newly created")
	}
	if c.Name != "#test" {
		t.Errorf("Name = %q, wanted #test", c.Name)
	}

	_, created = s.GetOrCreateChannel("#TEST", 1000)
	if created {
		t.Error("expected existing channel to be returned, not recreated")
	}

	c.Users[ids.UID("1AAAAAAAA")] = struct{}{}
	s.GCChannel("#test")
	if _, ok := s.Channels["#test"]; !ok {
		t.Error("non-empty channel was GC'd")
	}

	delete(c.Users, ids.UID("1AAAAAAAA"))
	s.GCChannel("#test")
	if _, ok := s.Channels["#test"]; ok {
		t.Error("empty non-permanent channel was not GC'd")
	}
}

func TestGCChannelSkipsPermanent(t *testing.T) {
	s := NewStore("rfc1459")
	c, _ := s.GetOrCreateChannel("#perm", 1000)
	c.Permanent = true
	s.GCChannel("#perm")
	if _, ok := s.Channels["#perm"]; !ok {
		t.Error("permanent channel should survive GC even when empty")
	}
}

func TestRemoveClientIsAtomic(t *testing.T) {
	s := NewStore("rfc1459")
	s.Servers["1AA"] = &Server{SID: "1AA", Users: map[ids.UID]struct{}{}}

	uid := ids.UID("1AAAAAAAB")
	u := &User{
		UID:       uid,
		Nick:      "Alice",
		ServerSID: "1AA",
		Modes:     map[byte]ModeArg{},
		Channels:  map[string]struct{}{"#chan": {}},
	}
	s.Users[uid] = u
	s.NickToUID[s.ToLower("Alice")] = uid
	s.Servers["1AA"].Users[uid] = struct{}{}

	c, _ := s.GetOrCreateChannel("#chan", 1000)
	c.Users[uid] = struct{}{}

	s.RemoveClient(uid)

	if _, ok := s.Users[uid]; ok {
		t.Error("user still present after RemoveClient")
	}
	if _, ok := s.Servers["1AA"].Users[uid]; ok {
		t.Error("user still in server's user set after RemoveClient")
	}
	if _, ok := s.NickToUID["alice"]; ok {
		t.Error("nick index entry survived RemoveClient")
	}
	if _, ok := s.Channels["#chan"]; ok {
		t.Error("channel should have been GC'd empty after RemoveClient")
	}
}

func TestApplyModesChannelPrefixAndSimple(t *testing.T) {
	s := NewStore("rfc1459")
	c, _ := s.GetOrCreateChannel("#chan", 1000)

	s.ApplyModes(c, []ParsedModeChange{
		{Add: true, Char: 'n', HasArg: false},
		{Add: true, Char: 'o', Prefix: true, Arg: "1AAAAAAAB", HasArg: true},
	})

	if _, ok := c.Modes['n']; !ok {
		t.Error("+n not applied")
	}
	if _, ok := c.PrefixModes[ids.UID("1AAAAAAAB")]['o']; !ok {
		t.Error("+o prefix mode not applied")
	}

	s.ApplyModes(c, []ParsedModeChange{
		{Add: false, Char: 'o', Prefix: true, Arg: "1AAAAAAAB"},
	})
	if _, ok := c.PrefixModes[ids.UID("1AAAAAAAB")]['o']; ok {
		t.Error("-o prefix mode not cleared")
	}
}
