package proto

import (
	"testing"

	"github.com/horgh/netlink/hook"
	"github.com/horgh/netlink/ids"
	"github.com/horgh/netlink/state"
)

func TestSquitCascade(t *testing.T) {
	nh := newFakeNetwork("test", "0RT", "")
	store := nh.Store()

	store.Servers["0RT"] = &state.Server{SID: "0RT", Name: "root", Internal: true, Users: map[ids.UID]struct{}{}}
	store.Servers["0AA"] = &state.Server{SID: "0AA", Name: "a", UplinkSID: "0RT", Users: map[ids.UID]struct{}{}}
	store.Servers["0BB"] = &state.Server{SID: "0BB", Name: "b", UplinkSID: "0AA", Users: map[ids.UID]struct{}{}}

	u1 := ids.UID("0AAAAAAAA")
	u2 := ids.UID("0BBAAAAAB")
	store.Users[u1] = &state.User{UID: u1, Nick: "u1", ServerSID: "0AA", Modes: map[byte]state.ModeArg{}, Channels: map[string]struct{}{"#c": {}}}
	store.Users[u2] = &state.User{UID: u2, Nick: "u2", ServerSID: "0BB", Modes: map[byte]state.ModeArg{}, Channels: map[string]struct{}{"#c": {}}}
	store.Servers["0AA"].Users[u1] = struct{}{}
	store.Servers["0BB"].Users[u2] = struct{}{}

	c, _ := store.GetOrCreateChannel("#c", 1000)
	c.Users[u1] = struct{}{}
	c.Users[u2] = struct{}{}

	result, err := Squit(nh, "0AA", "linkdown")
	if err != nil {
		t.Fatalf("Squit() error: %s", err)
	}

	if len(result.Users) != 2 {
		t.Errorf("len(result.Users) = %d, wanted 2", len(result.Users))
	}
	if len(result.Nicks["#c"]) != 2 {
		t.Errorf("len(result.Nicks[#c]) = %d, wanted 2", len(result.Nicks["#c"]))
	}

	if _, ok := store.Servers["0AA"]; ok {
		t.Error("0AA still present after SQUIT")
	}
	if _, ok := store.Servers["0BB"]; ok {
		t.Error("0BB (behind 0AA) still present after SQUIT")
	}
	if _, ok := store.Servers["0RT"]; !ok {
		t.Error("0RT (not behind 0AA) should survive SQUIT")
	}
	if _, ok := store.Channels["#c"]; ok {
		t.Error("#c should be GC'd empty after SQUIT removed both members")
	}
}

func TestSquitOfSelfOrUplinkIsFatal(t *testing.T) {
	nh := newFakeNetwork("test", "0RT", "0UP")

	if _, err := Squit(nh, "0RT", "x"); err == nil {
		t.Error("Squit of self should return an error")
	}
	if _, err := Squit(nh, "0UP", "x"); err == nil {
		t.Error("Squit of uplink should return an error")
	}
}

func TestReconcileSJOINTSOlderWins(t *testing.T) {
	c := &state.Channel{TS: 2000, Modes: map[byte]state.ModeArg{'n': {}, 't': {}}}
	grant, drop := ReconcileSJOINTS(c, 1000)
	if !grant || !drop {
		t.Errorf("ReconcileSJOINTS(theirs older) = (%v,%v), wanted (true,true)", grant, drop)
	}
	if c.TS != 1000 {
		t.Errorf("TS = %d, wanted 1000", c.TS)
	}
}

func TestReconcileSJOINTSNewerLoses(t *testing.T) {
	c := &state.Channel{TS: 2000, Modes: map[byte]state.ModeArg{'n': {}, 't': {}}}
	grant, drop := ReconcileSJOINTS(c, 3000)
	if grant || drop {
		t.Errorf("ReconcileSJOINTS(theirs newer) = (%v,%v), wanted (false,false)", grant, drop)
	}
	if c.TS != 2000 {
		t.Errorf("TS = %d, wanted unchanged 2000", c.TS)
	}
}

func TestWrapModesSplitsAtBudget(t *testing.T) {
	var changes []state.ParsedModeChange
	for i := 0; i < 20; i++ {
		changes = append(changes, state.ParsedModeChange{Add: true, Char: 'b', Arg: "nick!user@host", HasArg: true})
	}

	lines := WrapModes([]string{"#chan", "1000"}, changes, 12, 427)
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, wanted 2", len(lines))
	}
	for _, l := range lines {
		if len(l) > 427 {
			t.Errorf("line exceeds bufsize: %d bytes", len(l))
		}
	}
}

func TestParseISupport(t *testing.T) {
	tokens := ParseISupport([]string{"CHANMODES=beI,k,l,imnpst", "NICKLEN=30", "EXCEPTS", "are supported by this server"})
	if tokens["CHANMODES"] != "beI,k,l,imnpst" {
		t.Errorf("CHANMODES = %q", tokens["CHANMODES"])
	}
	if tokens["NICKLEN"] != "30" {
		t.Errorf("NICKLEN = %q", tokens["NICKLEN"])
	}
	if v, ok := tokens["EXCEPTS"]; !ok || v != "" {
		t.Errorf("EXCEPTS = %q, ok=%v", v, ok)
	}
}

func TestApplyPrefixISupportAutodetectsHalfop(t *testing.T) {
	out := ApplyPrefixISupport("(ohv)@%+", map[byte]string{})
	if out['o'] != "@" {
		t.Errorf("o prefix = %q", out['o'])
	}
	if out['h'] != "halfop" {
		t.Errorf("h prefix = %q, wanted halfop autodetected", out['h'])
	}
}

func TestExpandPUIDRewritesToNick(t *testing.T) {
	nh := newFakeNetwork("test", "0RT", "")
	puid := nh.PUIDGen().Next("relaybot")
	nh.Store().Users[puid] = &state.User{UID: puid, Nick: "RelayBot"}

	if got := ExpandPUID(nh, puid); got != "RelayBot" {
		t.Errorf("ExpandPUID() = %q, wanted RelayBot", got)
	}

	real := ids.UID("0RTAAAAAB")
	if got := ExpandPUID(nh, real); got != string(real) {
		t.Errorf("ExpandPUID(non-puid) = %q, wanted unchanged", got)
	}
}

func TestHandleEventsEncapUnwrap(t *testing.T) {
	d := NewBaseDialect("ts6", 510, 12)

	var gotSender string
	var gotArgs []string
	d.On("SU", func(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
		gotSender = sender
		gotArgs = args
		return hook.Payload{"target": args[0], "account": args[1]}, nil
	})

	nh := newFakeNetwork("test", "0RT", "")
	nh.Store().Servers["00A"] = &state.Server{SID: "00A", Name: "uplink"}

	ev, err := d.HandleEvents(nh, ":00A ENCAP * SU 42XAAAAAC :GL")
	if err != nil {
		t.Fatalf("HandleEvents() error: %s", err)
	}
	if ev == nil {
		t.Fatal("HandleEvents() = nil event, wanted a SU dispatch")
	}
	if ev.Name != "SU" {
		t.Errorf("hook name = %s, wanted SU", ev.Name)
	}
	if gotSender != "00A" {
		t.Errorf("sender = %s, wanted 00A", gotSender)
	}
	want := []string{"42XAAAAAC", "GL"}
	if len(gotArgs) != 2 || gotArgs[0] != want[0] || gotArgs[1] != want[1] {
		t.Errorf("args = %v, wanted %v", gotArgs, want)
	}
}

func TestHandleEventsIgnoresUnknownCommand(t *testing.T) {
	d := NewBaseDialect("ts6", 510, 12)
	nh := newFakeNetwork("test", "0RT", "")

	ev, err := d.HandleEvents(nh, ":00A WIBBLE foo bar")
	if err != nil {
		t.Fatalf("HandleEvents() error: %s", err)
	}
	if ev != nil {
		t.Errorf("HandleEvents() = %+v, wanted nil for an unknown command", ev)
	}
}
