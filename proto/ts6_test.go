package proto

import (
	"testing"

	"github.com/horgh/netlink/ids"
	"github.com/horgh/netlink/state"
)

func TestHandleSJOINAppliesIncomingModesOlderWins(t *testing.T) {
	d := NewTS6()
	nh := newFakeNetwork("test", "0RT", "00A")
	nh.Store().Servers["00A"] = &state.Server{SID: "00A", Name: "uplink", Users: map[ids.UID]struct{}{}}

	store := nh.Store()
	c, _ := store.GetOrCreateChannel("#x", 2000)
	c.Modes['n'] = state.ModeArg{}
	c.Modes['t'] = state.ModeArg{}

	aaa := ids.UID("0RTAAAAAA")
	store.Users[aaa] = &state.User{UID: aaa, Nick: "aaa", Modes: map[byte]state.ModeArg{}, Channels: map[string]struct{}{}}
	c.Users[aaa] = struct{}{}

	bbb := ids.UID("00AAAAAAB")
	store.Users[bbb] = &state.User{UID: bbb, Nick: "bbb", Modes: map[byte]state.ModeArg{}, Channels: map[string]struct{}{}}

	_, err := d.handleSJOIN(nh, "00A", []string{"1000", "#x", "+m", "@" + string(bbb)})
	if err != nil {
		t.Fatalf("handleSJOIN() error: %s", err)
	}

	if c.TS != 1000 {
		t.Errorf("TS = %d, wanted 1000", c.TS)
	}
	if len(c.Modes) != 1 {
		t.Errorf("Modes = %v, wanted only +m", c.Modes)
	}
	if _, ok := c.Modes['m']; !ok {
		t.Error("+m not applied from the incoming burst")
	}
	if _, ok := c.Modes['n']; ok {
		t.Error("our +n should have been dropped: their (older) TS wins")
	}
	if _, ok := c.Users[aaa]; !ok {
		t.Error("AAA should still be in the channel")
	}
	if _, ok := c.Users[bbb]; !ok {
		t.Error("BBB should have joined via the burst")
	}
	if _, ok := c.PrefixModes[bbb]['o']; !ok {
		t.Error("BBB should have +o granted from its @ prefix")
	}
}

func TestHandleSJOINUnionsModesOnEqualTS(t *testing.T) {
	d := NewTS6()
	nh := newFakeNetwork("test", "0RT", "00A")
	nh.Store().Servers["00A"] = &state.Server{SID: "00A", Name: "uplink", Users: map[ids.UID]struct{}{}}

	store := nh.Store()
	c, _ := store.GetOrCreateChannel("#x", 1000)
	c.Modes['n'] = state.ModeArg{}

	_, err := d.handleSJOIN(nh, "00A", []string{"1000", "#x", "+m", ""})
	if err != nil {
		t.Fatalf("handleSJOIN() error: %s", err)
	}

	if c.TS != 1000 {
		t.Errorf("TS = %d, wanted unchanged 1000", c.TS)
	}
	if _, ok := c.Modes['n']; !ok {
		t.Error("equal-TS burst should union modes, not replace: +n should survive")
	}
	if _, ok := c.Modes['m']; !ok {
		t.Error("equal-TS burst should union in the incoming +m")
	}
}

func TestHandleSJOINDiscardsIncomingModesWhenOursWins(t *testing.T) {
	d := NewTS6()
	nh := newFakeNetwork("test", "0RT", "00A")
	nh.Store().Servers["00A"] = &state.Server{SID: "00A", Name: "uplink", Users: map[ids.UID]struct{}{}}

	store := nh.Store()
	c, _ := store.GetOrCreateChannel("#x", 1000)
	c.Modes['n'] = state.ModeArg{}

	_, err := d.handleSJOIN(nh, "00A", []string{"2000", "#x", "+m", ""})
	if err != nil {
		t.Fatalf("handleSJOIN() error: %s", err)
	}

	if c.TS != 1000 {
		t.Errorf("TS = %d, wanted unchanged 1000 (ours is older)", c.TS)
	}
	if _, ok := c.Modes['m']; ok {
		t.Error("incoming +m should be discarded when our (older) TS wins")
	}
	if _, ok := c.Modes['n']; !ok {
		t.Error("our +n should survive when our TS wins")
	}
}

func TestHandleUIDCollisionEmitsCanonicalSAVEHook(t *testing.T) {
	d := NewTS6()
	nh := newFakeNetwork("test", "0RT", "00A")
	nh.Store().Servers["00A"] = &state.Server{SID: "00A", Name: "uplink", Users: map[ids.UID]struct{}{}}

	existing := ids.UID("0RTAAAAAA")
	nh.Store().Users[existing] = &state.User{UID: existing, Nick: "dupe", Modes: map[byte]state.ModeArg{}, Channels: map[string]struct{}{}}
	nh.Store().NickToUID["dupe"] = existing

	colliding := ids.UID("00AAAAAAB")
	payload, err := d.handleUID(nh, "00A", []string{"dupe", "0", "1000", "+", "ident", "host", "1.2.3.4", string(colliding), "Gecos"})
	if err != nil {
		t.Fatalf("handleUID() error: %s", err)
	}
	if payload != nil {
		t.Errorf("handleUID() payload = %+v, wanted nil (SAVE fired directly)", payload)
	}

	if len(nh.hooks) != 1 {
		t.Fatalf("len(hooks) = %d, wanted 1", len(nh.hooks))
	}
	if nh.hooks[0].Name != "SAVE" {
		t.Errorf("hook name = %s, wanted SAVE", nh.hooks[0].Name)
	}
	if nh.hooks[0].Payload["target"] != string(existing) {
		t.Errorf("target = %v, wanted %s", nh.hooks[0].Payload["target"], existing)
	}
	if nh.hooks[0].Payload["colliding_uid"] != colliding {
		t.Errorf("colliding_uid = %v, wanted %s", nh.hooks[0].Payload["colliding_uid"], colliding)
	}
}

func TestEOSDispatchesAsCanonicalENDBURST(t *testing.T) {
	d := NewTS6()
	nh := newFakeNetwork("test", "0RT", "00A")
	nh.Store().Servers["00A"] = &state.Server{SID: "00A", Name: "uplink"}

	ev, err := d.HandleEvents(nh, ":00A EOS")
	if err != nil {
		t.Fatalf("HandleEvents() error: %s", err)
	}
	if ev == nil {
		t.Fatal("HandleEvents() = nil, wanted an ENDBURST dispatch")
	}
	if ev.Name != "ENDBURST" {
		t.Errorf("hook name = %s, wanted ENDBURST", ev.Name)
	}
}
