package proto

import (
	"github.com/horgh/netlink/hook"
	"github.com/horgh/netlink/ids"
	"github.com/horgh/netlink/state"
)

// fakeNetwork is a minimal NetworkHandle for exercising proto's shared
// algorithms without pulling in the network package (which itself depends
// on proto.Dialect, so a direct dependency here would be circular).
type fakeNetwork struct {
	name   string
	sid    ids.SID
	uplink ids.SID
	store  *state.Store
	sent   []string
	hooks  []hook.Event
	fatal  error

	puid *ids.PUIDGenerator
	ts6  *ids.TS6IDGenerator
}

func newFakeNetwork(name string, sid, uplink ids.SID) *fakeNetwork {
	return &fakeNetwork{
		name:   name,
		sid:    sid,
		uplink: uplink,
		store:  state.NewStore("rfc1459"),
		puid:   &ids.PUIDGenerator{},
		ts6:    &ids.TS6IDGenerator{},
	}
}

func (f *fakeNetwork) Name() string           { return f.name }
func (f *fakeNetwork) Store() *state.Store    { return f.store }
func (f *fakeNetwork) SID() ids.SID           { return f.sid }
func (f *fakeNetwork) SetSID(sid ids.SID)     { f.sid = sid }
func (f *fakeNetwork) Uplink() ids.SID        { return f.uplink }
func (f *fakeNetwork) SetUplink(sid ids.SID)  { f.uplink = sid }

func (f *fakeNetwork) PUIDGen() *ids.PUIDGenerator   { return f.puid }
func (f *fakeNetwork) TS6Gen() *ids.TS6IDGenerator   { return f.ts6 }

func (f *fakeNetwork) Send(line string)        { f.sent = append(f.sent, line) }
func (f *fakeNetwork) SendNow(line string) error {
	f.sent = append(f.sent, line)
	return nil
}

func (f *fakeNetwork) EmitHook(name string, payload hook.Payload) {
	f.hooks = append(f.hooks, hook.Event{Network: f.name, Name: name, Payload: payload})
}

func (f *fakeNetwork) IsInternalServer(sid ids.SID) bool {
	s, ok := f.store.Servers[sid]
	return ok && s.Internal
}

func (f *fakeNetwork) IsInternalClient(uid ids.UID) bool {
	_, ok := f.store.Users[uid]
	return ok && false // local spawn tracking omitted; no test needs true here
}

func (f *fakeNetwork) SetConnected() {}

func (f *fakeNetwork) Fatal(err error) { f.fatal = err }
