// Package proto implements the core's Protocol Dialect Module: one
// variant per supported IRCd, each satisfying the uniform Protocol
// Contract described by §4.3, dispatching inbound commands through a
// per-dialect command_name -> function pointer table instead of the
// source's handle_<command> mixin ladder (§9 design notes).
//
// Shared algorithms (_squit, parse_args/parse_isupport, handle_events,
// mode wrapping, TS reconciliation) are free functions taking a
// NetworkHandle, per the "composition over inheritance" design note;
// BaseDialect embeds the bits every dialect needs (its command table, hook
// alias map, and capability/buffer-size constants) so a concrete dialect
// constructor only has to populate tables, not re-implement dispatch.
package proto

import (
	"github.com/horgh/netlink/hook"
	"github.com/horgh/netlink/ids"
	"github.com/horgh/netlink/state"
)

// NetworkHandle is everything a dialect needs from the Network that owns
// it. network.Network implements this; proto never imports network, to
// keep the dependency direction the same one the teacher's Catbox type and
// its command handlers already follow (handlers take the owning struct,
// not the other way around).
type NetworkHandle interface {
	Name() string
	Store() *state.Store

	SID() ids.SID
	SetSID(ids.SID)
	Uplink() ids.SID
	SetUplink(ids.SID)

	PUIDGen() *ids.PUIDGenerator
	TS6Gen() *ids.TS6IDGenerator

	// Send enqueues an outbound line through the write queue.
	Send(line string)
	// SendNow bypasses the write queue (the queue=false path used for
	// PONG).
	SendNow(line string) error

	EmitHook(name string, payload hook.Payload)

	IsInternalServer(sid ids.SID) bool
	IsInternalClient(uid ids.UID) bool

	// SetConnected marks that end-of-burst has been observed for this
	// Network; plugins must not rely on full topology before this fires.
	SetConnected()

	// Fatal reports an unrecoverable protocol error: it unwinds dispatch,
	// closes the transport, and makes Network.Run return the error; no
	// reconnect is scheduled.
	Fatal(err error)
}

// PrefixedUID pairs a UID with the prefix-mode characters it carries in an
// SJOIN burst (e.g. "@" for +o, "@+" for +o+v simultaneously).
type PrefixedUID struct {
	Prefixes string
	UID      ids.UID
}

// SpawnClientOpts is the argument bundle for Dialect.SpawnClient.
type SpawnClientOpts struct {
	Nick          string
	Ident         string
	Host          string
	Modes         []state.ParsedModeChange
	Server        ids.SID
	IP            string
	RealName      string
	TS            int64
	OperType      string
	Manipulatable bool
}

// SpawnServerOpts is the argument bundle for Dialect.SpawnServer.
type SpawnServerOpts struct {
	Name          string
	SID           ids.SID
	Uplink        ids.SID
	Desc          string
	EndburstDelay int
}

// SquitResult is the payload returned by a SQUIT cascade (§4.3.2 step 6).
type SquitResult struct {
	Target      ids.SID
	Users       []ids.UID
	Name        string
	Uplink      ids.SID
	Nicks       map[string][]string // channel -> affected nicks
	ServerData  []*state.Server
	ChannelData []*state.Channel
}

// CommandHandler processes one inbound command's arguments (already past
// the sender/command columns) and returns the normalized hook payload to
// relay, or nil if the command was fully handled internally and no hook
// should fire.
type CommandHandler func(nh NetworkHandle, sender string, args []string) (hook.Payload, error)

// Dialect is the uniform Protocol Contract every IRCd variant implements
// (§4.3's operation table).
type Dialect interface {
	Name() string
	ProtocolCaps() map[string]bool
	S2SBufSize() int

	PostConnect(nh NetworkHandle) error
	SpawnClient(nh NetworkHandle, opts SpawnClientOpts) (ids.UID, error)
	SpawnServer(nh NetworkHandle, opts SpawnServerOpts) (ids.SID, error)
	Join(nh NetworkHandle, uid ids.UID, channel string) error
	SJoin(nh NetworkHandle, sid ids.SID, channel string, ts int64, modes string, users []PrefixedUID) error
	Part(nh NetworkHandle, uid ids.UID, channel, reason string) error
	Quit(nh NetworkHandle, uid ids.UID, reason string) error
	Kill(nh NetworkHandle, source, target ids.UID, reason string) error
	Message(nh NetworkHandle, source, target, text string, notice bool) error
	Mode(nh NetworkHandle, source, target string, changes []state.ParsedModeChange, ts int64) error
	Topic(nh NetworkHandle, uid ids.UID, channel, text string) error
	TopicBurst(nh NetworkHandle, sid ids.SID, channel, text string) error
	UpdateClient(nh NetworkHandle, uid ids.UID, field, value string) error
	Knock(nh NetworkHandle, uid ids.UID, channel, text string) error
	Squit(nh NetworkHandle, source, target ids.SID, reason string) (*SquitResult, error)
	SetServerBan(nh NetworkHandle, source ids.SID, duration int64, user, host, reason string) error
	HandleEvents(nh NetworkHandle, line string) (*hook.Event, error)
	PingUplink(nh NetworkHandle)
}

// Update-client field names (§4.3 update_client operation).
const (
	FieldIdent    = "IDENT"
	FieldHost     = "HOST"
	FieldRealName = "REALNAME"
)
