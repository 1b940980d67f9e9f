// Package state implements the core's State Store: the authoritative
// in-memory model of servers, users, and channels reachable through one
// Network's uplink. It is grounded on the User/Channel/Server structs in
// the teacher's user.go/channel.go/server.go, generalized away from a
// single TS6-only client model and toward the dialect-neutral identifiers
// in package ids.
package state

import (
	"strings"

	"github.com/horgh/netlink/ids"
)

// ModeArg is the argument carried by a mode change, if any.
type ModeArg struct {
	Value string
	Has   bool
}

// Server holds information about a server reachable through this Network,
// local (owned by this daemon) or remote.
type Server struct {
	SID         ids.SID
	Name        string
	Description string

	// UplinkSID is empty for the root (the actual uplink this Network is
	// connected to).
	UplinkSID ids.SID

	// Internal is true if this daemon introduced the server itself (a
	// virtual sub-server), false if it was introduced by the uplink.
	Internal bool

	// Users hosted directly by this server.
	Users map[ids.UID]struct{}
}

// User holds information about a user, local (spawned by this daemon) or
// remote (introduced by the uplink or a server behind it).
type User struct {
	UID      ids.UID
	Nick     string
	Ident    string
	Host     string
	RealHost string
	Cloak    string
	IP       string
	RealName string

	// TS is the timestamp of nick introduction or last nick change.
	TS int64

	Modes map[byte]ModeArg

	// Channels this user has joined, by canonical (case-folded) name.
	Channels map[string]struct{}

	ServerSID ids.SID

	ServicesAccount string
	Away            string
	OperType        string
	Manipulatable   bool
}

// IsOperator reports whether the user carries the 'o' user mode.
func (u *User) IsOperator() bool {
	_, ok := u.Modes['o']
	return ok
}

// Hostmask renders the traditional nick!user@host form.
func (u *User) Hostmask() string {
	return u.Nick + "!" + u.Ident + "@" + u.Host
}

// ModesString renders the user's modes as a "+iox"-style string for
// inclusion in an outbound UID/NICK introduction line.
func (u *User) ModesString() string {
	s := "+"
	for m := range u.Modes {
		s += string(m)
	}
	return s
}

// Channel holds everything to do with one channel.
type Channel struct {
	// Name is the case-folded channel name; this is also the Store's map
	// key.
	Name string

	TS int64

	// Users in the channel.
	Users map[ids.UID]struct{}

	// PrefixModes holds the per-user status/prefix modes (e.g. 'o', 'v')
	// derived from the active prefix-mode table.
	PrefixModes map[ids.UID]map[byte]struct{}

	// Modes are the channel's simple (non-prefix) modes.
	Modes map[byte]ModeArg

	Topic    string
	TopicSet bool

	// Permanent channels (mode +P-equivalent) are exempt from GC when their
	// user set empties.
	Permanent bool
}

// HasPermanentFlag reports whether the channel should survive an empty
// user set.
func (c *Channel) HasPermanentFlag() bool {
	return c.Permanent
}

// Store is the per-Network authoritative entity model. A Network owns
// exactly one Store; no entity is shared across Networks.
type Store struct {
	CaseMapping string // "rfc1459" | "ascii" | "rfc1459-strict"

	Servers  map[ids.SID]*Server
	Users    map[ids.UID]*User
	Channels map[string]*Channel

	// NickToUID is case-folded per the active case mapping.
	NickToUID map[string]ids.UID
}

// NewStore creates an empty Store using the given case mapping.
func NewStore(caseMapping string) *Store {
	if caseMapping == "" {
		caseMapping = "rfc1459"
	}
	return &Store{
		CaseMapping: caseMapping,
		Servers:     map[ids.SID]*Server{},
		Users:       map[ids.UID]*User{},
		Channels:    map[string]*Channel{},
		NickToUID:   map[string]ids.UID{},
	}
}

// rfc1459Replacer folds the four characters RFC 1459 treats as
// case-equivalents beyond plain ASCII: {}|^ <-> []\~.
var rfc1459Replacer = strings.NewReplacer(
	"{", "[",
	"}", "]",
	"|", "\\",
	"^", "~",
)

// ToLower case-folds name per the Store's active case mapping. It is
// idempotent: ToLower(ToLower(n)) == ToLower(n) for all n, which is what
// makes NickToUID lookups stable across repeated folding.
func (s *Store) ToLower(name string) string {
	lower := strings.ToLower(name)
	switch s.CaseMapping {
	case "ascii":
		return lower
	case "rfc1459-strict":
		return rfc1459Replacer.Replace(lower)
	default: // "rfc1459"
		return rfc1459Replacer.Replace(lower)
	}
}

// GetOrCreateChannel returns the channel by name, creating it (with the
// given TS) if it did not already exist. The boolean result reports
// whether the channel was newly created.
func (s *Store) GetOrCreateChannel(name string, ts int64) (*Channel, bool) {
	key := s.ToLower(name)
	if c, ok := s.Channels[key]; ok {
		return c, false
	}
	c := &Channel{
		Name:        key,
		TS:          ts,
		Users:       map[ids.UID]struct{}{},
		PrefixModes: map[ids.UID]map[byte]struct{}{},
		Modes:       map[byte]ModeArg{},
	}
	s.Channels[key] = c
	return c, true
}

// GCChannel deletes a channel if its user set is empty and it is not
// flagged permanent. Callers must invoke this after any membership removal
// (PART/QUIT/KICK/SQUIT) per the channel-GC invariant.
func (s *Store) GCChannel(name string) {
	key := s.ToLower(name)
	c, ok := s.Channels[key]
	if !ok {
		return
	}
	if len(c.Users) == 0 && !c.HasPermanentFlag() {
		delete(s.Channels, key)
	}
}

// RemoveClient atomically removes a user from every channel it is a member
// of, from its host server's user set, from the nick index, and from the
// user map, then GCs any channel left empty. It is a no-op if the user is
// unknown.
func (s *Store) RemoveClient(uid ids.UID) {
	u, ok := s.Users[uid]
	if !ok {
		return
	}

	for chanName := range u.Channels {
		if c, ok := s.Channels[chanName]; ok {
			delete(c.Users, uid)
			delete(c.PrefixModes, uid)
		}
		s.GCChannel(chanName)
	}

	if server, ok := s.Servers[u.ServerSID]; ok {
		delete(server.Users, uid)
	}

	if existing, ok := s.NickToUID[s.ToLower(u.Nick)]; ok && existing == uid {
		delete(s.NickToUID, s.ToLower(u.Nick))
	}

	delete(s.Users, uid)
}

// ParsedModeChange is one (+X|-X, arg?) term produced by a dialect's mode
// parser, ready for ApplyModes.
type ParsedModeChange struct {
	Add   bool
	Char  byte
	Arg   string
	HasArg bool

	// Prefix is true if Char is a prefix (status) mode requiring a UID arg
	// rather than a plain setting.
	Prefix bool
}

// ApplyModes mutates either a User's or a Channel's mode set according to
// parsed mode changes, respecting each mode's class-table semantics
// (callers are expected to have already classified Prefix vs plain modes;
// ApplyModes itself just records or clears the bit/arg).
func (s *Store) ApplyModes(target interface{}, changes []ParsedModeChange) {
	switch t := target.(type) {
	case *User:
		for _, ch := range changes {
			if ch.Add {
				t.Modes[ch.Char] = ModeArg{Value: ch.Arg, Has: ch.HasArg}
			} else {
				delete(t.Modes, ch.Char)
			}
		}
	case *Channel:
		for _, ch := range changes {
			if ch.Prefix {
				uid := ids.UID(ch.Arg)
				if ch.Add {
					set, ok := t.PrefixModes[uid]
					if !ok {
						set = map[byte]struct{}{}
						t.PrefixModes[uid] = set
					}
					set[ch.Char] = struct{}{}
				} else if set, ok := t.PrefixModes[uid]; ok {
					delete(set, ch.Char)
				}
				continue
			}
			if ch.Add {
				t.Modes[ch.Char] = ModeArg{Value: ch.Arg, Has: ch.HasArg}
			} else {
				delete(t.Modes, ch.Char)
			}
		}
	}
}

// DeepCopyChannel returns an independent copy of a channel, suitable for
// inclusion in a hook payload as an immutable pre-change snapshot.
func DeepCopyChannel(c *Channel) *Channel {
	if c == nil {
		return nil
	}
	out := &Channel{
		Name:      c.Name,
		TS:        c.TS,
		Topic:     c.Topic,
		TopicSet:  c.TopicSet,
		Permanent: c.Permanent,
		Users:     make(map[ids.UID]struct{}, len(c.Users)),
		Modes:     make(map[byte]ModeArg, len(c.Modes)),
	}
	for uid := range c.Users {
		out.Users[uid] = struct{}{}
	}
	for m, a := range c.Modes {
		out.Modes[m] = a
	}
	out.PrefixModes = make(map[ids.UID]map[byte]struct{}, len(c.PrefixModes))
	for uid, set := range c.PrefixModes {
		copied := make(map[byte]struct{}, len(set))
		for m := range set {
			copied[m] = struct{}{}
		}
		out.PrefixModes[uid] = copied
	}
	return out
}

// DeepCopyUser returns an independent copy of a user.
func DeepCopyUser(u *User) *User {
	if u == nil {
		return nil
	}
	out := *u
	out.Modes = make(map[byte]ModeArg, len(u.Modes))
	for m, a := range u.Modes {
		out.Modes[m] = a
	}
	out.Channels = make(map[string]struct{}, len(u.Channels))
	for c := range u.Channels {
		out.Channels[c] = struct{}{}
	}
	return &out
}
