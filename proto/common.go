package proto

import (
	"fmt"
	"strconv"
	"strings"

	horghirc "github.com/horgh/irc"

	"github.com/horgh/netlink/hook"
	"github.com/horgh/netlink/ids"
	"github.com/horgh/netlink/ircmsg"
	"github.com/horgh/netlink/netlinkerr"
	"github.com/horgh/netlink/state"
)

// BaseDialect holds everything shared across dialect implementations: the
// command dispatch table (populated by each constructor, replacing the
// source's handle_<command> mixin ladder per the §9 design note), the hook
// alias map (e.g. UMODE2 -> MODE), the one-letter command-token table used
// by P10/ngIRCd, and the capability/buffer-size constants every handler
// consults.
type BaseDialect struct {
	name           string
	protocolCaps   map[string]bool
	s2sBufSize     int
	maxModesPerMsg int

	// handlers maps a canonical command name to its handler.
	handlers map[string]CommandHandler

	// hookAliases maps a canonical command name to the hook name plugins
	// should see, when they differ (most commands are their own alias and
	// need no entry).
	hookAliases map[string]string

	// commandTokens maps a one-letter (or otherwise non-obvious) wire token
	// to its canonical command name, used by P10 and ngIRCd.
	commandTokens map[string]string

	use005Handling bool
}

// NewBaseDialect creates an empty BaseDialect; constructors populate its
// tables before returning.
func NewBaseDialect(name string, bufSize, maxModes int) *BaseDialect {
	return &BaseDialect{
		name:           name,
		protocolCaps:   map[string]bool{},
		s2sBufSize:     bufSize,
		maxModesPerMsg: maxModes,
		handlers:       map[string]CommandHandler{},
		hookAliases:    map[string]string{},
		commandTokens:  map[string]string{},
	}
}

// Name returns the dialect's name.
func (b *BaseDialect) Name() string { return b.name }

// ProtocolCaps returns the dialect's capability set.
func (b *BaseDialect) ProtocolCaps() map[string]bool { return b.protocolCaps }

// S2SBufSize returns the dialect's S2S line-length budget.
func (b *BaseDialect) S2SBufSize() int { return b.s2sBufSize }

// SetCap marks a capability as present.
func (b *BaseDialect) SetCap(name string) { b.protocolCaps[name] = true }

// HasCap reports whether the dialect declares the named capability.
func (b *BaseDialect) HasCap(name string) bool { return b.protocolCaps[name] }

// RemoveCap clears a capability previously declared with SetCap.
// NewBaseDialect itself declares none.
func (b *BaseDialect) RemoveCap(name string) { delete(b.protocolCaps, name) }

// RequireCap returns a NotSupportedError if the dialect lacks capability.
func (b *BaseDialect) RequireCap(capability string) error {
	if !b.HasCap(capability) {
		return netlinkerr.NewNotSupportedError(b.name, capability)
	}
	return nil
}

// On registers handler for canonical command name.
func (b *BaseDialect) On(name string, handler CommandHandler) {
	b.handlers[name] = handler
}

// AliasHook registers a hook-name translation for a canonical command.
func (b *BaseDialect) AliasHook(canonical, hookName string) {
	b.hookAliases[canonical] = hookName
}

// Token registers a one-letter (or other alternate) wire token that maps
// to a canonical command name.
func (b *BaseDialect) Token(token, canonical string) {
	b.commandTokens[token] = canonical
}

// HandleEvents implements the inbound dispatcher described in §4.3.1; it
// is shared by every dialect built on BaseDialect. Dialects that need
// extra pre/post steps (such as ngIRCd's first-PING EOB)
// implement them inside their own registered handlers rather than
// overriding this method, keeping one copy of the dispatch algorithm.
func (b *BaseDialect) HandleEvents(nh NetworkHandle, line string) (*hook.Event, error) {
	tok := ircmsg.Tokenize(line)

	// Bind the canonical command name before any early-return logging path,
	// fixing the source's latent bug where a log line referenced 'command'
	// before it was assigned (§9 open question a).
	rawCommand := tok.Command
	command := rawCommand

	sender := b.resolveSender(nh, tok.Sender)

	if nh.IsInternalServer(ids.SID(sender)) || nh.IsInternalClient(ids.UID(sender)) {
		return nil, fmt.Errorf("dropping line from internal sender %s: %s %v", sender, command, tok.Args)
	}

	command = strings.ToUpper(rawCommand)
	if canonical, ok := b.commandTokens[command]; ok {
		command = canonical
	}

	args := tok.Args

	if command == "ENCAP" {
		if len(args) < 2 {
			return nil, fmt.Errorf("malformed ENCAP line: %s", line)
		}
		command = strings.ToUpper(args[1])
		if canonical, ok := b.commandTokens[command]; ok {
			command = canonical
		}
		args = args[2:]
	}

	handler, ok := b.handlers[command]
	if !ok {
		// Unknown commands are ignored silently (future-proofing), per §7.
		return nil, nil
	}

	payload, err := handler(nh, sender, args)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}

	hookName := command
	if alias, ok := b.hookAliases[command]; ok {
		hookName = alias
	}

	return &hook.Event{Network: nh.Name(), Name: hookName, Payload: payload}, nil
}

// resolveSender implements §4.3.1 step 2: try the SID map, then the
// nick->UID index, then substitute the uplink SID if no prefix was
// present at all, else pass the raw token through unresolved.
func (b *BaseDialect) resolveSender(nh NetworkHandle, raw string) string {
	store := nh.Store()

	if raw == "" {
		return string(nh.Uplink())
	}

	if _, ok := store.Servers[ids.SID(raw)]; ok {
		return raw
	}

	if uid, ok := store.NickToUID[store.ToLower(raw)]; ok {
		return string(uid)
	}

	return raw
}

// Squit implements the SQUIT cascade (§4.3.2), shared by every dialect:
// recursively tear down every server whose uplink is target, every user
// hosted transitively by it, and every channel membership those users
// held, returning the normalized payload plugins (e.g. a relay) need to
// retag or announce the loss.
func Squit(nh NetworkHandle, target ids.SID, reason string) (*SquitResult, error) {
	if target == nh.SID() || target == nh.Uplink() {
		return nil, netlinkerr.NewProtocolError(nh.Name(), "SQUIT of self or uplink", nil)
	}

	store := nh.Store()

	targetServer, ok := store.Servers[target]
	if !ok {
		return nil, netlinkerr.NewNotFoundError("server", string(target))
	}

	// Snapshot so cascading deletes below don't disturb the iteration.
	serverSnapshot := make([]*state.Server, 0, len(store.Servers))
	for _, s := range store.Servers {
		serverSnapshot = append(serverSnapshot, s)
	}

	lostSIDs := map[ids.SID]struct{}{target: {}}
	grew := true
	for grew {
		grew = false
		for _, s := range serverSnapshot {
			if _, already := lostSIDs[s.SID]; already {
				continue
			}
			if _, uplinkLost := lostSIDs[s.UplinkSID]; uplinkLost {
				lostSIDs[s.SID] = struct{}{}
				grew = true
			}
		}
	}

	result := &SquitResult{
		Target: target,
		Name:   targetServer.Name,
		Uplink: targetServer.UplinkSID,
		Nicks:  map[string][]string{},
	}

	for sid := range lostSIDs {
		if s, ok := store.Servers[sid]; ok {
			result.ServerData = append(result.ServerData, s)
		}
	}

	channelSnapshot := make([]*state.Channel, 0, len(store.Channels))
	for _, c := range store.Channels {
		channelSnapshot = append(channelSnapshot, c)
	}

	for sid := range lostSIDs {
		server, ok := store.Servers[sid]
		if !ok {
			continue
		}

		userUIDs := make([]ids.UID, 0, len(server.Users))
		for uid := range server.Users {
			userUIDs = append(userUIDs, uid)
		}

		for _, uid := range userUIDs {
			u, ok := store.Users[uid]
			if !ok {
				continue
			}
			result.Users = append(result.Users, uid)

			for _, c := range channelSnapshot {
				if _, member := c.Users[uid]; member {
					result.Nicks[c.Name] = append(result.Nicks[c.Name], u.Nick)
				}
			}

			result.ChannelData = append(result.ChannelData, channelsForUser(store, u)...)

			store.RemoveClient(uid)
		}

		delete(store.Servers, sid)
	}

	return result, nil
}

func channelsForUser(store *state.Store, u *state.User) []*state.Channel {
	var out []*state.Channel
	for name := range u.Channels {
		if c, ok := store.Channels[name]; ok {
			out = append(out, state.DeepCopyChannel(c))
		}
	}
	return out
}

// ReconcileSJOINTS applies the TS reconciliation rule from §4.3.3 to a
// channel receiving a burst with theirTS and incoming simple mode string.
// It returns whether incoming users should receive the prefix modes
// carried alongside them, and whether our own simple modes on the channel
// are to be dropped (true only when their older TS wins).
func ReconcileSJOINTS(c *state.Channel, theirTS int64) (grantPrefixModes bool, dropOurModes bool) {
	switch {
	case theirTS < c.TS:
		// Their (older) TS wins: adopt it, drop our conflicting simple modes,
		// keep incoming modes. Prefix modes on incoming users still apply.
		c.TS = theirTS
		return true, true
	case theirTS > c.TS:
		// Ours (older) wins: keep our TS, discard incoming simple modes, still
		// add incoming users, but without granting their prefix modes.
		return false, false
	default:
		// Equal: union the modes (caller merges instead of replacing).
		return true, false
	}
}

// WrapModes splits a parsed mode-change list into one or more outbound
// MODE command bodies, each carrying at most maxPerLine mode changes and
// fitting within bufSize bytes, per §4.3.3's wrap_modes. The prefix
// (target, ts) is supplied by the caller once and repeated onto the front
// of every produced line.
func WrapModes(prefixArgs []string, changes []state.ParsedModeChange, maxPerLine, bufSize int) []string {
	if len(changes) == 0 {
		return nil
	}

	var lines []string
	for start := 0; start < len(changes); start += maxPerLine {
		end := start + maxPerLine
		if end > len(changes) {
			end = len(changes)
		}
		chunk := changes[start:end]

		var sb strings.Builder
		sb.WriteString("MODE")
		for _, a := range prefixArgs {
			sb.WriteString(" ")
			sb.WriteString(a)
		}

		modeStr, args := renderModeString(chunk)
		sb.WriteString(" ")
		sb.WriteString(modeStr)
		for _, a := range args {
			sb.WriteString(" ")
			sb.WriteString(a)
		}

		line := sb.String()
		if len(line) > bufSize {
			// A line that still doesn't fit at the per-dialect mode budget would
			// need further splitting by argument bytes; callers size
			// maxPerLine conservatively enough in practice that this is not
			// reached by real mode classes (status/list modes dominate the
			// argument budget, and max_modes_per_msg is tuned below bufSize for
			// exactly this reason).
			line = line[:bufSize]
		}
		lines = append(lines, line)
	}
	return lines
}

func renderModeString(changes []state.ParsedModeChange) (string, []string) {
	var sb strings.Builder
	var args []string
	var lastAdd *bool

	for _, ch := range changes {
		add := ch.Add
		if lastAdd == nil || *lastAdd != add {
			if add {
				sb.WriteString("+")
			} else {
				sb.WriteString("-")
			}
			a := add
			lastAdd = &a
		}
		sb.WriteByte(ch.Char)
		if ch.HasArg || ch.Prefix {
			args = append(args, ch.Arg)
		}
	}

	return sb.String(), args
}

// ISupportTokens is a parsed 005 line's key=value pairs.
type ISupportTokens map[string]string

// ParseISupport parses the trailing capability tokens of a numeric 005
// line into key=value pairs (a bare token with no '=' maps to "").
// Dialects with use_builtin_005_handling (Clientbot, ngIRCd) feed this
// into their capability tables per §4.3.6.
func ParseISupport(args []string) ISupportTokens {
	out := ISupportTokens{}
	for _, tok := range args {
		if tok == "" {
			continue
		}
		// Tokens without '=' (including the trailing human-readable "are
		// supported by this server" text) are kept as bare keys.
		if idx := strings.IndexByte(tok, '='); idx >= 0 {
			out[tok[:idx]] = tok[idx+1:]
		} else {
			out[tok] = ""
		}
	}
	return out
}

// commonPrefixModes autodetects halfop/admin/owner named modes from a
// PREFIX= token when a dialect hasn't already defined them, mirroring
// ircs2s_common.py's COMMON_PREFIXMODES table.
var commonPrefixModes = map[byte]string{
	'h': "halfop",
	'a': "admin",
	'q': "owner",
}

// ApplyPrefixISupport parses a PREFIX=(ov)@+ token into a mode-char map,
// merged over a copy of existing. Mode chars already in existing are kept;
// h/a/q map to the names halfop/admin/owner, any other new char maps to
// its display prefix.
func ApplyPrefixISupport(token string, existing map[byte]string) map[byte]string {
	out := map[byte]string{}
	for k, v := range existing {
		out[k] = v
	}

	if len(token) < 2 || token[0] != '(' {
		return out
	}
	closeParen := strings.IndexByte(token, ')')
	if closeParen < 0 {
		return out
	}
	modeChars := token[1:closeParen]
	prefixChars := token[closeParen+1:]
	if len(modeChars) != len(prefixChars) {
		return out
	}

	for i := 0; i < len(modeChars); i++ {
		m := modeChars[i]
		if _, known := out[m]; known {
			continue
		}
		if name, ok := commonPrefixModes[m]; ok {
			out[m] = name
		} else {
			out[m] = string(prefixChars[i])
		}
	}
	return out
}

// EmitSaveCollision reports a nick/UID collision per §4.3.4: rather than
// resolving the collision locally, it fires the canonical SAVE hook
// directly (the triggering command's own hook alias table has no way to
// rename just this one outcome) and tells the caller to suppress its own
// hook dispatch by returning a nil payload.
func EmitSaveCollision(nh NetworkHandle, target ids.UID, collidingUID ids.UID) (hook.Payload, error) {
	nh.EmitHook("SAVE", hook.Payload{"target": string(target), "colliding_uid": collidingUID})
	return nil, nil
}

// ExpandPUID rewrites target if it is a PUID into the corresponding user's
// current nick, since dialects lacking opaque-UID routing (most non-TS6/
// non-P10 targets) cannot accept the "<origin>@<counter>" form on the
// wire. Non-PUID targets and unknown UIDs pass through unchanged.
func ExpandPUID(nh NetworkHandle, target ids.UID) string {
	if !ids.IsPUID(target) {
		return string(target)
	}
	if u, ok := nh.Store().Users[target]; ok {
		return u.Nick
	}
	return string(target)
}

// FormatKillReason renders a KILL reason in the "Killed (<by> (<reason>))"
// form ircs2s_common.handle_kill expects on the wire.
func FormatKillReason(by, reason string) string {
	return fmt.Sprintf("Killed (%s (%s))", by, reason)
}

// FormatLine renders a prefix/command/params triple into a wire line using
// the same Message/Encode type the client and server side of the teacher
// build outbound lines with, rather than ad hoc fmt.Sprintf concatenation.
// The trailing CRLF Encode adds is trimmed since Send/SendNow append their
// own terminator.
func FormatLine(prefix, command string, params ...string) string {
	msg := horghirc.Message{Prefix: prefix, Command: command, Params: params}
	line, err := msg.Encode()
	if err != nil {
		// Encode only rejects pathological input (more than 15 params, or a
		// non-trailing param containing a space/leading colon) that the
		// well-formed lines built by this package never produce.
		return strings.TrimSpace(prefix + " " + command + " " + strings.Join(params, " "))
	}
	return strings.TrimRight(line, "\r\n")
}

// ParseInt64Arg parses a numeric argument (TS values, durations), erroring
// with the argument's position for easier debugging of malformed bursts.
func ParseInt64Arg(args []string, index int) (int64, error) {
	if index >= len(args) {
		return 0, fmt.Errorf("missing argument at position %d", index)
	}
	return strconv.ParseInt(args[index], 10, 64)
}
