package proto

import (
	"fmt"
	"strings"

	"github.com/horgh/netlink/hook"
	"github.com/horgh/netlink/ids"
	"github.com/horgh/netlink/netlinkerr"
	"github.com/horgh/netlink/state"
)

// TS6 implements the Charybdis/ircd-ratbox family's TS6 dialect. It is
// grounded directly on the teacher's local_server.go handlers
// (uidCommand, sjoinCommand, squitCommand, modeCommand, killCommand,
// encapCommand, ...), generalized from that file's single-uplink,
// always-local-SID assumptions to the multi-Network Protocol Contract.
type TS6 struct {
	*BaseDialect
}

// NewTS6 constructs the TS6 dialect and populates its command table.
func NewTS6() *TS6 {
	d := &TS6{BaseDialect: NewBaseDialect("ts6", 510, 12)}

	d.SetCap("can-spawn-clients")
	d.SetCap("has-ts")
	d.SetCap("can-host-relay")
	d.SetCap("can-track-servers")

	d.On("PING", d.handlePing)
	d.On("PONG", d.handlePong)
	d.On("ERROR", d.handleError)
	d.On("UID", d.handleUID)
	d.On("SID", d.handleSID)
	d.On("SJOIN", d.handleSJOIN)
	d.On("JOIN", d.handleJOIN)
	d.On("PART", d.handlePart)
	d.On("QUIT", d.handleQuit)
	d.On("NICK", d.handleNick)
	d.On("KILL", d.handleKill)
	d.On("SQUIT", d.handleSquit)
	d.On("MODE", d.handleMode)
	d.On("TMODE", d.handleMode)
	d.On("TOPIC", d.handleTopic)
	d.On("PRIVMSG", d.handlePrivmsg)
	d.On("NOTICE", d.handleNotice)
	d.On("EOS", d.handleEOS)
	d.AliasHook("EOS", "ENDBURST")
	d.On("WHOIS", d.handleWhois)

	return d
}

func (d *TS6) PostConnect(nh NetworkHandle) error {
	nh.Send(fmt.Sprintf("PASS * TS 6 :%s", nh.SID()))
	nh.Send("CAPAB :QS EX IE KLN UNKLN ENCAP SERVICES EUID")
	nh.Send(fmt.Sprintf("SERVER %s 1 :services", nh.Name()))
	nh.Send(fmt.Sprintf("SVINFO 6 6 0 %d", 0))
	return nil
}

func (d *TS6) PingUplink(nh NetworkHandle) {
	nh.Send(fmt.Sprintf("PING :%s", nh.SID()))
}

func (d *TS6) SpawnClient(nh NetworkHandle, opts SpawnClientOpts) (ids.UID, error) {
	if err := d.RequireCap("can-spawn-clients"); err != nil {
		return "", err
	}

	server := opts.Server
	if server == "" {
		server = nh.SID()
	}

	uid, err := nh.TS6Gen().NextUID(server)
	if err != nil {
		return "", err
	}

	store := nh.Store()
	u := &state.User{
		UID: uid, Nick: opts.Nick, Ident: opts.Ident, Host: opts.Host,
		IP: opts.IP, RealName: opts.RealName, TS: opts.TS,
		ServerSID: server, Modes: map[byte]state.ModeArg{}, Channels: map[string]struct{}{},
		OperType: opts.OperType, Manipulatable: opts.Manipulatable,
	}
	store.Users[uid] = u
	store.NickToUID[store.ToLower(opts.Nick)] = uid
	store.ApplyModes(u, opts.Modes)

	if srv, ok := store.Servers[server]; ok {
		srv.Users[uid] = struct{}{}
	}

	// <SID> UID <nick> <hopcount> <ts> <umodes> <user> <host> <ip> <uid> :<gecos>
	nh.Send(fmt.Sprintf(":%s UID %s 1 %d %s %s %s %s %s :%s",
		server, opts.Nick, opts.TS, u.ModesString(), opts.Ident, opts.Host, opts.IP, uid, opts.RealName))

	return uid, nil
}

func (d *TS6) SpawnServer(nh NetworkHandle, opts SpawnServerOpts) (ids.SID, error) {
	uplink := opts.Uplink
	if uplink == "" {
		uplink = nh.SID()
	}
	store := nh.Store()
	if _, exists := store.Servers[opts.SID]; exists {
		return "", fmt.Errorf("a server named %s already exists", opts.SID)
	}
	store.Servers[opts.SID] = &state.Server{
		SID: opts.SID, Name: opts.Name, Description: opts.Desc,
		UplinkSID: uplink, Internal: true, Users: map[ids.UID]struct{}{},
	}
	nh.Send(fmt.Sprintf(":%s SID %s 2 %s :%s", uplink, opts.Name, opts.SID, opts.Desc))
	return opts.SID, nil
}

func (d *TS6) Join(nh NetworkHandle, uid ids.UID, channel string) error {
	store := nh.Store()
	c, _ := store.GetOrCreateChannel(channel, 0)
	c.Users[uid] = struct{}{}
	if u, ok := store.Users[uid]; ok {
		u.Channels[c.Name] = struct{}{}
	}
	nh.Send(fmt.Sprintf(":%s JOIN %d %s +", uid, c.TS, c.Name))
	return nil
}

func (d *TS6) SJoin(nh NetworkHandle, sid ids.SID, channel string, ts int64, modes string, users []PrefixedUID) error {
	store := nh.Store()
	c, created := store.GetOrCreateChannel(channel, ts)

	grantPrefixes := true
	if !created {
		var dropOurs bool
		grantPrefixes, dropOurs = ReconcileSJOINTS(c, ts)
		if dropOurs {
			c.Modes = map[byte]state.ModeArg{}
		}
	}

	for _, pu := range users {
		c.Users[pu.UID] = struct{}{}
		if u, ok := store.Users[pu.UID]; ok {
			u.Channels[c.Name] = struct{}{}
		}
		if grantPrefixes && pu.Prefixes != "" {
			set := map[byte]struct{}{}
			for i := 0; i < len(pu.Prefixes); i++ {
				set[sjoinPrefixToMode(pu.Prefixes[i])] = struct{}{}
			}
			c.PrefixModes[pu.UID] = set
		}
	}

	var userTokens []string
	for _, pu := range users {
		userTokens = append(userTokens, pu.Prefixes+string(pu.UID))
	}

	nh.Send(fmt.Sprintf(":%s SJOIN %d %s %s :%s", sid, ts, channel, modes, strings.Join(userTokens, " ")))
	return nil
}

func sjoinPrefixToMode(c byte) byte {
	switch c {
	case '@':
		return 'o'
	case '+':
		return 'v'
	case '%':
		return 'h'
	}
	return c
}

func (d *TS6) Part(nh NetworkHandle, uid ids.UID, channel, reason string) error {
	store := nh.Store()
	key := store.ToLower(channel)
	if c, ok := store.Channels[key]; ok {
		delete(c.Users, uid)
		delete(c.PrefixModes, uid)
	}
	if u, ok := store.Users[uid]; ok {
		delete(u.Channels, key)
	}
	store.GCChannel(key)
	nh.Send(fmt.Sprintf(":%s PART %s :%s", uid, channel, reason))
	return nil
}

func (d *TS6) Quit(nh NetworkHandle, uid ids.UID, reason string) error {
	nh.Store().RemoveClient(uid)
	nh.Send(fmt.Sprintf(":%s QUIT :%s", uid, reason))
	return nil
}

func (d *TS6) Kill(nh NetworkHandle, source, target ids.UID, reason string) error {
	nh.Store().RemoveClient(target)
	nh.Send(fmt.Sprintf(":%s KILL %s :%s", source, target, FormatKillReason(string(source), reason)))
	return nil
}

func (d *TS6) Message(nh NetworkHandle, source, target, text string, notice bool) error {
	cmd := "PRIVMSG"
	if notice {
		cmd = "NOTICE"
	}
	nh.Send(FormatLine(source, cmd, ExpandPUID(nh, ids.UID(target)), text))
	return nil
}

func (d *TS6) Mode(nh NetworkHandle, source, target string, changes []state.ParsedModeChange, ts int64) error {
	store := nh.Store()

	prefix := []string{target}
	if c, ok := store.Channels[store.ToLower(target)]; ok {
		store.ApplyModes(c, changes)
		prefix = []string{target, fmt.Sprintf("%d", ts)}
	} else if u, ok := store.Users[ids.UID(target)]; ok {
		store.ApplyModes(u, changes)
	}

	for _, line := range WrapModes(prefix, changes, d.maxModesPerMsg, d.s2sBufSize) {
		nh.Send(fmt.Sprintf(":%s %s", source, line))
	}
	return nil
}

func (d *TS6) Topic(nh NetworkHandle, uid ids.UID, channel, text string) error {
	store := nh.Store()
	if c, ok := store.Channels[store.ToLower(channel)]; ok {
		c.Topic = text
		c.TopicSet = true
	}
	nh.Send(FormatLine(string(uid), "TOPIC", channel, text))
	return nil
}

func (d *TS6) TopicBurst(nh NetworkHandle, sid ids.SID, channel, text string) error {
	store := nh.Store()
	if c, ok := store.Channels[store.ToLower(channel)]; ok {
		c.Topic = text
		c.TopicSet = true
	}
	nh.Send(FormatLine(string(sid), "TB", channel, "0", text))
	return nil
}

func (d *TS6) UpdateClient(nh NetworkHandle, uid ids.UID, field, value string) error {
	u, ok := nh.Store().Users[uid]
	if !ok {
		return netlinkerr.NewNotFoundError("user", string(uid))
	}
	switch field {
	case FieldIdent:
		u.Ident = value
		nh.Send(fmt.Sprintf(":%s CHGIDENT %s %s", nh.SID(), uid, value))
	case FieldHost:
		u.Host = value
		nh.Send(fmt.Sprintf(":%s CHGHOST %s %s", nh.SID(), uid, value))
	case FieldRealName:
		u.RealName = value
		nh.Send(fmt.Sprintf(":%s CHGNAME %s :%s", nh.SID(), uid, value))
	default:
		return netlinkerr.NewNotSupportedError(d.Name(), "update_client field "+field)
	}
	return nil
}

func (d *TS6) Knock(nh NetworkHandle, uid ids.UID, channel, text string) error {
	nh.Send(fmt.Sprintf(":%s NOTICE @%s :[Knock] %s (%s)", uid, channel, text, channel))
	return nil
}

func (d *TS6) Squit(nh NetworkHandle, source, target ids.SID, reason string) (*SquitResult, error) {
	result, err := Squit(nh, target, reason)
	if err != nil {
		return nil, err
	}
	nh.Send(fmt.Sprintf(":%s SQUIT %s :%s", source, target, reason))
	return result, nil
}

func (d *TS6) SetServerBan(nh NetworkHandle, source ids.SID, duration int64, user, host, reason string) error {
	nh.Send(fmt.Sprintf(":%s KLINE %d %s %s :%s", source, duration, user, host, reason))
	return nil
}

// --- handlers ---

func (d *TS6) handlePing(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("malformed PING")
	}
	if err := nh.SendNow(fmt.Sprintf(":%s PONG %s :%s", nh.SID(), nh.SID(), args[0])); err != nil {
		return nil, err
	}
	return nil, nil
}

func (d *TS6) handlePong(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	return nil, nil
}

func (d *TS6) handleError(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	msg := ""
	if len(args) > 0 {
		msg = args[len(args)-1]
	}
	nh.Fatal(netlinkerr.NewProtocolError(nh.Name(), "ERROR from uplink: "+msg, nil))
	return nil, nil
}

// handleUID processes `:<sid> UID <nick> <hopcount> <ts> <umodes> <user> <host> <ip> <uid> :<gecos>`.
// Collision handling does not resolve locally per §4.3.4: a colliding nick
// emits a SAVE hook instead, leaving resolution to plugins (e.g. a relay
// retagging its own virtual clients).
func (d *TS6) handleUID(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 8 {
		return nil, fmt.Errorf("malformed UID: %v", args)
	}
	nick := args[0]
	ts, err := ParseInt64Arg(args, 2)
	if err != nil {
		return nil, err
	}
	umodes := args[3]
	ident := args[4]
	host := args[5]
	ip := args[6]
	uid := ids.UID(args[7])
	gecos := ""
	if len(args) > 8 {
		gecos = args[len(args)-1]
	}

	store := nh.Store()

	if existing, collide := store.NickToUID[store.ToLower(nick)]; collide {
		return EmitSaveCollision(nh, existing, uid)
	}

	u := &state.User{
		UID: uid, Nick: nick, Ident: ident, Host: host, IP: ip, RealName: gecos,
		TS: ts, ServerSID: ids.SID(sender), Modes: map[byte]state.ModeArg{}, Channels: map[string]struct{}{},
	}
	for i := 0; i < len(umodes); i++ {
		if umodes[i] == '+' {
			continue
		}
		u.Modes[umodes[i]] = state.ModeArg{}
	}
	store.Users[uid] = u
	store.NickToUID[store.ToLower(nick)] = uid
	if srv, ok := store.Servers[ids.SID(sender)]; ok {
		srv.Users[uid] = struct{}{}
	}

	return hook.Payload{"uid": uid, "nick": nick, "ts": ts, "ident": ident, "host": host, "ip": ip, "realname": gecos}, nil
}

func (d *TS6) handleSID(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("malformed SID: %v", args)
	}
	name := args[0]
	sid := ids.SID(args[2])
	desc := args[len(args)-1]

	store := nh.Store()
	store.Servers[sid] = &state.Server{SID: sid, Name: name, Description: desc, UplinkSID: ids.SID(sender)}

	return hook.Payload{"sid": sid, "name": name, "uplink": sender, "text": desc}, nil
}

func (d *TS6) handleSJOIN(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("malformed SJOIN: %v", args)
	}
	ts, err := ParseInt64Arg(args, 0)
	if err != nil {
		return nil, err
	}
	channel := args[1]
	modes := args[2]

	store := nh.Store()
	c, created := store.GetOrCreateChannel(channel, ts)

	grantPrefixes := true
	applyModes := true
	if !created {
		var dropOurs bool
		grantPrefixes, dropOurs = ReconcileSJOINTS(c, ts)
		applyModes = grantPrefixes
		if dropOurs {
			c.Modes = map[byte]state.ModeArg{}
		}
	}
	// Older-TS-wins clears c.Modes above then applies the incoming set as a
	// replacement; equal TS leaves c.Modes intact so the incoming set is
	// unioned in instead; ours-wins (!grantPrefixes) skips this entirely.
	if applyModes {
		applySimpleModeStringToChannel(c, modes)
	}

	var joined []ids.UID
	if len(args) > 3 {
		for _, tok := range strings.Fields(args[len(args)-1]) {
			i := 0
			for i < len(tok) && isPrefixChar(tok[i]) {
				i++
			}
			prefixes, uidStr := tok[:i], tok[i:]
			uid := ids.UID(uidStr)
			joined = append(joined, uid)
			c.Users[uid] = struct{}{}
			if u, ok := store.Users[uid]; ok {
				u.Channels[c.Name] = struct{}{}
			}
			if grantPrefixes && prefixes != "" {
				set := map[byte]struct{}{}
				for j := 0; j < len(prefixes); j++ {
					set[sjoinPrefixToMode(prefixes[j])] = struct{}{}
				}
				c.PrefixModes[uid] = set
			}
		}
	}

	return hook.Payload{"channel": channel, "ts": c.TS, "modes": modes, "users": joined}, nil
}

func isPrefixChar(c byte) bool {
	return c == '@' || c == '+' || c == '%' || c == '~' || c == '&'
}

func (d *TS6) handleJOIN(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("malformed JOIN: %v", args)
	}
	channel := args[1]
	store := nh.Store()
	c, _ := store.GetOrCreateChannel(channel, 0)
	uid := ids.UID(sender)
	c.Users[uid] = struct{}{}
	if u, ok := store.Users[uid]; ok {
		u.Channels[c.Name] = struct{}{}
	}
	return hook.Payload{"channel": channel, "uid": uid}, nil
}

func (d *TS6) handlePart(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("malformed PART: %v", args)
	}
	channel := args[0]
	reason := ""
	if len(args) > 1 {
		reason = args[len(args)-1]
	}

	store := nh.Store()
	key := store.ToLower(channel)
	uid := ids.UID(sender)
	if c, ok := store.Channels[key]; ok {
		delete(c.Users, uid)
		delete(c.PrefixModes, uid)
	}
	if u, ok := store.Users[uid]; ok {
		delete(u.Channels, key)
	}
	store.GCChannel(key)

	return hook.Payload{"channel": channel, "uid": uid, "text": reason}, nil
}

func (d *TS6) handleQuit(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	reason := ""
	if len(args) > 0 {
		reason = args[len(args)-1]
	}
	uid := ids.UID(sender)
	u := nh.Store().Users[uid]
	nh.Store().RemoveClient(uid)
	nick := sender
	if u != nil {
		nick = u.Nick
	}
	return hook.Payload{"uid": uid, "nick": nick, "text": reason}, nil
}

// handleNick handles a NICK change for an already-introduced UID. A
// colliding destination nick emits SAVE rather than resolving locally.
func (d *TS6) handleNick(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("malformed NICK: %v", args)
	}
	newNick := args[0]
	store := nh.Store()
	uid := ids.UID(sender)

	if existing, collide := store.NickToUID[store.ToLower(newNick)]; collide && existing != uid {
		return EmitSaveCollision(nh, existing, uid)
	}

	u, ok := store.Users[uid]
	if !ok {
		return nil, netlinkerr.NewNotFoundError("user", sender)
	}
	oldNick := u.Nick
	delete(store.NickToUID, store.ToLower(oldNick))
	u.Nick = newNick
	store.NickToUID[store.ToLower(newNick)] = uid
	if len(args) > 1 {
		if ts, err := ParseInt64Arg(args, 1); err == nil {
			u.TS = ts
		}
	}

	return hook.Payload{"uid": uid, "oldnick": oldNick, "newnick": newNick}, nil
}

func (d *TS6) handleKill(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("malformed KILL: %v", args)
	}
	target := ids.UID(args[0])
	reason := ""
	if len(args) > 1 {
		reason = args[len(args)-1]
	}
	nh.Store().RemoveClient(target)
	return hook.Payload{"target": target, "text": reason}, nil
}

func (d *TS6) handleSquit(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("malformed SQUIT: %v", args)
	}
	target := ids.SID(args[0])
	reason := ""
	if len(args) > 1 {
		reason = args[len(args)-1]
	}
	result, err := Squit(nh, target, reason)
	if err != nil {
		return nil, err
	}
	return hook.Payload{
		"target": result.Target, "name": result.Name, "uplink": result.Uplink,
		"users": result.Users, "nicks": result.Nicks,
	}, nil
}

func (d *TS6) handleMode(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("malformed MODE: %v", args)
	}
	target := args[0]
	modeStr := args[1]
	modeArgs := args[2:]

	changes, err := parseSimpleModeString(modeStr, modeArgs)
	if err != nil {
		return nil, err
	}

	store := nh.Store()
	if c, ok := store.Channels[store.ToLower(target)]; ok {
		store.ApplyModes(c, changes)
	} else if u, ok := store.Users[ids.UID(target)]; ok {
		store.ApplyModes(u, changes)
	}

	return hook.Payload{"target": target, "modes": modeStr, "args": modeArgs}, nil
}

// parseSimpleModeString parses a "+nt-s" style mode string with trailing
// args assigned to modes that need them, classifying prefix chars (o/v/h)
// as requiring a UID argument, the chars requiresArg names as taking a
// plain argument, and the rest as flags (sufficient for the handlers
// above; no per-network *A-*D class table is consulted).
func parseSimpleModeString(modeStr string, args []string) ([]state.ParsedModeChange, error) {
	var out []state.ParsedModeChange
	add := true
	argIdx := 0

	for i := 0; i < len(modeStr); i++ {
		c := modeStr[i]
		switch c {
		case '+':
			add = true
			continue
		case '-':
			add = false
			continue
		}

		change := state.ParsedModeChange{Add: add, Char: c}
		if c == 'o' || c == 'v' || c == 'h' {
			if argIdx < len(args) {
				change.Arg = args[argIdx]
				change.HasArg = true
				change.Prefix = true
				argIdx++
			}
		} else if requiresArg(c, add) {
			if argIdx < len(args) {
				change.Arg = args[argIdx]
				change.HasArg = true
				argIdx++
			}
		}
		out = append(out, change)
	}
	return out, nil
}

// requiresArg is a conservative guess at *B/*C class membership for the
// common TS6 channel modes; every dialect's mode parsing shares this one
// table.
func requiresArg(c byte, add bool) bool {
	switch c {
	case 'k', 'l', 'j', 'f':
		return true
	case 'b', 'e', 'I':
		return true
	}
	return false
}

func (d *TS6) handleTopic(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("malformed TOPIC: %v", args)
	}
	channel := args[0]
	text := ""
	if len(args) > 1 {
		text = args[len(args)-1]
	}
	store := nh.Store()
	if c, ok := store.Channels[store.ToLower(channel)]; ok {
		c.Topic = text
		c.TopicSet = true
	}
	return hook.Payload{"channel": channel, "text": text}, nil
}

func (d *TS6) handlePrivmsg(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	return d.handleMessage(nh, sender, args, false)
}

func (d *TS6) handleNotice(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	return d.handleMessage(nh, sender, args, true)
}

func (d *TS6) handleMessage(nh NetworkHandle, sender string, args []string, notice bool) (hook.Payload, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("malformed PRIVMSG/NOTICE: %v", args)
	}
	// PRIVMSG and NOTICE are registered as distinct handlers above, so
	// HandleEvents already tags the dispatched hook with the right command
	// name; no need to carry it in the payload too.
	return hook.Payload{"target": args[0], "text": args[len(args)-1]}, nil
}

func (d *TS6) handleEOS(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	nh.SetConnected()
	return hook.Payload{}, nil
}

func (d *TS6) handleWhois(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("malformed WHOIS: %v", args)
	}
	return hook.Payload{"target": args[len(args)-1]}, nil
}

