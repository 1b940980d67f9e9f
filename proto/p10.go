package proto

import (
	"fmt"

	"github.com/horgh/netlink/hook"
	"github.com/horgh/netlink/ids"
	"github.com/horgh/netlink/netlinkerr"
	"github.com/horgh/netlink/state"
)

// P10 implements the Nefarious/ircu family's P10 dialect. Its defining
// trait versus TS6 is numeric one-letter command tokens on the wire
// (translated to canonical names via BaseDialect.commandTokens, exactly
// the table the shared HandleEvents dispatch consults) and the EB
// end-of-burst token in place of TS6's EOS.
type P10 struct {
	*BaseDialect
}

// NewP10 constructs the P10 dialect.
func NewP10() *P10 {
	d := &P10{BaseDialect: NewBaseDialect("p10", 512, 20)}

	d.SetCap("can-spawn-clients")
	d.SetCap("has-ts")
	d.SetCap("can-host-relay")
	d.SetCap("can-track-servers")

	// One-letter wire tokens P10 servers commonly use in place of the full
	// command name, mapped to the canonical name the shared dispatch and
	// every handler below work with.
	d.Token("N", "NICK")
	d.Token("J", "JOIN")
	d.Token("L", "PART")
	d.Token("Q", "QUIT")
	d.Token("M", "MODE")
	d.Token("B", "PRIVMSG")
	d.Token("O", "NOTICE")
	d.Token("G", "PING")
	d.Token("Z", "PONG")
	d.Token("EB", "ENDBURST")
	d.Token("SQ", "SQUIT")
	d.Token("S", "SERVER")

	d.On("PING", d.handlePing)
	d.On("NICK", d.handleNick)
	d.On("JOIN", d.handleJoin)
	d.On("PART", d.handlePart)
	d.On("QUIT", d.handleQuit)
	d.On("MODE", d.handleMode)
	d.On("PRIVMSG", d.handleMessage)
	d.On("NOTICE", d.handleMessage)
	d.On("SQUIT", d.handleSquit)
	d.On("ENDBURST", d.handleEndburst)

	return d
}

func (d *P10) PostConnect(nh NetworkHandle) error {
	nh.Send(fmt.Sprintf("PASS :%s", nh.SID()))
	nh.Send(fmt.Sprintf("SERVER %s 1 0 0 J10 %s]]] 0 :services", nh.Name(), nh.SID()))
	return nil
}

func (d *P10) PingUplink(nh NetworkHandle) {
	nh.Send(fmt.Sprintf("%s G !%s %d", nh.SID(), nh.SID(), 0))
}

func (d *P10) SpawnClient(nh NetworkHandle, opts SpawnClientOpts) (ids.UID, error) {
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
	u := &state.User{UID: uid, Nick: opts.Nick, Ident: opts.Ident, Host: opts.Host,
		IP: opts.IP, RealName: opts.RealName, TS: opts.TS, ServerSID: server,
		Modes: map[byte]state.ModeArg{}, Channels: map[string]struct{}{}}
	store.Users[uid] = u
	store.NickToUID[store.ToLower(opts.Nick)] = uid
	store.ApplyModes(u, opts.Modes)
	nh.Send(fmt.Sprintf("%s N %s 1 %d %s %s +%s %s :%s",
		server, opts.Nick, opts.TS, opts.Ident, opts.Host, u.ModesString(), uid, opts.RealName))
	return uid, nil
}

func (d *P10) SpawnServer(nh NetworkHandle, opts SpawnServerOpts) (ids.SID, error) {
	uplink := opts.Uplink
	if uplink == "" {
		uplink = nh.SID()
	}
	store := nh.Store()
	store.Servers[opts.SID] = &state.Server{SID: opts.SID, Name: opts.Name, Description: opts.Desc,
		UplinkSID: uplink, Internal: true, Users: map[ids.UID]struct{}{}}
	nh.Send(fmt.Sprintf("%s S %s 1 0 0 J10 %s]]] 0 :%s", uplink, opts.Name, opts.SID, opts.Desc))
	return opts.SID, nil
}

func (d *P10) Join(nh NetworkHandle, uid ids.UID, channel string) error {
	store := nh.Store()
	c, _ := store.GetOrCreateChannel(channel, 0)
	c.Users[uid] = struct{}{}
	if u, ok := store.Users[uid]; ok {
		u.Channels[c.Name] = struct{}{}
	}
	nh.Send(fmt.Sprintf("%s J %s %d", uid, c.Name, c.TS))
	return nil
}

func (d *P10) SJoin(nh NetworkHandle, sid ids.SID, channel string, ts int64, modes string, users []PrefixedUID) error {
	store := nh.Store()
	c, created := store.GetOrCreateChannel(channel, ts)
	if !created {
		ReconcileSJOINTS(c, ts)
	}
	for _, pu := range users {
		c.Users[pu.UID] = struct{}{}
	}
	nh.Send(fmt.Sprintf("%s B %s %d", sid, channel, ts))
	return nil
}

func (d *P10) Part(nh NetworkHandle, uid ids.UID, channel, reason string) error {
	store := nh.Store()
	key := store.ToLower(channel)
	if c, ok := store.Channels[key]; ok {
		delete(c.Users, uid)
	}
	store.GCChannel(key)
	nh.Send(fmt.Sprintf("%s L %s", uid, channel))
	return nil
}

func (d *P10) Quit(nh NetworkHandle, uid ids.UID, reason string) error {
	nh.Store().RemoveClient(uid)
	nh.Send(fmt.Sprintf("%s Q :%s", uid, reason))
	return nil
}

func (d *P10) Kill(nh NetworkHandle, source, target ids.UID, reason string) error {
	nh.Store().RemoveClient(target)
	nh.Send(fmt.Sprintf("%s D %s :%s", source, target, FormatKillReason(string(source), reason)))
	return nil
}

func (d *P10) Message(nh NetworkHandle, source, target, text string, notice bool) error {
	cmd := "B"
	if notice {
		cmd = "O"
	}
	nh.Send(fmt.Sprintf("%s %s %s :%s", source, cmd, ExpandPUID(nh, ids.UID(target)), text))
	return nil
}

func (d *P10) Mode(nh NetworkHandle, source, target string, changes []state.ParsedModeChange, ts int64) error {
	for _, line := range WrapModes([]string{target}, changes, d.maxModesPerMsg, d.s2sBufSize) {
		nh.Send(fmt.Sprintf("%s %s", source, line))
	}
	return nil
}

func (d *P10) Topic(nh NetworkHandle, uid ids.UID, channel, text string) error {
	nh.Send(fmt.Sprintf("%s T %s %s", uid, channel, text))
	return nil
}

func (d *P10) TopicBurst(nh NetworkHandle, sid ids.SID, channel, text string) error {
	return d.Topic(nh, ids.UID(sid), channel, text)
}

func (d *P10) UpdateClient(nh NetworkHandle, uid ids.UID, field, value string) error {
	return netlinkerr.NewNotSupportedError(d.Name(), "update-client-"+field)
}

func (d *P10) Knock(nh NetworkHandle, uid ids.UID, channel, text string) error {
	nh.Send(fmt.Sprintf("%s O %s :[Knock] %s", uid, channel, text))
	return nil
}

func (d *P10) Squit(nh NetworkHandle, source, target ids.SID, reason string) (*SquitResult, error) {
	// P10/Nefarious sometimes sends the uplink SID as the SQUIT target;
	// Squit() already checks both self and uplink per §4.3.2's edge case.
	result, err := Squit(nh, target, reason)
	if err != nil {
		return nil, err
	}
	nh.Send(fmt.Sprintf("%s SQ %s 0 :%s", source, target, reason))
	return result, nil
}

func (d *P10) SetServerBan(nh NetworkHandle, source ids.SID, duration int64, user, host, reason string) error {
	nh.Send(fmt.Sprintf("%s GL * +%s@%s %d :%s", source, user, host, duration, reason))
	return nil
}

func (d *P10) handlePing(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}
	_ = nh.SendNow(fmt.Sprintf("%s Z %s %s", nh.SID(), sender, arg))
	return nil, nil
}

func (d *P10) handleNick(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("malformed NICK: %v", args)
	}
	store := nh.Store()

	// A NICK with more than one argument is an introduction (new user); a
	// lone-argument NICK is a nick change on an already-known numnick.
	if len(args) == 1 {
		uid := ids.UID(sender)
		newNick := args[0]
		if existing, collide := store.NickToUID[store.ToLower(newNick)]; collide && existing != uid {
			return EmitSaveCollision(nh, existing, uid)
		}
		u, ok := store.Users[uid]
		if !ok {
			return nil, fmt.Errorf("nick change for unknown numnick %s", sender)
		}
		delete(store.NickToUID, store.ToLower(u.Nick))
		oldNick := u.Nick
		u.Nick = newNick
		store.NickToUID[store.ToLower(newNick)] = uid
		return hook.Payload{"uid": uid, "oldnick": oldNick, "newnick": newNick}, nil
	}

	nick := args[0]
	numnick := ids.UID(args[len(args)-2])
	if existing, collide := store.NickToUID[store.ToLower(nick)]; collide {
		return EmitSaveCollision(nh, existing, numnick)
	}

	u := &state.User{UID: numnick, Nick: nick, ServerSID: ids.SID(sender),
		Modes: map[byte]state.ModeArg{}, Channels: map[string]struct{}{}}
	store.Users[numnick] = u
	store.NickToUID[store.ToLower(nick)] = numnick
	return hook.Payload{"uid": numnick, "nick": nick}, nil
}

func (d *P10) handleJoin(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("malformed JOIN: %v", args)
	}
	channel := args[0]
	store := nh.Store()
	c, _ := store.GetOrCreateChannel(channel, 0)
	uid := ids.UID(sender)
	c.Users[uid] = struct{}{}
	if u, ok := store.Users[uid]; ok {
		u.Channels[c.Name] = struct{}{}
	}
	return hook.Payload{"channel": channel, "uid": uid}, nil
}

func (d *P10) handlePart(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("malformed PART: %v", args)
	}
	channel := args[0]
	store := nh.Store()
	key := store.ToLower(channel)
	uid := ids.UID(sender)
	if c, ok := store.Channels[key]; ok {
		delete(c.Users, uid)
	}
	if u, ok := store.Users[uid]; ok {
		delete(u.Channels, key)
	}
	store.GCChannel(key)
	return hook.Payload{"channel": channel, "uid": uid}, nil
}

func (d *P10) handleQuit(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	reason := ""
	if len(args) > 0 {
		reason = args[len(args)-1]
	}
	uid := ids.UID(sender)
	nh.Store().RemoveClient(uid)
	return hook.Payload{"uid": uid, "text": reason}, nil
}

func (d *P10) handleMode(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("malformed MODE: %v", args)
	}
	return hook.Payload{"target": args[0], "modes": args[1], "args": args[2:]}, nil
}

func (d *P10) handleMessage(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("malformed PRIVMSG/NOTICE: %v", args)
	}
	return hook.Payload{"target": args[0], "text": args[len(args)-1]}, nil
}

func (d *P10) handleSquit(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
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
	return hook.Payload{"target": result.Target, "users": result.Users, "nicks": result.Nicks}, nil
}

func (d *P10) handleEndburst(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	nh.SetConnected()
	return hook.Payload{}, nil
}
