package proto

import (
	"fmt"
	"strings"

	"github.com/horgh/netlink/hook"
	"github.com/horgh/netlink/ids"
	"github.com/horgh/netlink/netlinkerr"
	"github.com/horgh/netlink/state"
)

// Ngircd implements the ngIRCd S2S dialect. ngIRCd has no SID concept at
// all (the server's own name doubles as its identity on the wire) and
// therefore no numeric UIDs either - clients are addressed by nick, and
// any opaque identifier this core needs to hand out (for a PUID relay
// user, say) is synthesized rather than assigned by the far end. Its
// end-of-burst signal is not a dedicated command: per the original
// PyLink implementation, ngIRCd servers only ever send their first PING
// after the burst finishes, so that is what End-of-burst detection keys
// off of here. spawn_server is unimplemented upstream (the relevant
// PyLink code is literally commented out) so NGIRCD reports it as
// unsupported rather than pretending to honor it.
type Ngircd struct {
	*BaseDialect
	hasEOB bool
}

// NewNgircd constructs the ngIRCd dialect.
func NewNgircd() *Ngircd {
	d := &Ngircd{BaseDialect: NewBaseDialect("ngircd", 510, 10)}

	d.SetCap("can-spawn-clients")
	d.SetCap("has-ts")
	// ngIRCd has no SID/server tree tracking in the sense TS6/P10/Unreal do.
	d.RemoveCap("can-track-servers")

	d.On("PING", d.handlePing)
	d.On("PONG", d.handlePong)
	d.On("NICK", d.handleNick)
	d.On("SERVER", d.handleServer)
	d.On("JOIN", d.handleJoin)
	d.On("PART", d.handlePart)
	d.On("QUIT", d.handleQuit)
	d.On("KILL", d.handleKill)
	d.On("SQUIT", d.handleSquit)
	d.On("MODE", d.handleMode)
	d.On("TOPIC", d.handleTopic)
	d.On("PRIVMSG", d.handlePrivmsg)
	d.On("NOTICE", d.handleNotice)

	return d
}

func (d *Ngircd) PostConnect(nh NetworkHandle) error {
	nh.Send(fmt.Sprintf("PASS :%s", nh.Name()))
	nh.Send(fmt.Sprintf("SERVER %s 1 :services", nh.Name()))
	return nil
}

func (d *Ngircd) PingUplink(nh NetworkHandle) {
	nh.Send(fmt.Sprintf("PING %s", nh.Name()))
}

func (d *Ngircd) SpawnClient(nh NetworkHandle, opts SpawnClientOpts) (ids.UID, error) {
	if err := d.RequireCap("can-spawn-clients"); err != nil {
		return "", err
	}
	// No numeric UID namespace; the PUID generator stands in as this
	// dialect's identifier scheme, keyed off our own server name.
	uid := nh.PUIDGen().Next(nh.Name())
	store := nh.Store()
	u := &state.User{UID: uid, Nick: opts.Nick, Ident: opts.Ident, Host: opts.Host,
		RealName: opts.RealName, TS: opts.TS, ServerSID: nh.SID(),
		Modes: map[byte]state.ModeArg{}, Channels: map[string]struct{}{}}
	store.Users[uid] = u
	store.NickToUID[store.ToLower(opts.Nick)] = uid
	store.ApplyModes(u, opts.Modes)

	nh.Send(fmt.Sprintf("NICK %s 1 %s %s 1 +%s :%s",
		opts.Nick, opts.Ident, opts.Host, u.ModesString(), opts.RealName))
	return uid, nil
}

// SpawnServer always fails: ngIRCd's upstream implementation never
// finished this (the PyLink method body is a stub with the real logic
// commented out), so there is nothing faithful to emulate here.
func (d *Ngircd) SpawnServer(nh NetworkHandle, opts SpawnServerOpts) (ids.SID, error) {
	return "", netlinkerr.NewNotSupportedError(d.Name(), "spawn-server")
}

func (d *Ngircd) Join(nh NetworkHandle, uid ids.UID, channel string) error {
	store := nh.Store()
	c, _ := store.GetOrCreateChannel(channel, 0)
	c.Users[uid] = struct{}{}
	if u, ok := store.Users[uid]; ok {
		u.Channels[c.Name] = struct{}{}
		nh.Send(fmt.Sprintf(":%s JOIN %s", u.Nick, channel))
	}
	return nil
}

func (d *Ngircd) SJoin(nh NetworkHandle, sid ids.SID, channel string, ts int64, modes string, users []PrefixedUID) error {
	// ngIRCd has no SJOIN/burst-join of its own; bursts are just a run of
	// plain JOINs, so SJoin degrades to repeated Join calls.
	for _, pu := range users {
		if err := d.Join(nh, pu.UID, channel); err != nil {
			return err
		}
	}
	return nil
}

func (d *Ngircd) Part(nh NetworkHandle, uid ids.UID, channel, reason string) error {
	store := nh.Store()
	key := store.ToLower(channel)
	nick := string(uid)
	if u, ok := store.Users[uid]; ok {
		nick = u.Nick
		delete(u.Channels, key)
	}
	if c, ok := store.Channels[key]; ok {
		delete(c.Users, uid)
	}
	store.GCChannel(key)
	nh.Send(fmt.Sprintf(":%s PART %s :%s", nick, channel, reason))
	return nil
}

func (d *Ngircd) Quit(nh NetworkHandle, uid ids.UID, reason string) error {
	store := nh.Store()
	nick := string(uid)
	if u, ok := store.Users[uid]; ok {
		nick = u.Nick
	}
	store.RemoveClient(uid)
	nh.Send(fmt.Sprintf(":%s QUIT :%s", nick, reason))
	return nil
}

func (d *Ngircd) Kill(nh NetworkHandle, source, target ids.UID, reason string) error {
	store := nh.Store()
	targetNick := string(target)
	if u, ok := store.Users[target]; ok {
		targetNick = u.Nick
	}
	sourceNick := string(source)
	if u, ok := store.Users[source]; ok {
		sourceNick = u.Nick
	}
	store.RemoveClient(target)
	nh.Send(fmt.Sprintf(":%s KILL %s :%s", sourceNick, targetNick, FormatKillReason(sourceNick, reason)))
	return nil
}

func (d *Ngircd) Message(nh NetworkHandle, source, target, text string, notice bool) error {
	cmd := "PRIVMSG"
	if notice {
		cmd = "NOTICE"
	}
	nh.Send(fmt.Sprintf(":%s %s %s :%s", source, cmd, ExpandPUID(nh, ids.UID(target)), text))
	return nil
}

func (d *Ngircd) Mode(nh NetworkHandle, source, target string, changes []state.ParsedModeChange, ts int64) error {
	for _, line := range WrapModes([]string{target}, changes, d.maxModesPerMsg, d.s2sBufSize) {
		nh.Send(fmt.Sprintf(":%s %s", source, line))
	}
	return nil
}

func (d *Ngircd) Topic(nh NetworkHandle, uid ids.UID, channel, text string) error {
	nick := string(uid)
	if u, ok := nh.Store().Users[uid]; ok {
		nick = u.Nick
	}
	nh.Send(fmt.Sprintf(":%s TOPIC %s :%s", nick, channel, text))
	return nil
}

func (d *Ngircd) TopicBurst(nh NetworkHandle, sid ids.SID, channel, text string) error {
	nh.Send(fmt.Sprintf(":%s TOPIC %s :%s", nh.Name(), channel, text))
	return nil
}

func (d *Ngircd) UpdateClient(nh NetworkHandle, uid ids.UID, field, value string) error {
	return netlinkerr.NewNotSupportedError(d.Name(), "update-client-"+field)
}

func (d *Ngircd) Knock(nh NetworkHandle, uid ids.UID, channel, text string) error {
	return netlinkerr.NewNotSupportedError(d.Name(), "knock")
}

func (d *Ngircd) Squit(nh NetworkHandle, source, target ids.SID, reason string) (*SquitResult, error) {
	result, err := Squit(nh, target, reason)
	if err != nil {
		return nil, err
	}
	nh.Send(fmt.Sprintf("SQUIT %s :%s", result.Name, reason))
	return result, nil
}

func (d *Ngircd) SetServerBan(nh NetworkHandle, source ids.SID, duration int64, user, host, reason string) error {
	nh.Send(fmt.Sprintf("GLINE %s@%s :%s", user, host, reason))
	return nil
}

func (d *Ngircd) handlePing(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	arg := nh.Name()
	if len(args) > 0 {
		arg = args[0]
	}
	_ = nh.SendNow(fmt.Sprintf("PONG %s :%s", nh.Name(), arg))

	// ngIRCd never sends an explicit end-of-burst marker; the first PING
	// after link is it. Fire the canonical ENDBURST hook directly, since
	// this command is otherwise dispatched under the PING name.
	if !d.hasEOB {
		d.hasEOB = true
		nh.SetConnected()
		nh.EmitHook("ENDBURST", hook.Payload{"endburst": true})
	}
	return nil, nil
}

func (d *Ngircd) handlePong(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	return nil, nil
}

func (d *Ngircd) handleServer(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("malformed SERVER: %v", args)
	}
	name := args[0]
	// ngIRCd servers are identified by name; we reuse the name itself as
	// the map key (SID type), since there is no distinct SID namespace.
	nh.Store().Servers[ids.SID(name)] = &state.Server{SID: ids.SID(name), Name: name,
		Description: args[len(args)-1], Users: map[ids.UID]struct{}{}}
	return hook.Payload{"name": name}, nil
}

func (d *Ngircd) handleNick(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("malformed NICK: %v", args)
	}
	store := nh.Store()

	if len(args) == 1 {
		newNick := args[0]
		uid, ok := store.NickToUID[store.ToLower(sender)]
		if !ok {
			return nil, fmt.Errorf("nick change from unknown sender %s", sender)
		}
		if existing, collide := store.NickToUID[store.ToLower(newNick)]; collide && existing != uid {
			return EmitSaveCollision(nh, existing, uid)
		}
		u := store.Users[uid]
		delete(store.NickToUID, store.ToLower(u.Nick))
		old := u.Nick
		u.Nick = newNick
		store.NickToUID[store.ToLower(newNick)] = uid
		return hook.Payload{"uid": uid, "oldnick": old, "newnick": newNick}, nil
	}

	nick := args[0]
	if existing, collide := store.NickToUID[store.ToLower(nick)]; collide {
		// synthesize a placeholder UID reference for the SAVE payload since
		// ngIRCd carries no opaque identifier of its own.
		return EmitSaveCollision(nh, existing, nh.PUIDGen().Next(sender))
	}

	uid := nh.PUIDGen().Next(sender)
	u := &state.User{UID: uid, Nick: nick, Ident: args[1], Host: valueOr(args, 2, ""),
		ServerSID: ids.SID(sender), Modes: map[byte]state.ModeArg{}, Channels: map[string]struct{}{}}
	store.Users[uid] = u
	store.NickToUID[store.ToLower(nick)] = uid
	if s, ok := store.Servers[ids.SID(sender)]; ok {
		s.Users[uid] = struct{}{}
	}
	return hook.Payload{"uid": uid, "nick": nick}, nil
}

func valueOr(args []string, i int, def string) string {
	if i < len(args) {
		return args[i]
	}
	return def
}

func (d *Ngircd) handleJoin(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("malformed JOIN: %v", args)
	}
	store := nh.Store()
	uid, ok := store.NickToUID[store.ToLower(sender)]
	if !ok {
		return nil, fmt.Errorf("JOIN from unknown nick %s", sender)
	}
	var channels []string
	for _, channel := range strings.Split(args[0], ",") {
		c, _ := store.GetOrCreateChannel(channel, 0)
		c.Users[uid] = struct{}{}
		store.Users[uid].Channels[c.Name] = struct{}{}
		channels = append(channels, channel)
	}
	return hook.Payload{"channels": channels, "uid": uid}, nil
}

func (d *Ngircd) handlePart(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("malformed PART: %v", args)
	}
	store := nh.Store()
	uid, ok := store.NickToUID[store.ToLower(sender)]
	if !ok {
		return nil, fmt.Errorf("PART from unknown nick %s", sender)
	}
	key := store.ToLower(args[0])
	if c, ok := store.Channels[key]; ok {
		delete(c.Users, uid)
	}
	delete(store.Users[uid].Channels, key)
	store.GCChannel(key)
	return hook.Payload{"channel": args[0], "uid": uid}, nil
}

func (d *Ngircd) handleQuit(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	store := nh.Store()
	uid, ok := store.NickToUID[store.ToLower(sender)]
	if !ok {
		return nil, nil
	}
	reason := ""
	if len(args) > 0 {
		reason = args[len(args)-1]
	}
	store.RemoveClient(uid)
	return hook.Payload{"uid": uid, "text": reason}, nil
}

func (d *Ngircd) handleKill(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("malformed KILL: %v", args)
	}
	store := nh.Store()
	uid, ok := store.NickToUID[store.ToLower(args[0])]
	if !ok {
		return nil, nil
	}
	reason := ""
	if len(args) > 1 {
		reason = args[len(args)-1]
	}
	store.RemoveClient(uid)
	return hook.Payload{"target": uid, "text": reason}, nil
}

func (d *Ngircd) handleSquit(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("malformed SQUIT: %v", args)
	}
	result, err := Squit(nh, ids.SID(args[0]), valueOr(args, len(args)-1, ""))
	if err != nil {
		return nil, err
	}
	return hook.Payload{"target": result.Target, "users": result.Users, "nicks": result.Nicks}, nil
}

func (d *Ngircd) handleMode(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("malformed MODE: %v", args)
	}
	target := args[0]
	changes, err := parseSimpleModeString(args[1], args[2:])
	if err != nil {
		return nil, err
	}
	store := nh.Store()
	if uid, ok := store.NickToUID[store.ToLower(target)]; ok {
		store.ApplyModes(store.Users[uid], changes)
	} else if c, ok := store.Channels[store.ToLower(target)]; ok {
		store.ApplyModes(c, changes)
	}
	return hook.Payload{"target": target, "modes": args[1]}, nil
}

func (d *Ngircd) handleTopic(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("malformed TOPIC: %v", args)
	}
	text := args[len(args)-1]
	store := nh.Store()
	if c, ok := store.Channels[store.ToLower(args[0])]; ok {
		c.Topic = text
		c.TopicSet = true
	}
	return hook.Payload{"channel": args[0], "setter": sender, "text": text}, nil
}

func (d *Ngircd) handlePrivmsg(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("malformed PRIVMSG: %v", args)
	}
	return hook.Payload{"target": args[0], "text": args[len(args)-1]}, nil
}

func (d *Ngircd) handleNotice(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("malformed NOTICE: %v", args)
	}
	return hook.Payload{"target": args[0], "text": args[len(args)-1]}, nil
}
