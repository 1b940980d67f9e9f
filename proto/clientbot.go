package proto

import (
	"fmt"
	"strings"

	"github.com/horgh/netlink/hook"
	"github.com/horgh/netlink/ids"
	"github.com/horgh/netlink/netlinkerr"
	"github.com/horgh/netlink/state"
)

// Clientbot implements the Clientbot dialect: instead of linking as a
// server, this core connects to the remote network as an ordinary client
// connection and relays through that single nick. It never spawns
// clients or tracks a server tree of its own, and - unlike the federation
// dialects, which mostly ignore ISUPPORT because TS6/P10/Unreal already
// know their own mode tables - Clientbot has no a-priori knowledge of the
// remote network's conventions, so it leans on the shared ISUPPORT
// parsing helpers to learn CHANMODES/PREFIX/CASEMAPPING from the 005
// burst.
type Clientbot struct {
	*BaseDialect
	prefixModes map[byte]string
	ownNick     string
}

// NewClientbot constructs the Clientbot dialect.
func NewClientbot() *Clientbot {
	d := &Clientbot{BaseDialect: NewBaseDialect("clientbot", 510, 4), prefixModes: map[byte]string{}}

	d.use005Handling = true

	d.On("001", d.handleWelcome)
	d.On("005", d.handleISupport)
	d.On("PING", d.handlePing)
	d.On("PONG", d.handlePong)
	d.On("JOIN", d.handleJoin)
	d.On("PART", d.handlePart)
	d.On("QUIT", d.handleQuit)
	d.On("KICK", d.handleKick)
	d.On("NICK", d.handleNick)
	d.On("MODE", d.handleMode)
	d.On("TOPIC", d.handleTopic)
	d.On("PRIVMSG", d.handlePrivmsg)
	d.On("NOTICE", d.handleNotice)
	d.On("ERROR", d.handleError)

	return d
}

func (d *Clientbot) PostConnect(nh NetworkHandle) error {
	nh.Send(fmt.Sprintf("NICK %s", nh.Name()))
	nh.Send(fmt.Sprintf("USER %s 0 * :%s", nh.Name(), nh.Name()))
	return nil
}

func (d *Clientbot) PingUplink(nh NetworkHandle) {
	nh.Send(fmt.Sprintf("PING :%s", nh.Name()))
}

// SpawnClient is unsupported: a Clientbot connection is a single client
// session, not a server link that can introduce more clients.
func (d *Clientbot) SpawnClient(nh NetworkHandle, opts SpawnClientOpts) (ids.UID, error) {
	return "", netlinkerr.NewNotSupportedError(d.Name(), "spawn-client")
}

func (d *Clientbot) SpawnServer(nh NetworkHandle, opts SpawnServerOpts) (ids.SID, error) {
	return "", netlinkerr.NewNotSupportedError(d.Name(), "spawn-server")
}

func (d *Clientbot) Join(nh NetworkHandle, uid ids.UID, channel string) error {
	nh.Send(fmt.Sprintf("JOIN %s", channel))
	return nil
}

func (d *Clientbot) SJoin(nh NetworkHandle, sid ids.SID, channel string, ts int64, modes string, users []PrefixedUID) error {
	return netlinkerr.NewNotSupportedError(d.Name(), "sjoin")
}

func (d *Clientbot) Part(nh NetworkHandle, uid ids.UID, channel, reason string) error {
	nh.Send(fmt.Sprintf("PART %s :%s", channel, reason))
	return nil
}

// Quit closes the single client connection this dialect owns.
func (d *Clientbot) Quit(nh NetworkHandle, uid ids.UID, reason string) error {
	nh.Send(fmt.Sprintf("QUIT :%s", reason))
	return nil
}

func (d *Clientbot) Kill(nh NetworkHandle, source, target ids.UID, reason string) error {
	return netlinkerr.NewNotSupportedError(d.Name(), "kill")
}

func (d *Clientbot) Message(nh NetworkHandle, source, target, text string, notice bool) error {
	cmd := "PRIVMSG"
	if notice {
		cmd = "NOTICE"
	}
	nh.Send(fmt.Sprintf("%s %s :%s", cmd, target, text))
	return nil
}

// Mode is best-effort: Clientbot only has one client's worth of
// privilege, so mode changes go out as a plain MODE line and may simply
// be refused by the remote network.
func (d *Clientbot) Mode(nh NetworkHandle, source, target string, changes []state.ParsedModeChange, ts int64) error {
	for _, line := range WrapModes([]string{target}, changes, d.maxModesPerMsg, d.s2sBufSize) {
		nh.Send(line)
	}
	return nil
}

func (d *Clientbot) Topic(nh NetworkHandle, uid ids.UID, channel, text string) error {
	nh.Send(fmt.Sprintf("TOPIC %s :%s", channel, text))
	return nil
}

func (d *Clientbot) TopicBurst(nh NetworkHandle, sid ids.SID, channel, text string) error {
	return netlinkerr.NewNotSupportedError(d.Name(), "topic-burst")
}

func (d *Clientbot) UpdateClient(nh NetworkHandle, uid ids.UID, field, value string) error {
	if field != FieldRealName {
		return netlinkerr.NewNotSupportedError(d.Name(), "update-client-"+field)
	}
	return nil
}

func (d *Clientbot) Knock(nh NetworkHandle, uid ids.UID, channel, text string) error {
	nh.Send(fmt.Sprintf("NOTICE @%s :[Knock] %s", channel, text))
	return nil
}

func (d *Clientbot) Squit(nh NetworkHandle, source, target ids.SID, reason string) (*SquitResult, error) {
	return nil, netlinkerr.NewNotSupportedError(d.Name(), "squit")
}

func (d *Clientbot) SetServerBan(nh NetworkHandle, source ids.SID, duration int64, user, host, reason string) error {
	return netlinkerr.NewNotSupportedError(d.Name(), "set-server-ban")
}

func (d *Clientbot) handleWelcome(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) > 0 {
		d.ownNick = args[0]
	}
	nh.SetConnected()
	return hook.Payload{"nick": d.ownNick}, nil
}

func (d *Clientbot) handleISupport(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if !d.use005Handling {
		return nil, nil
	}
	tokens := ParseISupport(args)
	if prefix, ok := tokens["PREFIX"]; ok {
		d.prefixModes = ApplyPrefixISupport(prefix, d.prefixModes)
	}
	return hook.Payload{"tokens": tokens}, nil
}

func (d *Clientbot) handlePing(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}
	_ = nh.SendNow(fmt.Sprintf("PONG :%s", arg))
	return nil, nil
}

func (d *Clientbot) handlePong(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	return nil, nil
}

func (d *Clientbot) handleJoin(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("malformed JOIN: %v", args)
	}
	channel := args[0]
	store := nh.Store()
	c, _ := store.GetOrCreateChannel(channel, 0)
	uid, ok := store.NickToUID[store.ToLower(sender)]
	if !ok {
		uid = nh.PUIDGen().Next(sender)
		store.Users[uid] = &state.User{UID: uid, Nick: sender,
			Modes: map[byte]state.ModeArg{}, Channels: map[string]struct{}{}}
		store.NickToUID[store.ToLower(sender)] = uid
	}
	c.Users[uid] = struct{}{}
	store.Users[uid].Channels[c.Name] = struct{}{}
	return hook.Payload{"channel": channel, "nick": sender}, nil
}

func (d *Clientbot) handlePart(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("malformed PART: %v", args)
	}
	store := nh.Store()
	key := store.ToLower(args[0])
	if uid, ok := store.NickToUID[store.ToLower(sender)]; ok {
		if c, ok := store.Channels[key]; ok {
			delete(c.Users, uid)
		}
		delete(store.Users[uid].Channels, key)
	}
	store.GCChannel(key)
	return hook.Payload{"channel": args[0], "nick": sender}, nil
}

func (d *Clientbot) handleKick(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("malformed KICK: %v", args)
	}
	store := nh.Store()
	key := store.ToLower(args[0])
	if uid, ok := store.NickToUID[store.ToLower(args[1])]; ok {
		if c, ok := store.Channels[key]; ok {
			delete(c.Users, uid)
		}
		delete(store.Users[uid].Channels, key)
	}
	store.GCChannel(key)
	return hook.Payload{"channel": args[0], "target": args[1]}, nil
}

func (d *Clientbot) handleQuit(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
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
	return hook.Payload{"nick": sender, "text": reason}, nil
}

func (d *Clientbot) handleNick(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("malformed NICK: %v", args)
	}
	store := nh.Store()
	uid, ok := store.NickToUID[store.ToLower(sender)]
	if !ok {
		return nil, nil
	}
	newNick := args[0]
	u := store.Users[uid]
	delete(store.NickToUID, store.ToLower(u.Nick))
	old := u.Nick
	u.Nick = newNick
	store.NickToUID[store.ToLower(newNick)] = uid
	if strings.EqualFold(old, d.ownNick) {
		d.ownNick = newNick
	}
	return hook.Payload{"oldnick": old, "newnick": newNick}, nil
}

func (d *Clientbot) handleMode(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("malformed MODE: %v", args)
	}
	return hook.Payload{"target": args[0], "modes": args[1], "args": args[2:]}, nil
}

func (d *Clientbot) handleTopic(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("malformed TOPIC: %v", args)
	}
	store := nh.Store()
	if c, ok := store.Channels[store.ToLower(args[0])]; ok {
		c.Topic = args[len(args)-1]
		c.TopicSet = true
	}
	return hook.Payload{"channel": args[0], "text": args[len(args)-1]}, nil
}

func (d *Clientbot) handlePrivmsg(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("malformed PRIVMSG: %v", args)
	}
	return hook.Payload{"target": args[0], "text": args[len(args)-1]}, nil
}

func (d *Clientbot) handleNotice(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("malformed NOTICE: %v", args)
	}
	return hook.Payload{"target": args[0], "text": args[len(args)-1]}, nil
}

func (d *Clientbot) handleError(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	reason := ""
	if len(args) > 0 {
		reason = args[len(args)-1]
	}
	nh.Fatal(netlinkerr.NewProtocolError(nh.Name(), reason, nil))
	return nil, nil
}
