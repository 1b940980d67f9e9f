package proto

import (
	"fmt"
	"net"
	"strings"

	"github.com/horgh/netlink/hook"
	"github.com/horgh/netlink/ids"
	"github.com/horgh/netlink/state"
)

// unrealBase64Alphabet is the alphabet for packing IP addresses onto the
// wire: the standard base64 alphabet (letters, then digits, then '+' and
// '/'), written without '=' padding.
const unrealBase64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// Unreal implements the UnrealIRCd 4 S2S dialect: SID/UID-based, like TS6,
// but with its own prefix-bounce quirk ('+&' lines must be silently
// dropped, never re-sent), a tighter per-message mode budget, base64-coded
// IPs, and a HOOK_MAP of commands that mean something different from their
// TS6 namesakes (SVSKILL is a kill, SVSMODE/SVS2MODE are forced modes).
type Unreal struct {
	*BaseDialect
}

// NewUnreal constructs the UnrealIRCd dialect.
func NewUnreal() *Unreal {
	d := &Unreal{BaseDialect: NewBaseDialect("unreal", 427, 12)}

	d.SetCap("can-spawn-clients")
	d.SetCap("has-ts")
	d.SetCap("can-host-relay")
	d.SetCap("can-track-servers")
	d.SetCap("slash-in-nicks")
	d.SetCap("underscore-in-hosts")

	d.AliasHook("UMODE2", "MODE")
	d.AliasHook("SVSKILL", "KILL")
	d.AliasHook("SVSMODE", "MODE")
	d.AliasHook("SVS2MODE", "MODE")
	d.AliasHook("SJOIN", "JOIN")
	d.AliasHook("SETHOST", "CHGHOST")
	d.AliasHook("SETIDENT", "CHGIDENT")
	d.AliasHook("SETNAME", "CHGNAME")
	d.AliasHook("EOS", "ENDBURST")

	d.On("PING", d.handlePing)
	d.On("PONG", d.handlePong)
	d.On("UID", d.handleUID)
	d.On("NICK", d.handleLegacyNick)
	d.On("SID", d.handleSID)
	d.On("SJOIN", d.handleSJOIN)
	d.On("JOIN", d.handleJoin)
	d.On("PART", d.handlePart)
	d.On("QUIT", d.handleQuit)
	d.On("KILL", d.handleKill)
	d.On("SVSKILL", d.handleKill)
	d.On("SQUIT", d.handleSquit)
	d.On("MODE", d.handleMode)
	d.On("SVSMODE", d.handleMode)
	d.On("SVS2MODE", d.handleMode)
	d.On("UMODE2", d.handleUmode2)
	d.On("TOPIC", d.handleTopic)
	d.On("PRIVMSG", d.handlePrivmsg)
	d.On("NOTICE", d.handleNotice)
	d.On("EOS", d.handleEOS)
	d.On("PROTOCTL", d.handleProtoctl)

	return d
}

func (d *Unreal) PostConnect(nh NetworkHandle) error {
	nh.Send("PROTOCTL NOQUIT NICKv2 SJOIN SJOIN2 UMODE2 VL SJ3 TKLEXT2 NICKIP ESVID EXTSWHOIS")
	nh.Send(fmt.Sprintf("PROTOCTL EAUTH=%s SID=%s", nh.Name(), nh.SID()))
	nh.Send(fmt.Sprintf("SERVER %s 1 :U4000-Fhin6OoEM-%s services", nh.Name(), nh.SID()))
	return nil
}

func (d *Unreal) PingUplink(nh NetworkHandle) {
	nh.Send(fmt.Sprintf("PING :%s", nh.SID()))
}

func (d *Unreal) SpawnClient(nh NetworkHandle, opts SpawnClientOpts) (ids.UID, error) {
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
		RealHost: opts.Host, IP: opts.IP, RealName: opts.RealName, TS: opts.TS, ServerSID: server,
		Modes: map[byte]state.ModeArg{}, Channels: map[string]struct{}{}}
	store.Users[uid] = u
	store.NickToUID[store.ToLower(opts.Nick)] = uid
	store.ApplyModes(u, opts.Modes)
	if s, ok := store.Servers[server]; ok {
		s.Users[uid] = struct{}{}
	}

	nh.Send(fmt.Sprintf("UID %s 1 %d %s %s %s %s 0 %s %s * :%s",
		opts.Nick, opts.TS, opts.Ident, opts.Host, uid, u.ModesString(), EncodeIP(opts.IP), opts.Host, opts.RealName))
	return uid, nil
}

func (d *Unreal) SpawnServer(nh NetworkHandle, opts SpawnServerOpts) (ids.SID, error) {
	uplink := opts.Uplink
	if uplink == "" {
		uplink = nh.SID()
	}
	store := nh.Store()
	store.Servers[opts.SID] = &state.Server{SID: opts.SID, Name: opts.Name, Description: opts.Desc,
		UplinkSID: uplink, Internal: true, Users: map[ids.UID]struct{}{}}
	nh.Send(fmt.Sprintf("SID %s 2 %s :%s", opts.Name, opts.SID, opts.Desc))
	return opts.SID, nil
}

func (d *Unreal) Join(nh NetworkHandle, uid ids.UID, channel string) error {
	store := nh.Store()
	c, _ := store.GetOrCreateChannel(channel, 0)
	c.Users[uid] = struct{}{}
	if u, ok := store.Users[uid]; ok {
		u.Channels[c.Name] = struct{}{}
	}
	nh.Send(fmt.Sprintf(":%s JOIN %s", uid, c.Name))
	return nil
}

func (d *Unreal) SJoin(nh NetworkHandle, sid ids.SID, channel string, ts int64, modes string, users []PrefixedUID) error {
	store := nh.Store()
	c, created := store.GetOrCreateChannel(channel, ts)
	grant := true
	if !created {
		grant, _ = ReconcileSJOINTS(c, ts)
	}

	var tokens []string
	for _, pu := range users {
		c.Users[pu.UID] = struct{}{}
		if grant {
			for _, ch := range pu.Prefixes {
				set, ok := c.PrefixModes[pu.UID]
				if !ok {
					set = map[byte]struct{}{}
					c.PrefixModes[pu.UID] = set
				}
				set[sjoinPrefixToMode(ch)] = struct{}{}
			}
		}
		tokens = append(tokens, pu.Prefixes+string(pu.UID))
	}

	line := fmt.Sprintf(":%s SJOIN %d %s %s :%s", sid, ts, channel, modes, strings.Join(tokens, " "))
	nh.Send(line)
	return nil
}

func (d *Unreal) Part(nh NetworkHandle, uid ids.UID, channel, reason string) error {
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

func (d *Unreal) Quit(nh NetworkHandle, uid ids.UID, reason string) error {
	nh.Store().RemoveClient(uid)
	nh.Send(fmt.Sprintf(":%s QUIT :%s", uid, reason))
	return nil
}

func (d *Unreal) Kill(nh NetworkHandle, source, target ids.UID, reason string) error {
	nh.Store().RemoveClient(target)
	nh.Send(fmt.Sprintf(":%s SVSKILL %s :%s", source, target, FormatKillReason(string(source), reason)))
	return nil
}

func (d *Unreal) Message(nh NetworkHandle, source, target, text string, notice bool) error {
	cmd := "PRIVMSG"
	if notice {
		cmd = "NOTICE"
	}
	nh.Send(fmt.Sprintf(":%s %s %s :%s", source, cmd, ExpandPUID(nh, ids.UID(target)), text))
	return nil
}

func (d *Unreal) Mode(nh NetworkHandle, source, target string, changes []state.ParsedModeChange, ts int64) error {
	prefix := []string{target}
	if ts > 0 {
		prefix = []string{target, fmt.Sprintf("%d", ts)}
	}
	for _, line := range WrapModes(prefix, changes, d.maxModesPerMsg, d.s2sBufSize) {
		nh.Send(fmt.Sprintf(":%s %s", source, line))
	}
	return nil
}

func (d *Unreal) Topic(nh NetworkHandle, uid ids.UID, channel, text string) error {
	nh.Send(fmt.Sprintf(":%s TOPIC %s :%s", uid, channel, text))
	return nil
}

func (d *Unreal) TopicBurst(nh NetworkHandle, sid ids.SID, channel, text string) error {
	nh.Send(fmt.Sprintf(":%s TOPIC %s %s 0 :%s", sid, channel, sid, text))
	return nil
}

func (d *Unreal) UpdateClient(nh NetworkHandle, uid ids.UID, field, value string) error {
	switch field {
	case FieldIdent:
		nh.Send(fmt.Sprintf(":%s SETIDENT %s", uid, value))
	case FieldHost:
		nh.Send(fmt.Sprintf(":%s SETHOST %s", uid, value))
	case FieldRealName:
		nh.Send(fmt.Sprintf(":%s SETNAME :%s", uid, value))
	default:
		return d.BaseDialect.RequireCap("update-client-" + field)
	}
	return nil
}

func (d *Unreal) Knock(nh NetworkHandle, uid ids.UID, channel, text string) error {
	nh.Send(fmt.Sprintf(":%s KNOCK %s :%s", uid, channel, text))
	return nil
}

func (d *Unreal) Squit(nh NetworkHandle, source, target ids.SID, reason string) (*SquitResult, error) {
	result, err := Squit(nh, target, reason)
	if err != nil {
		return nil, err
	}
	nh.Send(fmt.Sprintf("SQUIT %s :%s", target, reason))
	return result, nil
}

func (d *Unreal) SetServerBan(nh NetworkHandle, source ids.SID, duration int64, user, host, reason string) error {
	nh.Send(fmt.Sprintf(":%s TKL + G %s %s %s 0 %d :%s", source, user, host, source, duration, reason))
	return nil
}

func (d *Unreal) handlePing(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	arg := string(nh.SID())
	if len(args) > 0 {
		arg = args[0]
	}
	_ = nh.SendNow(fmt.Sprintf(":%s PONG %s :%s", nh.SID(), nh.Name(), arg))
	return nil, nil
}

func (d *Unreal) handlePong(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	return nil, nil
}

func (d *Unreal) handleProtoctl(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	return hook.Payload{"tokens": args}, nil
}

// handleUID parses a full UnrealIRCd UID introduction:
// UID nick hopcount ts ident host uid svid umodes vhost cloakhost :gecos
func (d *Unreal) handleUID(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 9 {
		return nil, fmt.Errorf("malformed UID: %v", args)
	}
	store := nh.Store()
	nick := args[0]
	ts, err := ParseInt64Arg(args, 2)
	if err != nil {
		return nil, err
	}
	ident := args[3]
	host := args[4]
	uid := ids.UID(args[5])
	umodes := args[7]
	realName := args[len(args)-1]

	// §4.3.4: collisions are reported via a SAVE-shaped payload, never
	// resolved locally.
	if existing, collide := store.NickToUID[store.ToLower(nick)]; collide && existing != uid {
		return EmitSaveCollision(nh, existing, uid)
	}

	u := &state.User{UID: uid, Nick: nick, Ident: ident, Host: host, RealHost: host,
		RealName: realName, TS: ts, ServerSID: ids.SID(sender),
		Modes: map[byte]state.ModeArg{}, Channels: map[string]struct{}{}}
	for _, m := range umodes {
		if m == '+' {
			continue
		}
		u.Modes[byte(m)] = state.ModeArg{}
	}
	store.Users[uid] = u
	store.NickToUID[store.ToLower(nick)] = uid
	if s, ok := store.Servers[ids.SID(sender)]; ok {
		s.Users[uid] = struct{}{}
	}
	return hook.Payload{"uid": uid, "nick": nick, "ts": ts}, nil
}

// handleLegacyNick handles an UnrealIRCd 3.2-style legacy NICK introduction
// (no UID, just a nick) by synthesizing a PUID and routing through the same
// logic UID uses, with a dummy cloaked-host field per §4.3.4.
func (d *Unreal) handleLegacyNick(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 8 {
		// Too few args to be an introduction; treat as a nick change.
		if len(args) >= 1 {
			return d.handleNickChange(nh, sender, args)
		}
		return nil, fmt.Errorf("malformed NICK: %v", args)
	}
	puid := nh.PUIDGen().Next(sender)
	synthesized := append([]string{}, args...)
	synthesized = append(synthesized[:5], append([]string{string(puid)}, synthesized[5:]...)...)
	gecos := synthesized[len(synthesized)-1]
	synthesized = append(synthesized[:len(synthesized)-1], "*", gecos) // dummy cloaked host before gecos
	return d.handleUID(nh, sender, synthesized)
}

func (d *Unreal) handleNickChange(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	store := nh.Store()
	uid := ids.UID(sender)
	newNick := args[0]
	if existing, collide := store.NickToUID[store.ToLower(newNick)]; collide && existing != uid {
		return EmitSaveCollision(nh, existing, uid)
	}
	u, ok := store.Users[uid]
	if !ok {
		return nil, fmt.Errorf("nick change for unknown UID %s", sender)
	}
	delete(store.NickToUID, store.ToLower(u.Nick))
	old := u.Nick
	u.Nick = newNick
	store.NickToUID[store.ToLower(newNick)] = uid
	return hook.Payload{"uid": uid, "oldnick": old, "newnick": newNick}, nil
}

func (d *Unreal) handleSID(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("malformed SID: %v", args)
	}
	name := args[0]
	sid := ids.SID(args[1])
	nh.Store().Servers[sid] = &state.Server{SID: sid, Name: name, UplinkSID: ids.SID(sender),
		Description: args[len(args)-1], Users: map[ids.UID]struct{}{}}
	return hook.Payload{"sid": sid, "name": name}, nil
}

func (d *Unreal) handleSJOIN(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("malformed SJOIN: %v", args)
	}
	ts, err := ParseInt64Arg(args, 0)
	if err != nil {
		return nil, err
	}
	channel := args[1]
	modes := ""
	userField := args[len(args)-1]
	if len(args) > 3 {
		modes = args[2]
	}

	// UnrealIRCd's '+&' virtual-prefix bounce marks a line that must be
	// silently discarded, never rebroadcast or applied.
	for _, tok := range strings.Fields(userField) {
		if strings.HasPrefix(tok, "+&") {
			return nil, nil
		}
	}

	store := nh.Store()
	c, created := store.GetOrCreateChannel(channel, ts)
	grant := true
	applyModes := true
	if !created {
		var dropOurs bool
		grant, dropOurs = ReconcileSJOINTS(c, ts)
		applyModes = grant
		if dropOurs {
			c.Modes = map[byte]state.ModeArg{}
		}
	}
	// Older-TS-wins clears c.Modes above then applies the incoming set as a
	// replacement; equal TS leaves c.Modes intact so the incoming set is
	// unioned in instead; ours-wins (!grant) skips this entirely.
	if applyModes {
		applySimpleModeStringToChannel(c, modes)
	}

	var affected []string
	for _, tok := range strings.Fields(userField) {
		i := 0
		for i < len(tok) && isPrefixChar(tok[i]) {
			i++
		}
		prefixes, uid := tok[:i], ids.UID(tok[i:])
		c.Users[uid] = struct{}{}
		if u, ok := store.Users[uid]; ok {
			u.Channels[c.Name] = struct{}{}
		}
		if grant {
			for _, ch := range prefixes {
				set, ok := c.PrefixModes[uid]
				if !ok {
					set = map[byte]struct{}{}
					c.PrefixModes[uid] = set
				}
				set[sjoinPrefixToMode(byte(ch))] = struct{}{}
			}
		}
		affected = append(affected, string(uid))
	}

	return hook.Payload{"channel": channel, "ts": c.TS, "users": affected}, nil
}

func (d *Unreal) handleJoin(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("malformed JOIN: %v", args)
	}
	store := nh.Store()
	uid := ids.UID(sender)
	var channels []string
	for _, channel := range strings.Split(args[0], ",") {
		c, _ := store.GetOrCreateChannel(channel, 0)
		c.Users[uid] = struct{}{}
		if u, ok := store.Users[uid]; ok {
			u.Channels[c.Name] = struct{}{}
		}
		channels = append(channels, channel)
	}
	return hook.Payload{"channels": channels, "uid": uid}, nil
}

func (d *Unreal) handlePart(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("malformed PART: %v", args)
	}
	store := nh.Store()
	uid := ids.UID(sender)
	key := store.ToLower(args[0])
	if c, ok := store.Channels[key]; ok {
		delete(c.Users, uid)
		delete(c.PrefixModes, uid)
	}
	if u, ok := store.Users[uid]; ok {
		delete(u.Channels, key)
	}
	store.GCChannel(key)
	return hook.Payload{"channel": args[0], "uid": uid}, nil
}

func (d *Unreal) handleQuit(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	reason := ""
	if len(args) > 0 {
		reason = args[len(args)-1]
	}
	uid := ids.UID(sender)
	nh.Store().RemoveClient(uid)
	return hook.Payload{"uid": uid, "text": reason}, nil
}

func (d *Unreal) handleKill(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("malformed KILL/SVSKILL: %v", args)
	}
	target := ids.UID(args[0])
	reason := ""
	if len(args) > 1 {
		reason = args[len(args)-1]
	}
	nh.Store().RemoveClient(target)
	return hook.Payload{"target": target, "text": reason}, nil
}

func (d *Unreal) handleSquit(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
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

func (d *Unreal) handleMode(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("malformed MODE/SVSMODE/SVS2MODE: %v", args)
	}
	target := args[0]
	modeArgs := args[2:]
	changes, err := parseSimpleModeString(args[1], modeArgs)
	if err != nil {
		return nil, err
	}
	store := nh.Store()
	if u, ok := store.Users[ids.UID(target)]; ok {
		store.ApplyModes(u, changes)
	} else if c, ok := store.Channels[store.ToLower(target)]; ok {
		store.ApplyModes(c, changes)
	}
	return hook.Payload{"target": target, "modes": args[1], "args": modeArgs}, nil
}

func (d *Unreal) handleUmode2(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("malformed UMODE2: %v", args)
	}
	store := nh.Store()
	u, ok := store.Users[ids.UID(sender)]
	if !ok {
		return nil, fmt.Errorf("UMODE2 from unknown user %s", sender)
	}
	changes, err := parseSimpleModeString(args[0], nil)
	if err != nil {
		return nil, err
	}
	store.ApplyModes(u, changes)
	return hook.Payload{"target": sender, "modes": args[0]}, nil
}

func (d *Unreal) handleTopic(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
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

func (d *Unreal) handlePrivmsg(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("malformed PRIVMSG: %v", args)
	}
	return hook.Payload{"target": args[0], "text": args[len(args)-1]}, nil
}

func (d *Unreal) handleNotice(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("malformed NOTICE: %v", args)
	}
	return hook.Payload{"target": args[0], "text": args[len(args)-1]}, nil
}

func (d *Unreal) handleEOS(nh NetworkHandle, sender string, args []string) (hook.Payload, error) {
	nh.SetConnected()
	return hook.Payload{}, nil
}

func applySimpleModeStringToChannel(c *state.Channel, modes string) {
	if modes == "" {
		return
	}
	changes, err := parseSimpleModeString(modes, nil)
	if err != nil {
		return
	}
	for _, ch := range changes {
		if ch.Prefix {
			continue
		}
		if ch.Add {
			c.Modes[ch.Char] = state.ModeArg{Value: ch.Arg, Has: ch.HasArg}
		} else {
			delete(c.Modes, ch.Char)
		}
	}
}

// EncodeIP renders an IPv4 or IPv6 address in UnrealIRCd's base64-ish wire
// format: IPv4 is tried first, with '*' standing in for an empty/unknown
// address; when the IPv6 address text starts with ':' (e.g. "::1") the
// encoded token gets a leading '0' character, which DecodeIP strips.
func EncodeIP(ip string) string {
	if ip == "" || ip == "*" || ip == "0.0.0.0" {
		return "*"
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "*"
	}
	if v4 := parsed.To4(); v4 != nil {
		if v4.IsUnspecified() {
			return "*"
		}
		return encodeUnrealBase64(v4)
	}
	v6 := parsed.To16()
	if v6 == nil {
		return "*"
	}
	encoded := encodeUnrealBase64(v6)
	if strings.HasPrefix(ip, ":") {
		return "0" + encoded
	}
	return encoded
}

// DecodeIP reverses EncodeIP's wire representation back to an IPv4 or IPv6
// address. '*' maps back to "0.0.0.0" per UnrealIRCd convention.
func DecodeIP(token string) string {
	if token == "*" || token == "" {
		return "0.0.0.0"
	}
	trimmed := token
	if strings.HasPrefix(trimmed, "0") && len(trimmed) > 22 {
		trimmed = trimmed[1:]
	}
	raw := decodeUnrealBase64(trimmed)
	if raw == nil {
		return "0.0.0.0"
	}
	ip := net.IP(raw)
	return ip.String()
}

func encodeUnrealBase64(data []byte) string {
	var sb strings.Builder
	for i := 0; i < len(data); i += 3 {
		chunk := data[i:min(i+3, len(data))]
		sb.WriteString(encodeChunk(chunk))
	}
	return sb.String()
}

func encodeChunk(chunk []byte) string {
	var b [3]byte
	copy(b[:], chunk)
	n := int(b[0])<<16 | int(b[1])<<8 | int(b[2])
	out := []byte{
		unrealBase64Alphabet[(n>>18)&0x3F],
		unrealBase64Alphabet[(n>>12)&0x3F],
		unrealBase64Alphabet[(n>>6)&0x3F],
		unrealBase64Alphabet[n&0x3F],
	}
	switch len(chunk) {
	case 1:
		return string(out[:2])
	case 2:
		return string(out[:3])
	default:
		return string(out)
	}
}

func decodeUnrealBase64(s string) []byte {
	rev := make(map[byte]int, len(unrealBase64Alphabet))
	for i := 0; i < len(unrealBase64Alphabet); i++ {
		rev[unrealBase64Alphabet[i]] = i
	}
	var out []byte
	for i := 0; i < len(s); i += 4 {
		end := min(i+4, len(s))
		group := s[i:end]
		var vals [4]int
		for j, c := range []byte(group) {
			v, ok := rev[c]
			if !ok {
				return nil
			}
			vals[j] = v
		}
		n := vals[0]<<18 | vals[1]<<12
		if len(group) > 2 {
			n |= vals[2] << 6
		}
		if len(group) > 3 {
			n |= vals[3]
		}
		out = append(out, byte(n>>16))
		if len(group) > 2 {
			out = append(out, byte(n>>8))
		}
		if len(group) > 3 {
			out = append(out, byte(n))
		}
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
