// Package network implements one Network actor per uplink connection:
// the event loop that owns a transport.Conn, a state.Store, a hook.Bus,
// and a proto.Dialect, and serializes every read, outbound send, and
// cross-goroutine API call onto a single select loop. The loop shape is
// grounded directly on the teacher's (*Server).start in ircd.go - a
// channel-driven select over new-connection/dead-connection/message
// events plus a periodic alarm tick - generalized from "one loop for the
// whole daemon" to "one loop per linked Network".
package network

import (
	"fmt"
	"log"
	"time"

	"github.com/horgh/netlink/hook"
	"github.com/horgh/netlink/ids"
	"github.com/horgh/netlink/netlinkerr"
	"github.com/horgh/netlink/proto"
	"github.com/horgh/netlink/state"
	"github.com/horgh/netlink/transport"
)

// Config carries the per-Network connection and identity parameters the
// event loop needs at construction time, grounded on the Config map the
// teacher's Server threads through checkConfig/start.
type Config struct {
	Name       string
	Hostname   string
	Port       int
	SID        ids.SID
	SIDRange   string
	ServerDesc string
	NetName    string

	PingFreq   time.Duration
	PingTimeout time.Duration

	CaseMapping string

	Extra map[string]string
}

// call is a cross-Network API request serialized onto this Network's
// event loop, per §5's "cross-Network calls must be serialized onto the
// target Network's loop via a thread-safe send queue" requirement.
type call struct {
	fn   func() (interface{}, error)
	done chan callResult
}

type callResult struct {
	value interface{}
	err   error
}

// Network is one actor: one uplink connection, one Store, one Bus, one
// Dialect, with API access funneled through a single select loop so no
// two goroutines ever touch the Store concurrently.
type Network struct {
	cfg     Config
	dialect proto.Dialect
	store   *state.Store
	bus     *hook.Bus

	conn   transport.Conn
	writer *transport.Writer
	hb     *transport.Heartbeat

	sid    ids.SID
	uplink ids.SID

	puidGen *ids.PUIDGenerator
	ts6Gen  *ids.TS6IDGenerator

	connected bool

	lines  chan string
	calls  chan call
	dead   chan error
	stop   chan struct{}

	fatalErr error
}

// New constructs a Network around an already-dialed connection. The
// caller is responsible for dialing; New takes ownership of conn from
// here on.
func New(cfg Config, dialect proto.Dialect, conn transport.Conn) *Network {
	caseMapping := cfg.CaseMapping
	if caseMapping == "" {
		caseMapping = "rfc1459"
	}
	n := &Network{
		cfg:     cfg,
		dialect: dialect,
		store:   state.NewStore(caseMapping),
		bus:     hook.NewBus(),
		conn:    conn,
		sid:     cfg.SID,
		puidGen: &ids.PUIDGenerator{},
		ts6Gen:  &ids.TS6IDGenerator{},
		lines:   make(chan string, 100),
		calls:   make(chan call, 100),
		dead:    make(chan error, 1),
		stop:    make(chan struct{}),
	}
	n.writer = transport.NewWriter(conn, 5, 10)
	n.hb = transport.NewHeartbeat(cfg.PingFreq, cfg.PingTimeout)
	return n
}

// Bus returns the Network's hook bus so callers (plugins) can subscribe.
func (n *Network) Bus() *hook.Bus { return n.bus }

// --- proto.NetworkHandle ---

func (n *Network) Name() string        { return n.cfg.Name }
func (n *Network) Store() *state.Store { return n.store }
func (n *Network) SID() ids.SID        { return n.sid }
func (n *Network) SetSID(sid ids.SID)  { n.sid = sid }
func (n *Network) Uplink() ids.SID     { return n.uplink }
func (n *Network) SetUplink(sid ids.SID) { n.uplink = sid }

func (n *Network) PUIDGen() *ids.PUIDGenerator { return n.puidGen }
func (n *Network) TS6Gen() *ids.TS6IDGenerator { return n.ts6Gen }

// Send enqueues a line for rate-limited delivery - the default §4.6
// queue=true path.
func (n *Network) Send(line string) { n.writer.Send(line) }

// SendNow bypasses the queue/rate-limit, for latency-sensitive replies
// like PONG (§4.6's queue=false path).
func (n *Network) SendNow(line string) error { return n.writer.SendNow(line) }

func (n *Network) EmitHook(name string, payload hook.Payload) {
	defaultMetrics.noteHookDispatch(n.cfg.Name, name)
	n.bus.Dispatch(hook.Event{Network: n.cfg.Name, Name: name, Payload: payload})
}

func (n *Network) IsInternalServer(sid ids.SID) bool {
	s, ok := n.store.Servers[sid]
	return ok && s.Internal
}

func (n *Network) IsInternalClient(uid ids.UID) bool {
	return ids.IsPUID(uid)
}

func (n *Network) SetConnected() { n.connected = true }

// Connected reports whether the burst has finished (§4.3.1's end-of-burst
// hook has fired for this uplink).
func (n *Network) Connected() bool { return n.connected }

func (n *Network) Fatal(err error) {
	n.fatalErr = err
	select {
	case n.dead <- err:
	default:
	}
}

// Run drives the event loop until the connection dies or Stop is called.
// It is grounded on (*Server).start's select loop in the teacher, reduced
// to one uplink's worth of state instead of a whole client roster.
func (n *Network) Run() error {
	if err := n.dialect.PostConnect(n); err != nil {
		return err
	}

	readErrs := make(chan error, 1)
	go n.readLoop(readErrs)

	ticker := time.NewTicker(n.hb.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stop:
			n.writer.Close()
			_ = n.conn.Close()
			return nil

		case err := <-readErrs:
			n.writer.Close()
			_ = n.conn.Close()
			defaultMetrics.noteReconnect(n.cfg.Name)
			return err

		case err := <-n.dead:
			n.writer.Close()
			_ = n.conn.Close()
			defaultMetrics.noteReconnect(n.cfg.Name)
			return err

		case line := <-n.lines:
			ev, err := n.dialect.HandleEvents(n, line)
			if err != nil {
				if _, ok := err.(*netlinkerr.ProtocolError); ok {
					n.writer.Close()
					_ = n.conn.Close()
					defaultMetrics.noteReconnect(n.cfg.Name)
					return err
				}
				log.Printf("network %s: dropping malformed line %q: %s", n.cfg.Name, line, err)
				continue
			}
			if ev != nil {
				defaultMetrics.noteHookDispatch(n.cfg.Name, ev.Name)
				n.bus.Dispatch(*ev)
			}

		case c := <-n.calls:
			value, err := c.fn()
			c.done <- callResult{value: value, err: err}

		case <-ticker.C:
			if n.hb.Dead() {
				n.writer.Close()
				_ = n.conn.Close()
				defaultMetrics.noteReconnect(n.cfg.Name)
				return netlinkerr.NewProtocolError(n.cfg.Name, "ping timeout", nil)
			}
			if n.hb.ShouldPing() {
				n.dialect.PingUplink(n)
			}
			defaultMetrics.setUsers(n.cfg.Name, len(n.store.Users))
			defaultMetrics.setChannels(n.cfg.Name, len(n.store.Channels))
		}
	}
}

func (n *Network) readLoop(errs chan<- error) {
	for {
		line, err := n.conn.ReadLine()
		if err != nil {
			errs <- err
			return
		}
		if line == "" {
			continue
		}
		n.hb.NotePong()
		select {
		case n.lines <- line:
		case <-n.stop:
			return
		}
	}
}

// Stop requests the event loop shut down cleanly.
func (n *Network) Stop() {
	close(n.stop)
}

// Call serializes an arbitrary read/mutation of this Network's state onto
// its own event loop, per §5's cross-Network call requirement: any
// goroutine other than Run's own may call this safely.
func (n *Network) Call(fn func() (interface{}, error)) (interface{}, error) {
	done := make(chan callResult, 1)
	select {
	case n.calls <- call{fn: fn, done: done}:
	case <-n.stop:
		return nil, fmt.Errorf("network %s is stopped", n.cfg.Name)
	}
	result := <-done
	return result.value, result.err
}
