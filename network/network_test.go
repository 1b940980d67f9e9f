package network

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/horgh/netlink/hook"
	"github.com/horgh/netlink/ids"
	"github.com/horgh/netlink/proto"
	"github.com/horgh/netlink/transport"
)

func newPipeNetwork(t *testing.T, dialect proto.Dialect) (*Network, net.Conn) {
	t.Helper()
	serverSide, testSide := net.Pipe()
	conn := transport.NewConn(serverSide, 2*time.Second)
	cfg := Config{Name: "test", SID: "0RT", PingFreq: time.Hour, PingTimeout: time.Hour}
	n := New(cfg, dialect, conn)
	return n, testSide
}

func TestNetworkRunDispatchesHooksFromUplink(t *testing.T) {
	d := proto.NewTS6()
	n, testSide := newPipeNetwork(t, d)
	defer testSide.Close()

	var got hook.Event
	received := make(chan struct{})
	n.Bus().Subscribe("JOIN", func(ev hook.Event) {
		got = ev
		close(received)
	})

	go func() { _ = n.Run() }()

	reader := bufio.NewReader(testSide)
	// Drain PostConnect's handshake lines so the test isn't coupled to their
	// exact count.
	go func() {
		for {
			if _, err := reader.ReadString('\n'); err != nil {
				return
			}
		}
	}()

	_, err := testSide.Write([]byte(":0AAAAAAAA JOIN 1000 #test +\r\n"))
	if err != nil {
		t.Fatalf("write: %s", err)
	}

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for JOIN hook dispatch")
	}

	if got.Name != "JOIN" {
		t.Errorf("hook name = %s, wanted JOIN", got.Name)
	}

	n.Stop()
}

func TestManagerAddRejectsDuplicateName(t *testing.T) {
	m := NewManager()
	d := proto.NewTS6()
	n1, side1 := newPipeNetwork(t, d)
	defer side1.Close()
	n2, side2 := newPipeNetwork(t, d)
	defer side2.Close()

	if err := m.Add(n1); err != nil {
		t.Fatalf("Add(n1): %s", err)
	}
	if err := m.Add(n2); err == nil {
		t.Error("Add(n2) with a duplicate name should have failed")
	}
	n1.Stop()
	n2.Stop()
}

func TestManagerBroadcastReachesAllNetworks(t *testing.T) {
	m := NewManager()
	d := proto.NewTS6()

	n1, side1 := newPipeNetwork(t, d)
	defer side1.Close()
	n1.cfg.Name = "net1"

	n2, side2 := newPipeNetwork(t, d)
	defer side2.Close()
	n2.cfg.Name = "net2"

	var gotNames []string
	n1.Bus().Subscribe("GLOBALPING", func(ev hook.Event) { gotNames = append(gotNames, ev.Network) })
	n2.Bus().Subscribe("GLOBALPING", func(ev hook.Event) { gotNames = append(gotNames, ev.Network) })

	if err := m.Add(n1); err != nil {
		t.Fatalf("Add(n1): %s", err)
	}
	if err := m.Add(n2); err != nil {
		t.Fatalf("Add(n2): %s", err)
	}

	m.Broadcast("GLOBALPING", hook.Payload{})

	if len(gotNames) != 2 {
		t.Errorf("len(gotNames) = %d, wanted 2", len(gotNames))
	}

	n1.Stop()
	n2.Stop()
}

func TestNetworkCallSerializesOntoEventLoop(t *testing.T) {
	d := proto.NewTS6()
	n, testSide := newPipeNetwork(t, d)
	defer testSide.Close()

	go func() { _ = n.Run() }()
	reader := bufio.NewReader(testSide)
	go func() {
		for {
			if _, err := reader.ReadString('\n'); err != nil {
				return
			}
		}
	}()

	value, err := n.Call(func() (interface{}, error) {
		return n.SID(), nil
	})
	if err != nil {
		t.Fatalf("Call() error: %s", err)
	}
	if value.(ids.SID) != "0RT" {
		t.Errorf("Call() = %v, wanted 0RT", value)
	}

	n.Stop()
}

func TestNetworkIsInternalClientDetectsPUID(t *testing.T) {
	d := proto.NewTS6()
	n, testSide := newPipeNetwork(t, d)
	defer testSide.Close()

	puid := n.PUIDGen().Next("relay")
	if !n.IsInternalClient(puid) {
		t.Error("IsInternalClient(puid) = false, wanted true")
	}
	if n.IsInternalClient(ids.UID("0AAAAAAAA")) {
		t.Error("IsInternalClient(real uid) = true, wanted false")
	}
}
