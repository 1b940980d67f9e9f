package config

import "testing"

func TestLoadNetworksValidatesEach(t *testing.T) {
	data := []byte(`
networks:
  - name: freenode
    ip: 1.2.3.4
    port: 6667
    hostname: services.example.net
    sendpass: foo
    recvpass: bar
    serverdesc: Relay services
    netname: freenode
    sid: 1AA
    protocol: ts6
  - name: legacynet
    ip: 5.6.7.8
    port: 6667
    hostname: services.legacynet.example
    sendpass: foo
    recvpass: bar
    serverdesc: Relay services
    netname: legacynet
    protocol: ngircd
`)

	nets, err := LoadNetworks(data)
	if err != nil {
		t.Fatalf("LoadNetworks() error: %s", err)
	}
	if len(nets) != 2 {
		t.Fatalf("len(nets) = %d, wanted 2", len(nets))
	}
	if nets[0].Protocol != "ts6" || nets[1].Protocol != "ngircd" {
		t.Errorf("unexpected protocols: %+v", nets)
	}
}

func TestValidateRejectsNgircdWithSID(t *testing.T) {
	n := Network{
		Name: "bad", IP: "1.2.3.4", Port: 6667, Hostname: "h",
		SendPass: "a", RecvPass: "b", Protocol: "ngircd", SID: "1AA",
	}
	if err := n.Validate(); err == nil {
		t.Error("expected an error for ngircd block carrying a sid")
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	n := Network{
		Name: "bad", IP: "1.2.3.4", Port: 70000, Hostname: "h",
		SendPass: "a", RecvPass: "b", Protocol: "ts6", SID: "1AA",
	}
	if err := n.Validate(); err == nil {
		t.Error("expected an error for out-of-range port")
	}
}

func TestExtraIntDefault(t *testing.T) {
	n := Network{Extra: map[string]string{}}
	v, err := n.ExtraInt("max_modes_per_msg", 12)
	if err != nil {
		t.Fatalf("ExtraInt() error: %s", err)
	}
	if v != 12 {
		t.Errorf("ExtraInt() = %d, wanted 12", v)
	}
}
