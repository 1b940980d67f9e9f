// Command netlinkd is the daemon binary: it loads the process-wide
// config and the list of uplinks to link to, dials each one, and runs
// its Network event loop under a shared Manager. The flag/arg handling
// is grounded directly on the teacher's args.go/getArgs and ircd.go's
// main, generalized from a single "-config" flag to daemon config plus
// a separate networks file.
package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"net"
	"time"

	"github.com/horgh/netlink/config"
	"github.com/horgh/netlink/ids"
	netlinknetwork "github.com/horgh/netlink/network"
	"github.com/horgh/netlink/proto"
	"github.com/horgh/netlink/transport"
)

// Args holds the parsed command line flags, mirroring the teacher's Args
// struct in args.go.
type Args struct {
	DaemonConfig   string
	NetworksConfig string
}

func getArgs() (Args, error) {
	daemonConfig := flag.String("config", "", "Daemon configuration file.")
	networksConfig := flag.String("networks", "", "Networks (uplinks) YAML file.")

	flag.Parse()

	if len(*daemonConfig) == 0 {
		flag.PrintDefaults()
		return Args{}, fmt.Errorf("you must provide a daemon configuration file")
	}
	if len(*networksConfig) == 0 {
		flag.PrintDefaults()
		return Args{}, fmt.Errorf("you must provide a networks configuration file")
	}

	return Args{DaemonConfig: *daemonConfig, NetworksConfig: *networksConfig}, nil
}

func dialectFor(protocol string) (proto.Dialect, error) {
	switch protocol {
	case "ts6":
		return proto.NewTS6(), nil
	case "p10":
		return proto.NewP10(), nil
	case "unreal":
		return proto.NewUnreal(), nil
	case "ngircd":
		return proto.NewNgircd(), nil
	case "clientbot":
		return proto.NewClientbot(), nil
	default:
		return nil, fmt.Errorf("unknown protocol: %s", protocol)
	}
}

func linkNetwork(nc config.Network, manager *netlinknetwork.Manager) error {
	dialect, err := dialectFor(nc.Protocol)
	if err != nil {
		return err
	}

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", nc.IP, nc.Port), 30*time.Second)
	if err != nil {
		return fmt.Errorf("%s: unable to connect: %s", nc.Name, err)
	}

	pingFreq := 120 * time.Second
	if v, err := nc.ExtraInt("ping_freq", 120); err == nil {
		pingFreq = time.Duration(v) * time.Second
	}
	pingTimeout := 300 * time.Second
	if v, err := nc.ExtraInt("ping_timeout", 300); err == nil {
		pingTimeout = time.Duration(v) * time.Second
	}

	cfg := netlinknetwork.Config{
		Name:        nc.Name,
		Hostname:    nc.Hostname,
		Port:        nc.Port,
		SID:         ids.SID(nc.SID),
		SIDRange:    nc.SIDRange,
		ServerDesc:  nc.ServerDesc,
		NetName:     nc.NetName,
		PingFreq:    pingFreq,
		PingTimeout: pingTimeout,
		Extra:       nc.Extra,
	}

	tc := transport.NewConn(conn, 30*time.Second)
	n := netlinknetwork.New(cfg, dialect, tc)

	if err := manager.Add(n); err != nil {
		_ = conn.Close()
		return err
	}
	return nil
}

func main() {
	log.SetFlags(0)

	args, err := getArgs()
	if err != nil {
		log.Fatal(err)
	}

	daemonCfg, err := config.LoadDaemon(args.DaemonConfig)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("Loaded daemon config (log-level=%s, %d opers)", daemonCfg.LogLevel, len(daemonCfg.Opers))

	data, err := ioutil.ReadFile(args.NetworksConfig)
	if err != nil {
		log.Fatal(err)
	}
	networks, err := config.LoadNetworks(data)
	if err != nil {
		log.Fatal(err)
	}

	manager := netlinknetwork.NewManager()
	for _, nc := range networks {
		if err := linkNetwork(nc, manager); err != nil {
			log.Fatal(err)
		}
		log.Printf("Linking to %s (%s)", nc.Name, nc.Protocol)
	}

	if err := manager.Wait(); err != nil {
		log.Fatal(err)
	}

	log.Printf("Daemon shutdown cleanly.")
}
