// Package config loads the daemon's process-wide settings and the
// per-Network uplink blocks described in §6.2. It follows the teacher's
// two-tier approach in config.go: flat key=value files for simple
// settings (via github.com/horgh/config), parsed and validated eagerly at
// load time rather than lazily at use.
//
// Per-Network blocks are richer than the teacher's single flat server
// config (multiple uplinks, nested dialect-specific flags, sidrange
// templates), so they are described in YAML rather than the flat format.
package config

import (
	"fmt"
	"strconv"

	hconfig "github.com/horgh/config"
	"gopkg.in/yaml.v2"
)

// Daemon holds process-wide settings: nothing a single Network needs, but
// everything the binary wiring them together needs (log level and the
// oper map used to authorize plugin-facing administrative hooks).
type Daemon struct {
	LogLevel string
	Opers    map[string]string
}

// LoadDaemon reads the flat key=value daemon config file, following the
// teacher's checkAndParseConfig validation style: every required key
// (log-level, opers-config) must be present and non-blank, and the opers
// file it names is read at once, so a bad config fails at startup rather
// than at first use.
func LoadDaemon(path string) (*Daemon, error) {
	m, err := hconfig.ReadStringMap(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read daemon config: %s", err)
	}

	requiredKeys := []string{"log-level", "opers-config"}
	for _, key := range requiredKeys {
		v, exists := m[key]
		if !exists {
			return nil, fmt.Errorf("missing required key: %s", key)
		}
		if len(v) == 0 {
			return nil, fmt.Errorf("configuration value is blank: %s", key)
		}
	}

	opers, err := hconfig.ReadStringMap(m["opers-config"])
	if err != nil {
		return nil, fmt.Errorf("unable to load opers config: %s", err)
	}

	return &Daemon{
		LogLevel: m["log-level"],
		Opers:    opers,
	}, nil
}

// Network describes one uplink block (§6.2). Dialect-specific extras live
// in the Extra map (e.g. "use_builtin_005_handling", "max_modes_per_msg")
// so each proto package can pull what it needs without this struct growing
// a field per dialect.
type Network struct {
	Name       string            `yaml:"name"`
	IP         string            `yaml:"ip"`
	Port       int               `yaml:"port"`
	Hostname   string            `yaml:"hostname"`
	SendPass   string            `yaml:"sendpass"`
	RecvPass   string            `yaml:"recvpass"`
	ServerDesc string            `yaml:"serverdesc"`
	NetName    string            `yaml:"netname"`
	SID        string            `yaml:"sid"`
	SIDRange   string            `yaml:"sidrange"`
	Protocol   string            `yaml:"protocol"`
	Extra      map[string]string `yaml:"extra"`
}

// Validate checks the required keys for a Network block per §6.2: port
// must be an integer with 0 < p < 65535, protocol must name a known
// dialect, and a SID (or sidrange, or neither for ngIRCd) must be
// consistent with that dialect's requirements.
func (n *Network) Validate() error {
	if n.Name == "" {
		return fmt.Errorf("network block missing name")
	}
	if n.IP == "" {
		return fmt.Errorf("%s: missing ip", n.Name)
	}
	if n.Port <= 0 || n.Port >= 65535 {
		return fmt.Errorf("%s: port %d out of range", n.Name, n.Port)
	}
	if n.Hostname == "" {
		return fmt.Errorf("%s: missing hostname", n.Name)
	}
	if n.SendPass == "" || n.RecvPass == "" {
		return fmt.Errorf("%s: missing sendpass/recvpass", n.Name)
	}
	if n.Protocol == "" {
		return fmt.Errorf("%s: missing protocol", n.Name)
	}

	switch n.Protocol {
	case "ngircd":
		// ngIRCd has no SID; the server name plays that role (§3).
		if n.SID != "" || n.SIDRange != "" {
			return fmt.Errorf("%s: ngircd does not use sid/sidrange", n.Name)
		}
	case "ts6", "p10", "unreal", "clientbot":
		if n.SID == "" && n.SIDRange == "" {
			return fmt.Errorf("%s: missing sid or sidrange", n.Name)
		}
	default:
		return fmt.Errorf("%s: unknown protocol %s", n.Name, n.Protocol)
	}

	return nil
}

// NetworksFile is the top-level YAML document: a list of uplink blocks.
type NetworksFile struct {
	Networks []Network `yaml:"networks"`
}

// LoadNetworks parses and validates every Network block in the YAML
// document held in data.
func LoadNetworks(data []byte) ([]Network, error) {
	var f NetworksFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unable to parse networks file: %s", err)
	}

	for i := range f.Networks {
		if err := f.Networks[i].Validate(); err != nil {
			return nil, err
		}
	}

	return f.Networks, nil
}

// ExtraInt reads an integer-valued Extra key, returning def if absent.
func (n *Network) ExtraInt(key string, def int) (int, error) {
	v, ok := n.Extra[key]
	if !ok {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: extra key %s is not an integer: %s", n.Name, key, err)
	}
	return i, nil
}

// ExtraBool reads a boolean-valued Extra key ("true"/"false"), returning
// def if absent.
func (n *Network) ExtraBool(key string, def bool) bool {
	v, ok := n.Extra[key]
	if !ok {
		return def
	}
	return v == "true"
}
