package config

import "github.com/BurntSushi/toml"

// Demo is the configuration file shape for cmd/demo, generalized from
// the teacher's configs.go constants into a loadable TOML document the
// way companyzero-bisonrelay and katzenpost-katzenpost configure their
// daemons.
type Demo struct {
	// StoreBackend selects "memory" (default) or "redis".
	StoreBackend string `toml:"store_backend"`
	// RedisAddress is used when StoreBackend == "redis".
	RedisAddress string `toml:"redis_address"`
	// AliceID/BobID name the two simulated parties.
	AliceID string `toml:"alice_id"`
	BobID   string `toml:"bob_id"`
}

// DefaultDemo returns the configuration used when no file is supplied.
func DefaultDemo() Demo {
	return Demo{
		StoreBackend: "memory",
		RedisAddress: "localhost:6379",
		AliceID:      "alice.1",
		BobID:        "bob.1",
	}
}

// LoadDemo reads a TOML config file, falling back to DefaultDemo for
// any field left unset in the file.
func LoadDemo(path string) (Demo, error) {
	cfg := DefaultDemo()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Demo{}, err
	}
	return cfg, nil
}
