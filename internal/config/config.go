// Package config loads runtime settings once in main and hands them on by
// value; nothing in here is consulted ambiently.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/duelsync/duelsync/internal/game"
)

// Peer holds the peer binary's settings.
type Peer struct {
	// RelayURL is the relayd websocket endpoint.
	RelayURL string `envconfig:"DUELSYNC_RELAY_URL" default:"ws://localhost:8080/ws"`

	// DataPath is the bbolt file for the session descriptor and snapshots.
	DataPath string `envconfig:"DUELSYNC_DATA_PATH" default:"duelsync.db"`

	// NoHostTimeout is how long a joining guest waits for the first state
	// broadcast before concluding the room has no host.
	NoHostTimeout time.Duration `envconfig:"DUELSYNC_NO_HOST_TIMEOUT" default:"3s"`

	// TickInterval is the host clock engine's nominal period.
	TickInterval time.Duration `envconfig:"DUELSYNC_TICK_INTERVAL" default:"1s"`

	// PlayerName is the default display name; flags override it.
	PlayerName string `envconfig:"DUELSYNC_PLAYER_NAME"`
}

// LoadPeer reads .env (if present) and the environment.
func LoadPeer() (Peer, error) {
	_ = godotenv.Load()
	var cfg Peer
	if err := envconfig.Process("", &cfg); err != nil {
		return Peer{}, fmt.Errorf("process environment: %w", err)
	}
	return cfg, nil
}

// LoadRoomSettings reads a yaml room-defaults file on top of the stock
// settings. An empty path returns the defaults unchanged.
func LoadRoomSettings(path string) (game.Settings, error) {
	set := game.DefaultSettings()
	if path == "" {
		return set, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return game.Settings{}, fmt.Errorf("read room settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &set); err != nil {
		return game.Settings{}, fmt.Errorf("parse room settings: %w", err)
	}
	set.Normalize()
	return set, nil
}
