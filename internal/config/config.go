/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

// Package config holds the player's settings. Values resolve in the order
// flags, LOQA_PLAYER_* environment, config file, defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "LOQA_PLAYER"

// Keys shared by flags, environment and config file
const (
	KeyConfig          = "config"
	KeySocket          = "socket"
	KeyStdin           = "stdin"
	KeyCapacity        = "capacity"
	KeyReadBuffer      = "read-buffer"
	KeySampleRate      = "sample-rate"
	KeyFramesPerBuffer = "frames-per-buffer"
	KeyNATSURL         = "nats-url"
	KeyPlayerID        = "player-id"
	KeyQuiet           = "quiet"
)

// Defaults
const (
	DefaultSocketPath      = "loqa-player.sock"
	DefaultCapacity        = 64
	DefaultReadBufferSize  = 256
	DefaultSampleRate      = 44100
	DefaultFramesPerBuffer = 1024
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the resolved runtime configuration
type Config struct {
	SocketPath      string
	Stdin           bool
	Capacity        int
	ReadBufferSize  int
	SampleRate      float64
	FramesPerBuffer int
	NATSURL         string
	PlayerID        string
	Quiet           bool
}

// Default returns the built-in configuration. PlayerID is left empty and
// generated by Load when nothing sets it.
func Default() Config {
	return Config{
		SocketPath:      DefaultSocketPath,
		Stdin:           true,
		Capacity:        DefaultCapacity,
		ReadBufferSize:  DefaultReadBufferSize,
		SampleRate:      DefaultSampleRate,
		FramesPerBuffer: DefaultFramesPerBuffer,
	}
}

// MinCapacity is the smallest registry that holds every startup task and
// still accepts one client. The signal task always takes a slot; stdin and
// the listener take one each when enabled, and the NATS bridge holds a
// client connection of its own.
func (c Config) MinCapacity() int {
	n := 1
	if c.Stdin {
		n++
	}
	if c.SocketPath != "" {
		n += 2
		if c.NATSURL != "" {
			n++
		}
	}
	return n
}

// Validate checks the values the reactor and audio engine depend on
func (c Config) Validate() error {
	switch {
	case c.SocketPath == "" && !c.Stdin:
		return fmt.Errorf("%w: both socket and stdin are disabled", ErrInvalidConfig)
	case c.Capacity < c.MinCapacity():
		return fmt.Errorf("%w: capacity %d is below %d (startup tasks plus one client)", ErrInvalidConfig, c.Capacity, c.MinCapacity())
	case c.ReadBufferSize < 1:
		return fmt.Errorf("%w: read buffer must hold at least one byte", ErrInvalidConfig)
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate must be positive", ErrInvalidConfig)
	case c.FramesPerBuffer < 1:
		return fmt.Errorf("%w: frames per buffer must be positive", ErrInvalidConfig)
	case c.NATSURL != "" && c.SocketPath == "":
		return fmt.Errorf("%w: the NATS bridge needs the control socket", ErrInvalidConfig)
	}
	return nil
}

// RegisterFlags adds the player's flags to flags
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String(KeyConfig, "", "path to a YAML config file")
	flags.StringP(KeySocket, "s", d.SocketPath, "control socket path (empty disables the socket)")
	flags.Bool(KeyStdin, d.Stdin, "read commands from standard input")
	flags.Int(KeyCapacity, d.Capacity, "maximum number of registered descriptors")
	flags.Int(KeyReadBuffer, d.ReadBufferSize, "bytes read per command")
	flags.Float64(KeySampleRate, d.SampleRate, "output sample rate in Hz")
	flags.Int(KeyFramesPerBuffer, d.FramesPerBuffer, "frames per audio callback")
	flags.String(KeyNATSURL, "", "NATS server URL for remote commands (empty disables the bridge)")
	flags.String(KeyPlayerID, "", "player identity on NATS (default: random UUID)")
	flags.BoolP(KeyQuiet, "q", false, "discard log output")
}

// Bind wires flags and LOQA_PLAYER_* environment variables into v
func Bind(v *viper.Viper, flags *pflag.FlagSet) error {
	for _, name := range []string{
		KeyConfig, KeySocket, KeyStdin, KeyCapacity, KeyReadBuffer,
		KeySampleRate, KeyFramesPerBuffer, KeyNATSURL, KeyPlayerID, KeyQuiet,
	} {
		flag := flags.Lookup(name)
		if flag == nil {
			return fmt.Errorf("flag %q not registered", name)
		}
		if err := v.BindPFlag(name, flag); err != nil {
			return err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return nil
}

// Load reads the optional config file and resolves the configuration
func Load(v *viper.Viper) (Config, error) {
	if path := strings.TrimSpace(v.GetString(KeyConfig)); path != "" {
		if err := readConfigFile(v, path); err != nil {
			return Config{}, err
		}
	}

	cfg := Config{
		SocketPath:      v.GetString(KeySocket),
		Stdin:           v.GetBool(KeyStdin),
		Capacity:        v.GetInt(KeyCapacity),
		ReadBufferSize:  v.GetInt(KeyReadBuffer),
		SampleRate:      v.GetFloat64(KeySampleRate),
		FramesPerBuffer: v.GetInt(KeyFramesPerBuffer),
		NATSURL:         strings.TrimSpace(v.GetString(KeyNATSURL)),
		PlayerID:        strings.TrimSpace(v.GetString(KeyPlayerID)),
		Quiet:           v.GetBool(KeyQuiet),
	}
	if cfg.PlayerID == "" {
		cfg.PlayerID = uuid.NewString()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readConfigFile(v *viper.Viper, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("expand config path %q: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("config file %q: %w", abs, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config file %q is a directory", abs)
	}

	v.SetConfigFile(abs)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %q: %w", abs, err)
	}
	return nil
}
