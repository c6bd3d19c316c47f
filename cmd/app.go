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

package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loqalabs/loqa-player-go/internal/audio"
	"github.com/loqalabs/loqa-player-go/internal/config"
	"github.com/loqalabs/loqa-player-go/internal/nats"
	"github.com/loqalabs/loqa-player-go/internal/protocol"
	"github.com/loqalabs/loqa-player-go/internal/reactor"
	"github.com/loqalabs/loqa-player-go/internal/session"
	"github.com/loqalabs/loqa-player-go/internal/transport"
)

// Process exit statuses
const (
	exitOK      = 0
	exitFailure = 1 // usage or initialization failure
	exitFatal   = 2 // the reactor stopped on a fatal error
)

// environment is what the process talks to; tests swap in fakes
type environment struct {
	stdinFD    int
	stdout     io.Writer
	stderr     io.Writer
	newBackend func() audio.AudioBackend
}

// exitError carries the status a failed command exits with
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func run(args []string, env environment) int {
	root := newRootCommand(env)
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return exitOK
	}

	var exit *exitError
	if errors.As(err, &exit) {
		if exit.code != exitOK {
			fmt.Fprintf(env.stderr, "loqa-player: %v\n", exit.err)
		}
		return exit.code
	}

	// Flag and argument errors from cobra
	fmt.Fprintf(env.stderr, "loqa-player: %v\n", err)
	return exitFailure
}

func newRootCommand(env environment) *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "loqa-player [flags] <music_file_path>",
		Short:         "Audio player controlled over stdin and a Unix socket",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, err := config.Load(v)
			if err != nil {
				return &exitError{code: exitFailure, err: err}
			}
			configureLogging(cfg, env.stderr)
			return serve(cfg, args[0], env)
		},
	}
	root.SetOut(env.stdout)
	root.SetErr(env.stderr)

	config.RegisterFlags(root.PersistentFlags())
	if err := config.Bind(v, root.PersistentFlags()); err != nil {
		panic(err)
	}

	root.AddCommand(newCtlCommand(v, env))
	return root
}

func configureLogging(cfg config.Config, stderr io.Writer) {
	if cfg.Quiet {
		log.SetOutput(io.Discard)
		return
	}
	log.SetOutput(stderr)
}

// serve runs the player until quit, a signal, or a fatal reactor error
func serve(cfg config.Config, trackPath string, env environment) error {
	player := audio.NewPlayer(env.newBackend(), cfg.SampleRate, cfg.FramesPerBuffer)
	if err := player.Open(); err != nil {
		return &exitError{code: exitFailure, err: fmt.Errorf("failed to initialize audio engine: %w", err)}
	}
	defer func() {
		if err := player.Close(); err != nil {
			log.Printf("⚠️ Failed to shut down audio: %v", err)
		}
	}()

	sess := session.New(player)
	registry := reactor.NewRegistry(cfg.Capacity)
	r := reactor.New(registry)
	dispatcher := protocol.NewDispatcher(sess, r.Stop)

	if err := sess.Play(trackPath); err != nil {
		return &exitError{code: exitFailure, err: fmt.Errorf("cant load file %q: %w", trackPath, err)}
	}
	fmt.Fprintln(env.stdout, dispatcher.Status())

	if err := registerTasks(cfg, registry, r, dispatcher, env); err != nil {
		registry.CloseAll()
		return &exitError{code: exitFailure, err: err}
	}

	bridge := startBridge(cfg)
	defer bridge.close()

	log.Printf("✅ Player ready (%d/%d slots in use)", registry.Len(), registry.Capacity())
	if err := r.Run(); err != nil {
		log.Printf("❌ %v", err)
		return &exitError{code: exitFatal, err: err}
	}

	log.Println("👋 Exiting...")
	return nil
}

func registerTasks(cfg config.Config, registry *reactor.Registry, r *reactor.Reactor, dispatcher *protocol.Dispatcher, env environment) error {
	if err := reactor.RegisterSignals(registry, r.Stop, syscall.SIGINT, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to install signal handling: %w", err)
	}

	if cfg.SocketPath != "" {
		fd, err := reactor.Listen(cfg.SocketPath, reactor.DefaultBacklog)
		if err != nil {
			return err
		}
		listener := reactor.NewListenerTask(registry, cfg.SocketPath, func(int) reactor.Handler {
			return reactor.NewClientTask(registry, dispatcher, cfg.ReadBufferSize)
		})
		if err := registry.Register(fd, listener); err != nil {
			_ = listener.Close(fd)
			return fmt.Errorf("failed to register listener: %w", err)
		}
		log.Printf("🎧 Listening on %s", cfg.SocketPath)
	}

	if cfg.Stdin {
		stdin, err := reactor.RegisterStdin(registry, env.stdinFD, dispatcher, cfg.ReadBufferSize, env.stdout)
		if err != nil {
			return fmt.Errorf("failed to register standard input: %w", err)
		}
		// Without a socket nothing else can send commands once input ends
		if cfg.SocketPath == "" {
			stdin.OnClose = r.Stop
		}
	}

	return nil
}

// bridgeHandle owns the NATS bridge, which connects in the background so a
// slow broker never delays the first poll.
type bridgeHandle struct {
	mu     sync.Mutex
	bridge *nats.CommandBridge
	client *transport.ControlClient
	closed bool
}

func startBridge(cfg config.Config) *bridgeHandle {
	h := &bridgeHandle{}
	if cfg.NATSURL == "" {
		return h
	}

	h.client = transport.NewControlClient(cfg.SocketPath, transport.DefaultTimeout)
	go func() {
		if err := h.client.Connect(); err != nil {
			log.Printf("❌ NATS bridge disabled: %v", err)
			return
		}

		bridge, err := nats.NewCommandBridge(cfg.NATSURL, cfg.PlayerID, h.client)
		if err != nil {
			log.Printf("❌ NATS bridge disabled: %v", err)
			h.client.Disconnect()
			return
		}

		h.mu.Lock()
		defer h.mu.Unlock()
		if h.closed {
			bridge.Close()
			return
		}
		if err := bridge.Start(); err != nil {
			log.Printf("❌ NATS bridge disabled: %v", err)
			bridge.Close()
			return
		}
		h.bridge = bridge
		log.Printf("✅ NATS bridge up for player %s", cfg.PlayerID)
	}()
	return h
}

func (h *bridgeHandle) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	if h.bridge != nil {
		h.bridge.Close()
	}
	if h.client != nil {
		h.client.Disconnect()
	}
}

func newCtlCommand(v *viper.Viper, env environment) *cobra.Command {
	return &cobra.Command{
		Use:   "ctl <command...>",
		Short: "Send one command to a running player and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, err := config.Load(v)
			if err != nil {
				return &exitError{code: exitFailure, err: err}
			}
			log.SetOutput(io.Discard) // Only the reply goes out
			if cfg.SocketPath == "" {
				return &exitError{code: exitFailure, err: errors.New("no control socket configured")}
			}

			client := transport.NewControlClient(cfg.SocketPath, transport.DefaultTimeout)
			if err := client.Connect(); err != nil {
				return &exitError{code: exitFailure, err: err}
			}
			defer client.Disconnect()

			reply, err := client.Send(strings.Join(args, " "))
			if err != nil {
				return &exitError{code: exitFailure, err: err}
			}
			_, err = io.WriteString(env.stdout, reply)
			return err
		},
	}
}
