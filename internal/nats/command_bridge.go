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

package nats

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// BroadcastSubject reaches every player on the bus
const BroadcastSubject = "player.broadcast.command"

const (
	connectAttempts = 5
	connectDelay    = 2 * time.Second
)

// CommandMessage is the JSON form of a command. Plain text bodies are
// accepted too and taken as the command line itself.
type CommandMessage struct {
	Command string `json:"command"`
}

// PlayerNATSConnection interface for dependency injection
type PlayerNATSConnection interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subject string, data []byte) error
	Close()
}

// PlayerNATSConnectionAdapter adapts *nats.Conn to PlayerNATSConnection interface
type PlayerNATSConnectionAdapter struct {
	conn *nats.Conn
}

func NewPlayerNATSConnectionAdapter(conn *nats.Conn) *PlayerNATSConnectionAdapter {
	return &PlayerNATSConnectionAdapter{conn: conn}
}

func (a *PlayerNATSConnectionAdapter) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	return a.conn.Subscribe(subject, cb)
}

func (a *PlayerNATSConnectionAdapter) Publish(subject string, data []byte) error {
	return a.conn.Publish(subject, data)
}

func (a *PlayerNATSConnectionAdapter) Close() {
	a.conn.Close()
}

// Forwarder delivers one command line to the player and returns its reply
type Forwarder interface {
	Send(command string) (string, error)
}

// CommandBridge relays commands received over NATS to the player's control
// socket, publishing the reply when the sender asked for one.
type CommandBridge struct {
	natsConn  PlayerNATSConnection
	playerID  string
	forwarder Forwarder
}

// CommandSubject returns the subject a single player listens on
func CommandSubject(playerID string) string {
	return fmt.Sprintf("player.%s.command", playerID)
}

// NewCommandBridge connects to natsURL, retrying a few times before giving up
func NewCommandBridge(natsURL, playerID string, forwarder Forwarder) (*CommandBridge, error) {
	var nc *nats.Conn
	var err error

	for i := 0; i < connectAttempts; i++ {
		nc, err = nats.Connect(natsURL, nats.Name("loqa-player "+playerID))
		if err == nil {
			break
		}
		log.Printf("⚠️  Failed to connect to NATS (attempt %d/%d): %v", i+1, connectAttempts, err)
		time.Sleep(connectDelay)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", connectAttempts, err)
	}

	log.Printf("✅ Connected to NATS at %s", natsURL)
	return NewCommandBridgeWithConnection(NewPlayerNATSConnectionAdapter(nc), playerID, forwarder), nil
}

// NewCommandBridgeWithConnection creates a bridge over an existing connection (for testing)
func NewCommandBridgeWithConnection(natsConn PlayerNATSConnection, playerID string, forwarder Forwarder) *CommandBridge {
	return &CommandBridge{
		natsConn:  natsConn,
		playerID:  playerID,
		forwarder: forwarder,
	}
}

// Start subscribes to the player's own subject and the broadcast subject
func (b *CommandBridge) Start() error {
	playerSubject := CommandSubject(b.playerID)
	if _, err := b.natsConn.Subscribe(playerSubject, b.handleCommandMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", playerSubject, err)
	}

	if _, err := b.natsConn.Subscribe(BroadcastSubject, b.handleCommandMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", BroadcastSubject, err)
	}

	log.Printf("🎧 Subscribed to command subjects: %s, %s", playerSubject, BroadcastSubject)
	return nil
}

// handleCommandMessage forwards one command and answers on msg.Reply
func (b *CommandBridge) handleCommandMessage(msg *nats.Msg) {
	command, err := decodeCommand(msg.Data)
	if err != nil {
		log.Printf("❌ Failed to decode command message on %s: %v", msg.Subject, err)
		b.reply(msg, "error: "+err.Error()+"\n")
		return
	}
	if command == "" {
		return
	}

	log.Printf("📥 Received command on %s: %q", msg.Subject, command)

	response, err := b.forwarder.Send(command)
	if err != nil {
		log.Printf("⚠️  Failed to forward command %q: %v", command, err)
		response = "error: " + err.Error() + "\n"
	}
	b.reply(msg, response)
}

func (b *CommandBridge) reply(msg *nats.Msg, response string) {
	if msg.Reply == "" {
		return
	}
	if err := b.natsConn.Publish(msg.Reply, []byte(response)); err != nil {
		log.Printf("⚠️  Failed to publish reply to %s: %v", msg.Reply, err)
	}
}

// decodeCommand accepts a JSON CommandMessage or a plain command line
func decodeCommand(data []byte) (string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var cmd CommandMessage
		if err := json.Unmarshal(trimmed, &cmd); err != nil {
			return "", fmt.Errorf("invalid command message: %w", err)
		}
		trimmed = []byte(strings.TrimSpace(cmd.Command))
	}

	// One command per message; the protocol reads a single line anyway
	line, _, _ := strings.Cut(string(trimmed), "\n")
	return strings.TrimSpace(line), nil
}

// Close closes the NATS connection
func (b *CommandBridge) Close() {
	if b.natsConn != nil {
		b.natsConn.Close()
		log.Println("🔌 NATS connection closed")
	}
}
