// Package model holds the domain types shared across the device registry,
// session manager, command router, and audit store. None of these types own
// a mutex or a connection; they are plain records passed between packages.
package model

import "time"

// Device is the registry's view of a single fleet member.
type Device struct {
	DeviceID       string         `json:"device_id"`
	DeviceType     string         `json:"device_type"`
	IsOnline       bool           `json:"is_online"`
	LastHeartbeat  time.Time      `json:"last_heartbeat"`
	ConnectedAt    time.Time      `json:"connected_at"`
	DisconnectedAt *time.Time     `json:"disconnected_at,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// StateSnapshot is an append-only telemetry record from a device.
type StateSnapshot struct {
	ID         int64          `json:"id"`
	DeviceID   string         `json:"device_id"`
	DeviceType string         `json:"device_type"`
	Payload    map[string]any `json:"payload"`
	Timestamp  time.Time      `json:"timestamp"`
}

// CommandStatus is one node in the command lifecycle FSM.
type CommandStatus string

const (
	CommandCreated    CommandStatus = "created"
	CommandSent       CommandStatus = "sent"
	CommandAckSuccess CommandStatus = "ack_success"
	CommandAckError   CommandStatus = "ack_error"
	CommandTimeout    CommandStatus = "timeout"
	CommandNoTargets  CommandStatus = "no_targets"
)

// CommandRecord is the full lifecycle record for one dispatched command.
type CommandRecord struct {
	CommandID         string         `json:"command_id"`
	DeviceType        string         `json:"device_type"`
	CommandName       string         `json:"command_name"`
	Payload           map[string]any `json:"payload"`
	Status            CommandStatus  `json:"status"`
	TargetDeviceCount int            `json:"target_device_count"`
	SuccessCount      int            `json:"success_count"`
	CreatedAt         time.Time      `json:"created_at"`
	ExecutedAt        *time.Time     `json:"executed_at,omitempty"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	ResponsePayload   map[string]any `json:"response_payload,omitempty"`
}

// ConnectionEventKind enumerates the append-only connection event log.
type ConnectionEventKind string

const (
	EventConnected    ConnectionEventKind = "connected"
	EventDisconnected ConnectionEventKind = "disconnected"
	EventTimeout      ConnectionEventKind = "timeout"
	EventReregistered ConnectionEventKind = "reregistered"
)

// ConnectionEvent is an append-only record of a device session transition.
type ConnectionEvent struct {
	ID         int64               `json:"id"`
	DeviceID   string              `json:"device_id"`
	DeviceType string              `json:"device_type"`
	Kind       ConnectionEventKind `json:"kind"`
	Timestamp  time.Time           `json:"timestamp"`
	Details    map[string]any      `json:"details,omitempty"`
}

// AudioTranscript is an append-only record of one audio-upload decision chain.
type AudioTranscript struct {
	ID              int64     `json:"id"`
	DeviceID        string    `json:"device_id"`
	RawText         string    `json:"raw_text"`
	NormalizedText  string    `json:"normalized_text"`
	PrefixOK        bool      `json:"prefix_ok"`
	MatchedCommand  *string   `json:"matched_command,omitempty"`
	Confidence      float64   `json:"confidence"`
	Manual          bool      `json:"manual"`
	CommandID       *string   `json:"command_id,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
