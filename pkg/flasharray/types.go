// Package flasharray is a minimal client for the FlashArray REST API:
// session handling, volume enumeration, and the snapshot and protection
// group calls the orchestrator needs.
package flasharray

import "context"

// Volume is an array volume as reported by volume enumeration.
type Volume struct {
	Name   string `json:"name"`
	Serial string `json:"serial"`
	Size   int64  `json:"size"`
}

// Snapshot is a storage snapshot created on the array.
type Snapshot struct {
	Name    string `json:"name"`
	Serial  string `json:"serial"`
	Source  string `json:"source"`
	Created string `json:"created"`
}

// ProtectionGroup is an array-side named collection of volumes snapshotted
// together atomically.
type ProtectionGroup struct {
	Name    string   `json:"name"`
	Volumes []string `json:"volumes"`
}

// Array is the storage array surface consumed by the orchestrator. *Client
// implements it; tests substitute fakes.
type Array interface {
	ListVolumes(ctx context.Context) ([]Volume, error)
	CreateVolumeSnapshot(ctx context.Context, volume, suffix string) (*Snapshot, error)

	// GetProtectionGroup returns (nil, nil) when no group has that name.
	GetProtectionGroup(ctx context.Context, name string) (*ProtectionGroup, error)
	CreateProtectionGroup(ctx context.Context, name string) (*ProtectionGroup, error)
	CreateProtectionGroupSnapshot(ctx context.Context, name, suffix string) (*Snapshot, error)
	ListVolumeProtectionGroups(ctx context.Context, volume string) ([]string, error)
	AddVolume(ctx context.Context, group, volume string) error
}
