// Package command provides CLI command definitions for StreamMesh.
//
// This package defines all CLI commands using urfave/cli/v2:
//
//   - root.go: Root command and global flags
//   - state.go: State registry and entry subcommand group
//   - checkpoint.go: Checkpoint subcommand group
//   - snapshot.go: Local snapshot file inspection commands
//
// Commands follow a consistent pattern of parsing flags,
// calling the worker HTTP API, and formatting output.
//
// @req RQ-0602
// @design DS-0601
package command
