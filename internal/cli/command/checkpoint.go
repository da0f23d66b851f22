// Package command provides CLI command definitions for streammesh-cli.
package command

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/streammesh-go/internal/cli/connection"
	"github.com/yndnr/streammesh-go/internal/cli/output"
)

// checkpointInfo mirrors the worker's completed checkpoint metadata.
type checkpointInfo struct {
	CheckpointID uint64 `json:"checkpoint_id"`
	Timestamp    int64  `json:"timestamp"`
	Empty        bool   `json:"empty,omitempty"`
	Handle       *struct {
		ID       string `json:"id"`
		Location string `json:"location"`
		Size     int64  `json:"size"`
		Checksum string `json:"checksum"`
	} `json:"handle,omitempty"`
	EntryCount   int64 `json:"entry_count"`
	BytesWritten int64 `json:"bytes_written"`
}

// CheckpointCommand returns the checkpoint subcommand group.
func CheckpointCommand() *cli.Command {
	return &cli.Command{
		Name:    "checkpoint",
		Aliases: []string{"ckpt"},
		Usage:   "Trigger, list and restore checkpoints",
		Subcommands: []*cli.Command{
			{
				Name:  "trigger",
				Usage: "Trigger a checkpoint",
				Flags: []cli.Flag{
					&cli.Uint64Flag{
						Name:  "id",
						Usage: "Checkpoint id (0 lets the worker assign one)",
					},
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "Block until the snapshot completes",
					},
				},
				Action: checkpointTrigger,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List completed checkpoints",
				Action:  checkpointList,
			},
			{
				Name:   "latest",
				Usage:  "Show the most recent completed checkpoint",
				Action: checkpointLatest,
			},
			{
				Name:  "restore",
				Usage: "Restore state from a completed checkpoint",
				Flags: []cli.Flag{
					&cli.Uint64Flag{
						Name:  "id",
						Usage: "Checkpoint id (0 restores the latest)",
					},
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Skip confirmation",
					},
				},
				Action: checkpointRestore,
			},
		},
	}
}

func checkpointTrigger(c *cli.Context) error {
	client := NewClient(c)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	body := map[string]any{}
	if id := c.Uint64("id"); id > 0 {
		body["checkpoint_id"] = id
	}
	if c.Bool("wait") {
		body["wait"] = true
	}

	resp, err := client.Post(ctx, "/v1/checkpoints", body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		CheckpointID uint64 `json:"checkpoint_id"`
		Outcome      string `json:"outcome"`
		Empty        bool   `json:"empty"`
		Handle       *struct {
			Location string `json:"location"`
			Size     int64  `json:"size"`
		} `json:"handle"`
		Metrics *struct {
			SyncMillis   int64 `json:"sync_ms"`
			AsyncMillis  int64 `json:"async_ms"`
			BytesWritten int64 `json:"bytes_written"`
			EntryCount   int64 `json:"entry_count"`
		} `json:"metrics"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	fmt.Printf("Checkpoint %d %s.\n", result.CheckpointID, result.Outcome)
	if result.Empty {
		fmt.Println("Snapshot was empty (no registered state).")
	}
	if result.Handle != nil {
		fmt.Printf("  Snapshot: %s (%d bytes)\n", result.Handle.Location, result.Handle.Size)
	}
	if result.Metrics != nil {
		fmt.Printf("  Sync: %dms, async: %dms, %d entries, %d bytes\n",
			result.Metrics.SyncMillis, result.Metrics.AsyncMillis,
			result.Metrics.EntryCount, result.Metrics.BytesWritten)
	}
	return nil
}

func checkpointList(c *cli.Context) error {
	client := NewClient(c)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Get(ctx, "/v1/checkpoints")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var list []checkpointInfo
	if err := connection.ParseResponse(resp, &list); err != nil {
		return err
	}

	flags := ParseGlobalFlags(c)
	switch output.Format(flags.Output) {
	case output.FormatJSON, output.FormatYAML:
		formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
		return formatter.Format(os.Stdout, list)
	default:
		table := &output.Table{
			Headers: []string{"ID", "TIMESTAMP", "ENTRIES", "BYTES", "SNAPSHOT"},
		}
		for _, md := range list {
			snap := "-"
			if md.Empty {
				snap = "(empty)"
			} else if md.Handle != nil {
				snap = md.Handle.ID
				if !flags.Wide {
					snap = truncateID(snap)
				}
			}
			table.AddRow(
				fmt.Sprintf("%d", md.CheckpointID),
				time.UnixMilli(md.Timestamp).Format("2006-01-02 15:04:05"),
				fmt.Sprintf("%d", md.EntryCount),
				fmt.Sprintf("%d", md.BytesWritten),
				snap,
			)
		}
		if err := table.Render(os.Stdout); err != nil {
			return err
		}
		fmt.Printf("\nTotal: %d checkpoints\n", len(list))
		return nil
	}
}

func checkpointLatest(c *cli.Context) error {
	client := NewClient(c)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Get(ctx, "/v1/checkpoints/latest")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result map[string]any
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	flags := ParseGlobalFlags(c)
	formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
	return formatter.Format(os.Stdout, result)
}

func checkpointRestore(c *cli.Context) error {
	id := c.Uint64("id")

	if !c.Bool("force") {
		target := "the latest checkpoint"
		if id > 0 {
			target = fmt.Sprintf("checkpoint %d", id)
		}
		fmt.Printf("This will replace current state with %s. Continue? [y/N]: ", target)
		var confirm string
		fmt.Scanln(&confirm)
		if confirm != "y" && confirm != "Y" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	client := NewClient(c)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	body := map[string]any{}
	if id > 0 {
		body["checkpoint_id"] = id
	}

	resp, err := client.Post(ctx, "/v1/checkpoints/restore", body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		CheckpointID uint64 `json:"checkpoint_id"`
		EntryCount   int64  `json:"entry_count"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	fmt.Printf("Restored checkpoint %d (%d entries).\n", result.CheckpointID, result.EntryCount)
	return nil
}
