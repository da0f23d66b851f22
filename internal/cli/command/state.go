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

// stateInfo mirrors the worker's registered state descriptor.
type stateInfo struct {
	ID                  int    `json:"id"`
	Name                string `json:"name"`
	KeySerializer       string `json:"key_serializer" table:"wide"`
	NamespaceSerializer string `json:"namespace_serializer" table:"wide"`
	ValueSerializer     string `json:"value_serializer" table:"wide"`
}

// StateCommand returns the state subcommand group.
func StateCommand() *cli.Command {
	return &cli.Command{
		Name:    "state",
		Aliases: []string{"st"},
		Usage:   "Manage registered states and entries",
		Subcommands: []*cli.Command{
			{
				Name:      "register",
				Usage:     "Register a named state",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "key-serializer",
						Value: "bytes",
						Usage: "Key serializer name",
					},
					&cli.StringFlag{
						Name:  "namespace-serializer",
						Value: "void",
						Usage: "Namespace serializer name",
					},
					&cli.StringFlag{
						Name:  "value-serializer",
						Value: "bytes",
						Usage: "Value serializer name",
					},
				},
				Action: stateRegister,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List registered states and the owned key-group range",
				Action:  stateList,
			},
			{
				Name:      "put",
				Usage:     "Write an entry",
				ArgsUsage: "STATE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "key",
						Aliases:  []string{"k"},
						Usage:    "Entry key",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "namespace",
						Aliases: []string{"n"},
						Usage:   "Entry namespace",
					},
					&cli.StringFlag{
						Name:     "value",
						Aliases:  []string{"v"},
						Usage:    "Entry value",
						Required: true,
					},
				},
				Action: statePut,
			},
			{
				Name:      "get",
				Usage:     "Read an entry",
				ArgsUsage: "STATE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "key",
						Aliases:  []string{"k"},
						Usage:    "Entry key",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "namespace",
						Aliases: []string{"n"},
						Usage:   "Entry namespace",
					},
				},
				Action: stateGet,
			},
			{
				Name:      "delete",
				Aliases:   []string{"del"},
				Usage:     "Delete an entry",
				ArgsUsage: "STATE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "key",
						Aliases:  []string{"k"},
						Usage:    "Entry key",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "namespace",
						Aliases: []string{"n"},
						Usage:   "Entry namespace",
					},
				},
				Action: stateDelete,
			},
		},
	}
}

func stateRegister(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("state name required")
	}

	client := NewClient(c)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	body := map[string]any{
		"name":                 name,
		"key_serializer":       c.String("key-serializer"),
		"namespace_serializer": c.String("namespace-serializer"),
		"value_serializer":     c.String("value-serializer"),
	}

	resp, err := client.Post(ctx, "/v1/states", body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		StateID int    `json:"state_id"`
		Name    string `json:"name"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	fmt.Printf("State '%s' registered with id %d.\n", result.Name, result.StateID)
	return nil
}

func stateList(c *cli.Context) error {
	client := NewClient(c)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Get(ctx, "/v1/states")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		RangeStart      int         `json:"range_start"`
		RangeEnd        int         `json:"range_end"`
		RegisteredCount int         `json:"registered_count"`
		States          []stateInfo `json:"states"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	flags := ParseGlobalFlags(c)
	switch output.Format(flags.Output) {
	case output.FormatJSON, output.FormatYAML:
		formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
		return formatter.Format(os.Stdout, result)
	default:
		formatter := &output.TableFormatter{Wide: flags.Wide}
		if err := formatter.Format(os.Stdout, result.States); err != nil {
			return err
		}
		fmt.Printf("\nKey groups: [%d, %d], %d states registered\n",
			result.RangeStart, result.RangeEnd, result.RegisteredCount)
		return nil
	}
}

func statePut(c *cli.Context) error {
	state := c.Args().First()
	if state == "" {
		return fmt.Errorf("state name required")
	}

	client := NewClient(c)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	body := entryBody(c)
	body["value"] = []byte(c.String("value"))

	resp, err := client.Post(ctx, "/v1/states/"+state+"/entries", body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if err := connection.ParseResponse(resp, nil); err != nil {
		return err
	}

	fmt.Printf("Entry written to state '%s'.\n", state)
	return nil
}

func stateGet(c *cli.Context) error {
	state := c.Args().First()
	if state == "" {
		return fmt.Errorf("state name required")
	}

	client := NewClient(c)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Post(ctx, "/v1/states/"+state+"/entries/get", entryBody(c))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		Value []byte `json:"value"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	fmt.Printf("%s\n", result.Value)
	return nil
}

func stateDelete(c *cli.Context) error {
	state := c.Args().First()
	if state == "" {
		return fmt.Errorf("state name required")
	}

	client := NewClient(c)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Post(ctx, "/v1/states/"+state+"/entries/delete", entryBody(c))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if err := connection.ParseResponse(resp, nil); err != nil {
		return err
	}

	fmt.Printf("Entry deleted from state '%s'.\n", state)
	return nil
}

// entryBody builds the key and namespace fields shared by the entry
// operations. Raw bytes marshal as base64 in JSON.
func entryBody(c *cli.Context) map[string]any {
	body := map[string]any{
		"key": []byte(c.String("key")),
	}
	if ns := c.String("namespace"); ns != "" {
		body["namespace"] = []byte(ns)
	}
	return body
}
