// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "updraft",
		Subcommands: []*Command{
			{
				Name: "version",
				Run: func(args []string) error {
					called = "version"
					return nil
				},
			},
			{
				Name: "sync",
				Run: func(args []string) error {
					called = "sync"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"sync"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "sync" {
		t.Errorf("dispatched to %q, want %q", called, "sync")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "updraft",
		Subcommands: []*Command{
			{
				Name: "bundle",
				Subcommands: []*Command{
					{
						Name: "delete",
						Run: func(args []string) error {
							called = "bundle delete"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute([]string{"bundle", "delete", "bundle-id"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "bundle delete" {
		t.Errorf("dispatched to %q, want %q", called, "bundle delete")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "bundle-id" {
		t.Errorf("args = %v, want [bundle-id]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var configPath string
	var target string

	command := &Command{
		Name: "extract",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("extract", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "/etc/updraft.yaml", "config path")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute([]string{"--config", "/custom.yaml", "/tmp/dest"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if configPath != "/custom.yaml" {
		t.Errorf("configPath = %q, want %q", configPath, "/custom.yaml")
	}
	if target != "/tmp/dest" {
		t.Errorf("target = %q, want %q", target, "/tmp/dest")
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "sync",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("sync", pflag.ContinueOnError)
			flagSet.Bool("quiet", false, "suppress progress output")
			flagSet.String("config", "/etc/updraft.yaml", "config path")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--qiuet"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "did you mean --quiet") {
		t.Errorf("error = %q, want suggestion for '--quiet'", errStr)
	}
	if !strings.Contains(errStr, "qiuet") {
		t.Errorf("error = %q, should mention the bad flag", errStr)
	}
	if !strings.Contains(errStr, "--help") {
		t.Errorf("error = %q, should point to --help", errStr)
	}
}

func TestCommand_Execute_UnknownFlagNoSuggestion(t *testing.T) {
	command := &Command{
		Name: "sync",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("sync", pflag.ContinueOnError)
			flagSet.Bool("quiet", false, "suppress progress output")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--zzzzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for distant flag", err.Error())
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error = %q, should point to --help", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "updraft",
		Subcommands: []*Command{
			{Name: "sync"},
			{Name: "status"},
			{Name: "version"},
		},
	}

	err := root.Execute([]string{"stauts"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), "did you mean \"status\"") {
		t.Errorf("error = %q, want suggestion for 'status'", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandNoSuggestion(t *testing.T) {
	root := &Command{
		Name: "updraft",
		Subcommands: []*Command{
			{Name: "sync"},
			{Name: "status"},
		},
	}

	err := root.Execute([]string{"zzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not contain suggestion for distant input", err.Error())
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			root := &Command{
				Name:    "updraft",
				Summary: "Bundle update engine",
				Subcommands: []*Command{
					{Name: "sync", Summary: "Run one update cycle"},
				},
			}

			err := root.Execute([]string{helpArg})
			if err != nil {
				t.Errorf("Execute(%q) error: %v", helpArg, err)
			}
		})
	}
}

func TestCommand_Execute_NoArgsShowsHelp(t *testing.T) {
	root := &Command{
		Name: "updraft",
		Subcommands: []*Command{
			{Name: "sync", Summary: "Run one update cycle"},
		},
	}

	err := root.Execute([]string{})
	if err == nil {
		t.Fatal("Execute() = nil, want error for missing subcommand")
	}
	if !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %q, want 'subcommand required'", err.Error())
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	command := &Command{
		Name:        "updraft",
		Description: "Over-the-air bundle update engine.",
		Subcommands: []*Command{
			{Name: "sync", Summary: "Run one update cycle"},
			{Name: "status", Summary: "Show the active bundle"},
			{Name: "version", Summary: "Print version information"},
		},
		Examples: []Example{
			{
				Description: "Check and apply the latest bundle",
				Command:     "updraft sync --config /etc/updraft.yaml",
			},
			{
				Description: "Confirm the running bundle as healthy",
				Command:     "updraft confirm",
			},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"Over-the-air bundle update engine.",
		"Usage:",
		"updraft <command> [flags]",
		"Commands:",
		"sync",
		"Run one update cycle",
		"status",
		"Show the active bundle",
		"Examples:",
		"updraft sync --config /etc/updraft.yaml",
		"updraft confirm",
		"Run 'updraft <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_PrintHelp_WithFlags(t *testing.T) {
	command := &Command{
		Name:    "history",
		Summary: "Show recent update cycles",
		Usage:   "updraft history [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("history", pflag.ContinueOnError)
			flagSet.Int("limit", 20, "maximum entries to show")
			flagSet.Bool("json", false, "output as JSON")
			return flagSet
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"updraft history [flags]",
		"Flags:",
		"limit",
		"json",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_FullName(t *testing.T) {
	root := &Command{Name: "updraft"}
	bundle := &Command{Name: "bundle", parent: root}
	remove := &Command{Name: "delete", parent: bundle}

	if got := root.fullName(); got != "updraft" {
		t.Errorf("root.fullName() = %q, want %q", got, "updraft")
	}
	if got := bundle.fullName(); got != "updraft bundle" {
		t.Errorf("bundle.fullName() = %q, want %q", got, "updraft bundle")
	}
	if got := remove.fullName(); got != "updraft bundle delete" {
		t.Errorf("delete.fullName() = %q, want %q", got, "updraft bundle delete")
	}
}
