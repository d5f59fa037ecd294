package main

import (
	"strings"
	"testing"
)

func TestBuildRootHasSubcommands(t *testing.T) {
	root := buildRoot()
	want := map[string]bool{
		"run":     false,
		"status":  false,
		"start":   false,
		"stop":    false,
		"version": false,
	}
	for _, c := range root.Commands() {
		name := strings.Fields(c.Use)[0]
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestHelpExitsZero(t *testing.T) {
	root := buildRoot()
	root.SetArgs([]string{"--help"})
	if err := root.Execute(); err != nil {
		t.Fatalf("help should succeed: %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	root := buildRoot()
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version should succeed: %v", err)
	}
}

func TestStatusFailsWithoutDaemon(t *testing.T) {
	root := buildRoot()
	root.SetArgs([]string{"status", "--api-url", "http://127.0.0.1:1/api", "--api-timeout", "100ms"})
	root.SilenceErrors = true
	root.SilenceUsage = true
	if err := root.Execute(); err == nil {
		t.Fatal("expected error when no daemon is running")
	}
}
