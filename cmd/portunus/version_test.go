package main

import (
	"testing"
)

func TestVersionDefaults(t *testing.T) {
	// Commit and date may legitimately be empty until link time; the
	// version itself must not be.
	if Version == "" {
		t.Error("Version should have a default")
	}
}

func TestVersionCommandExists(t *testing.T) {
	if versionCmd == nil {
		t.Fatal("versionCmd is nil")
	}
	if versionCmd.Use != "version" {
		t.Errorf("versionCmd.Use = %q, want %q", versionCmd.Use, "version")
	}
	if versionCmd.Run == nil {
		t.Error("versionCmd.Run should not be nil")
	}
}

func TestRootCommandWiring(t *testing.T) {
	wanted := []string{"run", "validate", "version", "keys", "audit", "certs", "benchmark", "completion"}
	registered := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}
	for _, name := range wanted {
		if !registered[name] {
			t.Errorf("command %q not registered on root", name)
		}
	}
}
