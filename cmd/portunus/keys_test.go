package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"fulcrum-hq/portunus/pkg/identity"
)

// writeTestConfig points the global config flag at a throwaway sqlite
// database for the duration of the test.
func writeTestConfig(t *testing.T) {
	t.Helper()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("database:\n  type: sqlite\n  url: %q\n", filepath.Join(dir, "portunus.db"))
	if err := os.WriteFile(cfgPath, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	orig := cfgFile
	cfgFile = cfgPath
	t.Cleanup(func() { cfgFile = orig })
}

// testCommand returns a command whose Context() is usable, matching
// what cobra provides during Execute.
func testCommand(t *testing.T) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd
}

func TestKeysCreateBootstrapsUserAndKey(t *testing.T) {
	writeTestConfig(t)

	keysFlags.username = "admin"
	keysFlags.groups = []string{"admin"}
	keysFlags.name = "bootstrap"
	keysFlags.expiresDays = 0

	if err := createKey(testCommand(t), nil); err != nil {
		t.Fatalf("createKey: %v", err)
	}

	store, _, err := openStore()
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer store.Close()

	ids := identity.NewService(store, nil)
	user, err := ids.GetUserByUsername(context.Background(), "admin")
	if err != nil {
		t.Fatalf("user not created: %v", err)
	}
	if !user.InGroup("admin") {
		t.Errorf("user groups = %v, want admin membership", user.Groups)
	}

	keys, err := ids.ListAPIKeys(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("ListAPIKeys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("got %d keys, want 1", len(keys))
	}
	if keys[0].Name != "bootstrap" {
		t.Errorf("key name = %q, want %q", keys[0].Name, "bootstrap")
	}
	if keys[0].ExpiresAt != nil {
		t.Errorf("expected no expiry, got %v", keys[0].ExpiresAt)
	}
}

func TestKeysCreateExistingUserKeepsGroups(t *testing.T) {
	writeTestConfig(t)

	keysFlags.username = "alice"
	keysFlags.groups = []string{"vip"}
	keysFlags.name = "first"
	keysFlags.expiresDays = 0
	if err := createKey(testCommand(t), nil); err != nil {
		t.Fatalf("first createKey: %v", err)
	}

	// A second create must mint another key without touching groups.
	keysFlags.groups = []string{"admin"}
	keysFlags.name = "second"
	if err := createKey(testCommand(t), nil); err != nil {
		t.Fatalf("second createKey: %v", err)
	}

	store, _, err := openStore()
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer store.Close()

	ids := identity.NewService(store, nil)
	user, err := ids.GetUserByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if user.InGroup("admin") {
		t.Errorf("groups changed on existing user: %v", user.Groups)
	}

	keys, err := ids.ListAPIKeys(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("ListAPIKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("got %d keys, want 2", len(keys))
	}
}

func TestKeysCreateWithExpiry(t *testing.T) {
	writeTestConfig(t)

	keysFlags.username = "ci-bot"
	keysFlags.groups = nil
	keysFlags.name = "ci"
	keysFlags.expiresDays = 90

	if err := createKey(testCommand(t), nil); err != nil {
		t.Fatalf("createKey: %v", err)
	}

	store, _, err := openStore()
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer store.Close()

	ids := identity.NewService(store, nil)
	user, err := ids.GetUserByUsername(context.Background(), "ci-bot")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	keys, err := ids.ListAPIKeys(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("ListAPIKeys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("got %d keys, want 1", len(keys))
	}
	if keys[0].ExpiresAt == nil {
		t.Fatal("expected an expiry")
	}

	want := time.Now().UTC().AddDate(0, 0, 90)
	got := keys[0].ExpiresAt.UTC()
	if got.Before(want.Add(-time.Hour)) || got.After(want.Add(time.Hour)) {
		t.Errorf("expiry = %v, want about %v", got, want)
	}
}

func TestKeysListUnknownUser(t *testing.T) {
	writeTestConfig(t)

	keysFlags.username = "ghost"
	keysFlags.format = "text"

	if err := listKeys(testCommand(t), nil); err == nil {
		t.Fatal("expected error for unknown user")
	}
}
