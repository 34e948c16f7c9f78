package scaffold

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckExisting(t *testing.T) {
	t.Run("no existing config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "imapfw.yml")
		if err := CheckExisting(path); err != nil {
			t.Errorf("CheckExisting() error = %v, want nil", err)
		}
	})

	t.Run("config already present", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "imapfw.yml")
		if err := os.WriteFile(path, []byte("settings: {}\n"), 0o644); err != nil {
			t.Fatal(err)
		}

		err := CheckExisting(path)
		if err == nil {
			t.Fatal("CheckExisting() = nil, want error")
		}
		if !strings.Contains(err.Error(), "already exists") {
			t.Errorf("error %q should name the conflict", err)
		}
		if !strings.Contains(err.Error(), "imapfw init --force") {
			t.Errorf("error %q should point at --force", err)
		}
	})
}
