package scaffold

import (
	"fmt"
	"os"
)

// CheckExisting returns an error when a configuration already exists at
// path, so plain init never clobbers a file the user edited.
func CheckExisting(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return fmt.Errorf("%s already exists\n\nUse 'imapfw init --force' to replace it (this overwrites the existing configuration)", path)
}
