// Package scaffold writes a starter configuration into a fresh working
// directory, so a first run starts from a file that loads instead of a
// blank page.
package scaffold

import (
	"embed"
	"fmt"
	"os"

	"github.com/c4ffein/imapfw/internal/config"
	"github.com/c4ffein/imapfw/internal/printer"
)

//go:embed templates/*
var templatesFS embed.FS

// Initialize writes the starter configuration to path. With force an
// existing file is replaced; without it, an existing file is an error.
func Initialize(path string, force bool) error {
	if force {
		if err := handleForce(path); err != nil {
			return err
		}
	} else if err := CheckExisting(path); err != nil {
		return err
	}

	starter, err := templatesFS.ReadFile("templates/imapfw.yml.tmpl")
	if err != nil {
		return fmt.Errorf("failed to read starter template: %w", err)
	}
	if err := os.WriteFile(path, starter, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	// The starter must load cleanly, or init hands the user a broken
	// file and blames them for it later.
	if _, err := config.Load(path); err != nil {
		return fmt.Errorf("created %s does not validate: %w", path, err)
	}
	return nil
}

// handleForce removes the existing configuration if one is in the way.
func handleForce(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	printer.Warning("Replacing existing %s...\n", path)
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// PrintSuccess prints what was created and what to do next.
func PrintSuccess(path string) {
	printer.Success("wrote %s\n", path)
	printer.Println("\nNext steps:")
	printer.Printf("  1. Edit %s with your repositories and accounts\n", path)
	printer.Println("  2. Export the password variable named by password_env")
	printer.Println("  3. Run 'imapfw noop' to check the configuration")
	printer.Println("  4. Run 'imapfw syncaccounts' to synchronize")
}
