package driver

import (
	"fmt"
	"log/slog"

	"github.com/c4ffein/imapfw/internal/config"
	"github.com/c4ffein/imapfw/internal/syncstate"
)

// New builds and initializes the driver matching the repository's
// configured type.
func New(name string, repo config.Repository, store *syncstate.Store, logger *slog.Logger) (Driver, error) {
	var drv Driver
	switch repo.Type {
	case config.TypeIMAP:
		drv = NewIMAPDriver(name, *repo.IMAP, logger)
	case config.TypeMaildir:
		drv = NewMaildirDriver(name, *repo.Maildir, store, logger)
	default:
		return nil, fmt.Errorf("repository %q has unsupported type %q", name, repo.Type)
	}

	if err := drv.FwInit(); err != nil {
		return nil, fmt.Errorf("initializing driver for %q: %w", name, err)
	}
	return drv, nil
}
