package driver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c4ffein/imapfw/internal/config"
	"github.com/c4ffein/imapfw/internal/syncstate"
	"github.com/c4ffein/imapfw/pkg/edmp"
)

// Runner serves one side's driver over a receiver. Four framework
// topics are always available:
//
//	buildDriver(account, side)       build the driver for one account side
//	buildDriverFromRepository(name)  build the driver for a repository
//	isDriverBuilt()                  report whether a driver is bound
//	logout()                         close the current driver's connection
//
// Building a driver binds its exported methods as additional topics;
// rebuilding replaces them.
type Runner struct {
	receiver *edmp.Receiver
	conf     *config.Config
	store    *syncstate.Store
	logger   *slog.Logger

	driver Driver
	bound  []string
}

// NewRunner wires a runner to the receiver it will serve.
func NewRunner(receiver *edmp.Receiver, conf *config.Config, store *syncstate.Store, logger *slog.Logger) *Runner {
	return &Runner{
		receiver: receiver,
		conf:     conf,
		store:    store,
		logger:   logger.With("component", "driver.runner", "link", receiver.Name()),
	}
}

// Run registers the framework topics and serves until told to stop.
// It has the shape a worker expects.
func (rn *Runner) Run(ctx context.Context) {
	rn.acceptFramework(ctx)
	rn.receiver.Serve(ctx)
}

func (rn *Runner) acceptFramework(ctx context.Context) {
	rn.receiver.AcceptDoc("buildDriver",
		"builds the driver for one side (left or right) of an account",
		func(args ...any) (any, error) {
			account, err := stringArg(args, 0)
			if err != nil {
				return nil, fmt.Errorf("buildDriver: %w", err)
			}
			side, err := stringArg(args, 1)
			if err != nil {
				return nil, fmt.Errorf("buildDriver: %w", err)
			}
			repository, err := rn.sideRepository(account, side)
			if err != nil {
				return nil, err
			}
			return nil, rn.build(ctx, repository)
		})

	rn.receiver.AcceptDoc("buildDriverFromRepository",
		"builds the driver for the named repository",
		func(args ...any) (any, error) {
			repository, err := stringArg(args, 0)
			if err != nil {
				return nil, fmt.Errorf("buildDriverFromRepository: %w", err)
			}
			return nil, rn.build(ctx, repository)
		})

	rn.receiver.AcceptDoc("isDriverBuilt",
		"reports whether a driver is currently bound",
		func(...any) (any, error) {
			return rn.driver != nil, nil
		})

	rn.receiver.AcceptDoc("logout",
		"closes the current driver's connection",
		func(...any) (any, error) {
			if rn.driver == nil {
				return nil, nil
			}
			return nil, rn.driver.Logout(ctx)
		})
}

// build replaces the current driver with a fresh one for repository,
// rebinding the driver topics.
func (rn *Runner) build(ctx context.Context, repository string) error {
	repo, err := rn.conf.Repository(repository)
	if err != nil {
		return err
	}

	drv, err := New(repository, repo, rn.store, rn.logger)
	if err != nil {
		return err
	}

	if rn.driver != nil {
		if err := rn.driver.Logout(ctx); err != nil {
			rn.logger.Warn("logout of replaced driver failed", "error", err)
		}
		for _, topic := range rn.bound {
			rn.receiver.Forget(topic)
		}
	}

	rn.driver = drv
	rn.bound = BindTopics(ctx, rn.receiver, drv)
	// Framework topics win over same-named driver methods.
	rn.acceptFramework(ctx)

	rn.logger.Info("driver built", "kind", drv.FwKind(), "repository", drv.FwRepositoryName())
	return nil
}

func (rn *Runner) sideRepository(account, side string) (string, error) {
	acc, err := rn.conf.Account(account)
	if err != nil {
		return "", err
	}
	switch side {
	case SideLeft:
		return acc.Left, nil
	case SideRight:
		return acc.Right, nil
	default:
		return "", fmt.Errorf("unknown account side %q", side)
	}
}

func stringArg(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing argument %d", i+1)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("argument %d: want string, got %T", i+1, args[i])
	}
	return s, nil
}
