package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackctl-io/stackctl/internal/config"
	"github.com/stackctl-io/stackctl/internal/engine"
	"github.com/stackctl-io/stackctl/internal/provider/aws"
	"github.com/stackctl-io/stackctl/internal/state"
)

// cmdContext returns the command's context, falling back to a background
// context when the command was invoked outside Execute.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// openStore opens the state database and takes the exclusive lock. The caller
// must invoke the returned release function.
func openStore() (*state.Store, func(), error) {
	store, err := state.Open(statePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open state database: %w", err)
	}
	if err := store.Lock(); err != nil {
		store.Close()
		return nil, nil, err
	}
	release := func() {
		store.Unlock()
		store.Close()
	}
	return store, release, nil
}

// buildEngine assembles the store, the AWS provider, and the engine.
func buildEngine(ctx context.Context, cfg *config.Config) (*engine.Engine, func(), error) {
	store, release, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	prov, err := aws.New(ctx, cfg.Region)
	if err != nil {
		release()
		return nil, nil, err
	}
	return engine.New(store, prov), release, nil
}
