package main

import (
	"context"
	"flag"
	"fmt"
	"io"
)

type housekeepingSubcommand struct{}

func (cmd *housekeepingSubcommand) Flags(fs *flag.FlagSet) {}

func (cmd *housekeepingSubcommand) Run(ctx context.Context, env *environment, stdin io.Reader, stdout io.Writer) error {
	if err := env.housekeeping.CleanStaleData(ctx, env.store); err != nil {
		return fmt.Errorf("housekeeping: %w", err)
	}

	return nil
}
