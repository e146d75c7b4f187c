package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/logrus/ctxlogrus"
	"gitlab.com/gitlab-org/gitaly-refs/internal/git"
)

// applySubcommand reads one JSON edit per line from stdin and applies all of
// them in a single transaction.
type applySubcommand struct{}

func (cmd *applySubcommand) Flags(fs *flag.FlagSet) {}

func (cmd *applySubcommand) Run(ctx context.Context, env *environment, stdin io.Reader, stdout io.Writer) error {
	var edits []git.RefEdit

	decoder := json.NewDecoder(stdin)
	for {
		var request editRequest
		if err := decoder.Decode(&request); err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("apply: %w", err)
		}

		edit, err := request.refEdit()
		if err != nil {
			return fmt.Errorf("apply: %w", err)
		}
		edits = append(edits, edit)
	}

	if len(edits) == 0 {
		return fmt.Errorf("apply: no edits given")
	}

	return commitEdits(ctx, env, "apply", edits, stdout)
}

func commitEdits(ctx context.Context, env *environment, name string, edits []git.RefEdit, stdout io.Writer) error {
	logger := ctxlogrus.Extract(ctx).WithField("edits", len(edits))

	tx := env.transaction(edits)
	defer func() {
		if err := tx.Close(); err != nil {
			logger.WithError(err).Warn("closing transaction")
		}
	}()

	logger.Info("started transaction")

	committed, err := tx.Commit(ctx)
	if err != nil {
		logger.WithError(err).Error("transaction failed")
		return fmt.Errorf("%s: %w", name, err)
	}

	logger.Info("completed transaction")

	return writeEdits(stdout, committed)
}
