package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"gitlab.com/gitlab-org/gitaly-refs/internal/git"
)

type updateSubcommand struct {
	request editRequest
}

func (cmd *updateSubcommand) Flags(fs *flag.FlagSet) {
	fs.StringVar(&cmd.request.Ref, "ref", "", "name of the reference to update")
	fs.StringVar(&cmd.request.Branch, "branch", "", `short name of the branch to update, instead of -ref`)
	fs.StringVar(&cmd.request.New, "new", "", `new object ID or "ref: <name>" for symbolic references`)
	fs.StringVar(&cmd.request.Old, "old", "", "expected current value, the null object ID requires the reference to not exist")
	fs.StringVar(&cmd.request.Message, "message", "", "reflog message")
	fs.BoolVar(&cmd.request.ReflogOnly, "reflog-only", false, "only write the reflog entry")
}

func (cmd *updateSubcommand) Run(ctx context.Context, env *environment, stdin io.Reader, stdout io.Writer) error {
	edit, err := cmd.request.refEdit()
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	return commitEdits(ctx, env, "update", []git.RefEdit{edit}, stdout)
}

type deleteSubcommand struct {
	request editRequest
}

func (cmd *deleteSubcommand) Flags(fs *flag.FlagSet) {
	fs.StringVar(&cmd.request.Ref, "ref", "", "name of the reference to delete")
	fs.StringVar(&cmd.request.Branch, "branch", "", `short name of the branch to delete, instead of -ref`)
	fs.StringVar(&cmd.request.Old, "old", "", "expected current value, the null object ID only requires the reference to exist")
	fs.BoolVar(&cmd.request.ReflogOnly, "reflog-only", false, "only delete the reflog")
}

func (cmd *deleteSubcommand) Run(ctx context.Context, env *environment, stdin io.Reader, stdout io.Writer) error {
	request := cmd.request
	request.Delete = true

	edit, err := request.refEdit()
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	return commitEdits(ctx, env, "delete", []git.RefEdit{edit}, stdout)
}
