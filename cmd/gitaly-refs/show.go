package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"gitlab.com/gitlab-org/gitaly-refs/internal/git"
)

type showSubcommand struct {
	ref string
}

func (cmd *showSubcommand) Flags(fs *flag.FlagSet) {
	fs.StringVar(&cmd.ref, "ref", "", "name of the reference to show")
}

func (cmd *showSubcommand) Run(ctx context.Context, env *environment, stdin io.Reader, stdout io.Writer) error {
	reference, err := env.store.FindReference(git.ReferenceName(cmd.ref))
	if err != nil {
		return fmt.Errorf("show: %w", err)
	}

	_, err = fmt.Fprintln(stdout, reference.Target)
	return err
}

type listSubcommand struct {
	pattern  string
	branches bool
}

func (cmd *listSubcommand) Flags(fs *flag.FlagSet) {
	fs.StringVar(&cmd.pattern, "pattern", "", `glob matching reference names, e.g. "refs/heads/**"`)
	fs.BoolVar(&cmd.branches, "branches", false, "only list branches, by their short name")
}

func (cmd *listSubcommand) Run(ctx context.Context, env *environment, stdin io.Reader, stdout io.Writer) error {
	pattern := cmd.pattern
	if cmd.branches && pattern == "" {
		pattern = "refs/heads/**"
	}

	err := env.store.ForEachReference(pattern, func(reference git.Reference) error {
		name := reference.Name.String()
		if cmd.branches {
			branch, ok := reference.Name.Branch()
			if !ok {
				return nil
			}
			name = branch
		}

		_, err := fmt.Fprintf(stdout, "%s %s\n", reference.Target, name)
		return err
	})
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}

	return nil
}

type reflogSubcommand struct {
	ref string
}

func (cmd *reflogSubcommand) Flags(fs *flag.FlagSet) {
	fs.StringVar(&cmd.ref, "ref", "", "name of the reference whose log to show")
}

func (cmd *reflogSubcommand) Run(ctx context.Context, env *environment, stdin io.Reader, stdout io.Writer) error {
	name := git.ReferenceName(cmd.ref)
	if err := name.Validate(); err != nil {
		return fmt.Errorf("reflog: %w", err)
	}

	entries, err := env.store.ReadReflog(name)
	if err != nil {
		return fmt.Errorf("reflog: %w", err)
	}

	// Newest first, like git-reflog(1).
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if _, err := fmt.Fprintf(stdout, "%s %s %s\t%s\n", entry.OldOID, entry.NewOID, entry.Committer, entry.Message); err != nil {
			return err
		}
	}

	return nil
}
