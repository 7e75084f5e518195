package main

import (
	"context"
	"fmt"
	"os"
	goruntime "runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jward/freshen/internal/grammar"
	"github.com/jward/freshen/internal/syntax"
)

func (a *app) declsCmd() *cobra.Command {
	var jobs int
	cmd := &cobra.Command{
		Use:   "decls FILE...",
		Short: "List the declarations of source files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			decls, err := a.parseDeclarations(cmd.Context(), args, jobs)
			if err != nil {
				return a.outputError(cmd.OutOrStdout(), cmd.ErrOrStderr(), "decls", err)
			}
			return a.outputResult(cmd.OutOrStdout(), CLIResult{Command: "decls", Results: decls})
		},
	}
	cmd.Flags().IntVarP(&jobs, "jobs", "j", goruntime.NumCPU(), "files parsed concurrently")
	return cmd
}

// parseDeclarations parses files concurrently and returns their
// declarations in argument order.
func (a *app) parseDeclarations(ctx context.Context, files []string, jobs int) ([]CLIDeclaration, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	results := make([][]CLIDeclaration, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(jobs, len(files))))
	for i, path := range files {
		g.Go(func() error {
			tree, err := a.parseFile(gctx, path)
			if err != nil {
				return err
			}
			results[i] = declarationsOf(path, tree)
			a.logger.Debug("parsed file", "path", path, "declarations", len(results[i]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := []CLIDeclaration{}
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func (a *app) parseFile(ctx context.Context, path string) (*syntax.Tree, error) {
	tree, _, err := a.parseFileProfile(ctx, path)
	return tree, err
}

func (a *app) parseFileProfile(ctx context.Context, path string) (*syntax.Tree, *grammar.Profile, error) {
	profile, err := a.profileFor(path)
	if err != nil {
		return nil, nil, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	tree, err := grammar.Parse(ctx, profile, src)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return tree, profile, nil
}

func declarationsOf(path string, tree *syntax.Tree) []CLIDeclaration {
	text := tree.Text()
	var out []CLIDeclaration
	for _, d := range syntax.Declarations(tree.Root()) {
		start := tree.Offset(d)
		out = append(out, CLIDeclaration{
			File:      path,
			Name:      syntax.Name(d),
			Type:      d.Type(),
			Depth:     d.Depth(),
			StartByte: start,
			EndByte:   start + d.Len(),
			Line:      strings.Count(text[:start], "\n") + 1,
		})
	}
	return out
}
