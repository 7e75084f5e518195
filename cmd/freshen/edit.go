package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/freshen"
	"github.com/jward/freshen/internal/runtime"
	"github.com/jward/freshen/internal/store"
	"github.com/jward/freshen/internal/syntax"
)

type editFlags struct {
	op   string
	at   int
	to   int
	up   int
	text string
	db   string
	hook string
}

func (a *app) editCmd() *cobra.Command {
	f := &editFlags{}
	cmd := &cobra.Command{
		Use:   "edit FILE",
		Short: "Apply one edit to a file's syntax tree and report what it invalidates",
		Long: `Edit parses FILE, applies one tree edit and prints the declarations the edit
invalidated. The edit targets the leaf at byte --at, or its --up'th ancestor:

  insert   insert --text before the target
  replace  replace the target with --text
  remove   remove the target
  move     move the target before the leaf at byte --to

The file on disk is not modified.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.runEdit(cmd.Context(), args[0], f)
			if err != nil {
				return a.outputError(cmd.OutOrStdout(), cmd.ErrOrStderr(), "edit", err)
			}
			return a.outputResult(cmd.OutOrStdout(), CLIResult{Command: "edit", Results: result})
		},
	}
	cmd.Flags().StringVar(&f.op, "op", "", "edit operation: insert|replace|remove|move")
	cmd.Flags().IntVar(&f.at, "at", -1, "byte offset of the edited leaf")
	cmd.Flags().IntVar(&f.to, "to", -1, "byte offset of the move destination")
	cmd.Flags().IntVar(&f.up, "up", 0, "edit the n'th ancestor of the leaf instead")
	cmd.Flags().StringVar(&f.text, "text", "", "text for insert and replace")
	cmd.Flags().StringVar(&f.db, "db", "", "record invalidations in this freshness cache")
	cmd.Flags().StringVar(&f.hook, "hook", "", "run this Risor script per invalidation")
	_ = cmd.MarkFlagRequired("op")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func (a *app) runEdit(ctx context.Context, path string, f *editFlags) (result CLIEdit, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	tree, profile, err := a.parseFileProfile(ctx, path)
	if err != nil {
		return CLIEdit{}, err
	}

	engine := freshen.New(freshen.WithLogger(a.logger), freshen.WithRules(profile.Rules()))
	result = CLIEdit{File: path, Op: f.op, Invalidated: []CLIInvalidation{}}

	unsubscribe := engine.Hub().SubscribeFunc(func(decl *syntax.Node, external bool) {
		// Listeners run before the mutation, so offsets are still valid.
		start := tree.Offset(decl)
		result.Invalidated = append(result.Invalidated, CLIInvalidation{
			Name:      syntax.Name(decl),
			Type:      decl.Type(),
			StartByte: start,
			EndByte:   start + decl.Len(),
		})
	})
	defer unsubscribe()

	if f.db != "" {
		st, openErr := store.Open(f.db)
		if openErr != nil {
			return CLIEdit{}, openErr
		}
		defer st.Close()
		if _, indexErr := st.IndexTree(path, tree); indexErr != nil {
			return CLIEdit{}, indexErr
		}
		rec := store.NewRecorder(st, store.WithLogger(a.logger))
		engine.Subscribe(rec)
		defer func() {
			if cerr := rec.Close(); cerr != nil && err == nil {
				err = cerr
			}
			if err == nil {
				result.Recorded = rec.Stats().Recorded
			}
		}()
	}

	if f.hook != "" {
		// The script's directory resolves its imports.
		rt := runtime.NewRuntime(filepath.Dir(f.hook), runtime.WithLogger(a.logger))
		hook, hookErr := runtime.NewHookListener(rt, filepath.Base(f.hook))
		if hookErr != nil {
			return CLIEdit{}, hookErr
		}
		engine.Subscribe(hook)
		defer func() {
			if cerr := hook.Close(); cerr != nil && err == nil {
				err = cerr
			}
			if err == nil {
				result.HookRuns, _ = hook.Runs()
			}
		}()
	}

	engine.Watch(tree)
	defer engine.Unwatch(tree)

	target, err := a.editTarget(tree, f.at, f.up)
	if err != nil {
		return CLIEdit{}, err
	}
	result.Target = target.String()

	before := engine.Stats()
	if err := applyEdit(tree, target, f, profile.NewLeaf); err != nil {
		return CLIEdit{}, err
	}
	after := engine.Stats()
	result.Suppressed = after.Suppressed > before.Suppressed

	a.logger.Info("applied edit", "op", f.op, "target", result.Target, "invalidated", len(result.Invalidated))
	return result, nil
}

func (a *app) editTarget(tree *syntax.Tree, at, up int) (*syntax.Node, error) {
	leaf := tree.LeafAt(at)
	if leaf == nil {
		return nil, fmt.Errorf("no leaf at offset %d", at)
	}
	target := leaf
	for i := 0; i < up; i++ {
		if target.Parent() == nil || target.Parent() == tree.Root() {
			return nil, fmt.Errorf("--up %d walks past the file from offset %d", up, at)
		}
		target = target.Parent()
	}
	return target, nil
}

func applyEdit(tree *syntax.Tree, target *syntax.Node, f *editFlags, newLeaf func(string) *syntax.Node) error {
	switch f.op {
	case "insert":
		if f.text == "" {
			return errors.New("insert needs --text")
		}
		return tree.Insert(target.Parent(), target, newLeaf(f.text))
	case "replace":
		if f.text == "" {
			return errors.New("replace needs --text; use --op remove to delete")
		}
		return tree.Replace(target, newLeaf(f.text))
	case "remove":
		return tree.Remove(target)
	case "move":
		dest := tree.LeafAt(f.to)
		if dest == nil {
			return fmt.Errorf("no leaf at --to offset %d", f.to)
		}
		return tree.Move(target, dest.Parent(), dest)
	default:
		return fmt.Errorf("unknown --op %q: must be insert, replace, remove or move", f.op)
	}
}
