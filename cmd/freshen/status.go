package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jward/freshen/internal/store"
)

func (a *app) statusCmd() *cobra.Command {
	var (
		db         string
		file       string
		clearDirty bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List declarations the freshness cache holds as dirty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := a.runStatus(db, file, clearDirty)
			if err != nil {
				return a.outputError(cmd.OutOrStdout(), cmd.ErrOrStderr(), "status", err)
			}
			return a.outputResult(cmd.OutOrStdout(), CLIResult{Command: "status", Results: status})
		},
	}
	cmd.Flags().StringVar(&db, "db", "", "freshness cache database")
	cmd.Flags().StringVar(&file, "file", "", "only this file")
	cmd.Flags().BoolVar(&clearDirty, "clear", false, "mark the listed declarations verified")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func (a *app) runStatus(db, file string, clearDirty bool) (CLIStatus, error) {
	st, err := store.Open(db)
	if err != nil {
		return CLIStatus{}, err
	}
	defer st.Close()

	decls, err := st.DirtyDeclarations(file)
	if err != nil {
		return CLIStatus{}, err
	}

	status := CLIStatus{Dirty: []CLIDirty{}}
	ids := make([]int64, 0, len(decls))
	for _, d := range decls {
		log, err := st.Invalidations(d.ID)
		if err != nil {
			return CLIStatus{}, err
		}
		external := 0
		for _, inv := range log {
			if inv.External {
				external++
			}
		}
		status.Dirty = append(status.Dirty, CLIDirty{
			ID:            d.ID,
			File:          d.Path,
			Name:          d.Name,
			Type:          d.Type,
			StartByte:     d.StartByte,
			EndByte:       d.EndByte,
			Generation:    d.Generation,
			Invalidations: len(log),
			External:      external,
		})
		ids = append(ids, d.ID)
	}

	if clearDirty {
		n, err := st.MarkVerified(ids)
		if err != nil {
			return CLIStatus{}, fmt.Errorf("clearing: %w", err)
		}
		status.Cleared = n
		a.logger.Info("marked declarations verified", "count", n)
	}
	return status, nil
}

func (a *app) forgetCmd() *cobra.Command {
	var db string
	cmd := &cobra.Command{
		Use:   "forget FILE...",
		Short: "Remove files and their history from the freshness cache",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			forgotten, err := a.runForget(db, args)
			if err != nil {
				return a.outputError(cmd.OutOrStdout(), cmd.ErrOrStderr(), "forget", err)
			}
			return a.outputResult(cmd.OutOrStdout(), CLIResult{Command: "forget", Results: forgotten})
		},
	}
	cmd.Flags().StringVar(&db, "db", "", "freshness cache database")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func (a *app) runForget(db string, files []string) ([]string, error) {
	st, err := store.Open(db)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	forgotten := []string{}
	for _, path := range files {
		f, err := st.FileByPath(path)
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		if err := st.DeleteFile(path); err != nil {
			return nil, err
		}
		forgotten = append(forgotten, path)
	}
	return forgotten, nil
}
