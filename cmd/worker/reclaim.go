package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clipforge/shorts-worker/internal/config"
	"github.com/clipforge/shorts-worker/internal/jobstore"
	"github.com/clipforge/shorts-worker/internal/logging"
)

var reclaimCmd = &cobra.Command{
	Use:   "reclaim",
	Short: "Requeue jobs whose heartbeat has lapsed, then exit",
	RunE:  runReclaim,
}

func runReclaim(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogDev)
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := jobstore.New(cfg.DatabaseURL, nil, log)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.ReclaimStale(cmd.Context(), cfg.StaleJobSeconds)
	if err != nil {
		return err
	}
	fmt.Printf("reclaimed %d stale job(s)\n", n)
	return nil
}
