package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alvarorichard/Gostream/internal/config"
	"github.com/alvarorichard/Gostream/internal/livetv"
	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/resolver"
	"github.com/alvarorichard/Gostream/internal/util"
)

var livetvCmd = &cobra.Command{
	Use:   "livetv",
	Short: "Live-TV channel resolution and credential pool management",
}

var livetvPlayCmd = &cobra.Command{
	Use:   "play <channel-id>",
	Short: "Resolve a live channel URL, rotating credentials on auth failure",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, cleanup, err := buildResolver()
		if err != nil {
			return err
		}
		defer cleanup()

		req := models.ResolutionRequest{CatalogID: args[0], Kind: models.KindLive}
		sources, err := r.Resolve(context.Background(), req)
		if err != nil {
			util.Debug("live resolution failed", "err", err)
			return fmt.Errorf("%s", resolver.UserMessage(err))
		}
		printSources(sources)
		return nil
	},
}

var livetvAddCmd = &cobra.Command{
	Use:   "add <id> <auth-material>",
	Short: "Add or refresh a credential in the pool",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := livetv.NewSQLiteStore(config.CredentialDBPath())
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		cred := models.Credential{ID: args[0], AuthMaterial: args[1]}
		if err := store.Add(cmd.Context(), cred); err != nil {
			return err
		}
		util.Info("credential stored", "id", cred.ID)
		return nil
	},
}

var livetvPoolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Show how many valid credentials remain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := livetv.NewSQLiteStore(config.CredentialDBPath())
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		n, err := store.Remaining(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%d credential(s) available\n", n)
		return nil
	},
}

func init() {
	livetvCmd.AddCommand(livetvPlayCmd, livetvAddCmd, livetvPoolCmd)
	rootCmd.AddCommand(livetvCmd)
}
