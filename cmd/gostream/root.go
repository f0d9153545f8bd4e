package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/alvarorichard/Gostream/internal/anime"
	"github.com/alvarorichard/Gostream/internal/codec"
	"github.com/alvarorichard/Gostream/internal/config"
	"github.com/alvarorichard/Gostream/internal/decrypt"
	"github.com/alvarorichard/Gostream/internal/embed"
	"github.com/alvarorichard/Gostream/internal/livetv"
	"github.com/alvarorichard/Gostream/internal/probe"
	"github.com/alvarorichard/Gostream/internal/resolver"
	"github.com/alvarorichard/Gostream/internal/scraper"
	"github.com/alvarorichard/Gostream/internal/util"
)

var debugFlag bool

// Usage text is noise on runtime failures, but the error itself must reach
// the terminal: the fixed user-facing messages are returned as errors by
// the subcommands and printed by cobra.
var rootCmd = &cobra.Command{
	Use:          "gostream",
	Short:        "Resolve playable stream URLs from embed provider chains",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Setup(); err != nil {
			return err
		}
		util.SetDebugMode(debugFlag || viper.GetBool(config.KeyDebug))
		util.InitLogger()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
}

// buildResolver wires the full pipeline from configuration.
func buildResolver() (*resolver.Resolver, func(), error) {
	crypto := decrypt.New(viper.GetString(config.KeyHelperURL))

	walker := scraper.NewWalker()
	codecs := codec.NewRegistry()
	vidsrc := scraper.NewVidsrcClient(walker, codecs, viper.GetString(config.KeyStreamDomain))
	if base := viper.GetString(config.KeyVidsrcBase); base != "" {
		vidsrc.SetBaseURLs(base, viper.GetString(config.KeyVidsrcGateway))
	}

	kai := anime.NewKaiClient(crypto)
	if base := viper.GetString(config.KeyAnimeBase); base != "" {
		kai.SetBaseURL(base)
	}
	mapper := anime.NewMappingClient(viper.GetString(config.KeyMappingBase))
	identity := anime.NewIdentityResolver(mapper, kai)
	streams := anime.NewStreamResolver(kai, embed.NewMegaUnwrapper(crypto))

	cache := resolver.NewIdentityCache(cacheTTLOrDefault())
	r := resolver.New([]resolver.MovieProvider{vidsrc}, identity, streams, probe.NewProber(), cache)
	if budget := viper.GetDuration(config.KeyBudget); budget > 0 {
		r.SetBudget(budget)
	}

	cleanup := func() {}
	if panel := viper.GetString(config.KeyLivePanelURL); panel != "" {
		store, err := livetv.NewSQLiteStore(config.CredentialDBPath())
		if err != nil {
			return nil, nil, err
		}
		r.SetLive(livetv.NewChannelClient(panel), store)
		cleanup = func() { _ = store.Close() }
	}
	return r, cleanup, nil
}

func cacheTTLOrDefault() time.Duration {
	if ttl := viper.GetDuration(config.KeyCacheTTL); ttl > 0 {
		return ttl
	}
	return 6 * time.Hour
}
