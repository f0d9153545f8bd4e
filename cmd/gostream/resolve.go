package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/resolver"
	"github.com/alvarorichard/Gostream/internal/util"
)

var (
	seasonFlag  int
	episodeFlag int
	titleFlag   string
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2E86AB"))
var downStyle = lipgloss.NewStyle().Faint(true)

var resolveCmd = &cobra.Command{
	Use:   "resolve <movie|tv|anime> <catalog-id>",
	Short: "Resolve stream sources for a movie, TV episode or anime episode",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := models.MediaKind(args[0])
		switch kind {
		case models.KindMovie, models.KindTV, models.KindAnime:
		default:
			return fmt.Errorf("unsupported kind %q, want movie, tv or anime", args[0])
		}

		req := models.ResolutionRequest{
			CatalogID: args[1],
			Kind:      kind,
			Season:    seasonFlag,
			Episode:   episodeFlag,
		}
		if titleFlag != "" {
			req.ExternalIDs = &models.ExternalIDs{Title: titleFlag}
		}

		r, cleanup, err := buildResolver()
		if err != nil {
			return err
		}
		defer cleanup()

		sources, err := r.Resolve(context.Background(), req)
		if err != nil {
			util.Debug("resolution failed", "err", err)
			return fmt.Errorf("%s", resolver.UserMessage(err))
		}

		printSources(sources)
		return nil
	},
}

func printSources(sources []models.StreamSource) {
	fmt.Println(headerStyle.Render(fmt.Sprintf("%d source(s)", len(sources))))
	for i, s := range sources {
		line := fmt.Sprintf("%d. [%s] %s", i+1, s.Provider, s.URL)
		if s.Availability != models.AvailabilityWorking {
			line = downStyle.Render(line + " (unverified)")
		}
		fmt.Println(line)
		if s.Referer != "" {
			fmt.Printf("   referer: %s\n", s.Referer)
		}
		if s.RequiresProxying {
			fmt.Println("   note: segment requests must be proxied")
		}
	}
}

func init() {
	resolveCmd.Flags().IntVarP(&seasonFlag, "season", "s", 0, "season number (tv)")
	resolveCmd.Flags().IntVarP(&episodeFlag, "episode", "e", 0, "episode number (tv/anime)")
	resolveCmd.Flags().StringVarP(&titleFlag, "title", "t", "", "title fallback for anime search")
	rootCmd.AddCommand(resolveCmd)
}
