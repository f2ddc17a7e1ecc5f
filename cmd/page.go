package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"wiki_harvester/internal/page"
	"wiki_harvester/internal/utils"
)

func newResolveCmd(c *cli) *cobra.Command {
	var lang string

	cmd := &cobra.Command{
		Use:   "resolve <title>...",
		Short: "Resolve titles through redirects and disambiguation pages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if lang == "" {
				lang = c.cfg.API.DefaultLanguage
			}
			client := c.client()

			type row struct {
				Query string `json:"query"`
				Kind  string `json:"kind"`
				page.Resolution
			}
			rows := make([]row, 0, len(args))
			for _, title := range args {
				res, _, err := page.ResolveTitle(cmd.Context(), client, lang, title,
					page.WithPageViewsEndpoint(c.cfg.API.PageViewsEndpoint), page.WithLogger(c.logger))
				if err != nil {
					return fmt.Errorf("resolving %q: %w", title, err)
				}
				rows = append(rows, row{Query: title, Kind: res.Kind.String(), Resolution: res})
			}
			return printJSON(cmd.OutOrStdout(), rows)
		},
	}

	cmd.Flags().StringVarP(&lang, "lang", "l", "", "Wiki language (default from config)")
	return cmd
}

func (c *cli) accessor(pageURL string) (*page.Accessor, error) {
	id, err := utils.ParseIdentity(pageURL)
	if err != nil {
		return nil, err
	}
	return page.New(c.client(), id,
		page.WithPageViewsEndpoint(c.cfg.API.PageViewsEndpoint),
		page.WithLogger(c.logger)), nil
}

func newLangLinksCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "langlinks <page-url>",
		Short: "List the translations of a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, err := c.accessor(args[0])
			if err != nil {
				return err
			}
			links, err := acc.LangLinks(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), links)
		},
	}
}

func newPageViewsCmd(c *cli) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "pageviews <page-url>",
		Short: "Fetch daily page views month by month",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, err := c.accessor(args[0])
			if err != nil {
				return err
			}
			views, err := acc.PageViews(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), views)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "First month, YYYYMM")
	cmd.Flags().StringVar(&to, "to", "", "Last month, YYYYMM (default current month)")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}
