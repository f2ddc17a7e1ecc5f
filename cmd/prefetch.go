package main

import (
	"github.com/spf13/cobra"

	"wiki_harvester/internal/prefetch"
)

func newPrefetchCmd(c *cli) *cobra.Command {
	var (
		lang    string
		file    string
		out     string
		workers int
	)

	cmd := &cobra.Command{
		Use:   "prefetch [title]...",
		Short: "Download page info and revision lists for a list of titles into files",
		RunE: func(cmd *cobra.Command, args []string) error {
			titles := append([]string(nil), args...)
			if file != "" {
				lines, err := readLines(file)
				if err != nil {
					return err
				}
				titles = append(titles, lines...)
			}
			if len(titles) == 0 {
				return cmd.Usage()
			}

			if lang == "" {
				lang = c.cfg.API.DefaultLanguage
			}
			if out != "" {
				c.cfg.Prefetch.OutputDir = out
			}
			if workers > 0 {
				c.cfg.Prefetch.Workers = workers
			}

			p, err := prefetch.New(c.cfg.Prefetch, c.cfg.API, c.logger)
			if err != nil {
				return err
			}
			stats, err := p.Run(lang, titles)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}

	cmd.Flags().StringVarP(&lang, "lang", "l", "", "Wiki language (default from config)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "File with one title per line")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output directory (default from config)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Parallel requests (default from config)")
	return cmd
}
