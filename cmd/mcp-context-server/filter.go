package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ggoodman/mcp-context-go/contextmarkup"
)

func filterCmd() *cobra.Command {
	var (
		opts     contextmarkup.FilterOptions
		asJSON   bool
		stripAll bool
	)
	cmd := &cobra.Command{
		Use:   "filter [file]",
		Short: "Filter mcp:context markup from a file or stdin.",
		Long: `filter reads text containing mcp:context markup and prints the display
text. With --json it prints the display text and every categorized
occurrence.`,
		Args: cobra.MaximumNArgs(1),
		// Filtering needs no server configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			text, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			out := cmd.OutOrStdout()
			if stripAll {
				_, err = io.WriteString(out, contextmarkup.StripAll(string(text)))
				return err
			}
			res := contextmarkup.Filter(string(text), opts)
			if !asJSON {
				_, err = io.WriteString(out, res.Content)
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().BoolVar(&opts.ShowEphemeral, "show-ephemeral", false, "keep ephemeral blocks in the output")
	cmd.Flags().BoolVar(&opts.RenderMedia, "render-media", false, "render inline media references as img elements")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full filter result as JSON")
	cmd.Flags().BoolVar(&stripAll, "strip-all", false, "remove every occurrence, ephemeral or not")
	cmd.MarkFlagsMutuallyExclusive("json", "strip-all")
	return cmd
}
