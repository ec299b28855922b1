package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/solatis/segmentkeeper/internal/i18n"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
)

var rulesLocale string

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the registered rule variants",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd, nil)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg, nil, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		locale := rulesLocale
		if locale == "" {
			locale = cfg.Export.DefaultLocale
		}
		tag := i18n.ParseLocale(locale, language.AmericanEnglish)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tCATEGORY\tINSTANTIABLE\tNAME\tDESCRIPTION")
		for _, r := range a.registry.Rules() {
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n",
				r.RuleKey(), r.RuleCategoryKey(), r.Instantiable(), r.Name(tag), r.ShortDescription(tag))
		}
		return w.Flush()
	},
}

func init() {
	rulesCmd.Flags().StringVar(&rulesLocale, "locale", "", "locale for names and descriptions (default export.default_locale)")
	rootCmd.AddCommand(rulesCmd)
}
