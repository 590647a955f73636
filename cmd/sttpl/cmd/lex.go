package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oarkflow/sttpl"
)

var lexCmd = &cobra.Command{
	Use:   "lex FILE",
	Short: "Print the token stream of a template, one token per line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file := templatePath(args[0], cfg.Template.Extension)
		content, err := os.ReadFile(file)
		if err != nil {
			printError("reading template", err)
			return err
		}
		start, stop := cfg.Delimiters()
		lex := sttpl.NewLexer(sttpl.NewNamedStringStream(file, string(content)), sttpl.WithDelimiters(start, stop))
		out := cmd.OutOrStdout()
		for {
			tok, err := lex.Next()
			if err != nil {
				printError(file, err)
				return err
			}
			fmt.Fprintln(out, tok.String())
			if tok.Kind == sttpl.TokenEOF {
				return nil
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(lexCmd)
}
