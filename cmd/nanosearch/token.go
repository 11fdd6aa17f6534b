package main

import (
	"errors"
	"fmt"

	"github.com/coffersTech/nanosearch/internal/auth"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newTokenCmd() *cobra.Command {
	var name, scope string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate an API token",
		Long: `Generate an API token.

The secret is printed once. Only its bcrypt hash goes into the config file,
under the tokens key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return errors.New("--name is required")
			}
			s, err := auth.ParseScope(scope)
			if err != nil {
				return err
			}

			secret, err := auth.GenerateSecret()
			if err != nil {
				return err
			}
			hash, err := auth.HashSecret(secret)
			if err != nil {
				return err
			}

			snippet, err := yaml.Marshal(map[string][]auth.Token{
				"tokens": {{Name: name, Hash: hash, Scope: s}},
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Secret (shown only once): %s\n\n", secret)
			fmt.Fprintf(out, "Add to your config file:\n\n%s", snippet)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Token name")
	cmd.Flags().StringVar(&scope, "scope", string(auth.ScopeRead), "Token scope (read or write)")
	return cmd
}
