package main

import (
	"github.com/spf13/cobra"
)

func (a *app) schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "List the features the model expects",
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defaults, err := engine.Defaults(nil)
			if err != nil {
				return err
			}
			return writeSchema(cmd.OutOrStdout(), engine.Schema(), defaults)
		},
	}
}
