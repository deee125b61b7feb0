package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-streams/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-streams/pkg/orm"
)

var schemaTimeout time.Duration

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Manage the tables of declared entities",
}

var schemaCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create missing tables on every bound database",
	Long: `Create the tables of every declared entity, including language,
publication and relation tables. Existing tables are left untouched.

Examples:
  ekaya-streams schema create
  ekaya-streams schema create --timeout 2m
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Root().Version)
		if err != nil {
			return err
		}
		defer func() { _ = a.logger.Sync() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), schemaTimeout)
		defer cancel()
		return a.createSchema(ctx)
	},
}

func init() {
	schemaCreateCmd.Flags().DurationVarP(&schemaTimeout, "timeout", "t", time.Minute, "Timeout for creating tables")
	schemaCmd.AddCommand(schemaCreateCmd)
}

func (a *app) createSchema(ctx context.Context) error {
	engines, err := datasource.OpenEngines(ctx, a.cfg.Databases, a.cfg.PoolOptions(), a.logger)
	if err != nil {
		return err
	}
	defer engines.Close()

	err = orm.WithSession(ctx, engines.Binds(), a.logger, func(sess *orm.Session) error {
		return a.mappers.CreateAll(ctx, sess)
	})
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen, color.Bold)
	cyan := color.New(color.FgCyan)
	for _, t := range a.mappers.SchemaTables() {
		fmt.Printf("   - %s %s\n", cyan.Sprint(t.DBID), t.Name)
	}
	green.Printf("✅ %d tables ready\n", len(a.mappers.SchemaTables()))
	return nil
}
