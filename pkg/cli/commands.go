package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nimburion/couchconnector/pkg/configschema"
	"github.com/nimburion/couchconnector/pkg/connector"
	"github.com/nimburion/couchconnector/pkg/health"
)

func newConfigCommand(rt *runtime) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := rt.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Database.DatabaseName() == "" {
				return fmt.Errorf("database.database is required")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
			return nil
		},
	})

	var showSecrets bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := rt.loadConfig(cmd)
			if err != nil {
				return err
			}
			if showSecrets {
				return rt.print(cmd, cfg)
			}
			return rt.print(cmd, cfg.Redacted())
		},
	}
	showCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "show secret values")
	configCmd.AddCommand(showCmd)

	configCmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := configschema.BuildSchema()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(schema)
		},
	})

	return configCmd
}

func newHealthcheckCommand(rt *runtime) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check connectivity to the document store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withConnector(cmd, func(ctx context.Context, c *connector.Connector) error {
				registry := health.NewRegistry()
				registry.Register(health.NewDocumentStoreChecker("document_store", c, timeout))
				result := registry.Check(ctx)
				if err := rt.print(cmd, result); err != nil {
					return err
				}
				if !result.IsHealthy() {
					return fmt.Errorf("healthcheck failed: %s", result.Status)
				}
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "health check timeout")
	return cmd
}

func newAutoupdateCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "autoupdate [model...]",
		Short: "Create the database if missing and sync design documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withConnector(cmd, func(ctx context.Context, c *connector.Connector) error {
				if err := c.Autoupdate(ctx, args...); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "database %s is up to date\n", c.Database())
				return nil
			})
		},
	}
}

func newAutomigrateCommand(rt *runtime) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "automigrate [model...]",
		Short: "Destroy and recreate the database, then sync design documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return errors.New("automigrate deletes every document; rerun with --yes to confirm")
			}
			return rt.withConnector(cmd, func(ctx context.Context, c *connector.Connector) error {
				if err := c.Automigrate(ctx, args...); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "database %s recreated\n", c.Database())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm destructive reset")
	return cmd
}

func newDesignDocsCommand(rt *runtime) *cobra.Command {
	designCmd := &cobra.Command{
		Use:   "designdocs",
		Short: "Design document commands",
	}
	designCmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Create or merge the configured design documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withConnector(cmd, func(ctx context.Context, c *connector.Connector) error {
				if err := c.SaveDesignDocs(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "design documents synced")
				return nil
			})
		},
	})
	return designCmd
}

func newDocCommand(rt *runtime) *cobra.Command {
	docCmd := &cobra.Command{
		Use:   "doc",
		Short: "Single document commands",
	}

	docCmd.AddCommand(&cobra.Command{
		Use:   "get <model> <id>",
		Short: "Fetch a document by id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withConnector(cmd, func(ctx context.Context, c *connector.Connector) error {
				rec, err := c.FindByID(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return rt.print(cmd, rec)
			})
		},
	})

	var createData string
	createCmd := &cobra.Command{
		Use:   "create <model>",
		Short: "Create a document; the store assigns an id when none is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := parseRecord(createData)
			if err != nil {
				return err
			}
			return rt.withConnector(cmd, func(ctx context.Context, c *connector.Connector) error {
				created, _, err := c.Create(ctx, args[0], rec)
				if err != nil {
					return err
				}
				return rt.print(cmd, created)
			})
		},
	}
	createCmd.Flags().StringVarP(&createData, "data", "d", "", "JSON object, or @file")
	docCmd.AddCommand(createCmd)

	var putData string
	putCmd := &cobra.Command{
		Use:   "put <model>",
		Short: "Save a document, creating or overwriting it at its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := parseRecord(putData)
			if err != nil {
				return err
			}
			return rt.withConnector(cmd, func(ctx context.Context, c *connector.Connector) error {
				if err := c.Save(ctx, args[0], rec); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "saved")
				return nil
			})
		},
	}
	putCmd.Flags().StringVarP(&putData, "data", "d", "", "JSON object, or @file")
	docCmd.AddCommand(putCmd)

	var replaceData string
	replaceCmd := &cobra.Command{
		Use:   "replace <model> <id>",
		Short: "Replace every field of an existing document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := parseRecord(replaceData)
			if err != nil {
				return err
			}
			return rt.withConnector(cmd, func(ctx context.Context, c *connector.Connector) error {
				replaced, err := c.ReplaceByID(ctx, args[0], args[1], rec)
				if err != nil {
					return err
				}
				return rt.print(cmd, replaced)
			})
		},
	}
	replaceCmd.Flags().StringVarP(&replaceData, "data", "d", "", "JSON object, or @file")
	docCmd.AddCommand(replaceCmd)

	docCmd.AddCommand(&cobra.Command{
		Use:   "delete <model> <id>",
		Short: "Delete a document by id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withConnector(cmd, func(ctx context.Context, c *connector.Connector) error {
				return rt.print(cmd, c.Destroy(ctx, args[0], args[1]))
			})
		},
	})

	return docCmd
}

func newFindCommand(rt *runtime) *cobra.Command {
	var (
		ids     []string
		destroy bool
	)
	cmd := &cobra.Command{
		Use:   "find <model>",
		Short: "Fetch (or delete) documents by id; missing ids are skipped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(ids) == 0 {
				return errors.New("at least one --id is required")
			}
			model := args[0]
			return rt.withConnector(cmd, func(ctx context.Context, c *connector.Connector) error {
				filter := connector.Filter{Where: connector.Where{
					c.IDField(model): connector.Where{"inq": ids},
				}}
				if destroy {
					res, err := c.DestroyAll(ctx, model, filter)
					if err != nil {
						return err
					}
					return rt.print(cmd, res)
				}
				records, err := c.All(ctx, model, filter)
				if err != nil {
					return err
				}
				return rt.print(cmd, records)
			})
		},
	}
	cmd.Flags().StringSliceVar(&ids, "id", nil, "document id (repeatable)")
	cmd.Flags().BoolVar(&destroy, "delete", false, "delete the matched documents instead of printing them")
	return cmd
}
