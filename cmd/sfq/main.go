// sfq is a small CLI for running SOQL queries against a Salesforce org
// using a stored credential record.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/forcekit/forcekit/pkg/config"
	"github.com/forcekit/forcekit/pkg/credentials"
	sfrest "github.com/forcekit/forcekit/pkg/salesforce/rest"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	credentialsFile string
	queryOptions    string
	queryAll        bool
)

var rootCmd = &cobra.Command{
	Use:   "sfq",
	Short: "Salesforce REST client",
	Long:  `A CLI for querying Salesforce orgs through the REST API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <soql>",
	Short: "Run a SOQL query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := context.Background()
		var result interface{}
		if queryAll {
			result, err = client.QueryAll(ctx, args[0], queryOptions)
		} else {
			result, err = client.Query(ctx, args[0], queryOptions)
		}
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Show the org's API limits",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		result, err := client.Limits(context.Background())
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func newClient() (*sfrest.Client, func(), error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	cleanup := func() { _ = logger.Sync() }

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", zap.Error(err))
		return nil, nil, err
	}
	if credentialsFile != "" {
		cfg.CredentialsFile = credentialsFile
	}
	if cfg.CredentialsFile == "" {
		return nil, nil, fmt.Errorf("no credentials file: set --credentials or SF_CREDENTIALS_FILE")
	}

	client := sfrest.NewWithLogger(cfg, nil, logger)
	store := credentials.NewFileStore(cfg.CredentialsFile)
	if err := client.LoadCredentials(context.Background(), store); err != nil {
		logger.Error("Failed to load credentials", zap.Error(err))
		return nil, nil, err
	}
	return client, cleanup, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&credentialsFile, "credentials", "c", "", "path to the credentials file")
	queryCmd.Flags().StringVarP(&queryOptions, "options", "o", "", "extra query-string options appended after q=")
	queryCmd.Flags().BoolVar(&queryAll, "all", false, "include deleted and archived records")
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(limitsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
