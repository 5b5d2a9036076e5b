package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/ehr/allergy/internal/platform/auth"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "allergy-server",
		Short: "Allergy record and drug interaction service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(registryCmd())
	rootCmd.AddCommand(checkCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the allergy API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func registryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Manage the cross-sensitivity registry",
	}

	// registry import
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import cross-sensitivity pairs from a YAML seed file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			admin, _ := cmd.Flags().GetString("admin")

			seed, err := loadSeedFile(file)
			if err != nil {
				return err
			}

			a, err := openCLI()
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := importSeed(context.Background(), a.svc, admin, seed)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d cross-sensitivity pair(s).\n", n)
			return nil
		},
	}
	importCmd.Flags().String("file", "./seed/cross_sensitivities.yaml", "Path to the YAML seed file")
	importCmd.Flags().String("admin", "", "Administrator recorded as the registering principal")
	_ = importCmd.MarkFlagRequired("admin")
	cmd.AddCommand(importCmd)

	// registry related
	relatedCmd := &cobra.Command{
		Use:   "related <drug>",
		Short: "List drugs registered as cross-sensitive with a drug",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openCLI()
			if err != nil {
				return err
			}
			defer a.Close()

			related, err := a.svc.RelatedDrugs(context.Background(), args[0])
			if err != nil {
				return err
			}
			for _, d := range related {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return nil
		},
	}
	cmd.AddCommand(relatedCmd)

	return cmd
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <patient> <drug>",
		Short: "Check a drug against a patient's active allergies",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openCLI()
			if err != nil {
				return err
			}
			defer a.Close()

			warnings, err := a.svc.CheckDrugAllergyInteraction(context.Background(), args[0], args[1])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(warnings)
		},
	}
}

// openCLI builds an app for operator commands. They run with direct store
// access, so every principal is accepted.
func openCLI() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(context.Background(), cfg, newLogger(cfg), auth.SystemAuthorizer{})
}
