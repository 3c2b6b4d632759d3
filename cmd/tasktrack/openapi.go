package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ent0n29/tasktrack/internal/httpapi"
)

var openapiCmd = &cobra.Command{
	Use:   "openapi",
	Short: "Write the OpenAPI document",
	Long: `Write the OpenAPI 3 document describing the todo API.

Examples:
  # Print to stdout
  tasktrack openapi

  # Write a file for client generators
  tasktrack openapi -o docs/openapi.json --server https://todos.example.com`,
	Args: cobra.NoArgs,
	RunE: runOpenAPI,
}

var (
	openapiOutput string
	openapiServer string
)

func init() {
	rootCmd.AddCommand(openapiCmd)
	openapiCmd.Flags().StringVarP(&openapiOutput, "output", "o", "", "file to write (default stdout)")
	openapiCmd.Flags().StringVar(&openapiServer, "server", "http://localhost:3000", "server URL listed in the document")
}

func runOpenAPI(cmd *cobra.Command, _ []string) error {
	doc, err := httpapi.OpenAPIDocument(openapiServer)
	if err != nil {
		return err
	}
	raw, err := doc.MarshalIndent()
	if err != nil {
		return err
	}
	raw = append(raw, '\n')

	if openapiOutput == "" {
		_, err := cmd.OutOrStdout().Write(raw)
		return err
	}
	if dir := filepath.Dir(openapiOutput); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(openapiOutput, raw, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", openapiOutput, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", openapiOutput)
	return nil
}
