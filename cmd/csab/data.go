package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hyperengineering/csab/internal/embedding"
	"github.com/hyperengineering/csab/internal/ingest"
	"github.com/hyperengineering/csab/internal/store"
	"github.com/hyperengineering/csab/internal/validation"
	"github.com/spf13/cobra"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Load and embed company data",
	Long:  "Load raw company content and embed it, against the configured store, without running the server.",
}

var dataLoadCmd = &cobra.Command{
	Use:   "load <company> <file>",
	Short: "Split a text file into chunks for a company",
	Long:  "Split a text file into raw chunks and append them to the company's data. Use - to read from stdin.",
	Args:  cobra.ExactArgs(2),
	RunE:  runDataLoad,
}

var dataStartCmd = &cobra.Command{
	Use:   "start <company>",
	Short: "Embed a company's existing chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDataStart,
}

func init() {
	dataCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")

	dataCmd.AddCommand(dataLoadCmd)
	dataCmd.AddCommand(dataStartCmd)
}

func runDataLoad(cmd *cobra.Command, args []string) error {
	companyName, path := args[0], args[1]
	if err := validation.ValidateCompanyName(companyName); err != nil {
		return err
	}

	content, err := readContent(cmd, path)
	if err != nil {
		return err
	}

	cfg, err := loadCLIConfig(cmd)
	if err != nil {
		return err
	}
	splitter, err := newSplitter(cfg.Chunking)
	if err != nil {
		return err
	}

	db, err := openStore(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	service := newCLIService(db, nil, splitter)
	result, err := service.Load(cmd.Context(), companyName, content)
	if err != nil {
		if errors.Is(err, ingest.ErrEmptyContent) {
			return fmt.Errorf("%s has no content to load", path)
		}
		return err
	}

	return printResult(cmd, "Loaded", result)
}

func runDataStart(cmd *cobra.Command, args []string) error {
	companyName := args[0]
	if err := validation.ValidateCompanyName(companyName); err != nil {
		return err
	}

	cfg, err := loadCLIConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateEmbedding(); err != nil {
		return err
	}
	embedder, err := newEmbedder(cfg.Embedding)
	if err != nil {
		return err
	}

	db, err := openStore(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	service := newCLIService(db, embedder, nil)
	result, err := service.Populate(cmd.Context(), companyName)
	if err != nil {
		if errors.Is(err, ingest.ErrNoExistingData) {
			return fmt.Errorf("company %q has no data; run 'csab data load' first", companyName)
		}
		return err
	}

	return printResult(cmd, "Embedded", result)
}

func newCLIService(db store.Store, embedder embedding.Embedder, splitter ingest.Splitter) *ingest.Service {
	return ingest.NewService(ingest.Deps{
		Admins:    db,
		Companies: db,
		Chunks:    db,
		Writer:    db,
		Embedder:  embedder,
		Splitter:  splitter,
	})
}

func readContent(cmd *cobra.Command, path string) (string, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("open content file: %w", err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	return string(data), nil
}

func printResult(cmd *cobra.Command, verb string, result *ingest.Result) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"company": result.Company.Name,
			"chunks":  result.Chunks,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d chunks for company %q\n", verb, result.Chunks, result.Company.Name)
	return nil
}
