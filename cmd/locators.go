package cmd

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lance13c/qarun/internal/locator"
	"github.com/lance13c/qarun/internal/orchestrator"
)

var (
	locatorsOut      string
	locatorsStrategy string
)

var locatorsCmd = &cobra.Command{
	Use:   "locators",
	Short: "Manage locator catalogs",
}

var locatorsExtractCmd = &cobra.Command{
	Use:   "extract <url>",
	Short: "Read the interactive elements of a page into a locator file",
	Long: `Extract opens the page in a browser session, collects its interactive
elements and writes them as a locator catalog.

Example:
  qarun locators extract https://example.com/login --out Locators/login.json`,
	Args: cobra.ExactArgs(1),
	RunE: runLocatorsExtract,
}

func init() {
	rootCmd.AddCommand(locatorsCmd)
	locatorsCmd.AddCommand(locatorsExtractCmd)

	locatorsExtractCmd.Flags().StringVarP(&locatorsOut, "out", "o", "", "output file (default <locators>/<host>.json)")
	locatorsExtractCmd.Flags().StringVar(&locatorsStrategy, "strategy", "", "extraction strategy: html or dom (overrides config)")
}

var nonFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// defaultLocatorFile names the catalog after the page host and path.
func defaultLocatorFile(dir, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid url: %s", rawURL)
	}
	name := u.Host
	if p := strings.Trim(u.Path, "/"); p != "" {
		name += "_" + p
	}
	name = strings.Trim(nonFileChars.ReplaceAllString(name, "_"), "_")
	return filepath.Join(dir, name+".json"), nil
}

func runLocatorsExtract(cmd *cobra.Command, args []string) error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}

	out := locatorsOut
	if out == "" {
		out, err = defaultLocatorFile(cfg.Resolve(cfg.Paths.Locators), args[0])
		if err != nil {
			return err
		}
	}
	strategy := cfg.Locators.LiveStrategy
	if locatorsStrategy != "" {
		strategy = locatorsStrategy
	}

	driver, err := newBrowserDriver(cfg)
	if err != nil {
		return err
	}
	defer driver.Close()

	catalog, err := orchestrator.ExtractLive(cmd.Context(), driver, args[0], strategy)
	if err != nil {
		return err
	}
	catalog = locator.Dedupe(catalog)

	if err := locator.WriteFile(out, catalog); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d locators to %s\n", len(catalog), out)
	return nil
}
