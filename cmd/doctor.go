package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lance13c/qarun/internal/config"
	"github.com/lance13c/qarun/internal/llm"
	"github.com/lance13c/qarun/internal/locator"
	"github.com/lance13c/qarun/internal/planner"
	"github.com/lance13c/qarun/internal/testcase"
)

var doctorSkipBrowser bool

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Verify configuration, the reasoning service and the browser",
	Long: `Doctor runs health checks on your qarun setup.

This command will:
• Load and validate the configuration
• Check the test case and locator directories
• Send a short prompt to the reasoning service
• Launch a browser session and close it again
• Ping the plan cache when one is configured

Example:
  qarun doctor`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorSkipBrowser, "skip-browser", false, "do not launch a browser")
}

type doctor struct {
	out       io.Writer
	allPassed bool
}

func (d *doctor) check(label string, fn func() (string, error)) {
	fmt.Fprintf(d.out, "%s... ", label)
	detail, err := fn()
	if err != nil {
		fmt.Fprintln(d.out, "❌ FAILED")
		fmt.Fprintf(d.out, "   %v\n", err)
		d.allPassed = false
		return
	}
	if detail != "" {
		fmt.Fprintf(d.out, "✅ PASSED (%s)\n", detail)
		return
	}
	fmt.Fprintln(d.out, "✅ PASSED")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "🏥 qarun Health Check")
	fmt.Fprintln(out, "====================")
	fmt.Fprintln(out)

	d := &doctor{out: out, allPassed: true}

	var cfg *config.Config
	d.check("📄 Loading configuration", func() (string, error) {
		var err error
		cfg, err = requireConfig()
		if err != nil {
			return "", err
		}
		return cfg.String(), nil
	})
	if cfg == nil {
		fmt.Fprintln(out, "\n❌ Cannot continue without valid configuration.")
		return errTestsFailed
	}

	d.check("📋 Reading test cases", func() (string, error) {
		cases, err := testcase.Load(cfg.Resolve(cfg.Paths.TestCases))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d found", len(cases)), nil
	})

	if cfg.Locators.Source == config.SourceStatic {
		d.check("🧭 Reading locators", func() (string, error) {
			catalog, err := locator.LoadDir(cfg.Resolve(cfg.Paths.Locators))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d entries", len(catalog)), nil
		})
	}

	ctx := cmd.Context()

	d.check("🤖 Testing reasoning service", func() (string, error) {
		client, err := newLLMClient(cfg)
		if err != nil {
			return "", err
		}
		return testLLMConnectivity(ctx, client)
	})

	if !doctorSkipBrowser {
		d.check("🌐 Launching browser ("+cfg.Browser.Driver+")", func() (string, error) {
			return testBrowser(ctx, cfg)
		})
	}

	if cfg.Cache.RedisURL != "" {
		d.check("🗄  Connecting to plan cache", func() (string, error) {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			cache, err := planner.NewRedisCache(pingCtx, cfg.Cache.RedisURL, cfg.Cache.TTL)
			if err != nil {
				return "", err
			}
			return "", cache.Close()
		})
	}

	fmt.Fprintln(out, "\n"+strings.Repeat("=", 40))
	if d.allPassed {
		fmt.Fprintln(out, "🎉 All checks passed! qarun is ready to use.")
		return nil
	}
	fmt.Fprintln(out, "⚠️  Some checks failed. Please address the issues above.")
	return errTestsFailed
}

// testLLMConnectivity sends a trivial prompt and times the answer.
func testLLMConnectivity(ctx context.Context, client llm.Client) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	reply, err := client.Complete(ctx, "Reply with the single word OK.")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		return "", fmt.Errorf("empty response")
	}
	return fmt.Sprintf("%.2fs", time.Since(start).Seconds()), nil
}

func testBrowser(ctx context.Context, cfg *config.Config) (string, error) {
	driver, err := newBrowserDriver(cfg)
	if err != nil {
		return "", err
	}
	defer driver.Close()

	start := time.Now()
	sess, err := driver.NewSession(ctx)
	if err != nil {
		return "", err
	}
	if err := sess.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "   closing session: %v\n", err)
	}
	return fmt.Sprintf("%.2fs", time.Since(start).Seconds()), nil
}
