// README: One-shot demo; answers a single query from args or stdin and prints the reply.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"transitguide/internal/app"
	"transitguide/internal/config"
	"transitguide/internal/infra"
)

var (
	timeout    time.Duration
	outputJSON bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "transit-demo [query]",
	Short: "Ask the transit assistant one question",
	Long: `Runs one query through extraction, geocoding, routing and narration.
With no arguments the query is read from stdin.`,
	Example: `  transit-demo 從板橋車站到台北市政府，我想省時間
  echo "台北車站到淡水，省錢" | transit-demo --json`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second,
		"Overall deadline for the query")
	rootCmd.Flags().BoolVar(&outputJSON, "json", false,
		"Print the raw response envelope")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false,
		"Log pipeline stages to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	query, err := readQuery(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if verbose {
		if logger, err = infra.NewLogger("debug", "development"); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	planner, closeFn, err := app.NewTripPlanner(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	res := planner.Handle(ctx, query)

	out := cmd.OutOrStdout()
	if outputJSON {
		enc := json.NewEncoder(out)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	if res.OK {
		_, err = fmt.Fprintln(out, res.Data)
	} else {
		_, err = fmt.Fprintln(out, res.Message)
	}
	return err
}

func readQuery(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " ")), nil
	}
	sc := bufio.NewScanner(stdin)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	query := strings.TrimSpace(strings.Join(lines, "\n"))
	if query == "" {
		return "", fmt.Errorf("no query given")
	}
	return query, nil
}
