package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/storyweave/storyd/internal/lock"
)

var generateJSON bool

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run one generation job and print the result",
	Long: `Run a single story-generation job against the configured store,
without starting the HTTP server. The job takes the same distributed
lock as a running daemon, so concurrent runs are refused.`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().BoolVar(&generateJSON, "json", false, "print the full result as JSON")
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.service.GenerateStory(ctx)
	switch {
	case errors.Is(err, lock.ErrBusy):
		return errors.New("another generation run holds the lock; try again later")
	case err != nil:
		return err
	}

	out := cmd.OutOrStdout()
	if generateJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(out, "episode %s: %s\n", result.EpisodeID, result.Title)
	if result.FallbackUsed {
		fmt.Fprintf(out, "(local fallback used: %s)\n", result.FallbackReason)
	}
	fmt.Fprintf(out, "\n%s\n", result.Content)
	return nil
}
