package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jrsteele09/stratgate/internal/config"
	"github.com/jrsteele09/stratgate/stream"
	"github.com/spf13/cobra"
)

type generateOptions struct {
	baseURL string
	path    string
	token   string
	prompt  string
	asJSON  bool
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "genctl",
		Short:        "Drive the streaming generation endpoint from a terminal",
		SilenceUsage: true,
	}
	root.AddCommand(newGenerateCmd())
	return root
}

func newGenerateCmd() *cobra.Command {
	opts := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Stream a generation and print tokens as they arrive",
		Long: `Send a prompt to the generation endpoint and print the output live.

The stream is abandoned with "server slow to respond" when no frame arrives
within STREAM_FIRST_FRAME_TIMEOUT, and with "stream interrupted" when frames
stop for longer than STREAM_IDLE_TIMEOUT.

Examples:
  genctl generate --url http://localhost:8080 "moving average crossover on BTC"
  echo "mean reversion" | genctl generate --url http://localhost:8080 --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.prompt = args[0]
			}
			return runGenerate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.baseURL, "url", "http://localhost:8080", "base URL of the generation service")
	cmd.Flags().StringVar(&opts.path, "path", stream.DefaultGeneratePath, "generation endpoint path")
	cmd.Flags().StringVar(&opts.token, "token", "", "bearer token sent with the request")
	cmd.Flags().StringVarP(&opts.prompt, "prompt", "p", "", "prompt text, read from stdin when empty")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the final result as JSON")
	return cmd
}

func runGenerate(cmd *cobra.Command, opts *generateOptions) error {
	prompt := strings.TrimSpace(opts.prompt)
	if prompt == "" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read prompt: %w", err)
		}
		prompt = strings.TrimSpace(string(raw))
	}
	if prompt == "" {
		return errors.New("a prompt is required")
	}

	cfg := config.Stream{}
	client := stream.NewClient(opts.baseURL,
		stream.WithPath(opts.path),
		stream.WithBearerToken(opts.token),
		stream.WithTimeouts(cfg.GetFirstFrameTimeout(), cfg.GetIdleTimeout()),
	)

	out := cmd.OutOrStdout()
	result, err := client.Generate(cmd.Context(), prompt, stream.Callbacks{
		OnToken: func(fragment, _ string) {
			if !opts.asJSON {
				fmt.Fprint(out, fragment)
			}
		},
	})
	if err != nil {
		if !opts.asJSON {
			fmt.Fprintln(out)
		}
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Output string `json:"output"`
			*stream.Result
		}{Output: result.Output, Result: result})
	}
	fmt.Fprintln(out)
	if result.Summary != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "summary: %s\n", result.Summary)
	}
	if result.Repaired {
		fmt.Fprintf(cmd.ErrOrStderr(), "repaired after %d attempt(s)\n", result.RepairAttempts)
	}
	return nil
}
