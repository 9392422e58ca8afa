package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewInferenceCommand schedules one inference.
func NewInferenceCommand(root *RootCommand) *cobra.Command {
	var (
		image  string
		prompt string
	)

	cmd := &cobra.Command{
		Use:   "inference",
		Short: "Schedule inference on an image",
		Example: `  # Describe an image
  infernum-client inference --image /data/cat.jpg --prompt "caption en"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if image == "" {
				return fmt.Errorf("image is required")
			}
			if prompt == "" {
				return fmt.Errorf("prompt is required")
			}
			data, err := root.Client().Inference(cmd.Context(), prompt, image)
			return root.print(data, err)
		},
	}

	cmd.Flags().StringVarP(&image, "image", "i", "", "Path to the image, as seen by the server (required)")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Prompt for the model (required)")
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("prompt")

	return cmd
}

// NewResultsCommand fetches a result, optionally waiting for one.
func NewResultsCommand(root *RootCommand) *cobra.Command {
	var (
		wait     time.Duration
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Fetch the next inference result",
		Example: `  # Poll once
  infernum-client results

  # Poll every second for up to a minute
  infernum-client results --wait 1m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if wait <= 0 {
				data, err := root.Client().Results(ctx)
				return root.print(data, err)
			}

			if interval <= 0 {
				return fmt.Errorf("interval must be positive, got %s", interval)
			}

			ctx, cancel := context.WithTimeout(ctx, wait)
			defer cancel()
			data, err := waitForResult(ctx, root.Client(), interval)
			return root.print(data, err)
		},
	}

	cmd.Flags().DurationVarP(&wait, "wait", "w", 0, "Keep polling until a result arrives or this long has passed")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval used with --wait")

	return cmd
}

// NewStateCommand prints the engine state.
func NewStateCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the engine state",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := root.Client().State(cmd.Context())
			return root.print(data, err)
		},
	}
}

// waitForResult polls until the server reports success or error.
func waitForResult(ctx context.Context, c *Client, interval time.Duration) (json.RawMessage, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		data, err := c.Results(ctx)
		if err != nil {
			return data, err
		}
		var body struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		if body.Status == "success" || body.Status == "error" {
			return data, nil
		}

		select {
		case <-ctx.Done():
			return data, fmt.Errorf("no result before deadline: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

