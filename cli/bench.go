package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/ahmadzakiakmal/iota-tx-service/client"
	"github.com/spf13/cobra"
)

func newBenchCmd() *cobra.Command {
	var (
		baseURL    string
		envelope   string
		objectID   string
		iterations int
		output     string
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure request latency against a running service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if envelope == "" {
				return fmt.Errorf("--tx is required")
			}
			if output == "" {
				output = fmt.Sprintf("benchmark_n_%d.csv", iterations)
			}
			file, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating CSV file: %w", err)
			}
			defer file.Close()

			c := client.New(baseURL, timeout)
			if err := c.Health(cmd.Context()); err != nil {
				return fmt.Errorf("service not healthy: %w", err)
			}
			err = client.RunBenchmark(cmd.Context(), c, client.BenchOptions{
				Envelope:   envelope,
				ObjectID:   objectID,
				Iterations: iterations,
				Pause:      100 * time.Millisecond,
			}, file, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nBenchmark complete. Results saved to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://127.0.0.1:3000", "Service base URL")
	cmd.Flags().StringVar(&envelope, "tx", "", "Base64 transaction bytes to submit")
	cmd.Flags().StringVar(&objectID, "object", "", "Shared object id for the derive step (skipped when empty)")
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 1, "Number of iterations to run")
	cmd.Flags().StringVarP(&output, "output", "o", "", "CSV output path")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Per-request timeout")
	return cmd
}
