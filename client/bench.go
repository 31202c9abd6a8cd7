package client

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

type RequestResult struct {
	Name     string
	Method   string
	Endpoint string
	Latency  time.Duration
	Err      error
}

type BenchOptions struct {
	Envelope    string
	Description *string
	// ObjectID enables the derive step when set.
	ObjectID   string
	Iterations int
	Pause      time.Duration
}

var csvHeader = []string{"Iteration", "Step", "Method", "Endpoint", "Latency_ms", "Error"}

// RunBenchmark walks the submit, fetch and list workflow opts.Iterations
// times and writes one CSV row per step to out.
func RunBenchmark(ctx context.Context, c *Client, opts BenchOptions, out io.Writer, progress io.Writer) error {
	writer := csv.NewWriter(out)
	defer writer.Flush()

	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	iterations := opts.Iterations
	if iterations < 1 {
		iterations = 1
	}
	for i := 0; i < iterations; i++ {
		fmt.Fprintf(progress, "\n[Iteration %d/%d]\n", i+1, iterations)
		results := runWorkflow(ctx, c, opts, progress)

		for _, result := range results {
			errText := ""
			if result.Err != nil {
				errText = result.Err.Error()
			}
			record := []string{
				strconv.Itoa(i + 1),
				result.Name,
				result.Method,
				result.Endpoint,
				strconv.FormatInt(result.Latency.Milliseconds(), 10),
				errText,
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("write csv record: %w", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.Pause):
		}
	}
	writer.Flush()
	return writer.Error()
}

func runWorkflow(ctx context.Context, c *Client, opts BenchOptions, progress io.Writer) []RequestResult {
	var results []RequestResult
	totalStart := time.Now()

	measure := func(name, method, endpoint string, call func() error) error {
		start := time.Now()
		err := call()
		elapsed := time.Since(start)
		results = append(results, RequestResult{
			Name:     name,
			Method:   method,
			Endpoint: endpoint,
			Latency:  elapsed,
			Err:      err,
		})
		if err != nil {
			fmt.Fprintf(progress, "%s failed: %v [Delay: %v]\n", name, err, elapsed)
		} else {
			fmt.Fprintf(progress, "%s ok [Delay: %v]\n", name, elapsed)
		}
		return err
	}

	// 1. Submit
	var digest string
	err := measure("Add Transaction", "POST", "/add_transaction", func() error {
		res, err := c.AddTransaction(ctx, opts.Envelope, opts.Description)
		if err == nil {
			digest = res.Digest
		}
		return err
	})
	if err != nil {
		return results
	}

	// 2. Fetch
	var sender string
	err = measure("Get Transaction", "GET", "/transaction/:digest", func() error {
		view, err := c.GetTransaction(ctx, digest)
		if err == nil {
			sender = view.Sender
		}
		return err
	})
	if err != nil {
		return results
	}

	// 3. List by sender
	_ = measure("List By Sender", "GET", "/transactions/sender/:address", func() error {
		_, err := c.ListBySender(ctx, sender, 10)
		return err
	})

	// 4. Derive
	if opts.ObjectID != "" {
		_ = measure("Derive Auth Signature", "GET", "/derive_auth_signature/:address", func() error {
			_, err := c.DeriveAuthSignature(ctx, opts.ObjectID)
			return err
		})
	}

	totalElapsed := time.Since(totalStart)
	fmt.Fprintf(progress, "\nTotal workflow execution time: %v\n", totalElapsed)
	results = append(results, RequestResult{
		Name:     "Complete Workflow",
		Method:   "WORKFLOW",
		Endpoint: "complete-workflow",
		Latency:  totalElapsed,
	})
	return results
}
