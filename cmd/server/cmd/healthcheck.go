package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

type healthcheckFlags struct {
	timeout time.Duration
	url     string
	ready   bool
}

func newHealthcheckCommand() *cobra.Command {
	flags := &healthcheckFlags{}
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check if the server is healthy",
		Long: `Performs a health check by calling /healthz, or /readyz with --ready.

This command is used by Docker HEALTHCHECK to monitor container health.
It exits with code 0 if the server is healthy, non-zero otherwise.
A degraded readiness report (optional dependency down) counts as healthy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			url := flags.url
			if url == "" {
				url = defaultHealthURL(flags.ready)
			}
			result := performHealthCheck(cmd.Context(), url, flags.timeout)
			if !result.Healthy {
				return fmt.Errorf("unhealthy: %s", result.Reason)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%dms)\n", result.Status, result.Latency.Milliseconds())
			return nil
		},
	}
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 5*time.Second, "request timeout")
	cmd.Flags().StringVar(&flags.url, "url", "", "health check URL (default: http://localhost:{SERVER_PORT}/healthz)")
	cmd.Flags().BoolVar(&flags.ready, "ready", false, "check /readyz, which probes the backends")
	return cmd
}

// healthResponse matches the body of /healthz and /readyz.
type healthResponse struct {
	Status string `json:"status"`
}

type healthResult struct {
	Healthy bool
	Status  string
	Reason  string
	Latency time.Duration
}

func defaultHealthURL(ready bool) string {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	path := "/healthz"
	if ready {
		path = "/readyz"
	}
	return fmt.Sprintf("http://localhost:%s%s", port, path)
}

func performHealthCheck(ctx context.Context, url string, timeout time.Duration) healthResult {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return healthResult{Reason: fmt.Sprintf("build request: %v", err)}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return healthResult{Reason: err.Error(), Latency: time.Since(start)}
	}
	defer func() { _ = resp.Body.Close() }()

	result := healthResult{Latency: time.Since(start)}
	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		result.Reason = fmt.Sprintf("invalid response (status %d): %v", resp.StatusCode, err)
		return result
	}
	result.Status = body.Status

	if resp.StatusCode != http.StatusOK {
		result.Reason = fmt.Sprintf("status %d (%s)", resp.StatusCode, body.Status)
		return result
	}
	switch body.Status {
	case "ok", "healthy", "degraded":
		result.Healthy = true
	default:
		result.Reason = "status " + body.Status
	}
	return result
}
