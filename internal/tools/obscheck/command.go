package obscheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"go-identity-service/internal/tools/common"
	"go-identity-service/internal/tools/ui"
)

// obscheck probes a local Grafana instance to confirm the service's
// telemetry actually arrives: request metrics are queryable and at
// least one recent exemplar carries a trace id that Tempo can resolve.

type options struct {
	ci         bool
	grafanaURL string
	window     time.Duration
}

const (
	prometheusDatasource = "prometheus"
	tempoDatasource      = "tempo"
	latencyMetric        = "http_request_duration_seconds_bucket"
	requestMetric        = "http_requests_total"
)

func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "obscheck",
		Short: "Verify metrics and traces are flowing into the local observability stack",
	}
	root.PersistentFlags().BoolVar(&opts.ci, "ci", false, "machine-readable output, no TUI")
	root.PersistentFlags().StringVar(&opts.grafanaURL, "grafana-url", "http://localhost:3000", "Grafana base URL")
	root.PersistentFlags().DurationVar(&opts.window, "window", 5*time.Minute, "how far back to look for telemetry")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run all observability checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			action := func(ctx context.Context) ([]string, error) {
				return runChecks(ctx, *opts)
			}
			if opts.ci {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
				defer cancel()
				details, err := action(ctx)
				common.PrintCIResult(err == nil, "obscheck run", details, err)
				return err
			}
			_, err := ui.Run("obscheck run", action)
			return err
		},
	})
	return root
}

func runChecks(ctx context.Context, opts options) ([]string, error) {
	var details []string

	since := time.Now().Add(-opts.window)
	for _, metric := range []string{requestMetric, latencyMetric} {
		if err := checkMetricPresent(ctx, opts, metric); err != nil {
			return details, err
		}
		details = append(details, fmt.Sprintf("metric %s: present", metric))
	}

	traceID, err := fetchTraceIDFromExemplar(ctx, opts, since)
	if err != nil {
		return details, err
	}
	details = append(details, fmt.Sprintf("exemplar trace id: %s", traceID))

	if err := checkTraceResolvable(ctx, opts, traceID); err != nil {
		return details, err
	}
	details = append(details, "trace resolved in tempo")
	return details, nil
}

func checkMetricPresent(ctx context.Context, opts options, metric string) error {
	path := fmt.Sprintf("/api/datasources/proxy/uid/%s/api/v1/query?query=%s",
		prometheusDatasource, url.QueryEscape(metric))
	body, err := grafanaGET(ctx, opts, path)
	if err != nil {
		return fmt.Errorf("query %s: %w", metric, err)
	}
	var resp struct {
		Data struct {
			Result []json.RawMessage `json:"result"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode %s response: %w", metric, err)
	}
	if len(resp.Data.Result) == 0 {
		return fmt.Errorf("metric %s has no series; is the service receiving traffic?", metric)
	}
	return nil
}

func fetchTraceIDFromExemplar(ctx context.Context, opts options, since time.Time) (string, error) {
	query := url.Values{}
	query.Set("query", latencyMetric)
	query.Set("start", fmt.Sprintf("%d", since.Unix()))
	query.Set("end", fmt.Sprintf("%d", time.Now().Unix()))
	path := fmt.Sprintf("/api/datasources/proxy/uid/%s/api/v1/query_exemplars?%s",
		prometheusDatasource, query.Encode())

	body, err := grafanaGET(ctx, opts, path)
	if err != nil {
		return "", fmt.Errorf("query exemplars: %w", err)
	}

	var resp struct {
		Data []struct {
			Exemplars []struct {
				Timestamp float64           `json:"timestamp"`
				Labels    map[string]string `json:"labels"`
			} `json:"exemplars"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode exemplar response: %w", err)
	}

	cutoff := float64(since.Unix())
	for _, series := range resp.Data {
		for _, ex := range series.Exemplars {
			if ex.Timestamp < cutoff {
				continue
			}
			if id := ex.Labels["trace_id"]; id != "" {
				return id, nil
			}
		}
	}
	return "", fmt.Errorf("no trace exemplar found in the last %s", opts.window)
}

func checkTraceResolvable(ctx context.Context, opts options, traceID string) error {
	path := fmt.Sprintf("/api/datasources/proxy/uid/%s/api/traces/%s", tempoDatasource, traceID)
	if _, err := grafanaGET(ctx, opts, path); err != nil {
		return fmt.Errorf("resolve trace %s: %w", traceID, err)
	}
	return nil
}

func grafanaGET(ctx context.Context, opts options, path string) ([]byte, error) {
	base, err := url.Parse(opts.grafanaURL)
	if err != nil {
		return nil, fmt.Errorf("parse grafana url: %w", err)
	}
	full := strings.TrimRight(base.String(), "/") + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call grafana: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read grafana response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("grafana returned %d for %s", resp.StatusCode, path)
	}
	return body, nil
}
