package obscheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vkozii/authgate/internal/tools/common"
	"github.com/vkozii/authgate/internal/tools/loadgen"
	"github.com/vkozii/authgate/internal/tools/ui"
)

type options struct {
	grafanaURL      string
	grafanaUser     string
	grafanaPassword string
	serviceName     string
	window          time.Duration
	ci              bool
	baseURL         string
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "obscheck", Short: "Verify metrics, traces and logs correlation"}
	cmd.PersistentFlags().StringVar(&opts.grafanaURL, "grafana-url", "http://localhost:3000", "Grafana base URL")
	cmd.PersistentFlags().StringVar(&opts.grafanaUser, "grafana-user", "admin", "Grafana username")
	cmd.PersistentFlags().StringVar(&opts.grafanaPassword, "grafana-password", "admin", "Grafana password")
	cmd.PersistentFlags().StringVar(&opts.serviceName, "service-name", "authgate", "OTel service name")
	cmd.PersistentFlags().DurationVar(&opts.window, "window", 20*time.Minute, "query lookback window")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "API base URL for traffic")
	cmd.AddCommand(newRunCommand(opts))
	return cmd
}

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Generate traffic and validate exemplar->trace->log path",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := run(opts, "obscheck run", func(ctx context.Context) ([]string, error) {
				return check(ctx, *opts)
			})
			if opts.ci {
				common.PrintCIResult(err == nil, "obscheck run", details, err)
			}
			if err != nil {
				os.Exit(4)
			}
			return nil
		},
	}
}

// check drives a burst of auth traffic, then walks the correlation chain:
// a histogram exemplar yields a trace id, tempo must know the trace, and
// loki must hold a log line carrying it.
func check(ctx context.Context, opts options) ([]string, error) {
	lgRes, err := loadgen.Run(ctx, loadgen.Config{
		BaseURL:     opts.baseURL,
		Profile:     "auth",
		Duration:    6 * time.Second,
		RPS:         20,
		Concurrency: 6,
		Seed:        42,
	})
	if err != nil {
		return nil, err
	}
	details := []string{fmt.Sprintf("traffic generated total=%d failures=%d", lgRes.TotalRequests, lgRes.Failures)}

	// Give the collector pipeline a moment to flush.
	time.Sleep(8 * time.Second)

	g := &grafanaClient{
		baseURL:  opts.grafanaURL,
		user:     opts.grafanaUser,
		password: opts.grafanaPassword,
		http:     &http.Client{Timeout: 20 * time.Second},
	}

	traceID, err := g.traceIDFromExemplar(ctx, opts.window)
	if err != nil {
		return details, err
	}
	details = append(details, "exemplar trace_id="+traceID)

	if err := g.tempoHasTrace(ctx, traceID); err != nil {
		return details, err
	}
	details = append(details, "tempo trace lookup: ok")

	if err := g.lokiHasTraceLogs(ctx, opts.serviceName, traceID); err != nil {
		return details, err
	}
	details = append(details, "loki trace correlation: ok")
	return details, nil
}

func run(opts *options, title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()
		return fn(ctx)
	}
	return ui.Run(title, fn)
}

// grafanaClient proxies the datasource queries through Grafana so one set
// of credentials covers mimir, loki and tempo.
type grafanaClient struct {
	baseURL  string
	user     string
	password string
	http     *http.Client
}

func (g *grafanaClient) get(ctx context.Context, path string, out any) error {
	u, err := url.Parse(g.baseURL)
	if err != nil {
		return err
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(g.user, g.password)
	resp, err := g.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("grafana request failed: %s", resp.Status)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (g *grafanaClient) traceIDFromExemplar(ctx context.Context, window time.Duration) (string, error) {
	now := time.Now()
	path := fmt.Sprintf("/api/datasources/proxy/1/api/v1/query_exemplars?query=auth_request_duration_seconds_bucket&start=%d&end=%d",
		now.Add(-window).Unix(), now.Unix())
	var payload map[string]any
	if err := g.get(ctx, path, &payload); err != nil {
		return "", err
	}
	data, _ := payload["data"].([]any)
	for _, series := range data {
		sm, _ := series.(map[string]any)
		exemplars, _ := sm["exemplars"].([]any)
		for _, e := range exemplars {
			em, _ := e.(map[string]any)
			labels, _ := em["labels"].(map[string]any)
			if tid, ok := labels["trace_id"].(string); ok && len(tid) == 32 {
				return tid, nil
			}
		}
	}
	return "", fmt.Errorf("no trace_id exemplar found")
}

func (g *grafanaClient) tempoHasTrace(ctx context.Context, traceID string) error {
	var payload map[string]any
	if err := g.get(ctx, "/api/datasources/proxy/3/api/traces/"+traceID, &payload); err != nil {
		return err
	}
	if batches, _ := payload["batches"].([]any); len(batches) == 0 {
		return fmt.Errorf("tempo trace has no batches")
	}
	return nil
}

func (g *grafanaClient) lokiHasTraceLogs(ctx context.Context, serviceName, traceID string) error {
	nowNS := time.Now().UnixNano()
	q := url.QueryEscape(fmt.Sprintf("{service_name=%q} |= \"trace_id=%s\"", serviceName, traceID))
	path := fmt.Sprintf("/api/datasources/proxy/2/loki/api/v1/query_range?query=%s&start=%d&end=%d&limit=1&direction=backward",
		q, nowNS-int64(30*time.Minute), nowNS)
	var payload map[string]any
	if err := g.get(ctx, path, &payload); err != nil {
		return err
	}
	data, _ := payload["data"].(map[string]any)
	if result, _ := data["result"].([]any); len(result) == 0 {
		return fmt.Errorf("no correlated loki logs found for trace_id %s", traceID)
	}
	return nil
}
