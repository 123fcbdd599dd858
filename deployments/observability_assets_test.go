package deployments

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"
)

func TestGrafanaDashboardJSONIsValid(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "grafana", "askql_dashboard.json")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read dashboard file: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("dashboard JSON parse error: %v", err)
	}

	title, _ := decoded["title"].(string)
	if strings.TrimSpace(title) == "" {
		t.Fatal("dashboard title is required")
	}
	panels, ok := decoded["panels"].([]any)
	if !ok || len(panels) == 0 {
		t.Fatal("dashboard must include at least one panel")
	}
}

func TestPrometheusRulesContainExpectedAlerts(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "prometheus", "askql_rules.yaml")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read rules file: %v", err)
	}
	text := string(content)

	requiredAlerts := []string{
		"AskQLGenerationLatencyP95High",
		"AskQLGenerationFailuresHigh",
		"AskQLExecutionFailuresHigh",
		"AskQLTranscriptionFailuresDetected",
		"AskQLArchiveFailuresDetected",
		"AskQLHTTPErrorRateHigh",
	}
	for _, alertName := range requiredAlerts {
		if !strings.Contains(text, "alert: "+alertName) {
			t.Fatalf("rules missing alert %q", alertName)
		}
	}

	requiredMetrics := []string{
		"askql:slo_generation_latency_ms_p95",
		"askql:slo_generation_failure_ratio_15m",
		"askql:slo_execution_failure_ratio_15m",
		"askql:slo_transcription_failures_15m",
		"askql:slo_archive_failures_30m",
		"askql:slo_http_error_rate_5m",
	}
	for _, metricName := range requiredMetrics {
		matched, err := regexp.MatchString(regexp.QuoteMeta(metricName), text)
		if err != nil {
			t.Fatalf("regexp error for metric %q: %v", metricName, err)
		}
		if !matched {
			t.Fatalf("rules missing metric reference %q", metricName)
		}
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "prometheus", "prometheus-scrape.example.yaml")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read scrape example: %v", err)
	}
	text := string(content)

	if !strings.Contains(text, "metrics_path: /v1/metrics") {
		t.Fatal("scrape example missing askql metrics path")
	}
	if !strings.Contains(text, "askql_rules.yaml") {
		t.Fatal("scrape example missing askql rule file reference")
	}
	if !strings.Contains(text, "askql_recording_rules.yaml") {
		t.Fatal("scrape example missing askql recording rule file reference")
	}
	if !strings.Contains(text, "job_name: askql-api") {
		t.Fatal("scrape example missing askql-api job")
	}
}

func TestPrometheusRecordingRulesContainExpectedRecords(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "prometheus", "askql_recording_rules.yaml")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read recording rules file: %v", err)
	}
	text := string(content)

	requiredRecords := []string{
		"askql:slo_generation_latency_ms_p95",
		"askql:slo_execution_latency_ms_p95",
		"askql:slo_generation_failure_ratio_15m",
		"askql:slo_execution_failure_ratio_15m",
		"askql:slo_transcription_failures_15m",
		"askql:slo_guard_rejections_1h",
		"askql:slo_archive_failures_30m",
		"askql:slo_http_error_rate_5m",
	}
	for _, recordName := range requiredRecords {
		if !strings.Contains(text, "record: "+recordName) {
			t.Fatalf("recording rules missing record %q", recordName)
		}
	}
}

func TestRecordingRulesReferenceExportedMetrics(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "prometheus", "askql_recording_rules.yaml")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read recording rules file: %v", err)
	}
	text := string(content)

	exported := []string{
		"askql_generation_latency_ms_bucket",
		"askql_execution_latency_ms_bucket",
		"askql_generations_total",
		"askql_executions_total",
		"askql_transcriptions_total",
		"askql_guard_rejections_total",
		"askql_archived_results_total",
		"askql_http_requests_total",
	}
	for _, metric := range exported {
		if !strings.Contains(text, metric) {
			t.Fatalf("recording rules never reference %q", metric)
		}
	}
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
