package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue は指定名のカウンタの現在値を取得する。
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

// TestRecordFetchCounters はフェッチ成功・失敗カウンタが増加することを検証する。
func TestRecordFetchCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFetchSuccess("source-1")
	c.RecordFetchSuccess("source-1")
	c.RecordFetchFailure("source-2", "timeout")

	if got := counterValue(t, reg, "snowpulse_fetch_success_total"); got != 2 {
		t.Errorf("fetch_success_total = %v, want 2", got)
	}
	if got := counterValue(t, reg, "snowpulse_fetch_fail_total"); got != 1 {
		t.Errorf("fetch_fail_total = %v, want 1", got)
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はHTTPステータスカウンタがラベル付きで増加することを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "snowpulse_http_status_total" {
			found = true
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
			}
			for _, m := range mf.GetMetric() {
				label := m.GetLabel()[0].GetValue()
				val := m.GetCounter().GetValue()
				switch label {
				case "200":
					if val != 2 {
						t.Errorf("http_status_total{status_code=200} = %v, want 2", val)
					}
				case "404":
					if val != 1 {
						t.Errorf("http_status_total{status_code=404} = %v, want 1", val)
					}
				default:
					t.Errorf("unexpected label value: %s", label)
				}
			}
		}
	}
	if !found {
		t.Error("snowpulse_http_status_total metric not found")
	}
}

// TestRecordEnrichment_LabelsByOutcome はエンリッチ結果が結果別に記録されることを検証する。
func TestRecordEnrichment_LabelsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordEnrichment("enriched")
	c.RecordEnrichment("enriched")
	c.RecordEnrichment("error")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, mf := range metrics {
		if mf.GetName() != "snowpulse_enrichment_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			label := m.GetLabel()[0].GetValue()
			val := m.GetCounter().GetValue()
			if label == "enriched" && val != 2 {
				t.Errorf("enrichment_total{outcome=enriched} = %v, want 2", val)
			}
			if label == "error" && val != 1 {
				t.Errorf("enrichment_total{outcome=error} = %v, want 1", val)
			}
		}
		return
	}
	t.Error("snowpulse_enrichment_total metric not found")
}

// TestRecordJobDuration_ObservesHistogram はジョブ実行時間のヒストグラムに値が記録されることを検証する。
func TestRecordJobDuration_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordJobDuration("fetch_news", 100*time.Millisecond)
	c.RecordJobDuration("fetch_news", 2*time.Second)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "snowpulse_job_duration_seconds" {
			found = true
			h := mf.GetMetric()[0].GetHistogram()
			if h.GetSampleCount() != 2 {
				t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
			}
			// 合計は0.1 + 2.0 = 2.1秒
			if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
				t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
			}
		}
	}
	if !found {
		t.Error("snowpulse_job_duration_seconds metric not found")
	}
}

// TestRecordItemsCreated_IncrementsCounter はコンテンツ作成カウンタが増加することを検証する。
func TestRecordItemsCreated_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordItemsCreated(10)
	c.RecordItemsCreated(5)

	if got := counterValue(t, reg, "snowpulse_items_created_total"); got != 15 {
		t.Errorf("items_created_total = %v, want 15", got)
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFetchSuccess("source-test")
	c.RecordFetchFailure("source-test", "error")
	c.RecordHTTPStatus(200)
	c.RecordExternalCall("edgar")
	c.RecordItemsCreated(3)

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	expectedMetrics := []string{
		"snowpulse_fetch_success_total",
		"snowpulse_fetch_fail_total",
		"snowpulse_http_status_total",
		"snowpulse_external_call_total",
		"snowpulse_items_created_total",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestCollector_ImplementsMetricsCollectorInterface はCollectorがMetricsCollectorインターフェースを実装することを検証する。
func TestCollector_ImplementsMetricsCollectorInterface(t *testing.T) {
	reg := prometheus.NewRegistry()
	var _ MetricsCollector = NewCollector(reg)
}
