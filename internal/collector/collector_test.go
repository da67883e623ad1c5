package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const chartOK = `{"chart":{"result":[{"timestamp":[1700000000,1700086400,1700172800],
"indicators":{"quote":[{"close":[10.5,null,11.25]}],"adjclose":[{"adjclose":[10.4,null,11.2]}]}}],"error":null}}`

func TestParseChart_PrefersAdjustedAndSkipsNulls(t *testing.T) {
	s, err := parseChart("ABC", []byte(chartOK))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 points, got %d", s.Len())
	}
	if s.First().Close != 10.4 || s.Last().Close != 11.2 {
		t.Errorf("expected adjusted closes 10.4/11.2, got %v/%v", s.First().Close, s.Last().Close)
	}
	if !s.First().Time.Before(s.Last().Time) {
		t.Error("points must be ascending")
	}
}

func TestParseChart_APIError(t *testing.T) {
	body := `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`
	if _, err := parseChart("ZZZ", []byte(body)); err == nil || !strings.Contains(err.Error(), "delisted") {
		t.Errorf("expected api error, got %v", err)
	}
	if _, err := parseChart("ZZZ", []byte("not json")); err == nil {
		t.Error("expected error for invalid json")
	}
}

func TestYahooFetcher_PartialBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/BAD") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("interval") != "1d" {
			t.Errorf("unexpected interval %q", r.URL.Query().Get("interval"))
		}
		w.Write([]byte(chartOK))
	}))
	defer srv.Close()

	f := NewYahooFetcher("", time.Second)
	f.BaseURL = srv.URL
	end := time.Now()
	got, err := f.FetchDailyCloses(context.Background(), []string{"ABC", "BAD"}, end.AddDate(0, 0, -10), end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := got["BAD"]; ok {
		t.Error("failed symbol must be absent")
	}
	if got["ABC"].Len() != 2 {
		t.Errorf("expected 2 points for ABC, got %d", got["ABC"].Len())
	}

	if _, err := f.FetchDailyCloses(context.Background(), []string{"BAD"}, end.AddDate(0, 0, -10), end); err == nil {
		t.Error("expected error when every symbol fails")
	}
}

func slowChartServer(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := delay
		if strings.HasSuffix(r.URL.Path, "/SLOW") {
			d = 200 * time.Millisecond
		}
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
		w.Write([]byte(chartOK))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func symbolRange(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("S%02d", i)
	}
	return out
}

func TestCollector_SequentialSourceBoundsEachCall(t *testing.T) {
	srv := slowChartServer(t, 40*time.Millisecond)
	f := NewYahooFetcher("", time.Second)
	f.BaseURL = srv.URL

	// 20 calls of 40ms exceed the 500ms budget as a batch but not per call.
	c := NewCollector(f, 500*time.Millisecond)
	got, err := c.Window(context.Background(), symbolRange(20), 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 20 {
		t.Errorf("expected 20 series, got %d", len(got))
	}
}

func TestYahooFetcher_CallTimeoutDropsOnlySlowSymbol(t *testing.T) {
	srv := slowChartServer(t, 0)
	f := NewYahooFetcher("", time.Second)
	f.BaseURL = srv.URL
	f.CallTimeout = 50 * time.Millisecond

	end := time.Now()
	got, err := f.FetchDailyCloses(context.Background(), []string{"ABC", "SLOW", "DEF"}, end.AddDate(0, 0, -10), end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := got["SLOW"]; ok || len(got) != 2 {
		t.Errorf("expected ABC and DEF only, got %d series", len(got))
	}
}

func TestYahooFetcher_CancelKeepsFetchedSeries(t *testing.T) {
	srv := slowChartServer(t, 40*time.Millisecond)
	f := NewYahooFetcher("", time.Second)
	f.BaseURL = srv.URL

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	end := time.Now()
	got, err := f.FetchDailyCloses(ctx, symbolRange(20), end.AddDate(0, 0, -10), end)
	if err != nil {
		t.Fatalf("partial batch must not fail: %v", err)
	}
	if len(got) == 0 || len(got) == 20 {
		t.Errorf("expected a partial batch, got %d series", len(got))
	}

	if _, err := f.FetchDailyCloses(ctx, []string{"ABC"}, end.AddDate(0, 0, -10), end); err == nil {
		t.Error("expected error when cancelled before any fetch")
	}
}

func TestCollector_WindowAndHistory(t *testing.T) {
	now := time.Date(2026, 10, 19, 21, 0, 0, 0, time.UTC)
	src := &MockSource{Series: map[string][]float64{"ABC": {1, 2, 3}}}
	c := NewCollector(src, time.Second)
	c.Now = func() time.Time { return now }

	h, err := c.History(context.Background(), "ABC", 300)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Len() != 3 || h.Last().Close != 3 {
		t.Errorf("unexpected series %+v", h)
	}
	if !h.Last().Time.Equal(now) {
		t.Errorf("last point should be at window end, got %v", h.Last().Time)
	}

	missing, err := c.History(context.Background(), "NOPE", 300)
	if err != nil || missing.Len() != 0 || missing.Symbol != "NOPE" {
		t.Errorf("expected empty series for unknown symbol, got %+v, %v", missing, err)
	}

	empty, err := c.Window(context.Background(), nil, 100)
	if err != nil || len(empty) != 0 {
		t.Errorf("expected empty map, got %v, %v", empty, err)
	}
	if len(src.Batches()) != 2 {
		t.Errorf("empty window must not hit the source, got %d calls", len(src.Batches()))
	}
}

func TestCollector_WrapsSourceError(t *testing.T) {
	src := &MockSource{FailBatch: func([]string) bool { return true }}
	c := NewCollector(src, time.Second)
	_, err := c.Window(context.Background(), []string{"A"}, 100)
	if err == nil || !strings.Contains(err.Error(), "mock daily closes") {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func TestMockSource_GenerateIsDeterministic(t *testing.T) {
	src := &MockSource{Generate: true}
	end := time.Now()
	a, _ := src.FetchDailyCloses(context.Background(), []string{"XYZ"}, end.AddDate(0, 0, -300), end)
	b, _ := src.FetchDailyCloses(context.Background(), []string{"XYZ"}, end.AddDate(0, 0, -300), end)
	if a["XYZ"].Len() == 0 || a["XYZ"].Len() != b["XYZ"].Len() {
		t.Fatalf("unexpected lengths %d/%d", a["XYZ"].Len(), b["XYZ"].Len())
	}
	for i := range a["XYZ"].Points {
		if a["XYZ"].Points[i].Close != b["XYZ"].Points[i].Close {
			t.Fatal("generated series differ between calls")
		}
	}
}
