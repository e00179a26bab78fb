package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchKlinesParsesMixedNumericEncodings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[[1700000000000,"100.5",101.25,"99.75",100.9,"12.5",1700000059999,"1250.0",42,"6.0","600.0","0"]]`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, 100, 10)
	klines, err := c.FetchKlines(context.Background(), "BTCUSDT", "1m", 1)
	if err != nil {
		t.Fatalf("FetchKlines: %v", err)
	}
	if len(klines) != 1 {
		t.Fatalf("expected 1 kline, got %d", len(klines))
	}
	k := klines[0]
	if k.OpenTimeMs != 1700000000000 || k.Open != 100.5 || k.High != 101.25 || k.Low != 99.75 || k.Close != 100.9 || k.Volume != 12.5 {
		t.Fatalf("unexpected parsed kline: %+v", k)
	}
}

func TestFetchKlinesSkipsMalformedRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[[1,"1","2","0.5","1.5","10"],["bad-row"]]`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, 100, 10)
	klines, err := c.FetchKlines(context.Background(), "BTCUSDT", "1m", 2)
	if err != nil {
		t.Fatalf("FetchKlines: %v", err)
	}
	if len(klines) != 1 {
		t.Fatalf("expected the malformed row to be skipped, got %d klines", len(klines))
	}
}

func TestFetchKlinesPropagatesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, 100, 10)
	if _, err := c.FetchKlines(context.Background(), "BTCUSDT", "1m", 1); err == nil {
		t.Fatal("expected an error on HTTP 500")
	}
}

func TestFetchOpenInterest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"openInterest":"1234.5"}`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, 100, 10)
	oi, err := c.FetchOpenInterest(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("FetchOpenInterest: %v", err)
	}
	if oi != 1234.5 {
		t.Fatalf("expected 1234.5, got %v", oi)
	}
}
