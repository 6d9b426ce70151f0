package sink

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/weirlab/weir/pkg/record"
	"github.com/weirlab/weir/pkg/spool"
)

func testBatch(n int) record.Batch {
	base := time.Unix(1700000000, 0).UTC()
	batch := make(record.Batch, 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, record.Record{
			Timestamp:      base.Add(time.Duration(i) * time.Second),
			Data:           []byte{byte(i)},
			OriginalLength: 1,
			ActualLength:   1,
		})
	}
	return batch
}

func TestHTTPSinkShip(t *testing.T) {
	var gotManifest manifest
	var gotRecords record.Batch
	var gotAuth, gotStream string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotStream = r.Header.Get("X-Weir-Stream-Id")

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := json.Unmarshal([]byte(r.FormValue("manifest")), &gotManifest); err != nil {
			t.Errorf("unmarshal manifest: %v", err)
		}

		f, _, err := r.FormFile("records")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer f.Close()
		encoded, _ := io.ReadAll(f)
		gotRecords, err = spool.DecodeBatch(encoded)
		if err != nil {
			t.Errorf("decode records: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewHTTPSink(srv.Client(), nil)
	batch := testBatch(3)
	meta := Metadata{ServiceURL: srv.URL, AuthKey: "secret", StreamID: "merged-1"}

	if err := s.Ship(context.Background(), batch, meta); err != nil {
		t.Fatalf("ship: %v", err)
	}

	if gotAuth != "Bearer secret" {
		t.Fatalf("auth header %q", gotAuth)
	}
	if gotStream != "merged-1" {
		t.Fatalf("stream header %q", gotStream)
	}
	if gotManifest.Records != 3 {
		t.Fatalf("manifest records %d, want 3", gotManifest.Records)
	}
	if len(gotRecords) != 3 {
		t.Fatalf("decoded %d records, want 3", len(gotRecords))
	}
	for i := range batch {
		if !gotRecords[i].Timestamp.Equal(batch[i].Timestamp) {
			t.Fatalf("record %d timestamp %v, want %v", i, gotRecords[i].Timestamp, batch[i].Timestamp)
		}
	}
}

func TestHTTPSinkRejectsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewHTTPSink(srv.Client(), nil)
	err := s.Ship(context.Background(), testBatch(1), Metadata{ServiceURL: srv.URL})
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestHTTPSinkSkipsEmptyBatch(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	s := NewHTTPSink(srv.Client(), nil)
	if err := s.Ship(context.Background(), nil, Metadata{ServiceURL: srv.URL}); err != nil {
		t.Fatalf("ship empty: %v", err)
	}
	if called {
		t.Fatal("empty batch must not hit the server")
	}
}

func TestSpoolSinkRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := NewSpoolSink(dir, 0)
	if err != nil {
		t.Fatalf("new spool sink: %v", err)
	}
	batch := testBatch(4)
	if err := s.Ship(context.Background(), batch, Metadata{}); err != nil {
		t.Fatalf("ship: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r := spool.NewReader(dir, true, nil)
	if err := r.Open("", 0, ""); err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer r.Close()

	_, got, _, err := r.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("read back %d records, want 4", len(got))
	}
}
