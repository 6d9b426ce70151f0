package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"runtime"

	"github.com/weirlab/weir/pkg/log"
	"github.com/weirlab/weir/pkg/record"
	"github.com/weirlab/weir/pkg/spool"
)

const recordsEndpoint = "/v1/ingest/records"

// manifest describes the uploaded body to the receiver.
type manifest struct {
	Records int   `json:"records"`
	Bytes   int   `json:"bytes"`
	FirstTS int64 `json:"first_ts"`
	LastTS  int64 `json:"last_ts"`
}

// HTTPSink ships batches as multipart uploads: a JSON manifest plus the
// records in spool wire format.
type HTTPSink struct {
	client HTTPClient
	logger log.Logger
}

// NewHTTPSink creates an HTTP sink.
func NewHTTPSink(client HTTPClient, logger log.Logger) *HTTPSink {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &HTTPSink{client: client, logger: logger}
}

// Ship uploads one batch. An empty batch is a no-op.
func (s *HTTPSink) Ship(ctx context.Context, batch record.Batch, meta Metadata) error {
	if len(batch) == 0 {
		return nil
	}

	encoded := spool.EncodeBatch(batch)
	first, _ := batch.First()
	last, _ := batch.Last()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	manifestJSON, err := json.Marshal(manifest{
		Records: len(batch),
		Bytes:   len(encoded),
		FirstTS: first.UnixNano(),
		LastTS:  last.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	manifestPart, err := writer.CreateFormField("manifest")
	if err != nil {
		return fmt.Errorf("create manifest field: %w", err)
	}
	if _, err := manifestPart.Write(manifestJSON); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	recordsPart, err := writer.CreateFormFile("records", "records.bin")
	if err != nil {
		return fmt.Errorf("create records field: %w", err)
	}
	if _, err := recordsPart.Write(encoded); err != nil {
		return fmt.Errorf("write records: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize multipart: %w", err)
	}

	url := meta.ServiceURL + recordsEndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+meta.AuthKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Weir-Stream-Id", meta.StreamID)
	req.Header.Set("X-Weir-Hostname", meta.Hostname)
	req.Header.Set("X-Weir-OSArch", runtime.GOOS+"/"+runtime.GOARCH)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}

	s.logger.Debug("shipped batch",
		log.Int("records", len(batch)),
		log.Int("bytes", len(encoded)),
	)
	return nil
}

var _ Sink = (*HTTPSink)(nil)
