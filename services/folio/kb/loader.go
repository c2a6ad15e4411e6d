// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package kb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/api/option"
)

// MaxSourceBytes bounds how much a loader reads from any source.
const MaxSourceBytes = 8 << 20

// ErrUnsupportedSource is returned for a source scheme the loader cannot read.
var ErrUnsupportedSource = errors.New("unsupported knowledge base source")

// ErrSourceTooLarge is returned when a source exceeds MaxSourceBytes.
var ErrSourceTooLarge = errors.New("knowledge base source too large")

var kbTracer = otel.Tracer("folio.kb")

// SourceKind classifies a knowledge-base source string.
type SourceKind int

const (
	SourceFile SourceKind = iota
	SourceHTTP
	SourceGCS
)

// ClassifySource returns the kind of source, or ErrUnsupportedSource for a
// URL scheme that is not file, http, https or gs.
func ClassifySource(source string) (SourceKind, error) {
	lower := strings.ToLower(source)
	switch {
	case strings.HasPrefix(lower, "gs://"):
		return SourceGCS, nil
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return SourceHTTP, nil
	case strings.HasPrefix(lower, "file://"):
		return SourceFile, nil
	case strings.Contains(source, "://"):
		return 0, fmt.Errorf("%q: %w", source, ErrUnsupportedSource)
	default:
		return SourceFile, nil
	}
}

// ParseGCSURI splits gs://bucket/path/to/object into bucket and object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("%q is not a gs:// URI", uri)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("%q must name both a bucket and an object", uri)
	}
	return bucket, object, nil
}

// Loader fetches and decodes a knowledge base.
//
// # Thread Safety
//
// Safe for concurrent use once constructed.
type Loader struct {
	httpClient *http.Client
	logger     *slog.Logger

	// newGCSClient is swapped in tests.
	newGCSClient func(ctx context.Context) (*storage.Client, error)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithHTTPClient sets the client used for http(s) sources.
func WithHTTPClient(c *http.Client) LoaderOption {
	return func(l *Loader) { l.httpClient = c }
}

// WithGCSClientOptions passes opts to the Cloud Storage client, e.g.
// option.WithoutAuthentication() for public buckets.
func WithGCSClientOptions(opts ...option.ClientOption) LoaderOption {
	return func(l *Loader) {
		l.newGCSClient = func(ctx context.Context) (*storage.Client, error) {
			return storage.NewClient(ctx, opts...)
		}
	}
}

// WithLogger sets the logger used for load and decode diagnostics.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader creates a Loader. Google Cloud Storage sources use Application
// Default Credentials unless WithGCSClientOptions says otherwise.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		newGCSClient: func(ctx context.Context) (*storage.Client, error) {
			return storage.NewClient(ctx)
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Load reads source and decodes it.
//
// # Inputs
//
//   - ctx: Cancels network reads. Must not be nil.
//   - source: A file path, file:// URL, http(s):// URL or gs://bucket/object.
//
// # Outputs
//
//   - *KnowledgeBase: Decoded knowledge base.
//   - error: ErrUnsupportedSource, ErrSourceTooLarge, I/O or decode errors.
func (l *Loader) Load(ctx context.Context, source string) (*KnowledgeBase, error) {
	ctx, span := kbTracer.Start(ctx, "kb.Loader.Load")
	defer span.End()
	span.SetAttributes(attribute.String("source", source))

	start := time.Now()
	data, err := l.Fetch(ctx, source)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}

	kb, err := Decode(data, l.logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	span.SetAttributes(
		attribute.Int("bytes", len(data)),
		attribute.Int("categories", len(kb.Categories)),
		attribute.Int("records", kb.RecordCount()),
	)
	l.logger.Info("knowledge base loaded",
		slog.String("source", source),
		slog.Int("categories", len(kb.Categories)),
		slog.Int("records", kb.RecordCount()),
		slog.Duration("duration", time.Since(start)),
	)
	return kb, nil
}

// Fetch returns the raw bytes of source without decoding them.
func (l *Loader) Fetch(ctx context.Context, source string) ([]byte, error) {
	kind, err := ClassifySource(source)
	if err != nil {
		return nil, err
	}
	switch kind {
	case SourceHTTP:
		return l.fetchHTTP(ctx, source)
	case SourceGCS:
		return l.fetchGCS(ctx, source)
	default:
		return fetchFile(FilePath(source))
	}
}

// FilePath strips a file:// scheme from a file source.
func FilePath(source string) string {
	return strings.TrimPrefix(source, "file://")
}

func fetchFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening knowledge base: %w", err)
	}
	defer f.Close()
	return readLimited(f, path)
}

func (l *Loader) fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json, application/yaml;q=0.9, */*;q=0.5")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: unexpected status %d", url, resp.StatusCode)
	}
	return readLimited(resp.Body, url)
}

func (l *Loader) fetchGCS(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}

	client, err := l.newGCSClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	defer client.Close()

	rc, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", uri, err)
	}
	defer rc.Close()

	if rc.Attrs.Size > MaxSourceBytes {
		return nil, fmt.Errorf("%s (%d bytes): %w", uri, rc.Attrs.Size, ErrSourceTooLarge)
	}
	return readLimited(rc, uri)
}

// readLimited reads r up to MaxSourceBytes, failing if r holds more.
func readLimited(r io.Reader, name string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSourceBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	if len(data) > MaxSourceBytes {
		return nil, fmt.Errorf("%s: %w", name, ErrSourceTooLarge)
	}
	return data, nil
}
