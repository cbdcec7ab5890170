// Copyright 2025-2026 Hookscope Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package sink

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hookscope/hookscope/pkg/hook"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

// OTLPOptions configures the OTLP sink.
type OTLPOptions struct {
	Endpoint      string
	Insecure      bool
	Headers       map[string]string
	ServiceName   string
	QueueSize     int           // completed spans buffered for export (default 4096)
	BatchSize     int           // spans per Export call (default 256)
	FlushInterval time.Duration // default 2s
}

// OTLP assembles Call/Return pairs into spans and ships them over OTLP
// gRPC. OnEvent stays cheap: it feeds the assembler and hands completed
// spans to a buffered queue; a background goroutine batches and exports.
// When the queue is full, spans are dropped and counted rather than
// blocking the traced thread.
//
// One OTLP sink serves one scope: events are assumed to arrive in-order
// from a single thread.
type OTLP struct {
	logger *zap.Logger
	opts   OTLPOptions

	asm      *Assembler
	spanCh   chan *Span
	exported atomic.Int64
	dropped  atomic.Int64

	wg     sync.WaitGroup
	stopCh chan struct{}

	mu     sync.RWMutex
	conn   *grpc.ClientConn
	client coltracepb.TraceServiceClient
}

// NewOTLP creates an OTLP sink. The gRPC dial is non-blocking; export
// failures are logged and counted, never surfaced to the traced program.
func NewOTLP(opts OTLPOptions, logger *zap.Logger) (*OTLP, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("otlp: endpoint is required")
	}
	if opts.QueueSize == 0 {
		opts.QueueSize = 4096
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 256
	}
	if opts.FlushInterval == 0 {
		opts.FlushInterval = 2 * time.Second
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "hookscope"
	}

	e := &OTLP{
		logger: logger,
		opts:   opts,
		spanCh: make(chan *Span, opts.QueueSize),
		stopCh: make(chan struct{}),
	}
	e.asm = NewAssembler(e.enqueue)

	if err := e.connect(); err != nil {
		return nil, err
	}
	return e, nil
}

// OnEvent implements hook.Sink. It always returns Continue.
func (e *OTLP) OnEvent(ev hook.Event) hook.Directive {
	e.asm.Feed(ev)
	return hook.Continue
}

// Start begins the background export loop.
func (e *OTLP) Start(ctx context.Context) error {
	e.wg.Add(1)
	go e.flushLoop(ctx)
	return nil
}

// Shutdown flushes buffered spans and closes the connection.
func (e *OTLP) Shutdown(ctx context.Context) error {
	close(e.stopCh)
	e.wg.Wait()

	// Final drain of anything still queued.
	var batch []*Span
	draining := true
	for draining {
		select {
		case s := <-e.spanCh:
			batch = append(batch, s)
		default:
			draining = false
		}
	}
	if len(batch) > 0 {
		e.export(ctx, batch)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn != nil {
		return e.conn.Close()
	}
	return nil
}

// Exported returns the number of spans successfully exported.
func (e *OTLP) Exported() int64 { return e.exported.Load() }

// Dropped returns the number of spans dropped due to a full queue.
func (e *OTLP) Dropped() int64 { return e.dropped.Load() }

func (e *OTLP) enqueue(s *Span) {
	select {
	case e.spanCh <- s:
	default:
		e.dropped.Add(1)
	}
}

func (e *OTLP) connect() error {
	var opts []grpc.DialOption
	if e.opts.Insecure {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.Dial(e.opts.Endpoint, opts...)
	if err != nil {
		return fmt.Errorf("dial OTLP endpoint %s: %w", e.opts.Endpoint, err)
	}

	e.mu.Lock()
	e.conn = conn
	e.client = coltracepb.NewTraceServiceClient(conn)
	e.mu.Unlock()
	return nil
}

// ensureConnected checks connection health and reconnects if needed.
func (e *OTLP) ensureConnected() error {
	e.mu.RLock()
	conn := e.conn
	e.mu.RUnlock()

	if conn == nil {
		return e.connect()
	}
	switch conn.GetState() {
	case connectivity.TransientFailure, connectivity.Shutdown:
		conn.Close()
		return e.connect()
	default:
		return nil
	}
}

func (e *OTLP) flushLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.opts.FlushInterval)
	defer ticker.Stop()

	var batch []*Span
	flush := func() {
		if len(batch) == 0 {
			return
		}
		e.export(ctx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case s := <-e.spanCh:
			batch = append(batch, s)
			if len(batch) >= e.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-e.stopCh:
			flush()
			return
		case <-ctx.Done():
			flush()
			return
		}
	}
}

func (e *OTLP) export(ctx context.Context, batch []*Span) {
	if err := e.ensureConnected(); err != nil {
		e.logger.Warn("otlp reconnect failed", zap.Error(err))
		return
	}

	pbSpans := make([]*tracepb.Span, 0, len(batch))
	for _, s := range batch {
		pbSpans = append(pbSpans, spanToPb(s))
	}

	req := &coltracepb.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{{
			Resource: &resourcepb.Resource{
				Attributes: []*commonpb.KeyValue{
					strAttr("service.name", e.opts.ServiceName),
					strAttr("telemetry.sdk.name", "hookscope"),
				},
			},
			ScopeSpans: []*tracepb.ScopeSpans{{
				Scope: &commonpb.InstrumentationScope{Name: "hookscope"},
				Spans: pbSpans,
			}},
		}},
	}

	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for k, v := range e.opts.Headers {
		callCtx = metadata.AppendToOutgoingContext(callCtx, k, v)
	}

	e.mu.RLock()
	client := e.client
	e.mu.RUnlock()

	if _, err := client.Export(callCtx, req); err != nil {
		e.logger.Warn("otlp export failed",
			zap.Int("spans", len(batch)),
			zap.Error(err),
		)
		return
	}
	e.exported.Add(int64(len(batch)))
}

func spanToPb(s *Span) *tracepb.Span {
	traceID, _ := hex.DecodeString(s.TraceID)
	spanID, _ := hex.DecodeString(s.SpanID)
	var parentID []byte
	if s.ParentSpanID != "" {
		parentID, _ = hex.DecodeString(s.ParentSpanID)
	}

	pb := &tracepb.Span{
		TraceId:           traceID,
		SpanId:            spanID,
		ParentSpanId:      parentID,
		Name:              s.Name,
		Kind:              tracepb.Span_SPAN_KIND_INTERNAL,
		StartTimeUnixNano: uint64(s.StartTime.UnixNano()),
		EndTimeUnixNano:   uint64(s.EndTime.UnixNano()),
		Attributes: []*commonpb.KeyValue{
			strAttr("code.filepath", s.File),
			intAttr("code.lineno", int64(s.Line)),
			intAttr("hookscope.frame_id", int64(s.Frame)),
			intAttr("hookscope.line_events", int64(s.LineEvents)),
		},
	}
	if s.Failed {
		pb.Status = &tracepb.Status{Code: tracepb.Status_STATUS_CODE_ERROR}
	} else {
		pb.Status = &tracepb.Status{Code: tracepb.Status_STATUS_CODE_OK}
	}
	return pb
}

func strAttr(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}},
	}
}

func intAttr(key string, value int64) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: value}},
	}
}
