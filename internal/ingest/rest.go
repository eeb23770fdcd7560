package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pumpguard/internal/config"
	"pumpguard/internal/model"
	"pumpguard/internal/normalize"
)

const maxBodyBytes = 2 << 20

type RESTServer struct {
	cfg    *config.Manager
	out    chan<- model.Reading
	logger *slog.Logger
}

func NewRESTServer(cfg *config.Manager, out chan<- model.Reading, logger *slog.Logger) *RESTServer {
	return &RESTServer{cfg: cfg, out: out, logger: logger}
}

func (s *RESTServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/readings", s.handleReadings)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

func StartREST(ctx context.Context, cfg *config.Manager, out chan<- model.Reading, logger *slog.Logger) *http.Server {
	current := cfg.Get().Ingest.REST
	if !current.Enabled {
		if logger != nil {
			logger.Info("rest ingest disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("rest ingest enabled", "addr", current.Addr)
	}
	httpServer := &http.Server{
		Addr:              current.Addr,
		Handler:           NewRESTServer(cfg, out, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("rest ingest server error", "err", err)
			}
		}
	}()
	return httpServer
}

// handleReadings accepts one JSON object, a JSON array of objects, or a CSV document with a header.
func (s *RESTServer) handleReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	trim := bytes.TrimSpace(body)
	if len(trim) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	opts := normalizeOptions(s.cfg.Get(), SourceREST)
	accepted := 0
	failed := 0
	tally := func(err error) {
		if err != nil {
			failed++
			return
		}
		accepted++
	}

	switch {
	case strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv"):
		parser := NewCSVParser()
		scanner := bufio.NewScanner(bytes.NewReader(trim))
		scanner.Buffer(make([]byte, 0, 8192), maxBodyBytes)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			fields, err := parser.Parse(line)
			if err != nil {
				failed++
				continue
			}
			if fields == nil {
				continue
			}
			tally(s.forward(r.Context(), *fields, opts))
		}
	case trim[0] == '[':
		var list []map[string]any
		dec := json.NewDecoder(bytes.NewReader(trim))
		dec.UseNumber()
		if err := dec.Decode(&list); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, obj := range list {
			tally(s.forward(r.Context(), *ParseJSONMap(obj), opts))
		}
	default:
		fields, err := ParseJSONBytes(trim)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		tally(s.forward(r.Context(), *fields, opts))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{
		"accepted": accepted,
		"failed":   failed,
	})
}

var errChannelFull = errors.New("reading channel full")

func (s *RESTServer) forward(ctx context.Context, fields normalize.RecordFields, opts normalize.Options) error {
	fields.Raw = SourceREST
	reading, err := normalize.Normalize(fields, opts)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("rest normalize error", "err", err)
		}
		return err
	}
	if !SendNonBlocking(ctx, s.out, reading, s.logger) {
		return errChannelFull
	}
	return nil
}
