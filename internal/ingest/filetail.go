package ingest

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"pumpguard/internal/config"
	"pumpguard/internal/model"
)

func StartFileTail(ctx context.Context, cfg *config.Manager, out chan<- model.Reading, logger *slog.Logger) {
	current := cfg.Get().Ingest.FileTail
	if !current.Enabled {
		if logger != nil {
			logger.Info("file tail ingest disabled")
		}
		return
	}
	for _, path := range current.Files {
		if logger != nil {
			logger.Info("file tail ingest enabled", "path", path, "start_at_end", current.StartAtEnd)
		}
		go tailFile(ctx, path, current.StartAtEnd, cfg, NewParser(), out, logger)
	}
}

// tailFile follows path like tail -F. A CSV file is read from the top even with startAtEnd
// so its header is known, but only lines appended later are forwarded.
func tailFile(ctx context.Context, path string, startAtEnd bool, cfg *config.Manager, parser *Parser, out chan<- model.Reading, logger *slog.Logger) {
	var file *os.File
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if file == nil {
			f, err := os.Open(path)
			if err != nil {
				if logger != nil {
					logger.Warn("tail open failed", "path", path, "err", err)
				}
				if !BackoffSleep(ctx, 500*time.Millisecond) {
					return
				}
				continue
			}
			file = f
			offset = 0
			if startAtEnd {
				offset = primeHeader(file, parser)
			}
		}

		reader := bufio.NewReader(file)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					if !BackoffSleep(ctx, 200*time.Millisecond) {
						_ = file.Close()
						return
					}
					info, statErr := os.Stat(path)
					if statErr == nil && info.Size() < offset {
						_ = file.Close()
						file = nil
						startAtEnd = false
						break
					}
					continue
				}
				if logger != nil {
					logger.Warn("tail read error", "path", path, "err", err)
				}
				_ = file.Close()
				file = nil
				break
			}
			offset += int64(len(line))
			forwardLine(ctx, line, parser, cfg, SourceFileTail, out, logger)
		}
	}
}

// primeHeader feeds the first line to the parser and seeks to the end of file.
func primeHeader(file *os.File, parser *Parser) int64 {
	first, err := bufio.NewReader(file).ReadString('\n')
	if err == nil {
		_, _ = parser.ParseLine(first)
	}
	pos, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0
	}
	return pos
}
