package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

// OutputFormat selects what the claude backend prints in piped mode.
type OutputFormat string

const (
	OutputText       OutputFormat = "text"
	OutputStreamJSON OutputFormat = "stream-json"
)

// Usage is the session result reported at the end of a stream-json run.
type Usage struct {
	CostUSD      float64
	InputTokens  int64
	OutputTokens int64
	Turns        int
	DurationMs   int64
	IsError      bool
}

type streamLine struct {
	Type    string `json:"type"`
	Message *struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
			Name string `json:"name"`
		} `json:"content"`
		Usage *streamUsage `json:"usage"`
	} `json:"message"`
	Usage        *streamUsage `json:"usage"`
	TotalCostUSD float64      `json:"total_cost_usd"`
	NumTurns     int          `json:"num_turns"`
	DurationMs   int64        `json:"duration_ms"`
	IsError      bool         `json:"is_error"`
}

type streamUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// DecodeStream extracts the assistant text from NDJSON output and returns
// it with the session result. Lines that are not stream events are skipped.
func DecodeStream(raw string) (string, *Usage) {
	var text strings.Builder
	var usage *Usage
	var tokens streamUsage
	for _, line := range strings.Split(raw, "\n") {
		ev, ok := parseStreamLine(line)
		if !ok {
			continue
		}
		switch ev.Type {
		case "assistant":
			if ev.Message == nil {
				continue
			}
			for _, block := range ev.Message.Content {
				if block.Type == "text" && block.Text != "" {
					text.WriteString(block.Text)
					if !strings.HasSuffix(block.Text, "\n") {
						text.WriteByte('\n')
					}
				}
			}
			if u := ev.Message.Usage; u != nil {
				tokens.InputTokens += u.InputTokens
				tokens.OutputTokens += u.OutputTokens
			}
		case "result":
			usage = &Usage{
				CostUSD:    ev.TotalCostUSD,
				Turns:      ev.NumTurns,
				DurationMs: ev.DurationMs,
				IsError:    ev.IsError,
			}
			// The result line carries session totals when present.
			if ev.Usage != nil {
				tokens = *ev.Usage
			}
		}
	}
	if usage != nil {
		usage.InputTokens = tokens.InputTokens
		usage.OutputTokens = tokens.OutputTokens
	}
	return text.String(), usage
}

func parseStreamLine(line string) (streamLine, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return streamLine{}, false
	}
	var ev streamLine
	if err := json.Unmarshal([]byte(line), &ev); err != nil || ev.Type == "" {
		return streamLine{}, false
	}
	return ev, true
}

// streamWriter renders stream-json lines as readable text for live output.
type streamWriter struct {
	mu  sync.Mutex
	out io.Writer
	buf bytes.Buffer
}

func newStreamWriter(out io.Writer) *streamWriter {
	return &streamWriter{out: out}
}

func (w *streamWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			return len(p), nil
		}
		line := string(w.buf.Next(i + 1))
		if err := w.render(line); err != nil {
			return len(p), err
		}
	}
}

func (w *streamWriter) render(line string) error {
	ev, ok := parseStreamLine(line)
	if !ok {
		_, err := io.WriteString(w.out, line)
		return err
	}
	var err error
	switch ev.Type {
	case "assistant":
		if ev.Message == nil {
			return nil
		}
		for _, block := range ev.Message.Content {
			switch block.Type {
			case "text":
				_, err = fmt.Fprintln(w.out, strings.TrimRight(block.Text, "\n"))
			case "tool_use":
				_, err = fmt.Fprintf(w.out, "[tool] %s\n", block.Name)
			}
			if err != nil {
				return err
			}
		}
	case "result":
		_, err = fmt.Fprintf(w.out, "[result] turns=%d cost=$%.4f\n", ev.NumTurns, ev.TotalCostUSD)
	}
	return err
}
