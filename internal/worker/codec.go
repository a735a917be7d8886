// Package worker supervises the external plant classifier process and the
// line-delimited JSON protocol spoken over its stdio.
package worker

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Request is one inference request, written to the worker as a single JSON
// line terminated by a newline.
type Request struct {
	Image string `json:"image"`
	TopK  int    `json:"topk"`
}

// Prediction is one ranked classification inside a worker response.
type Prediction struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Response is one line read back from the worker. Either TopK is populated
// or Error carries a worker-reported message. An Error response is an
// application-level failure, not a framing failure.
type Response struct {
	TopK  []Prediction `json:"topk"`
	Error string       `json:"error"`
}

// IsError reports whether the worker answered with an application error.
func (r *Response) IsError() bool {
	return r.Error != ""
}

// Codec frames requests and responses over the worker's stdio streams.
// The inbound side tolerates non-JSON diagnostic lines (startup banners,
// stray prints) by skipping anything that does not parse.
type Codec struct {
	w   io.Writer
	r   *bufio.Reader
	log *slog.Logger

	// noiseSkipped is invoked once per skipped line when set.
	noiseSkipped func()
}

// NewCodec creates a codec over the given worker streams.
func NewCodec(w io.Writer, r io.Reader, log *slog.Logger) *Codec {
	return &Codec{
		w:   w,
		r:   bufio.NewReader(r),
		log: log,
	}
}

// WriteRequest encodes req as one JSON line on the outbound stream.
func (c *Codec) WriteRequest(req Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding worker request: %w", err)
	}
	payload = append(payload, '\n')
	if _, err := c.w.Write(payload); err != nil {
		return fmt.Errorf("writing worker request: %w", err)
	}
	return nil
}

// ReadResponse reads inbound lines until one parses as a JSON response
// object, skipping noise lines, and returns it. It returns an error only for
// stream-level failures; a worker-reported {error} is returned as a Response
// with IsError() true.
func (c *Codec) ReadResponse() (Response, error) {
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			// A partial line at EOF is still worth a parse attempt.
			if err == io.EOF && strings.TrimSpace(line) != "" {
				if resp, ok := c.tryParse(line); ok {
					return resp, nil
				}
			}
			return Response{}, fmt.Errorf("reading worker response: %w", err)
		}

		if strings.TrimSpace(line) == "" {
			continue
		}
		if resp, ok := c.tryParse(line); ok {
			return resp, nil
		}
	}
}

func (c *Codec) tryParse(line string) (Response, bool) {
	trimmed := strings.TrimSpace(line)
	var resp Response
	if err := json.Unmarshal([]byte(trimmed), &resp); err != nil {
		if c.log != nil {
			c.log.Debug("skipping non-JSON worker output", "line", truncateForLog(trimmed))
		}
		if c.noiseSkipped != nil {
			c.noiseSkipped()
		}
		return Response{}, false
	}
	return resp, true
}

func truncateForLog(s string) string {
	const maxLen = 200
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
