package sse

import (
	"bufio"
	"io"
	"strings"
)

// Frame is one decoded server-sent event as seen by a client
type Frame struct {
	Event string
	ID    string
	Data  string // multi-line data joined with "\n"
}

// Decoder reads SSE frames from an upstream response body.
// Frames are dispatched on a blank line; a trailing frame without the blank
// line is still returned before io.EOF.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps r
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 32*1024)}
}

// Next returns the next frame, io.EOF once the stream is exhausted
func (d *Decoder) Next() (Frame, error) {
	var (
		frame   Frame
		data    []string
		hasData bool
	)

	for {
		line, err := d.r.ReadString('\n')
		if err != nil && err != io.EOF {
			return Frame{}, err
		}
		eof := err == io.EOF
		if eof && line == "" {
			if hasData {
				frame.Data = strings.Join(data, "\n")
				return frame, nil
			}
			return Frame{}, io.EOF
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if hasData {
				frame.Data = strings.Join(data, "\n")
				return frame, nil
			}
			frame = Frame{}
			if eof {
				return Frame{}, io.EOF
			}
			continue
		}

		if !strings.HasPrefix(line, ":") {
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "data":
				data = append(data, value)
				hasData = true
			case "event":
				frame.Event = value
			case "id":
				frame.ID = value
			}
		}

		if eof {
			if hasData {
				frame.Data = strings.Join(data, "\n")
				return frame, nil
			}
			return Frame{}, io.EOF
		}
	}
}
