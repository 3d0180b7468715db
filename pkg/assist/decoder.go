// Package assist streams AI explanations of HTTP requests from the Anthropic
// Messages API.
package assist

import (
	"bytes"
	"fmt"

	"github.com/tidwall/gjson"
)

// APIError is an error event reported by the API, either in the stream or as
// the body of a failed response.
type APIError struct {
	Type    string
	Message string
	Status  int
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("anthropic api error (%d %s): %s", e.Status, e.Type, e.Message)
	}
	return fmt.Sprintf("anthropic api error (%s): %s", e.Type, e.Message)
}

// TextFunc receives the text of the explanation accumulated so far.
type TextFunc func(full string)

// Decoder is an incremental server-sent events decoder. Feed can be called with
// arbitrary network chunks; incomplete lines are buffered until the next call.
type Decoder struct {
	onText TextFunc
	buf    []byte
	text   bytes.Buffer
	done   bool
}

func NewDecoder(onText TextFunc) *Decoder {
	return &Decoder{onText: onText}
}

// Feed consumes one chunk of the stream. It returns the first error event found.
func (d *Decoder) Feed(chunk []byte) error {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			return nil
		}
		line := bytes.TrimSuffix(d.buf[:i], []byte("\r"))
		err := d.line(line)
		d.buf = d.buf[i+1:]
		if err != nil || d.done {
			return err
		}
	}
}

// Close processes a trailing line without newline.
func (d *Decoder) Close() error {
	if d.done || len(d.buf) == 0 {
		return nil
	}
	line := bytes.TrimSuffix(d.buf, []byte("\r"))
	d.buf = nil
	return d.line(line)
}

// Done reports whether the stream signalled its end.
func (d *Decoder) Done() bool {
	return d.done
}

func (d *Decoder) Text() string {
	return d.text.String()
}

func (d *Decoder) line(line []byte) error {
	data, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok {
		// event names, comments and record separators
		return nil
	}
	data = bytes.TrimPrefix(data, []byte(" "))

	if string(data) == "[DONE]" {
		d.done = true
		return nil
	}
	if !gjson.ValidBytes(data) {
		return nil
	}

	event := gjson.ParseBytes(data)
	switch event.Get("type").String() {
	case "content_block_delta":
		delta := event.Get("delta.text").String()
		if delta == "" {
			return nil
		}
		d.text.WriteString(delta)
		if d.onText != nil {
			d.onText(d.text.String())
		}
	case "message_stop":
		d.done = true
	case "error":
		d.done = true
		return &APIError{
			Type:    event.Get("error.type").String(),
			Message: event.Get("error.message").String(),
		}
	}
	return nil
}
