// Package sse decodes server-sent-events-style chat completion streams.
package sse

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/nibaldox/chat-llm-terminal/log"
)

// DoneSentinel terminates the read loop. It only stops further reads;
// events that arrived before it are still decoded and yielded.
const DoneSentinel = "[DONE]"

const dataPrefix = "data: "

// chunk is the conventional chat-completions streaming event shape. Only
// the incremental content is extracted here.
type chunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Decoder turns an SSE byte stream into a sequence of incremental content
// strings. Concatenating every yielded increment reproduces the full
// response text. A Decoder is not resumable; restart by re-issuing the
// request.
type Decoder struct {
	reader *bufio.Reader
	done   bool
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	// Use bufio.Reader instead of Scanner to avoid the 64KB line limit.
	return &Decoder{reader: bufio.NewReader(r)}
}

// Next returns the next (possibly empty) content increment. It returns
// io.EOF after the stream ends or the done sentinel is seen. Malformed
// event payloads are logged and skipped; they never abort decoding of
// subsequent events.
func (d *Decoder) Next() (string, error) {
	if d.done {
		return "", io.EOF
	}
	for {
		line, err := d.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				d.done = true
				// A final unterminated line may still hold an event.
				if data, ok := eventData(line); ok && data != DoneSentinel {
					if content, ok := decodeChunk(data); ok {
						return content, nil
					}
				}
				return "", io.EOF
			}
			d.done = true
			return "", err
		}

		data, ok := eventData(line)
		if !ok {
			// Blank event separators and comment lines.
			continue
		}
		if data == DoneSentinel {
			d.done = true
			return "", io.EOF
		}
		content, ok := decodeChunk(data)
		if !ok {
			continue
		}
		return content, nil
	}
}

// eventData strips the data prefix from one line, reporting whether the
// line carried an event payload at all.
func eventData(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}
	return strings.TrimPrefix(line, dataPrefix), true
}

func decodeChunk(data string) (string, bool) {
	var c chunk
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		log.Warnf("failed to parse chunk: %v, data: %s", err, data)
		return "", false
	}
	if len(c.Choices) == 0 {
		return "", true
	}
	return c.Choices[0].Delta.Content, true
}
