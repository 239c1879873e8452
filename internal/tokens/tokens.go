// Package tokens counts tokens for stored transcript turns.
package tokens

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/chatwidget-gateway/internal/domain"
)

// Counter counts the tokens in a piece of text.
type Counter interface {
	Count(text string) int
}

// TiktokenCounter counts tokens with a tiktoken encoding. The codec is loaded
// on first use; if it cannot be loaded the Estimator is used instead.
type TiktokenCounter struct {
	encoding tokenizer.Encoding
	fallback *Estimator

	once  sync.Once
	codec tokenizer.Codec
	err   error
}

// NewTiktokenCounter creates a counter for the named encoding. An empty name
// selects cl100k_base.
func NewTiktokenCounter(encoding string) *TiktokenCounter {
	enc := tokenizer.Encoding(strings.ToLower(encoding))
	if enc == "" {
		enc = tokenizer.Cl100kBase
	}
	return &TiktokenCounter{encoding: enc, fallback: NewEstimator()}
}

func (c *TiktokenCounter) load() (tokenizer.Codec, error) {
	c.once.Do(func() {
		codec, err := tokenizer.Get(c.encoding)
		if err != nil {
			c.err = fmt.Errorf("failed to get tokenizer encoding %q: %w", c.encoding, err)
			return
		}
		c.codec = codec
	})
	return c.codec, c.err
}

// Err reports why the encoding could not be loaded, if it could not.
func (c *TiktokenCounter) Err() error {
	_, err := c.load()
	return err
}

// Count returns the number of tokens in text.
func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	codec, err := c.load()
	if err != nil {
		return c.fallback.Count(text)
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return c.fallback.Count(text)
	}
	return len(ids)
}

// Estimator approximates token counts from character length.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{CharsPerToken: 4.0}
}

// Count estimates the number of tokens in text.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / e.CharsPerToken))
}

// CountTurn counts a turn's visible text plus its encoded card widget.
func CountTurn(c Counter, turn *domain.ChatTurn) int {
	n := c.Count(turn.Text)
	if turn.CardWidget != nil {
		if data, err := json.Marshal(turn.CardWidget); err == nil {
			n += c.Count(string(data))
		}
	}
	return n
}
