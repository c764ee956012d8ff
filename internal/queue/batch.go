// Package queue publishes signed notification batches to an HTTP message
// queue that later delivers them to the worker endpoint.
package queue

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/crypto/blake2b"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrInvalidSignature is returned when a sealed batch fails verification.
	ErrInvalidSignature = errors.New("queue: invalid batch signature")
	// ErrMalformedBatch is returned for payloads that cannot be decoded.
	ErrMalformedBatch = errors.New("queue: malformed batch")
)

// Item is one loan to notify.
type Item struct {
	LoanID string `json:"loanId"`
	Kind   string `json:"kind"`
}

// Batch is the unit handed to the worker endpoint.
type Batch struct {
	CorrelationID string    `json:"correlationId"`
	Category      string    `json:"category"`
	Sequence      int       `json:"sequence"`
	Total         int       `json:"total"`
	Items         []Item    `json:"items"`
	CreatedAt     time.Time `json:"createdAt"`
}

type sealed struct {
	Payload   []byte `json:"payload"`
	Signature string `json:"signature"`
}

// Signer computes keyed BLAKE2b MACs over batch payloads.
type Signer struct {
	key []byte
}

// NewSigner returns a signer for key, which must be 1 to 64 bytes long.
func NewSigner(key []byte) (*Signer, error) {
	if len(key) == 0 || len(key) > blake2b.Size {
		return nil, fmt.Errorf("signing key must be between 1 and %d bytes", blake2b.Size)
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Signer{key: k}, nil
}

func (s *Signer) mac(payload []byte) ([]byte, error) {
	h, err := blake2b.New256(s.key)
	if err != nil {
		return nil, err
	}
	h.Write(payload)
	return h.Sum(nil), nil
}

// Seal encodes and signs batch.
func (s *Signer) Seal(batch Batch) ([]byte, error) {
	payload, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}
	sum, err := s.mac(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sealed{Payload: payload, Signature: hex.EncodeToString(sum)})
}

// Open verifies and decodes a sealed batch.
func (s *Signer) Open(body []byte) (Batch, error) {
	var envelope sealed
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
	}
	signature, err := hex.DecodeString(envelope.Signature)
	if err != nil {
		return Batch{}, ErrInvalidSignature
	}
	expected, err := s.mac(envelope.Payload)
	if err != nil {
		return Batch{}, err
	}
	if subtle.ConstantTimeCompare(signature, expected) != 1 {
		return Batch{}, ErrInvalidSignature
	}

	var batch Batch
	if err := json.Unmarshal(envelope.Payload, &batch); err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
	}
	return batch, nil
}

// Split cuts items into consecutive chunks of at most size.
func Split(items []Item, size int) [][]Item {
	if size < 1 {
		size = 1
	}
	var chunks [][]Item
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
