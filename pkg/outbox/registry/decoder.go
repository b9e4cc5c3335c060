package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/angelmondragon/stockledger/pkg/enums"
)

// ErrUnknownVersion is returned for a payload version with no decoder.
var ErrUnknownVersion = errors.New("unknown payload version")

// Decoder turns an envelope payload into its typed event.
type Decoder func(payload json.RawMessage) (any, error)

// JSONDecoder decodes into a fresh *T.
func JSONDecoder[T any]() Decoder {
	return func(payload json.RawMessage) (any, error) {
		out := new(T)
		if err := json.Unmarshal(payload, out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// DecoderRegistry holds the payload decoders per event name and version.
type DecoderRegistry struct {
	mu       sync.RWMutex
	versions map[enums.OutboxEventType]map[int]Decoder
}

// NewDecoderRegistry builds an empty decoder registry.
func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{versions: make(map[enums.OutboxEventType]map[int]Decoder)}
}

// Register adds or replaces the decoder for one event version.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byVersion, ok := r.versions[eventType]
	if !ok {
		byVersion = make(map[int]Decoder)
		r.versions[eventType] = byVersion
	}
	byVersion[version] = decoder
}

// Versions lists the registered versions of eventType in ascending order.
func (r *DecoderRegistry) Versions(eventType enums.OutboxEventType) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, 0, len(r.versions[eventType]))
	for v := range r.versions[eventType] {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// Decode runs the decoder for eventType at version.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	r.mu.RLock()
	decoder, ok := r.versions[eventType][version]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s v%d (known %v): %w", eventType, version, r.Versions(eventType), ErrUnknownVersion)
	}
	return decoder(payload)
}
