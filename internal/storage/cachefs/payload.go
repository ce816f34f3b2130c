package cachefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/hwanginhyeok/stock/internal/models"
)

// ErrEmptyPayload is returned when a payload carries neither a series nor a value
var ErrEmptyPayload = errors.New("cache payload is empty")

// Payload is what callers store and retrieve. Exactly one of Series or
// Value is set; the store picks the on-disk format from which one it is.
type Payload struct {
	Series *models.TimeSeries
	Value  json.RawMessage
}

// SeriesPayload wraps a time series as a table payload
func SeriesPayload(series *models.TimeSeries) Payload {
	return Payload{Series: series}
}

// ValuePayload encodes any JSON-serialisable value as a scalar payload
func ValuePayload(v any) (Payload, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Payload{}, fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return Payload{Value: data}, nil
}

// Format reports the on-disk format the payload uses
func (p Payload) Format() models.CacheFormat {
	if p.Series != nil {
		return models.CacheFormatTable
	}
	return models.CacheFormatScalar
}

// Empty reports whether the payload carries nothing
func (p Payload) Empty() bool {
	return p.Series == nil && len(p.Value) == 0
}

// Decode unmarshals a scalar payload into dest
func (p Payload) Decode(dest any) error {
	if len(p.Value) == 0 {
		return fmt.Errorf("cache payload has no scalar value")
	}
	if err := json.Unmarshal(p.Value, dest); err != nil {
		return fmt.Errorf("failed to decode cache value: %w", err)
	}
	return nil
}

// clone returns a copy that shares no mutable state with p
func (p Payload) clone() Payload {
	out := Payload{Value: slices.Clone(p.Value)}
	if p.Series != nil {
		s := *p.Series
		s.Bars = slices.Clone(p.Series.Bars)
		out.Series = &s
	}
	return out
}
