package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayloadInt(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		want   int64
		wantOK bool
	}{
		{"json integer", float64(42), 42, true},
		{"negative integer", float64(-3), -3, true},
		{"zero", float64(0), 0, true},
		{"native int", 7, 7, true},
		{"int64", int64(9), 9, true},
		{"json number", json.Number("15"), 15, true},
		{"fraction", 0.5, 0, false},
		{"near integer", 2.0000001, 0, false},
		{"json number fraction", json.Number("1.5"), 0, false},
		{"beyond int64", math.Pow(2, 63), 0, false},
		{"below int64", -math.Pow(2, 64), 0, false},
		{"min int64", -math.Pow(2, 63), math.MinInt64, true},
		{"infinity", math.Inf(1), 0, false},
		{"nan", math.NaN(), 0, false},
		{"string", "12", 0, false},
		{"missing", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Event{Payload: map[string]any{}}
			if tt.value != nil {
				e.Payload[PayloadCount] = tt.value
			}
			got, ok := e.PayloadInt(PayloadCount)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
