package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValue(t *testing.T) {
	tests := []struct {
		vt      ValueType
		want    any
		wantErr error
	}{
		{ValueTypeText, "", nil},
		{ValueTypeInteger, int64(0), nil},
		{ValueTypeNumeric, 0.0, nil},
		{ValueTypeMoney, 0.0, nil},
		{ValueTypeBoolean, false, nil},
		{ValueTypeEnum, nil, nil},
		{ValueTypeTimestamp, nil, nil},
		{"unknown", nil, ErrInvalidValueType},
	}
	for _, tt := range tests {
		t.Run(string(tt.vt), func(t *testing.T) {
			got, err := DefaultValue(tt.vt)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsValidValueType(t *testing.T) {
	for _, vt := range []ValueType{
		ValueTypeText, ValueTypeInteger, ValueTypeNumeric, ValueTypeMoney,
		ValueTypeBoolean, ValueTypeEnum, ValueTypeTimestamp,
	} {
		assert.True(t, IsValidValueType(vt), vt)
	}
	for _, vt := range []ValueType{"", "float", "list", "date"} {
		assert.False(t, IsValidValueType(vt), vt)
	}
}

func TestRoundMoney(t *testing.T) {
	assert.Equal(t, 108.9, RoundMoney(60.50000000000001+48.4))
	assert.Equal(t, 54.45, RoundMoney(3*15*1.21))
	assert.Equal(t, 0.01, RoundMoney(0.005))
	assert.Equal(t, -0.01, RoundMoney(-0.005))
}

func TestCoerce(t *testing.T) {
	at := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	tests := []struct {
		name string
		vt   ValueType
		in   any
		want any
	}{
		{"nil stays nil", ValueTypeInteger, nil, nil},
		{"text from string", ValueTypeText, "abc", "abc"},
		{"text from bytes", ValueTypeText, []byte("abc"), "abc"},
		{"text from int", ValueTypeText, 42, "42"},
		{"text from float", ValueTypeText, 1.5, "1.5"},
		{"integer from int", ValueTypeInteger, 7, int64(7)},
		{"integer from whole float", ValueTypeInteger, 7.0, int64(7)},
		{"integer from string", ValueTypeInteger, " 12 ", int64(12)},
		{"integer from json number", ValueTypeInteger, json.Number("9"), int64(9)},
		{"numeric from int", ValueTypeNumeric, 3, 3.0},
		{"numeric from string", ValueTypeNumeric, "0.21", 0.21},
		{"money rounds", ValueTypeMoney, 10.456, 10.46},
		{"boolean from bool", ValueTypeBoolean, true, true},
		{"boolean from 0", ValueTypeBoolean, int64(0), false},
		{"boolean from 1", ValueTypeBoolean, 1, true},
		{"boolean from string", ValueTypeBoolean, "true", true},
		{"enum from string", ValueTypeEnum, "quote", "quote"},
		{"timestamp from time", ValueTypeTimestamp, at.In(time.FixedZone("X", 3600)), at},
		{"timestamp from string", ValueTypeTimestamp, "2026-05-04T03:02:01Z", at},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.vt, tt.in)
			require.NoError(t, err)
			if want, ok := tt.want.(time.Time); ok {
				assert.True(t, want.Equal(got.(time.Time)))
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerce_Mismatch(t *testing.T) {
	tests := []struct {
		name string
		vt   ValueType
		in   any
	}{
		{"integer from fraction", ValueTypeInteger, 1.5},
		{"integer from word", ValueTypeInteger, "many"},
		{"integer from bool", ValueTypeInteger, true},
		{"numeric from bool", ValueTypeNumeric, false},
		{"money from word", ValueTypeMoney, "cheap"},
		{"boolean from 2", ValueTypeBoolean, 2},
		{"boolean from word", ValueTypeBoolean, "maybe"},
		{"timestamp from int", ValueTypeTimestamp, 12},
		{"timestamp from bad string", ValueTypeTimestamp, "yesterday"},
		{"text from slice", ValueTypeText, []int{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Coerce(tt.vt, tt.in)
			assert.ErrorIs(t, err, ErrTypeMismatch)
		})
	}

	_, err := Coerce("list", 1)
	assert.ErrorIs(t, err, ErrInvalidValueType)
}

func TestAsFloat(t *testing.T) {
	for _, v := range []any{1, int8(1), int32(1), int64(1), uint(1), float32(1), 1.0, json.Number("1")} {
		f, ok := AsFloat(v)
		assert.True(t, ok, "%T", v)
		assert.Equal(t, 1.0, f)
	}
	for _, v := range []any{nil, "1", true} {
		_, ok := AsFloat(v)
		assert.False(t, ok, "%T", v)
	}
}
