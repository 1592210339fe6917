// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package values

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/x448/float16"
)

// ConvertToFloat64 converts one cell value to float64, the numeric model of
// the evaluator: whatever the storage precision, runtime reads go through
// float64.
func ConvertToFloat64[T dtypes.Supported](value T) float64 {
	switch v := any(value).(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int8:
		return float64(v)
	case int16:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint8:
		return float64(v)
	case uint16:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case bfloat16.BFloat16:
		return float64(v.Float32())
	case float16.Float16:
		return float64(v.Float32())
	case bool:
		if v {
			return 1
		}
		return 0
	}
	exceptions.Panicf("values: cell type %T not supported", value)
	return 0
}

// ConvertFromFloat64 converts a float64 into the cell representation T.
// Inverse of ConvertToFloat64; integer representations truncate.
func ConvertFromFloat64[T dtypes.Supported](value float64) T {
	var t T
	switch any(t).(type) {
	case float64:
		return any(value).(T)
	case float32:
		return any(float32(value)).(T)
	case int8:
		return any(int8(value)).(T)
	case int16:
		return any(int16(value)).(T)
	case int32:
		return any(int32(value)).(T)
	case int64:
		return any(int64(value)).(T)
	case uint8:
		return any(uint8(value)).(T)
	case uint16:
		return any(uint16(value)).(T)
	case uint32:
		return any(uint32(value)).(T)
	case uint64:
		return any(uint64(value)).(T)
	case bfloat16.BFloat16:
		return any(bfloat16.FromFloat32(float32(value))).(T)
	case float16.Float16:
		return any(float16.Fromfloat32(float32(value))).(T)
	case bool:
		return any(value != 0).(T)
	}
	exceptions.Panicf("values: cell type %T not supported", t)
	return t
}

// FromDouble returns a scalar Value of the given dtype holding value, for use
// as an operand. The conversion truncates for integer dtypes.
func FromDouble(dtype dtypes.DType, value float64) Value {
	switch dtype {
	case dtypes.Int8:
		return NewScalar(int8(value))
	case dtypes.Int16:
		return NewScalar(int16(value))
	case dtypes.Int32:
		return NewScalar(int32(value))
	case dtypes.Int64:
		return NewScalar(int64(value))
	case dtypes.Uint8:
		return NewScalar(uint8(value))
	case dtypes.Uint16:
		return NewScalar(uint16(value))
	case dtypes.Uint32:
		return NewScalar(uint32(value))
	case dtypes.Uint64:
		return NewScalar(uint64(value))
	case dtypes.Float32:
		return NewScalar(float32(value))
	case dtypes.Float64:
		return NewScalar(value)
	case dtypes.BFloat16:
		return NewScalar(bfloat16.FromFloat32(float32(value)))
	case dtypes.Float16:
		return NewScalar(float16.Fromfloat32(float32(value)))
	}
	exceptions.Panicf("values.FromDouble: dtype %s not supported", dtype)
	return nil
}
