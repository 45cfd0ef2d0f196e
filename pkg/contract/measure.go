package contract

import (
	"encoding/json"
	"math"
	"strconv"
)

// Measure: 可能未定义的数值（相关系数、压缩率、加速比）。
// 未定义与 0 严格区分：JSON 为 null，文本为 "undefined"。
type Measure struct {
	Value   float64
	Defined bool
}

// Defined 构造已定义值；NaN/Inf 视为未定义。
func Defined(v float64) Measure {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Measure{}
	}
	return Measure{Value: v, Defined: true}
}

// Undefined 构造未定义值。
func Undefined() Measure { return Measure{} }

// Ratio 计算 num/den；den == 0 时未定义。
func Ratio(num, den float64) Measure {
	if den == 0 {
		return Undefined()
	}
	return Defined(num / den)
}

func (m Measure) String() string {
	if !m.Defined {
		return "undefined"
	}
	return strconv.FormatFloat(m.Value, 'g', -1, 64)
}

func (m Measure) MarshalJSON() ([]byte, error) {
	if !m.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

func (m *Measure) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*m = Undefined()
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*m = Defined(v)
	return nil
}
