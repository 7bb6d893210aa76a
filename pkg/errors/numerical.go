package errors

import (
	"fmt"
	"math"
	"strings"
)

// NumericalInstabilityError は計算結果にNaNやInfが含まれる場合のエラーです。
type NumericalInstabilityError struct {
	Operation string
	Values    []float64
}

func (e *NumericalInstabilityError) Error() string {
	parts := make([]string, 0, len(e.Values))
	for i, v := range e.Values {
		if i >= 5 {
			parts = append(parts, "...")
			break
		}
		parts = append(parts, fmt.Sprintf("%.6g", v))
	}
	return fmt.Sprintf("sorvete: numerical instability detected in %s. Values: [%s]",
		e.Operation, strings.Join(parts, ", "))
}

// NewNumericalInstabilityError は新しいNumericalInstabilityErrorを作成します。
func NewNumericalInstabilityError(operation string, values []float64) error {
	return WithStack(&NumericalInstabilityError{Operation: operation, Values: values})
}

// CheckFinite は値にNaNまたはInfが含まれていればエラーを返します。
func CheckFinite(operation string, values ...float64) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewNumericalInstabilityError(operation, values)
		}
	}
	return nil
}
