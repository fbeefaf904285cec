package indicators

import "fmt"

// SMA calculates the Simple Moving Average of the last period values.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(values) < period {
		return 0, fmt.Errorf("not enough values: need %d, got %d", period, len(values))
	}

	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period), nil
}

// EMA is a streaming Exponential Moving Average.
type EMA struct {
	period int
	mult   float64
	value  float64
	count  int
	warm   float64
}

// NewEMA creates a streaming EMA with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period: period,
		mult:   2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return fmt.Sprintf("EMA(%d)", e.period) }

func (e *EMA) Reset() {
	e.value = 0
	e.count = 0
	e.warm = 0
}

func (e *EMA) Update(v float64) {
	if e.count < e.period {
		// Seed with an SMA over the first period values.
		e.warm += v
		e.count++
		if e.count == e.period {
			e.value = e.warm / float64(e.period)
		}
		return
	}
	e.value = (v-e.value)*e.mult + e.value
	e.count++
}

func (e *EMA) Ready() bool { return e.count >= e.period }

func (e *EMA) Value() float64 {
	if !e.Ready() {
		return 0
	}
	return e.value
}

// Calculate runs the EMA over a full series and returns the final value.
func (e *EMA) Calculate(values []float64) float64 {
	for _, v := range values {
		e.Update(v)
	}
	return e.Value()
}
