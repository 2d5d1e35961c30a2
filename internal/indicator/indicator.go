// Package indicator provides pure, stateless technical indicator math over
// price windows. Every function is deterministic for a given input slice.
package indicator

import "math"

// SMA returns the simple moving average of the trailing period samples.
// Shorter inputs average whatever is available; empty input returns 0.
func SMA(values []float64, period int) float64 {
	if len(values) == 0 || period <= 0 {
		return 0
	}
	window := tail(values, period)
	var sum float64
	for _, v := range window {
		sum += v
	}
	return sum / float64(len(window))
}

// StdDev returns the population standard deviation of the trailing period samples.
func StdDev(values []float64, period int) float64 {
	if len(values) == 0 || period <= 0 {
		return 0
	}
	window := tail(values, period)
	mean := SMA(window, len(window))
	var sq float64
	for _, v := range window {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(window)))
}

// Bollinger returns the upper, middle and lower bands (middle ± k·σ) over the
// trailing period samples.
func Bollinger(values []float64, period int, k float64) (upper, middle, lower float64) {
	middle = SMA(values, period)
	sigma := StdDev(values, period)
	return middle + k*sigma, middle, middle - k*sigma
}

// RSI computes a Wilder-smoothed relative strength index over period. It
// returns the neutral value 50 when fewer than period+1 samples exist, and
// exactly 100 when the average loss over the window is zero.
func RSI(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 50
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(values); i++ {
		delta := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// EMASeries returns the exponential moving average series for values, seeded
// with the SMA of the first period samples. The result has
// len(values)-period+1 entries; inputs shorter than period yield nil.
func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	alpha := 2.0 / (float64(period) + 1)
	out := make([]float64, 0, len(values)-period+1)

	seed := SMA(values[:period], period)
	out = append(out, seed)
	ema := seed
	for i := period; i < len(values); i++ {
		ema = values[i]*alpha + ema*(1-alpha)
		out = append(out, ema)
	}
	return out
}

// EMA returns the latest exponential moving average value, or 0 when the
// input is shorter than period.
func EMA(values []float64, period int) float64 {
	series := EMASeries(values, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// MACD computes the MACD line (EMA fast − EMA slow), its signal line (EMA of
// the MACD series over signalPeriod) and the histogram series (line − signal).
// The returned slices are aligned to each other; hist is nil until enough
// MACD samples exist to seed the signal line.
func MACD(values []float64, fast, slow, signalPeriod int) (line, signal, hist []float64) {
	if fast <= 0 || slow <= fast || len(values) < slow {
		return nil, nil, nil
	}
	fastSeries := EMASeries(values, fast)
	slowSeries := EMASeries(values, slow)

	// fastSeries is longer; align both to the slow series length.
	offset := len(fastSeries) - len(slowSeries)
	line = make([]float64, len(slowSeries))
	for i := range slowSeries {
		line[i] = fastSeries[i+offset] - slowSeries[i]
	}

	signal = EMASeries(line, signalPeriod)
	if len(signal) == 0 {
		return line, nil, nil
	}
	lineOffset := len(line) - len(signal)
	hist = make([]float64, len(signal))
	for i := range signal {
		hist[i] = line[i+lineOffset] - signal[i]
	}
	return line, signal, hist
}

// DirectionalStrength scores the dominance of one price direction over the
// trailing period moves, from 0 (balanced chop) to 100 (one-way movement).
func DirectionalStrength(values []float64, period int) float64 {
	if period <= 0 || len(values) < 2 {
		return 0
	}
	window := tail(values, period+1)
	var up, down float64
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		if delta > 0 {
			up += delta
		} else {
			down -= delta
		}
	}
	total := up + down
	if total == 0 {
		return 0
	}
	return math.Abs(up-down) / total * 100
}

func tail(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}
