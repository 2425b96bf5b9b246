package tts

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// Defaults for ApproximateSpeechLength.
const (
	DefaultWordsPerMinute = 175.0
	DefaultTimeFactor     = 0.9
	rateTolerance         = 0.0001
)

type rateStep struct {
	bound     float64
	step      int
	effective float64
}

// Windows speech rate steps, fastest first. A rate at or above bound maps
// to step.
var fasterSteps = []rateStep{
	{2.75, 10, 2.78},
	{2.6, 9, 2.6},
	{2.35, 8, 2.39},
	{2.2, 7, 2.2},
	{2, 6, 2},
	{1.8, 5, 1.8},
	{1.6, 4, 1.6},
	{1.4, 3, 1.45},
	{1.2, 2, 1.28},
}

// Slowest first. A rate at or below bound maps to step.
var slowerSteps = []rateStep{
	{0.3, -10, 0.33},
	{0.4, -9, 0.375},
	{0.45, -8, 0.42},
	{0.5, -7, 0.47},
	{0.55, -6, 0.525},
	{0.6, -5, 0.585},
	{0.7, -4, 0.655},
	{0.8, -3, 0.732},
	{0.9, -2, 0.82},
}

// WindowsRateStep maps a rate in [0,3] to the integer speech rate of the
// Windows synthesizer (-10..10) and the real rate that step produces.
func WindowsRateStep(rate float64) (int, float64) {
	if math.Abs(rate-1) <= rateTolerance {
		return 0, 1
	}
	if rate > 1 {
		for _, s := range fasterSteps {
			if rate >= s.bound {
				return s.step, s.effective
			}
		}
		return 1, 1.14
	}
	for _, s := range slowerSteps {
		if rate <= s.bound {
			return s.step, s.effective
		}
	}
	return -1, 0.92
}

// ratioFactors scales the estimate by the average characters per word.
var ratioFactors = []struct {
	below  float64
	factor float64
}{
	{2, 1},
	{3, 1.05},
	{3.5, 1.15},
	{4, 1.2},
	{4.5, 1.25},
	{5, 1.3},
	{5.5, 1.4},
	{6, 1.45},
	{6.5, 1.5},
	{7, 1.6},
	{8, 1.7},
	{9, 1.8},
}

// ApproximateSpeechLength estimates how long text takes to speak. It is a
// heuristic and usually within 15% of the real duration. When quantize is
// set the rate is first snapped to the Windows synthesizer steps.
func ApproximateSpeechLength(text string, rate, wordsPerMinute, timeFactor float64, quantize bool) time.Duration {
	words := float64(len(strings.Fields(text)))
	if words == 0 || rate <= 0 || wordsPerMinute <= 0 {
		return 0
	}
	if quantize {
		_, rate = WindowsRateStep(rate)
	}

	characters := float64(utf8.RuneCountInString(text)) - words + 1
	ratio := characters / words

	length := words / (wordsPerMinute / 60 * rate)

	scaled := false
	for _, r := range ratioFactors {
		if ratio < r.below {
			length *= r.factor
			scaled = true
			break
		}
	}
	if !scaled {
		length *= ratio*(ratio/100+0.02) + 1
	}

	if length < 0.8 {
		length += 0.6
	}
	return time.Duration(length * timeFactor * float64(time.Second))
}
