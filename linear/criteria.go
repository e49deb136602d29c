package linear

import (
	"math"

	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
)

// GaussianAIC returns the AIC of a Gaussian model with n observations,
// residual sum of squares rss and edf effective mean parameters. The
// residual variance is counted as one extra parameter:
//
//	AIC = n·ln(RSS/n) + n·(1 + ln 2π) + 2k,  k = edf + 1
func GaussianAIC(n int, rss, edf float64) float64 {
	nf := float64(n)
	rss = math.Max(rss, 1e-300)
	k := edf + 1
	return nf*math.Log(rss/nf) + nf*(1+math.Log(2*math.Pi)) + 2*k
}

// AICc applies the small-sample correction 2k(k+1)/(n−k−1). It fails when
// n−k−1 ≤ 0.
func AICc(n int, aic, edf float64) (float64, error) {
	k := edf + 1
	denom := float64(n) - k - 1
	if denom <= 0 {
		return math.NaN(), errors.NewValueError("AICc", "too many effective parameters for the sample size")
	}
	return aic + 2*k*(k+1)/denom, nil
}

// RSquared returns 1 − RSS/TSS. A constant response has undefined R² and
// yields NaN.
func RSquared(y, fitted []float64) float64 {
	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))
	var tss, rss float64
	for i, v := range y {
		tss += (v - mean) * (v - mean)
		rss += (v - fitted[i]) * (v - fitted[i])
	}
	if tss == 0 {
		return math.NaN()
	}
	return 1 - rss/tss
}
