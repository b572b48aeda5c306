// Package calibrate measures sketch accuracy by repeated trials over
// synthetic distinct values.
package calibrate

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/yourusername/event-cardinality/pkg/sketch"
)

type Params struct {
	Precision   int
	Cardinality int
	Trials      int
	Seed        int64
}

// Report summarises one calibration run.
type Report struct {
	Params
	MeanEstimate     float64
	MeanRelError     float64
	StdDevRelError   float64
	MaxRelError      float64
	ExpectedStdError float64
}

func (r Report) String() string {
	return fmt.Sprintf("p=%d k=%d trials=%d mean=%.1f rel_err=%.4f±%.4f max=%.4f expected=%.4f",
		r.Precision, r.Cardinality, r.Trials, r.MeanEstimate,
		r.MeanRelError, r.StdDevRelError, r.MaxRelError, r.ExpectedStdError)
}

// Run adds Cardinality distinct pseudorandom values to Trials fresh sketches.
func Run(p Params) (Report, error) {
	if p.Trials < 1 {
		return Report{}, fmt.Errorf("trials must be positive, got %d", p.Trials)
	}
	if p.Cardinality < 1 {
		return Report{}, fmt.Errorf("cardinality must be positive, got %d", p.Cardinality)
	}

	rng := rand.New(rand.NewSource(p.Seed))
	estimates := make([]float64, p.Trials)
	relErrors := make([]float64, p.Trials)
	k := float64(p.Cardinality)

	for trial := 0; trial < p.Trials; trial++ {
		hll, err := sketch.NewHyperLogLog(p.Precision)
		if err != nil {
			return Report{}, err
		}

		// A random per-trial prefix plus a counter keeps values distinct.
		prefix := strconv.FormatUint(rng.Uint64(), 36) + "-"
		for i := 0; i < p.Cardinality; i++ {
			hll.Add(prefix + strconv.Itoa(i))
		}

		estimates[trial] = hll.Estimate()
		relErrors[trial] = math.Abs(estimates[trial]-k) / k
	}

	r := Report{
		Params:           p,
		MeanEstimate:     stat.Mean(estimates, nil),
		MeanRelError:     stat.Mean(relErrors, nil),
		ExpectedStdError: 1.04 / math.Sqrt(float64(uint(1)<<p.Precision)),
	}
	if p.Trials > 1 {
		r.StdDevRelError = stat.StdDev(relErrors, nil)
	}
	for _, e := range relErrors {
		r.MaxRelError = math.Max(r.MaxRelError, e)
	}
	return r, nil
}
