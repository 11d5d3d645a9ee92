package series

import (
	"math/big"

	ui "github.com/holiman/uint256"
)

// Series is a fixed-size ring of samples. Once full, new samples overwrite
// the oldest, so the statistics cover a trailing window.
type Series struct {
	values []*ui.Int
	index  int
	length int
	count  int
}

func New(length int) *Series {
	if length < 2 {
		panic("series: need at least two slots")
	}
	values := make([]*ui.Int, length)
	for i := 0; i < length; i++ {
		values[i] = ui.NewInt(0)
	}
	return &Series{values, 0, length, 0}
}

// Add records one sample. Samples must fit in 192 bits so the variance sum
// cannot overflow.
func (s *Series) Add(value *ui.Int) {
	shifted := new(ui.Int).Rsh(value, 192)
	if !shifted.IsZero() {
		panic("series: sample overflows 192 bits")
	}
	s.values[s.index] = value.Clone()
	s.index = (s.index + 1) % s.length
	if s.count < s.length {
		s.count++
	}
}

func (s *Series) Count() int {
	return s.count
}

// Average of the recorded samples, zero before the first Add.
func (s *Series) Average() *ui.Int {
	if s.count == 0 {
		return ui.NewInt(0)
	}
	sum := new(ui.Int)
	for _, value := range s.values[:s.count] {
		sum.Add(sum, value)
	}
	length := ui.NewInt(uint64(s.count))
	return new(ui.Int).Div(sum, length)
}

// Variance is the unbiased sample variance of the recorded samples. The
// squared differences can exceed 256 bits, so it stays a big.Int.
func (s *Series) Variance() *big.Int {
	if s.count < 2 {
		return big.NewInt(0)
	}
	avg := s.Average()
	sum := big.NewInt(0)
	for _, value := range s.values[:s.count] {
		diff := new(ui.Int).Sub(value, avg)
		// Sub wraps when the sample sits below the average
		diff.Abs(diff)
		diffBig := diff.ToBig()
		diff2 := new(big.Int).Mul(diffBig, diffBig)
		sum.Add(sum, diff2)
	}
	nMinus1 := big.NewInt(int64(s.count - 1))
	return new(big.Int).Div(sum, nMinus1)
}

// Volatility is the square root of Variance.
func (s *Series) Volatility() *ui.Int {
	volatility := new(big.Int).Sqrt(s.Variance())
	ret, _ := ui.FromBig(volatility)
	return ret
}
