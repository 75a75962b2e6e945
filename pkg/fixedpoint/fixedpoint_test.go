package fixedpoint

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "fxsettle/pkg/domain-errors"
)

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Scale())
}

func TestApplyRate(t *testing.T) {
	t.Run("integral rate", func(t *testing.T) {
		settled, rem := ApplyRate(big.NewInt(1000), e18(2))
		assert.Equal(t, "2000", settled.String())
		assert.Equal(t, "0", rem.String())
	})

	t.Run("fractional rate keeps remainder", func(t *testing.T) {
		settled, rem := ApplyRate(big.NewInt(3), big.NewInt(333333333333333333))
		assert.Equal(t, "0", settled.String())
		assert.Equal(t, "999999999999999999", rem.String())
	})

	t.Run("settled times scale plus remainder is the product", func(t *testing.T) {
		amount := big.NewInt(123456789)
		rate := big.NewInt(1234567890123456789)
		settled, rem := ApplyRate(amount, rate)
		recomposed := new(big.Int).Add(new(big.Int).Mul(settled, Scale()), rem)
		assert.Equal(t, new(big.Int).Mul(amount, rate), recomposed)
	})

	t.Run("does not alias inputs", func(t *testing.T) {
		amount := big.NewInt(7)
		rate := e18(1)
		_, _ = ApplyRate(amount, rate)
		assert.Equal(t, "7", amount.String())
		assert.Equal(t, e18(1), rate)
	})
}

func TestMean(t *testing.T) {
	assert.Nil(t, Mean(nil))
	assert.Equal(t, e18(2), Mean([]*big.Int{e18(1), e18(2), e18(3)}))
	assert.Equal(t, "3", Mean([]*big.Int{big.NewInt(3), big.NewInt(3), big.NewInt(4)}).String(), "mean truncates")
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		code  dErrors.Code
	}{
		{"scaled integer", "2000000000000000000", "2000000000000000000", ""},
		{"human decimal", "1.5", "1500000000000000000", ""},
		{"eighteen fractional digits", "0.000000000000000001", "1", ""},
		{"too precise", "0.0000000000000000001", "", dErrors.CodeInvalidInput},
		{"negative", "-1.0", "", dErrors.CodeInvalidInput},
		{"negative integer", "-5", "", dErrors.CodeInvalidInput},
		{"garbage", "abc", "", dErrors.CodeInvalidInput},
		{"empty", "", "", dErrors.CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRate(tt.input)
			if tt.code != "" {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, tt.code))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount("1000")
	require.NoError(t, err)
	assert.Equal(t, "1000", v.String())

	_, err = ParseAmount("1.5")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestFormatRate(t *testing.T) {
	assert.Equal(t, "1.5", FormatRate(big.NewInt(1500000000000000000)))
	assert.Equal(t, "2", FormatRate(e18(2)))
	assert.Equal(t, "", FormatRate(nil))
}
