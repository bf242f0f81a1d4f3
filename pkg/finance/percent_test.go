package finance

import (
	"testing"

	apperrors "lease_engine/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercent_Of(t *testing.T) {
	p := FromPermille(725)

	v, err := p.Of(NewCoin(1000, usdc))
	require.NoError(t, err)
	assert.Equal(t, "725", v.Amount().String())

	v, err = p.Of(NewCoin(3, usdc))
	require.NoError(t, err)
	assert.Equal(t, "2", v.Amount().String(), "rounds down")
}

func TestPercent_Arithmetic(t *testing.T) {
	sum, err := FromPercent(20).Add(FromPercent(5))
	require.NoError(t, err)
	assert.Equal(t, FromPercent(25), sum)

	_, err = FromPercent(5).Sub(FromPercent(20))
	assert.ErrorIs(t, err, apperrors.ErrUnderflow)

	c, err := FromPercent(70).Complement()
	require.NoError(t, err)
	assert.Equal(t, FromPercent(30), c)
}

func TestPercent_String(t *testing.T) {
	assert.Equal(t, "72.5%", FromPermille(725).String())
	assert.Equal(t, "70%", FromPercent(70).String())
}

func TestRatio(t *testing.T) {
	r, err := Ratio(NewCoin(700, usdc), NewCoin(1000, usdc))
	require.NoError(t, err)
	assert.Equal(t, FromPercent(70), r)

	_, err = Ratio(NewCoin(1, usdc), NewCoin(1, atom))
	assert.ErrorIs(t, err, apperrors.ErrCurrencyMismatch)
}
