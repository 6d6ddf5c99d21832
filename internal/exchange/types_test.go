package exchange

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/meridiantrade/core/internal/domain"
)

func TestOrderRequest_Validate(t *testing.T) {
	base := OrderRequest{
		Symbol: "BTC-USD",
		Side:   domain.SideBuy,
		Type:   domain.OrderTypeMarket,
		Amount: decimal.NewFromInt(1),
	}

	t.Run("valid market order", func(t *testing.T) {
		assert.NoError(t, base.Validate())
	})

	t.Run("missing symbol", func(t *testing.T) {
		r := base
		r.Symbol = ""
		assert.Error(t, r.Validate())
	})

	t.Run("invalid side", func(t *testing.T) {
		r := base
		r.Side = "sideways"
		assert.Error(t, r.Validate())
	})

	t.Run("unknown order type", func(t *testing.T) {
		r := base
		r.Type = "iceberg"
		assert.Error(t, r.Validate())
	})

	t.Run("non-positive amount", func(t *testing.T) {
		r := base
		r.Amount = decimal.Zero
		assert.Error(t, r.Validate())
	})

	t.Run("limit order without price", func(t *testing.T) {
		r := base
		r.Type = domain.OrderTypeLimit
		assert.Error(t, r.Validate())
	})

	t.Run("limit order with price", func(t *testing.T) {
		r := base
		r.Type = domain.OrderTypeLimit
		r.Price = decimal.NewFromInt(50000)
		assert.NoError(t, r.Validate())
	})
}

func TestValidateBars_RejectsNonPositiveClose(t *testing.T) {
	bars := []OHLCV{{Close: decimal.NewFromInt(100)}, {Close: decimal.Zero}}
	assert.Error(t, validateBars(bars))

	ok := []OHLCV{{Close: decimal.NewFromInt(100)}}
	assert.NoError(t, validateBars(ok))
}
