package exchange

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridiantrade/core/internal/domain"
)

func TestConnector_OperationsFailBeforeConnect(t *testing.T) {
	c := New("testexchange", zerolog.Nop())

	_, err := c.GetAccountBalance(context.Background())
	assert.Error(t, err)

	_, err = c.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "BTC-USD", Side: domain.SideBuy, Type: domain.OrderTypeMarket,
	})
	assert.Error(t, err)
}

func TestConnector_ConnectRejectsEmptyCredentials(t *testing.T) {
	c := New("testexchange", zerolog.Nop())
	err := c.Connect(ConnectConfig{})
	assert.Error(t, err)
}

func TestConnector_ConnectSucceedsAndReportsHealth(t *testing.T) {
	c := New("testexchange", zerolog.Nop())
	err := c.Connect(ConnectConfig{APIKey: "k", APISecret: "s", Sandbox: true})
	require.NoError(t, err)
	defer c.Disconnect()

	h := c.HealthCheck()
	assert.True(t, h.Connected)
	assert.Equal(t, CircuitClosed, h.Circuit)
}

func TestConnector_PlaceOrderRejectsInvalidRequest(t *testing.T) {
	c := New("testexchange", zerolog.Nop())
	require.NoError(t, c.Connect(ConnectConfig{APIKey: "k", APISecret: "s", Sandbox: true}))
	defer c.Disconnect()

	_, err := c.PlaceOrder(context.Background(), OrderRequest{Symbol: "BTC-USD"})
	assert.Error(t, err)
}

func TestConnector_DisconnectThenOperationsFail(t *testing.T) {
	c := New("testexchange", zerolog.Nop())
	require.NoError(t, c.Connect(ConnectConfig{APIKey: "k", APISecret: "s", Sandbox: true}))
	require.NoError(t, c.Disconnect())

	_, err := c.GetOpenOrders(context.Background(), "")
	assert.Error(t, err)
}
