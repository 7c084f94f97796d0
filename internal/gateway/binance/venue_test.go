package binance

import (
	"errors"
	"fmt"
	"testing"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"danoo/internal/executor"
)

func TestVenueFactoryRequiresCredentials(t *testing.T) {
	factory := VenueFactory(Config{}, Credentials{APIKey: "k", APISecret: "s"}, Credentials{})

	v, err := factory(executor.ModeSandbox)
	require.NoError(t, err)
	assert.Equal(t, SandboxRESTBaseURL, v.(*FuturesVenue).client.BaseURL)

	_, err = factory(executor.ModeLive)
	assert.Error(t, err)

	custom := VenueFactory(Config{}, Credentials{APIKey: "k", APISecret: "s", BaseURL: "http://127.0.0.1:9"}, Credentials{})
	v, err = custom(executor.ModeSandbox)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9", v.(*FuturesVenue).client.BaseURL)
	_, err = factory(executor.ModeSimulated)
	assert.ErrorIs(t, err, executor.ErrUnknownMode)
}

func TestMapStatus(t *testing.T) {
	assert.Equal(t, executor.StatusFilled, mapStatus(futures.OrderStatusTypeFilled))
	assert.Equal(t, executor.StatusPending, mapStatus(futures.OrderStatusTypeNew))
	assert.Equal(t, executor.StatusCanceled, mapStatus(futures.OrderStatusTypeExpired))
	assert.Equal(t, executor.StatusRejected, mapStatus(futures.OrderStatusTypeRejected))
}

func TestDescribeAPIError(t *testing.T) {
	wrapped := fmt.Errorf("call: %w", &common.APIError{Code: -2019, Message: "Margin is insufficient."})
	assert.EqualError(t, describe(wrapped), "binance code -2019: Margin is insufficient.")
	plain := errors.New("timeout")
	assert.Equal(t, plain, describe(plain))
}

func TestFormatDecimal(t *testing.T) {
	assert.Equal(t, "0.001", formatDecimal(0.001))
	assert.Equal(t, "35000.5", formatDecimal(35000.5))
}
