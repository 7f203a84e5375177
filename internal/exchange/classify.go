package exchange

import (
	"errors"
	"net/http"
	"strings"

	"poly-frontrun/internal/clob"
	"poly-frontrun/internal/frontrun"
)

var closedMarkers = []string{
	"no orderbook exists",
	"orderbook does not exist",
	"market is closed",
	"market closed",
	"market not found",
	"market is resolved",
	"market resolved",
	"not accepting orders",
}

var fundsMarkers = []string{
	"not enough balance",
	"insufficient balance",
	"insufficient funds",
	"allowance",
}

// Classify turns a venue or transport failure into a *frontrun.ExchangeError.
// It returns nil for a nil err.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var xe *frontrun.ExchangeError
	if errors.As(err, &xe) {
		return err
	}

	var apiErr *clob.APIError
	if !errors.As(err, &apiErr) {
		// Transport errors, timeouts and decode failures.
		return &frontrun.ExchangeError{Op: op, Kind: frontrun.FailureTransient, Err: err}
	}
	if out := classifyMessage(op, apiErr.Message(), err); out != nil {
		return out
	}

	switch code := apiErr.StatusCode; {
	case code == http.StatusTooManyRequests, code >= 500, code == http.StatusRequestTimeout:
		return &frontrun.ExchangeError{Op: op, Kind: frontrun.FailureTransient, Err: err}
	default:
		return &frontrun.ExchangeError{Op: op, Kind: frontrun.FailureTerminal, Err: err}
	}
}

// classifyMessage matches known rejection texts. It returns nil when msg names
// no terminal cause and carries no transport signal.
func classifyMessage(op, msg string, err error) *frontrun.ExchangeError {
	if err == nil {
		err = errors.New(msg)
	}
	lower := strings.ToLower(msg)
	for _, m := range closedMarkers {
		if strings.Contains(lower, m) {
			return &frontrun.ExchangeError{Op: op, Kind: frontrun.FailureTerminal, Reason: frontrun.ErrMarketClosed, Err: err}
		}
	}
	for _, m := range fundsMarkers {
		if strings.Contains(lower, m) {
			return &frontrun.ExchangeError{Op: op, Kind: frontrun.FailureTerminal, Reason: frontrun.ErrInsufficientFunds, Err: err}
		}
	}
	if isFOKKill(lower) {
		return &frontrun.ExchangeError{Op: op, Kind: frontrun.FailureTransient, Err: err}
	}
	return nil
}

func isFOKKill(lower string) bool {
	return strings.Contains(lower, "fully filled or killed") || strings.Contains(lower, "couldn't be fully filled")
}

func statusOf(err error) int {
	var apiErr *clob.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
