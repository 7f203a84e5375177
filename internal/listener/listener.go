// Package listener turns observed trades of target wallets into frontrun
// trade signals.
package listener

import (
	"context"
	"strings"

	"poly-frontrun/internal/frontrun"
)

const (
	SourceChain = "chain"
	SourceRTDS  = "rtds"
	SourcePoll  = "poll"
)

// Source produces signals until ctx is done.
type Source interface {
	Run(ctx context.Context, out chan<- frontrun.TradeSignal) error
}

// outcomeOf maps a venue outcome label to YES/NO. Binary markets with other
// labels ("Up"/"Down") list the YES-equivalent first.
func outcomeOf(label string, index int) frontrun.Outcome {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "yes":
		return frontrun.OutcomeYes
	case "no":
		return frontrun.OutcomeNo
	}
	if index == 0 {
		return frontrun.OutcomeYes
	}
	return frontrun.OutcomeNo
}

func emit(ctx context.Context, out chan<- frontrun.TradeSignal, sig frontrun.TradeSignal) bool {
	select {
	case out <- sig:
		return true
	case <-ctx.Done():
		return false
	}
}
