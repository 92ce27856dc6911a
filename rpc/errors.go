package rpc

import (
	"errors"
	"net/http"

	nativecommon "stablenet/native/common"
	"stablenet/native/liquidation"
	"stablenet/native/oracle"
	"stablenet/native/stability"
	"stablenet/native/vault"
)

// statusForError buckets engine errors into the API taxonomy: validation
// errors are 400s, unknown entities 404s, state conflicts 409s, paused
// modules 503s, and everything else a 500.
func statusForError(err error) int {
	var bad badRequestError
	if errors.As(err, &bad) {
		return http.StatusBadRequest
	}
	switch {
	case errors.Is(err, vault.ErrVaultNotFound),
		errors.Is(err, liquidation.ErrBatchNotFound),
		errors.Is(err, oracle.ErrUnknownAsset):
		return http.StatusNotFound
	case errors.Is(err, liquidation.ErrBatchAlreadySettled),
		errors.Is(err, liquidation.ErrCannotSettleYet),
		errors.Is(err, liquidation.ErrBatchActive),
		errors.Is(err, liquidation.ErrVaultAlreadyQueued),
		errors.Is(err, liquidation.ErrEmptyQueue),
		errors.Is(err, vault.ErrVaultHealthy):
		return http.StatusConflict
	case errors.Is(err, vault.ErrInvalidAmount),
		errors.Is(err, vault.ErrNotVaultOwner),
		errors.Is(err, vault.ErrVaultInactive),
		errors.Is(err, vault.ErrCollateralDisabled),
		errors.Is(err, vault.ErrNotEnoughShares),
		errors.Is(err, vault.ErrUnsafePosition),
		errors.Is(err, liquidation.ErrCommitWindowClosed),
		errors.Is(err, liquidation.ErrInsufficientBond),
		errors.Is(err, liquidation.ErrInsufficientBalance),
		errors.Is(err, liquidation.ErrNotInRevealPhase),
		errors.Is(err, liquidation.ErrRevealWindowClosed),
		errors.Is(err, liquidation.ErrNoCommitmentFound),
		errors.Is(err, liquidation.ErrAlreadyRevealed),
		errors.Is(err, liquidation.ErrInvalidBid),
		errors.Is(err, liquidation.ErrBidBelowMinLot),
		errors.Is(err, liquidation.ErrVaultNotInBatch),
		errors.Is(err, stability.ErrInvalidAmount),
		errors.Is(err, stability.ErrInsufficientBalance),
		errors.Is(err, stability.ErrInsufficientDeposit),
		errors.Is(err, oracle.ErrInvalidPrice),
		errors.Is(err, oracle.ErrPriceDeviation),
		errors.Is(err, oracle.ErrStaleQuote):
		return http.StatusBadRequest
	case errors.Is(err, nativecommon.ErrModulePaused),
		errors.Is(err, oracle.ErrFeedPaused):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
