package ledger

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a row is not in the status an
	// update requires.
	ErrInvalidTransition = errors.New("row is not in the expected status")
)

// Rejections are permanent settlement failures. They are stored on the
// failed pending transaction as an integer code.
var (
	ReplayErr          = errors.New("transaction was already applied")
	ReplayErrInt int64 = -1

	RevertedErr          = errors.New("transaction reverted on chain")
	RevertedErrInt int64 = -2

	BridgeFailedErr          = errors.New("cross chain transfer failed")
	BridgeFailedErrInt int64 = -3

	TransferNotFoundErr          = errors.New("no nft transfer to the scout found in the receipt")
	TransferNotFoundErrInt int64 = -4

	TransferMismatchErr          = errors.New("nft transfer does not match the purchase")
	TransferMismatchErrInt int64 = -5

	ClaimMissingErr          = errors.New("airdrop claim for the transaction does not exist")
	ClaimMissingErrInt int64 = -6

	ClaimNotOnChainErr          = errors.New("transaction did not claim the airdrop for the wallet")
	ClaimNotOnChainErrInt int64 = -7

	NotMintedErr          = errors.New("nft transfer is not a mint")
	NotMintedErrInt int64 = -8
)

var rejections = []struct {
	err  error
	code int64
}{
	{ReplayErr, ReplayErrInt},
	{RevertedErr, RevertedErrInt},
	{BridgeFailedErr, BridgeFailedErrInt},
	{TransferNotFoundErr, TransferNotFoundErrInt},
	{TransferMismatchErr, TransferMismatchErrInt},
	{ClaimMissingErr, ClaimMissingErrInt},
	{ClaimNotOnChainErr, ClaimNotOnChainErrInt},
	{NotMintedErr, NotMintedErrInt},
}

// IsRejectedTx takes an error, and returns the integer form of that error
// if it is a rejected tx. If the error is unknown, the original error is
// returned.
func IsRejectedTx(err error) (int64, error) {
	if err == nil {
		return 1, nil // No error!
	}
	for _, r := range rejections {
		if errors.Is(err, r.err) {
			return r.code, nil
		}
	}
	return 0, err
}
