package agreement

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/rpc"
)

const revertPrefix = "execution reverted"

// RevertReason extracts the revert message carried by a ledger error. The
// second result is false when err is not a revert at all.
func RevertReason(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if hexData, ok := dataErr.ErrorData().(string); ok {
			if data, decodeErr := hexutil.Decode(hexData); decodeErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason, true
				}
			}
		}
	}

	msg := err.Error()
	if idx := strings.Index(msg, revertPrefix); idx >= 0 {
		reason := strings.TrimPrefix(msg[idx+len(revertPrefix):], ":")
		return strings.TrimSpace(reason), true
	}
	if errors.Is(err, vm.ErrExecutionReverted) {
		return "", true
	}
	return "", false
}
