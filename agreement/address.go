package agreement

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ParseAddress validates a 20 byte hex identifier, with or without the 0x
// prefix. Mixed case input must carry a valid EIP-55 checksum.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) || strings.HasPrefix(s, "0X") {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}

	address := common.HexToAddress(s)
	body := strings.TrimPrefix(s, "0x")
	if strings.ToLower(body) != body && strings.ToUpper(body) != body && address.Hex()[2:] != body {
		return common.Address{}, fmt.Errorf("%w: bad checksum %q", ErrInvalidAddress, s)
	}
	return address, nil
}

// ShortAddress renders an address as 0x1234...abcd.
func ShortAddress(address common.Address) string {
	hex := address.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}
