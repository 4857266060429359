package contracts

import (
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/status-im/status-escrow/contracts/agreement"
)

type ContractMaker struct {
	Backend bind.ContractBackend
}

func (c *ContractMaker) NewAgreement(address common.Address) (*agreement.Agreement, error) {
	return agreement.NewAgreement(address, c.Backend)
}

func (c *ContractMaker) NewAgreementCaller(address common.Address) (*agreement.AgreementCaller, error) {
	return agreement.NewAgreementCaller(address, c.Backend)
}
