package signal

import (
	"github.com/ethereum/go-ethereum/common"
)

const (
	EventSessionConnected = "escrow.session.connected"
	EventSnapshotChanged  = "escrow.snapshot.changed"
	EventActionOutcome    = "escrow.action.outcome"
	EventPendingUpdate    = "escrow.pending.update"
	EventLedgerConnection = "escrow.ledger.connection"
	EventAgreementCreated = "escrow.agreement.created"
)

// SessionConnectedSignal is sent once a signing identity is available.
type SessionConnectedSignal struct {
	Address common.Address `json:"address"`
	ChainID uint64         `json:"chainId"`
}

// LedgerConnectionSignal reports the ledger going up or down.
type LedgerConnectionSignal struct {
	ChainID   uint64 `json:"chainId"`
	Connected bool   `json:"connected"`
}

// AgreementCreatedSignal is sent when a deployment was submitted.
type AgreementCreatedSignal struct {
	Address common.Address `json:"address"`
	TxHash  common.Hash    `json:"txHash"`
}

func SendSessionConnected(address common.Address, chainID uint64) {
	send(EventSessionConnected, SessionConnectedSignal{Address: address, ChainID: chainID})
}

// SendSnapshotChanged sends the freshly accepted agreement snapshot.
func SendSnapshotChanged(snapshot interface{}) {
	send(EventSnapshotChanged, snapshot)
}

// SendActionOutcome sends the final or pending outcome of a state changing action.
func SendActionOutcome(outcome interface{}) {
	send(EventActionOutcome, outcome)
}

// SendPendingUpdate sends pending transaction tracker events.
func SendPendingUpdate(event interface{}) {
	send(EventPendingUpdate, event)
}

func SendLedgerConnection(chainID uint64, connected bool) {
	send(EventLedgerConnection, LedgerConnectionSignal{ChainID: chainID, Connected: connected})
}

func SendAgreementCreated(address common.Address, txHash common.Hash) {
	send(EventAgreementCreated, AgreementCreatedSignal{Address: address, TxHash: txHash})
}
