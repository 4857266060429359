package escrow

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/status-im/status-escrow/agreement"
	"github.com/status-im/status-escrow/transactions"
)

func NewAPI(s *Service) *API {
	return &API{s: s}
}

// API is the client facing surface of the escrow service.
type API struct {
	s *Service
}

// AgreementView is a snapshot rendered for a viewer.
type AgreementView struct {
	Address     common.Address   `json:"address"`
	Client      common.Address   `json:"client"`
	Freelancer  common.Address   `json:"freelancer"`
	Text        string           `json:"text"`
	Amount      *big.Int         `json:"amount"`
	AmountEther string           `json:"amountEther"`
	Status      agreement.Status `json:"status"`
	Role        agreement.Role   `json:"role"`
	CanConfirm  bool             `json:"canConfirm"`
	CanRelease  bool             `json:"canRelease"`
}

func NewAgreementView(snapshot *agreement.Snapshot, role agreement.Role) *AgreementView {
	return &AgreementView{
		Address:     snapshot.Agreement,
		Client:      snapshot.Client,
		Freelancer:  snapshot.Freelancer,
		Text:        snapshot.Text,
		Amount:      snapshot.Amount,
		AmountEther: agreement.FormatEther(snapshot.Amount),
		Status:      snapshot.Status,
		Role:        role,
		CanConfirm:  agreement.CanPerform(role, agreement.ActionConfirmWork) && snapshot.Status == agreement.StatusCreated,
		CanRelease:  agreement.CanPerform(role, agreement.ActionReleasePayment) && snapshot.Status == agreement.StatusWorkConfirmed,
	}
}

func (api *API) Connect(ctx context.Context) (common.Address, error) {
	session, err := api.s.Connect(ctx)
	if err != nil {
		return common.Address{}, err
	}
	return session.Address(), nil
}

func (api *API) Bind(ctx context.Context, address string) (*AgreementView, error) {
	if _, err := api.s.Bind(ctx, address); err != nil {
		return nil, err
	}
	return api.Details(ctx)
}

func (api *API) Refresh(ctx context.Context) (*AgreementView, error) {
	if _, err := api.s.Refresh(ctx); err != nil {
		return nil, err
	}
	return api.Details(ctx)
}

// Details renders the cached snapshot without a ledger read.
func (api *API) Details(ctx context.Context) (*AgreementView, error) {
	snapshot, err := api.s.Snapshot()
	if err != nil {
		return nil, err
	}
	role, err := api.s.Role()
	if err != nil {
		return nil, err
	}
	return NewAgreementView(snapshot, role), nil
}

func (api *API) ConfirmWork(ctx context.Context) (*Result, error) {
	return api.s.Perform(ctx, agreement.ActionConfirmWork)
}

func (api *API) ReleasePayment(ctx context.Context) (*Result, error) {
	return api.s.Perform(ctx, agreement.ActionReleasePayment)
}

func (api *API) CreateAgreement(ctx context.Context, freelancer, text, amountEther string) (*AgreementView, error) {
	_, snapshot, err := api.s.CreateAgreement(ctx, freelancer, text, amountEther)
	if err != nil {
		return nil, err
	}
	role, err := api.s.Role()
	if err != nil {
		return nil, err
	}
	return NewAgreementView(snapshot, role), nil
}

func (api *API) PendingTransactions(ctx context.Context) ([]*transactions.PendingTransaction, error) {
	return api.s.PendingTransactions(), nil
}
