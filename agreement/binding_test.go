package agreement_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/suite"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/status-im/status-escrow/account"
	"github.com/status-im/status-escrow/account/mock"
	"github.com/status-im/status-escrow/agreement"
	"github.com/status-im/status-escrow/agreement/fake"
	"github.com/status-im/status-escrow/transactions"
)

var testChainID = big.NewInt(1337)

func TestBindingSuite(t *testing.T) {
	suite.Run(t, new(BindingSuite))
}

type BindingSuite struct {
	suite.Suite

	ledger        *fake.Ledger
	clientKey     *ecdsa.PrivateKey
	freelancerKey *ecdsa.PrivateKey
	client        *account.Session
	freelancer    *account.Session
	address       common.Address
}

func sessionFor(key *ecdsa.PrivateKey) *account.Session {
	return account.NewSession(crypto.PubkeyToAddress(key.PublicKey), account.NewKeyProvider(key), testChainID)
}

func (s *BindingSuite) SetupTest() {
	var err error
	s.clientKey, err = crypto.GenerateKey()
	s.Require().NoError(err)
	s.freelancerKey, err = crypto.GenerateKey()
	s.Require().NoError(err)

	s.client = sessionFor(s.clientKey)
	s.freelancer = sessionFor(s.freelancerKey)
	s.ledger = fake.NewLedger(testChainID)
	s.address = s.ledger.CreateAgreement(s.client.Address(), s.freelancer.Address(), "build a website", big.NewInt(1000))
}

func (s *BindingSuite) bind(session *account.Session) *agreement.Binding {
	b, err := agreement.Bind(s.address.Hex(), session, s.ledger)
	s.Require().NoError(err)
	return b
}

func (s *BindingSuite) TestBindInvalidAddressMakesNoRemoteCall() {
	_, err := agreement.Bind("not-an-address", s.client, s.ledger)
	s.Require().ErrorIs(err, agreement.ErrInvalidAddress)
	s.Require().Zero(s.ledger.RemoteCalls())
}

func (s *BindingSuite) TestBindRequiresSession() {
	_, err := agreement.Bind(s.address.Hex(), nil, s.ledger)
	s.Require().ErrorIs(err, agreement.ErrNoSession)

	_, err = agreement.Bind(s.address.Hex(), s.client, nil)
	s.Require().ErrorIs(err, agreement.ErrNoBackend)
}

func (s *BindingSuite) TestRead() {
	b := s.bind(s.freelancer)
	snapshot, err := b.Read(context.Background())
	s.Require().NoError(err)
	s.Require().Equal(s.address, snapshot.Agreement)
	s.Require().Equal(s.client.Address(), snapshot.Client)
	s.Require().Equal(s.freelancer.Address(), snapshot.Freelancer)
	s.Require().Equal("build a website", snapshot.Text)
	s.Require().Equal(int64(1000), snapshot.Amount.Int64())
	s.Require().Equal(agreement.StatusCreated, snapshot.Status)

	next, err := b.Read(context.Background())
	s.Require().NoError(err)
	s.Require().Greater(next.Seq(), snapshot.Seq())
}

func (s *BindingSuite) TestReadError() {
	cause := errors.New("connection reset")
	s.ledger.FailReads(cause)

	snapshot, err := s.bind(s.client).Read(context.Background())
	s.Require().Nil(snapshot)
	var readErr *agreement.ReadError
	s.Require().ErrorAs(err, &readErr)
	s.Require().ErrorIs(err, cause)
}

func (s *BindingSuite) TestReadWithoutContract() {
	b, err := agreement.Bind(common.HexToAddress("0x01").Hex(), s.client, s.ledger)
	s.Require().NoError(err)
	_, err = b.Read(context.Background())
	var readErr *agreement.ReadError
	s.Require().ErrorAs(err, &readErr)
}

func (s *BindingSuite) TestWriteAndAwaitFinality() {
	b := s.bind(s.client)
	pending, err := b.Write(context.Background(), agreement.ActionConfirmWork)
	s.Require().NoError(err)
	s.Require().NotEmpty(pending.ID)
	s.Require().Equal(agreement.ActionConfirmWork, pending.Action)

	entry, err := b.Tracker().GetPendingEntry(pending.Hash)
	s.Require().NoError(err)
	s.Require().Equal(transactions.ConfirmWork, entry.Type)
	s.Require().Equal(pending.ID, entry.ActionID)

	receipt, err := b.AwaitFinality(context.Background(), pending)
	s.Require().NoError(err)
	s.Require().Equal(pending.Hash, receipt.TxHash)

	snapshot, err := b.Read(context.Background())
	s.Require().NoError(err)
	s.Require().Equal(agreement.StatusWorkConfirmed, snapshot.Status)
	s.Require().Empty(b.Tracker().GetAllPending())
}

func (s *BindingSuite) TestWriteRevertedBeforeSubmission() {
	b := s.bind(s.freelancer)
	_, err := b.Write(context.Background(), agreement.ActionConfirmWork)

	var revert *agreement.RemoteRevert
	s.Require().ErrorAs(err, &revert)
	s.Require().Equal(fake.ReasonOnlyClient, revert.Reason)
	s.Require().Zero(s.ledger.SendCount())
}

func (s *BindingSuite) TestWriteInvalidTransition() {
	b := s.bind(s.client)
	_, err := b.Write(context.Background(), agreement.ActionReleasePayment)

	var revert *agreement.RemoteRevert
	s.Require().ErrorAs(err, &revert)
	s.Require().Equal(fake.ReasonNotConfirmed, revert.Reason)
}

func (s *BindingSuite) TestWriteSignerRejects() {
	ctrl := gomock.NewController(s.T())
	defer ctrl.Finish()

	provider := mock.NewMockIdentityProvider(ctrl)
	provider.EXPECT().SignTx(gomock.Any(), s.client.Address(), gomock.Any(), gomock.Any()).Return(nil, account.ErrUserRejected)
	session := account.NewSession(s.client.Address(), provider, testChainID)

	_, err := s.bind(session).Write(context.Background(), agreement.ActionConfirmWork)
	s.Require().ErrorIs(err, agreement.ErrSubmissionRejected)
	s.Require().ErrorIs(err, account.ErrUserRejected)
	s.Require().Zero(s.ledger.SendCount())
}

func (s *BindingSuite) TestWriteTransportFailure() {
	s.ledger.FailSends(errors.New("upstream unavailable"))

	_, err := s.bind(s.client).Write(context.Background(), agreement.ActionConfirmWork)
	var submissionErr *agreement.SubmissionError
	s.Require().ErrorAs(err, &submissionErr)
	status, _ := s.ledger.Status(s.address)
	s.Require().Equal(fake.StatusCreated, status)
}

func (s *BindingSuite) TestWriteUnknownAction() {
	_, err := s.bind(s.client).Write(context.Background(), agreement.Action(99))
	s.Require().ErrorIs(err, agreement.ErrUnknownAction)
	s.Require().Zero(s.ledger.RemoteCalls())
}

func (s *BindingSuite) TestFailedReceiptCarriesRevertReason() {
	s.ledger.SetAutoMine(false)
	b := s.bind(s.client)

	first, err := b.Write(context.Background(), agreement.ActionConfirmWork)
	s.Require().NoError(err)
	// still passes simulation since the first request is not mined yet
	second, err := b.Write(context.Background(), agreement.ActionConfirmWork)
	s.Require().NoError(err)
	s.Require().Equal(2, s.ledger.PendingCount())

	s.ledger.Commit()

	_, err = b.AwaitFinality(context.Background(), first)
	s.Require().NoError(err)

	receipt, err := b.AwaitFinality(context.Background(), second)
	s.Require().NotNil(receipt)
	var revert *agreement.RemoteRevert
	s.Require().ErrorAs(err, &revert)
	s.Require().Equal(fake.ReasonNotCreated, revert.Reason)
}

func (s *BindingSuite) TestDeployValidation() {
	artifact := s.ledger.DeployArtifact()
	valid := agreement.DeployRequest{
		Freelancer: s.freelancer.Address().Hex(),
		Text:       "logo design",
		Amount:     big.NewInt(5000),
	}

	_, _, err := agreement.Deploy(context.Background(), nil, s.ledger, artifact, valid, nil)
	s.Require().ErrorIs(err, agreement.ErrNoSession)

	_, _, err = agreement.Deploy(context.Background(), s.client, s.ledger, nil, valid, nil)
	s.Require().ErrorIs(err, agreement.ErrBytecodeMissing)

	missing := valid
	missing.Text = ""
	_, _, err = agreement.Deploy(context.Background(), s.client, s.ledger, artifact, missing, nil)
	s.Require().ErrorIs(err, agreement.ErrMissingField)

	badAddress := valid
	badAddress.Freelancer = "0x1234"
	_, _, err = agreement.Deploy(context.Background(), s.client, s.ledger, artifact, badAddress, nil)
	s.Require().ErrorIs(err, agreement.ErrInvalidAddress)

	zero := valid
	zero.Amount = big.NewInt(0)
	_, _, err = agreement.Deploy(context.Background(), s.client, s.ledger, artifact, zero, nil)
	s.Require().ErrorIs(err, agreement.ErrInvalidAmount)

	s.Require().Zero(s.ledger.RemoteCalls())
}

func (s *BindingSuite) TestDeployThenBind() {
	tracker := transactions.NewTransactionManager(nil, 0, 0)
	address, pending, err := agreement.Deploy(context.Background(), s.client, s.ledger, s.ledger.DeployArtifact(), agreement.DeployRequest{
		Freelancer: s.freelancer.Address().Hex(),
		Text:       "logo design",
		Amount:     big.NewInt(5000),
	}, tracker)
	s.Require().NoError(err)

	entry, err := tracker.GetPendingEntry(pending.Hash)
	s.Require().NoError(err)
	s.Require().Equal(transactions.DeployAgreement, entry.Type)

	b, err := agreement.Bind(address.Hex(), s.client, s.ledger, agreement.WithTracker(tracker))
	s.Require().NoError(err)
	receipt, err := b.AwaitFinality(context.Background(), pending)
	s.Require().NoError(err)
	s.Require().Equal(address, receipt.ContractAddress)

	snapshot, err := b.Read(context.Background())
	s.Require().NoError(err)
	s.Require().Equal(s.client.Address(), snapshot.Client)
	s.Require().Equal(s.freelancer.Address(), snapshot.Freelancer)
	s.Require().Equal(int64(5000), snapshot.Amount.Int64())
	s.Require().Equal(agreement.StatusCreated, snapshot.Status)
}
