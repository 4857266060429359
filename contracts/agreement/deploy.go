package agreement

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

var ErrNoBytecode = errors.New("agreement bytecode is missing")

// Artifact is the compiler output needed to deploy a new agreement.
type Artifact struct {
	ABI      abi.ABI
	Bytecode []byte
}

type artifactJSON struct {
	ABI      json.RawMessage `json:"abi"`
	Bytecode json.RawMessage `json:"bytecode"`
	EVM      struct {
		Bytecode struct {
			Object string `json:"object"`
		} `json:"bytecode"`
	} `json:"evm"`
}

// LoadArtifact reads a JSON artifact holding "abi" and "bytecode" (either a hex
// string or solc's {"object": ...}) or solc's "evm.bytecode.object".
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read agreement artifact")
	}
	return ParseArtifact(data)
}

func ParseArtifact(data []byte) (*Artifact, error) {
	var raw artifactJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decode agreement artifact")
	}

	artifact := &Artifact{}
	if len(raw.ABI) > 0 {
		parsed, err := abi.JSON(bytes.NewReader(raw.ABI))
		if err != nil {
			return nil, errors.Wrap(err, "parse agreement abi")
		}
		artifact.ABI = parsed
	} else {
		parsed, err := AgreementMetaData.GetAbi()
		if err != nil {
			return nil, err
		}
		artifact.ABI = *parsed
	}
	if _, ok := artifact.ABI.Methods["getDetails"]; !ok {
		return nil, errors.New("artifact abi has no getDetails method")
	}

	code := raw.EVM.Bytecode.Object
	if len(raw.Bytecode) > 0 {
		var s string
		if err := json.Unmarshal(raw.Bytecode, &s); err != nil {
			var obj struct {
				Object string `json:"object"`
			}
			if err := json.Unmarshal(raw.Bytecode, &obj); err != nil {
				return nil, errors.Wrap(err, "decode agreement bytecode")
			}
			s = obj.Object
		}
		code = s
	}

	code = strings.TrimSpace(code)
	if code == "" || code == "0x" {
		return artifact, nil
	}
	if !strings.HasPrefix(code, "0x") {
		code = "0x" + code
	}
	bytecode, err := hexutil.Decode(code)
	if err != nil {
		return nil, errors.Wrap(err, "decode agreement bytecode")
	}
	artifact.Bytecode = bytecode
	return artifact, nil
}

// DeployAgreement deploys a new agreement, sending auth.Value as the escrowed payment.
func DeployAgreement(auth *bind.TransactOpts, backend bind.ContractBackend, artifact *Artifact, freelancer common.Address, agreementText string) (common.Address, *types.Transaction, *Agreement, error) {
	if artifact == nil || len(artifact.Bytecode) == 0 {
		return common.Address{}, nil, nil, ErrNoBytecode
	}

	address, tx, contract, err := bind.DeployContract(auth, artifact.ABI, artifact.Bytecode, backend, freelancer, agreementText)
	if err != nil {
		return common.Address{}, nil, nil, err
	}
	return address, tx, &Agreement{AgreementCaller: AgreementCaller{contract: contract}, AgreementTransactor: AgreementTransactor{contract: contract}, AgreementFilterer: AgreementFilterer{contract: contract}}, nil
}
