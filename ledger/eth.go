package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/zkpermit/zkpermit-go/logging"
)

// contractABI covers the slice of the permission contract this service
// consumes: the four events plus the read-only role lookup.
const contractABI = `[
  {"type":"event","name":"GrantedAccessToInstitution","anonymous":false,"inputs":[
    {"name":"institutionRequester","type":"address","indexed":false},
    {"name":"project","type":"address","indexed":false},
    {"name":"userRequested","type":"address","indexed":false}]},
  {"type":"event","name":"RevokedAccessToInstitution","anonymous":false,"inputs":[
    {"name":"institutionRequester","type":"address","indexed":false},
    {"name":"project","type":"address","indexed":false},
    {"name":"userRequested","type":"address","indexed":false}]},
  {"type":"event","name":"GrantedAccessUser","anonymous":false,"inputs":[
    {"name":"userRequester","type":"address","indexed":false},
    {"name":"roleRequested","type":"uint256","indexed":false}]},
  {"type":"event","name":"UserUnregistered","anonymous":false,"inputs":[
    {"name":"endUser","type":"address","indexed":false}]},
  {"type":"function","name":"userRoles","stateMutability":"view","inputs":[
    {"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// EthSource polls an Ethereum node for contract logs.
type EthSource struct {
	client   *ethclient.Client
	contract common.Address
	abi      abi.ABI
	log      logging.Logger
}

// DialEthSource connects to the node at rpcURL and binds the contract.
func DialEthSource(rpcURL, contractAddress string, log logging.Logger) (*EthSource, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, err
	}
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, err
	}
	return &EthSource{
		client:   client,
		contract: common.HexToAddress(contractAddress),
		abi:      parsed,
		log:      log,
	}, nil
}

func (s *EthSource) Poll(ctx context.Context, from uint64) ([]Event, uint64, error) {
	latest, err := s.client.BlockNumber(ctx)
	if err != nil {
		return nil, from, err
	}
	if latest < from {
		return nil, from, nil
	}

	topics := []common.Hash{
		s.abi.Events[string(EventGrantedAccessToInstitution)].ID,
		s.abi.Events[string(EventRevokedAccessToInstitution)].ID,
		s.abi.Events[string(EventGrantedAccessUser)].ID,
		s.abi.Events[string(EventUserUnregistered)].ID,
	}
	logs, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(latest),
		Addresses: []common.Address{s.contract},
		Topics:    [][]common.Hash{topics},
	})
	if err != nil {
		return nil, from, err
	}

	events := make([]Event, 0, len(logs))
	for _, entry := range logs {
		event, err := s.decode(entry)
		if err != nil {
			// A malformed log must never halt the subscription.
			s.log.Error("undecodable contract log", "block", entry.BlockNumber, "tx", entry.TxHash.Hex(), "err", err)
			continue
		}
		events = append(events, *event)
	}
	return events, latest + 1, nil
}

func (s *EthSource) decode(entry types.Log) (*Event, error) {
	if len(entry.Topics) == 0 {
		return nil, fmt.Errorf("log without topics")
	}

	event := &Event{Block: entry.BlockNumber}
	switch entry.Topics[0] {
	case s.abi.Events[string(EventGrantedAccessToInstitution)].ID:
		event.Type = EventGrantedAccessToInstitution
	case s.abi.Events[string(EventRevokedAccessToInstitution)].ID:
		event.Type = EventRevokedAccessToInstitution
	case s.abi.Events[string(EventGrantedAccessUser)].ID:
		event.Type = EventGrantedAccessUser
	case s.abi.Events[string(EventUserUnregistered)].ID:
		event.Type = EventUserUnregistered
	default:
		return nil, fmt.Errorf("unknown topic %s", entry.Topics[0].Hex())
	}

	values, err := s.abi.Unpack(string(event.Type), entry.Data)
	if err != nil {
		return nil, err
	}

	switch event.Type {
	case EventGrantedAccessToInstitution, EventRevokedAccessToInstitution:
		if len(values) != 3 {
			return nil, fmt.Errorf("expected 3 values, got %d", len(values))
		}
		event.Institution = values[0].(common.Address).Hex()
		event.Project = values[1].(common.Address).Hex()
		event.User = values[2].(common.Address).Hex()
	case EventGrantedAccessUser:
		if len(values) != 2 {
			return nil, fmt.Errorf("expected 2 values, got %d", len(values))
		}
		event.User = values[0].(common.Address).Hex()
		event.Role = values[1].(*big.Int).Int64()
	case EventUserUnregistered:
		if len(values) != 1 {
			return nil, fmt.Errorf("expected 1 value, got %d", len(values))
		}
		event.User = values[0].(common.Address).Hex()
	}

	event.Normalize()
	return event, nil
}

// RoleOf resolves an address's current role code with a read-only
// contract call. Used by the authorization layer, not by the mirror.
func (s *EthSource) RoleOf(ctx context.Context, address string) (int64, error) {
	data, err := s.abi.Pack("userRoles", common.HexToAddress(address))
	if err != nil {
		return 0, err
	}
	out, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &s.contract, Data: data}, nil)
	if err != nil {
		return 0, err
	}
	values, err := s.abi.Unpack("userRoles", out)
	if err != nil {
		return 0, err
	}
	return values[0].(*big.Int).Int64(), nil
}
