// Package ledger provides election ledger adapters: an EVM smart-contract
// binding for real deployments and an in-memory mock.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/suarakita/server/domain/entities"
	"github.com/suarakita/server/domain/repositories"
)

// electionABI is the fragment of the voting contract this adapter calls.
const electionABI = `[
  {"type":"function","name":"electionCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getElection","stateMutability":"view","inputs":[{"name":"electionId","type":"uint256"}],"outputs":[{"name":"title","type":"string"},{"name":"description","type":"string"},{"name":"startTime","type":"uint256"},{"name":"endTime","type":"uint256"},{"name":"active","type":"bool"},{"name":"candidateCount","type":"uint256"}]},
  {"type":"function","name":"getCandidate","stateMutability":"view","inputs":[{"name":"electionId","type":"uint256"},{"name":"candidateId","type":"uint256"}],"outputs":[{"name":"name","type":"string"},{"name":"party","type":"string"},{"name":"voteCount","type":"uint256"}]},
  {"type":"function","name":"totalVotes","stateMutability":"view","inputs":[{"name":"electionId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getWinner","stateMutability":"view","inputs":[{"name":"electionId","type":"uint256"}],"outputs":[{"name":"candidateId","type":"uint256"},{"name":"name","type":"string"},{"name":"voteCount","type":"uint256"}]},
  {"type":"function","name":"vote","stateMutability":"nonpayable","inputs":[{"name":"electionId","type":"uint256"},{"name":"candidateId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"createElection","stateMutability":"nonpayable","inputs":[{"name":"title","type":"string"},{"name":"description","type":"string"},{"name":"candidateNames","type":"string[]"},{"name":"startTime","type":"uint256"},{"name":"endTime","type":"uint256"}],"outputs":[]}
]`

const (
	readAttempts     = 3
	readBackoffStart = 500 * time.Millisecond
	confirmTimeout   = 2 * time.Minute
)

// EVMConfig configures the contract binding.
type EVMConfig struct {
	RPCURL          string
	ContractAddress string
	// PrivateKeyHex signs write transactions. Empty makes the ledger
	// read-only.
	PrivateKeyHex string
	// ChainID of the target network (Avalanche Fuji is 43113).
	ChainID int64
}

// EVMLedger talks to the election contract over JSON-RPC. Reads retry with
// exponential backoff; writes are definitive at submission, with mining
// reported asynchronously through the notifier.
type EVMLedger struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	auth     *bind.TransactOpts
	notifier repositories.ConfirmationNotifier
	logger   *zap.Logger

	// txMu serializes transactions so concurrent dispatches cannot race on
	// the account nonce.
	txMu sync.Mutex
}

// NewEVMLedger dials the RPC endpoint and binds the contract.
func NewEVMLedger(ctx context.Context, cfg EVMConfig, notifier repositories.ConfirmationNotifier, logger *zap.Logger) (*EVMLedger, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("ledger RPC URL is required")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger RPC: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(electionABI))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}

	l := &EVMLedger{
		client:   client,
		contract: bind.NewBoundContract(common.HexToAddress(cfg.ContractAddress), parsed, client, client, client),
		notifier: notifier,
		logger:   logger,
	}

	if cfg.PrivateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("invalid ledger private key: %w", err)
		}
		l.auth, err = bind.NewKeyedTransactorWithChainID(key, big.NewInt(cfg.ChainID))
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to build transactor: %w", err)
		}
	}

	logger.Info("Connected to election ledger",
		zap.String("contract", cfg.ContractAddress),
		zap.Int64("chainID", cfg.ChainID),
		zap.Bool("signer", l.auth != nil))

	return l, nil
}

// Close releases the RPC connection.
func (l *EVMLedger) Close() {
	l.client.Close()
}

// ElectionCount implements repositories.ElectionLedger.
func (l *EVMLedger) ElectionCount(ctx context.Context) (uint64, error) {
	var out []interface{}
	if err := l.call(ctx, &out, "electionCount"); err != nil {
		return 0, err
	}
	return asBig(out[0]).Uint64(), nil
}

// ListElections implements repositories.ElectionLedger. Candidate detail is
// deliberately omitted; GetElection loads it per election.
func (l *EVMLedger) ListElections(ctx context.Context) ([]entities.Election, error) {
	count, err := l.ElectionCount(ctx)
	if err != nil {
		return nil, err
	}

	elections := make([]entities.Election, 0, count)
	for id := uint64(0); id < count; id++ {
		e, _, err := l.electionHeader(ctx, id)
		if err != nil {
			return nil, err
		}
		total, err := l.totalVotes(ctx, id)
		if err != nil {
			return nil, err
		}
		e.TotalVotes = total
		elections = append(elections, *e)
	}
	return elections, nil
}

// GetElection implements repositories.ElectionLedger.
func (l *EVMLedger) GetElection(ctx context.Context, id uint64) (*entities.Election, error) {
	e, candidateCount, err := l.electionHeader(ctx, id)
	if err != nil {
		return nil, err
	}

	e.Candidates = make([]entities.Candidate, 0, candidateCount)
	for cid := uint64(0); cid < candidateCount; cid++ {
		var out []interface{}
		if err := l.call(ctx, &out, "getCandidate", new(big.Int).SetUint64(id), new(big.Int).SetUint64(cid)); err != nil {
			return nil, err
		}
		candidate := entities.Candidate{
			ID:        cid,
			Name:      out[0].(string),
			Party:     out[1].(string),
			VoteCount: asBig(out[2]).Uint64(),
		}
		e.Candidates = append(e.Candidates, candidate)
		e.TotalVotes += candidate.VoteCount
	}
	return e, nil
}

// GetWinner implements repositories.ElectionLedger.
func (l *EVMLedger) GetWinner(ctx context.Context, electionID uint64) (*entities.Candidate, error) {
	var out []interface{}
	if err := l.call(ctx, &out, "getWinner", new(big.Int).SetUint64(electionID)); err != nil {
		return nil, err
	}
	return &entities.Candidate{
		ID:        asBig(out[0]).Uint64(),
		Name:      out[1].(string),
		VoteCount: asBig(out[2]).Uint64(),
	}, nil
}

// CastVote implements repositories.ElectionLedger.
func (l *EVMLedger) CastVote(ctx context.Context, electionID, candidateID uint64) (*entities.TxReceipt, error) {
	return l.transact(ctx, electionID, "vote",
		new(big.Int).SetUint64(electionID), new(big.Int).SetUint64(candidateID))
}

// CreateElection implements repositories.ElectionLedger.
func (l *EVMLedger) CreateElection(ctx context.Context, draft entities.ElectionDraft) (*entities.TxReceipt, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	return l.transact(ctx, 0, "createElection",
		draft.Title,
		draft.Description,
		draft.Candidates,
		big.NewInt(draft.StartTime.Unix()),
		big.NewInt(draft.EndTime.Unix()))
}

func (l *EVMLedger) electionHeader(ctx context.Context, id uint64) (*entities.Election, uint64, error) {
	var out []interface{}
	if err := l.call(ctx, &out, "getElection", new(big.Int).SetUint64(id)); err != nil {
		return nil, 0, err
	}
	e := &entities.Election{
		ID:          id,
		Title:       out[0].(string),
		Description: out[1].(string),
		StartTime:   time.Unix(asBig(out[2]).Int64(), 0),
		EndTime:     time.Unix(asBig(out[3]).Int64(), 0),
		Active:      out[4].(bool),
	}
	return e, asBig(out[5]).Uint64(), nil
}

func (l *EVMLedger) totalVotes(ctx context.Context, id uint64) (uint64, error) {
	var out []interface{}
	if err := l.call(ctx, &out, "totalVotes", new(big.Int).SetUint64(id)); err != nil {
		return 0, err
	}
	return asBig(out[0]).Uint64(), nil
}

// call performs a contract read with bounded retries. Contract reverts are
// not retried; only transient transport failures are worth a second attempt,
// but distinguishing them portably is not worth the complexity, so every
// failure gets the same small budget.
func (l *EVMLedger) call(ctx context.Context, out *[]interface{}, method string, params ...interface{}) error {
	var err error
	backoff := readBackoffStart
	for attempt := 1; attempt <= readAttempts; attempt++ {
		*out = (*out)[:0]
		err = l.contract.Call(&bind.CallOpts{Context: ctx}, out, method, params...)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < readAttempts {
			l.logger.Warn("Ledger read failed, retrying",
				zap.String("method", method),
				zap.Int("attempt", attempt),
				zap.Error(err))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
	}
	return fmt.Errorf("ledger read %s failed: %w", method, err)
}

// transact submits a write. The returned receipt reflects submission only;
// mining confirmation is delivered through the notifier without blocking the
// caller.
func (l *EVMLedger) transact(ctx context.Context, electionID uint64, method string, params ...interface{}) (*entities.TxReceipt, error) {
	if l.auth == nil {
		return nil, fmt.Errorf("ledger signer not configured")
	}

	l.txMu.Lock()
	opts := *l.auth
	opts.Context = ctx
	tx, err := l.contract.Transact(&opts, method, params...)
	l.txMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("ledger write %s failed: %w", method, err)
	}

	hash := tx.Hash().Hex()
	l.logger.Info("Ledger transaction submitted",
		zap.String("method", method),
		zap.String("tx", hash))

	go l.awaitConfirmation(hash, tx)

	return &entities.TxReceipt{TxHash: hash, ElectionID: electionID}, nil
}

func (l *EVMLedger) awaitConfirmation(hash string, tx *types.Transaction) {
	ctx, cancel := context.WithTimeout(context.Background(), confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(ctx, l.client, tx)
	confirmation := entities.TxConfirmation{TxHash: hash}
	switch {
	case err != nil:
		confirmation.Err = err
		l.logger.Warn("Confirmation wait failed", zap.String("tx", hash), zap.Error(err))
	case receipt.Status == 0:
		confirmation.Err = fmt.Errorf("transaction %s reverted", hash)
		l.logger.Warn("Ledger transaction reverted", zap.String("tx", hash))
	default:
		confirmation.Confirmed = true
		l.logger.Info("Ledger transaction confirmed", zap.String("tx", hash))
	}

	if l.notifier != nil {
		l.notifier(confirmation)
	}
}

func asBig(v interface{}) *big.Int {
	if b, ok := v.(*big.Int); ok {
		return b
	}
	return new(big.Int)
}

var _ repositories.ElectionLedger = (*EVMLedger)(nil)
