package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/brydisanto/smash-the-wall/internal/config"
	"github.com/brydisanto/smash-the-wall/internal/metrics"
	"github.com/brydisanto/smash-the-wall/internal/types"
)

const erc20ABI = `[
 {"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
 {"inputs":[],"name":"totalSupply","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
 {"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

// Caller is the single ethclient method the reader needs; narrowed so
// tests can substitute canned ABI-encoded returns.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Reader takes burn/supply snapshots of one fixed ERC-20 contract.
type Reader struct {
	ec       Caller
	abi      abi.ABI
	token    common.Address
	burnSink common.Address
}

func NewReader(cfg *config.Config) (*Reader, error) {
	ec, err := ethclient.Dial(cfg.Chain.RPCHTTP)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return NewReaderWithCaller(ec, cfg.Chain.TokenContract, cfg.Chain.BurnAddress)
}

func NewReaderWithCaller(ec Caller, token, burnSink string) (*Reader, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("bad abi: %w", err)
	}
	tokenAddr := common.HexToAddress(token)
	if tokenAddr == (common.Address{}) {
		return nil, errors.New("token contract address is empty")
	}
	return &Reader{
		ec:       ec,
		abi:      parsed,
		token:    tokenAddr,
		burnSink: common.HexToAddress(burnSink),
	}, nil
}

// Snapshot performs the three reads in parallel. All three must succeed:
// a snapshot mixing values from different failed rounds would make the
// derived burn percentage meaningless, so any error fails the whole read.
func (r *Reader) Snapshot(ctx context.Context) (types.ChainSnapshot, error) {
	var (
		burnedRaw, supplyRaw *big.Int
		decimals             uint8

		wg   sync.WaitGroup
		errs [3]error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		burnedRaw, errs[0] = r.callUint(ctx, "balanceOf", r.burnSink)
	}()
	go func() {
		defer wg.Done()
		supplyRaw, errs[1] = r.callUint(ctx, "totalSupply")
	}()
	go func() {
		defer wg.Done()
		decimals, errs[2] = r.callDecimals(ctx)
	}()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return types.ChainSnapshot{}, err
		}
	}

	snap := types.ChainSnapshot{
		Burned:      toFloat(burnedRaw, int(decimals)),
		TotalSupply: toFloat(supplyRaw, int(decimals)),
		Decimals:    decimals,
		Ts:          time.Now(),
	}
	metrics.BurnedTokens.Set(snap.Burned)
	return snap, nil
}

func (r *Reader) callUint(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	data, err := r.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := r.ec.CallContract(ctx, ethereum.CallMsg{To: &r.token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	outs, err := r.abi.Methods[method].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return nil, fmt.Errorf("decode %s: %w", method, errOrEmpty(err))
	}
	v, ok := outs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s type %T", method, outs[0])
	}
	return v, nil
}

func (r *Reader) callDecimals(ctx context.Context) (uint8, error) {
	data, err := r.abi.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("pack decimals: %w", err)
	}
	raw, err := r.ec.CallContract(ctx, ethereum.CallMsg{To: &r.token, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("call decimals: %w", err)
	}
	outs, err := r.abi.Methods["decimals"].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return 0, fmt.Errorf("decode decimals: %w", errOrEmpty(err))
	}
	switch v := outs[0].(type) {
	case uint8:
		return v, nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unexpected decimals type %T", v)
	}
}

func toFloat(x *big.Int, decimals int) float64 {
	if x == nil {
		return 0
	}
	f := new(big.Float).SetInt(x)
	div := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f.Quo(f, div)
	val, _ := f.Float64()
	return val
}

func errOrEmpty(err error) error {
	if err != nil {
		return err
	}
	return errors.New("empty output")
}
