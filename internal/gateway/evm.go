package gateway

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"github.com/tenexium/tenex-core/internal/logger"
	"github.com/tenexium/tenex-core/internal/types"
)

// Precompile entry points on the Bittensor EVM.
var (
	stakingPrecompile = common.HexToAddress("0x0000000000000000000000000000000000000805")
	alphaPrecompile   = common.HexToAddress("0x0000000000000000000000000000000000000808")
)

const stakingABIJSON = `[
  {
    "inputs": [
      {"type": "bytes32", "name": "hotkey"},
      {"type": "uint256", "name": "netuid"}
    ],
    "name": "addStake",
    "outputs": [],
    "stateMutability": "payable",
    "type": "function"
  },
  {
    "inputs": [
      {"type": "bytes32", "name": "hotkey"},
      {"type": "uint256", "name": "amount"},
      {"type": "uint256", "name": "netuid"}
    ],
    "name": "removeStake",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"type": "bytes32", "name": "hotkey"},
      {"type": "uint256", "name": "netuid"}
    ],
    "name": "getStake",
    "outputs": [{"type": "uint256", "name": ""}],
    "stateMutability": "view",
    "type": "function"
  }
]`

const alphaABIJSON = `[
  {
    "inputs": [{"type": "uint256", "name": "netuid"}],
    "name": "getAlphaPrice",
    "outputs": [{"type": "uint256", "name": ""}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"type": "uint256", "name": "netuid"},
      {"type": "uint256", "name": "amount"}
    ],
    "name": "simSwapTaoForAlpha",
    "outputs": [{"type": "uint256", "name": ""}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"type": "uint256", "name": "netuid"},
      {"type": "uint256", "name": "amount"}
    ],
    "name": "simSwapAlphaForTao",
    "outputs": [{"type": "uint256", "name": ""}],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	abiOnce    sync.Once
	stakingABI abi.ABI
	alphaABI   abi.ABI
	abiErr     error
)

func precompileABIs() (abi.ABI, abi.ABI, error) {
	abiOnce.Do(func() {
		stakingABI, abiErr = abi.JSON(strings.NewReader(stakingABIJSON))
		if abiErr != nil {
			return
		}
		alphaABI, abiErr = abi.JSON(strings.NewReader(alphaABIJSON))
	})
	return stakingABI, alphaABI, abiErr
}

// EVMGateway is the live StakingGateway. It signs and submits staking
// transactions against the precompiles and reads quotes through eth_call.
type EVMGateway struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	netuid  uint64

	staking abi.ABI
	alpha   abi.ABI

	// One transaction in flight at a time keeps nonce handling trivial.
	txMu sync.Mutex

	log zerolog.Logger
}

// NewEVMGateway dials the endpoint and prepares the signer.
func NewEVMGateway(ctx context.Context, endpoint, signerKeyHex string, netuid uint64) (*EVMGateway, error) {
	staking, alpha, err := precompileABIs()
	if err != nil {
		return nil, fmt.Errorf("failed to parse precompile ABIs: %w", err)
	}

	rpcClient, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial EVM endpoint: %w", err)
	}
	ethClient := ethclient.NewClient(rpcClient)

	key, err := crypto.HexToECDSA(strings.TrimPrefix(signerKeyHex, "0x"))
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("failed to parse signer key: %w", err)
	}

	chainID, err := ethClient.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("failed to fetch chain ID: %w", err)
	}

	g := &EVMGateway{
		rpcClient: rpcClient,
		ethClient: ethClient,
		key:       key,
		from:      crypto.PubkeyToAddress(key.PublicKey),
		chainID:   chainID,
		netuid:    netuid,
		staking:   staking,
		alpha:     alpha,
		log:       logger.GetForComponent("gateway"),
	}
	g.log.Info().
		Str("endpoint", endpoint).
		Str("signer", g.from.Hex()).
		Uint64("netuid", netuid).
		Msg("EVM gateway connected")
	return g, nil
}

// Close releases the RPC connection.
func (g *EVMGateway) Close() {
	if g.rpcClient != nil {
		g.rpcClient.Close()
	}
}

func (g *EVMGateway) callView(ctx context.Context, target common.Address, contract abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	out, err := g.ethClient.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("eth_call %s failed: %w", method, err)
	}
	return contract.Unpack(method, out)
}

func (g *EVMGateway) sendTx(ctx context.Context, target common.Address, value *big.Int, data []byte) (*ethtypes.Receipt, error) {
	g.txMu.Lock()
	defer g.txMu.Unlock()

	nonce, err := g.ethClient.PendingNonceAt(ctx, g.from)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nonce: %w", err)
	}
	gasPrice, err := g.ethClient.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gas price: %w", err)
	}
	gasLimit, err := g.ethClient.EstimateGas(ctx, ethereum.CallMsg{
		From:  g.from,
		To:    &target,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}

	tx := ethtypes.NewTransaction(nonce, target, value, gasLimit, gasPrice, data)
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(g.chainID), g.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := g.ethClient.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	receipt, err := g.waitMined(ctx, signed.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("transaction %s reverted", signed.Hash().Hex())
	}
	return receipt, nil
}

func (g *EVMGateway) waitMined(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		receipt, err := g.ethClient.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (g *EVMGateway) hotkeyStake(ctx context.Context, hotkey types.Hotkey) (*big.Int, error) {
	out, err := g.callView(ctx, stakingPrecompile, g.staking, "getStake", [32]byte(hotkey), new(big.Int).SetUint64(g.netuid))
	if err != nil {
		return nil, err
	}
	stake, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getStake return type %T", out[0])
	}
	return stake, nil
}

// Stake submits addStake with amountWei attached and reports the rao
// received as the stake-balance delta around the transaction.
func (g *EVMGateway) Stake(ctx context.Context, amountWei sdkmath.Int, hotkey types.Hotkey) (sdkmath.Int, error) {
	before, err := g.hotkeyStake(ctx, hotkey)
	if err != nil {
		return sdkmath.Int{}, err
	}

	data, err := g.staking.Pack("addStake", [32]byte(hotkey), new(big.Int).SetUint64(g.netuid))
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("failed to pack addStake: %w", err)
	}
	receipt, err := g.sendTx(ctx, stakingPrecompile, amountWei.BigInt(), data)
	if err != nil {
		return sdkmath.Int{}, err
	}

	after, err := g.hotkeyStake(ctx, hotkey)
	if err != nil {
		return sdkmath.Int{}, err
	}
	received := new(big.Int).Sub(after, before)
	if received.Sign() <= 0 {
		return sdkmath.Int{}, fmt.Errorf("addStake in tx %s produced no stake", receipt.TxHash.Hex())
	}
	g.log.Debug().
		Str("spent_wei", amountWei.String()).
		Str("received_rao", received.String()).
		Msg("stake executed")
	return sdkmath.NewIntFromBigInt(received), nil
}

// Unstake submits removeStake for amountRao and reports the wei received as
// the signer's balance delta, corrected for the gas the transaction burned.
func (g *EVMGateway) Unstake(ctx context.Context, amountRao sdkmath.Int, hotkey types.Hotkey) (sdkmath.Int, error) {
	before, err := g.ethClient.BalanceAt(ctx, g.from, nil)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("failed to read balance: %w", err)
	}

	data, err := g.staking.Pack("removeStake", [32]byte(hotkey), amountRao.BigInt(), new(big.Int).SetUint64(g.netuid))
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("failed to pack removeStake: %w", err)
	}
	receipt, err := g.sendTx(ctx, stakingPrecompile, nil, data)
	if err != nil {
		return sdkmath.Int{}, err
	}

	after, err := g.ethClient.BalanceAt(ctx, g.from, nil)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("failed to read balance: %w", err)
	}
	gasCost := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), receipt.EffectiveGasPrice)
	received := new(big.Int).Add(new(big.Int).Sub(after, before), gasCost)
	if received.Sign() < 0 {
		return sdkmath.Int{}, fmt.Errorf("removeStake in tx %s produced a negative proceeds delta", receipt.TxHash.Hex())
	}
	g.log.Debug().
		Str("sold_rao", amountRao.String()).
		Str("received_wei", received.String()).
		Msg("unstake executed")
	return sdkmath.NewIntFromBigInt(received), nil
}

func (g *EVMGateway) SimulateBuy(ctx context.Context, amountWei sdkmath.Int) (sdkmath.Int, error) {
	out, err := g.callView(ctx, alphaPrecompile, g.alpha, "simSwapTaoForAlpha", new(big.Int).SetUint64(g.netuid), amountWei.BigInt())
	if err != nil {
		return sdkmath.Int{}, err
	}
	quoted, ok := out[0].(*big.Int)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("unexpected simSwapTaoForAlpha return type %T", out[0])
	}
	return sdkmath.NewIntFromBigInt(quoted), nil
}

func (g *EVMGateway) SimulateSell(ctx context.Context, amountRao sdkmath.Int) (sdkmath.Int, error) {
	out, err := g.callView(ctx, alphaPrecompile, g.alpha, "simSwapAlphaForTao", new(big.Int).SetUint64(g.netuid), amountRao.BigInt())
	if err != nil {
		return sdkmath.Int{}, err
	}
	quoted, ok := out[0].(*big.Int)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("unexpected simSwapAlphaForTao return type %T", out[0])
	}
	return sdkmath.NewIntFromBigInt(quoted), nil
}

func (g *EVMGateway) CurrentPrice(ctx context.Context) (sdkmath.Int, error) {
	out, err := g.callView(ctx, alphaPrecompile, g.alpha, "getAlphaPrice", new(big.Int).SetUint64(g.netuid))
	if err != nil {
		return sdkmath.Int{}, err
	}
	price, ok := out[0].(*big.Int)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("unexpected getAlphaPrice return type %T", out[0])
	}
	return sdkmath.NewIntFromBigInt(price), nil
}

func (g *EVMGateway) StakeBalance(ctx context.Context, hotkey types.Hotkey) (sdkmath.Int, error) {
	stake, err := g.hotkeyStake(ctx, hotkey)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return sdkmath.NewIntFromBigInt(stake), nil
}

func (g *EVMGateway) CurrentBlock(ctx context.Context) (uint64, error) {
	return g.ethClient.BlockNumber(ctx)
}
