// Package contracts holds the ABIs and call structs of the Uniswap V3 and ERC20
// contracts the chain gateway talks to.
package contracts

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Full-range ticks for the 500 fee tier (spacing 10)
const (
	MinTick = -887220
	MaxTick = 887220
)

const erc20JSON = `[
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

const wethJSON = `[
 {"type":"function","name":"deposit","stateMutability":"payable","inputs":[],"outputs":[]},
 {"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"wad","type":"uint256"}],"outputs":[]}
]`

const quoterV2JSON = `[
 {"type":"function","name":"quoteExactInput","stateMutability":"nonpayable",
  "inputs":[{"name":"path","type":"bytes"},{"name":"amountIn","type":"uint256"}],
  "outputs":[{"name":"amountOut","type":"uint256"},{"name":"sqrtPriceX96AfterList","type":"uint160[]"},{"name":"initializedTicksCrossedList","type":"uint32[]"},{"name":"gasEstimate","type":"uint256"}]}
]`

const swapRouterJSON = `[
 {"type":"function","name":"exactInputSingle","stateMutability":"payable",
  "inputs":[{"name":"params","type":"tuple","components":[
   {"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"fee","type":"uint24"},
   {"name":"recipient","type":"address"},{"name":"deadline","type":"uint256"},{"name":"amountIn","type":"uint256"},
   {"name":"amountOutMinimum","type":"uint256"},{"name":"sqrtPriceLimitX96","type":"uint160"}]}],
  "outputs":[{"name":"amountOut","type":"uint256"}]}
]`

const swapRouter02JSON = `[
 {"type":"function","name":"exactInputSingle","stateMutability":"payable",
  "inputs":[{"name":"params","type":"tuple","components":[
   {"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"fee","type":"uint24"},
   {"name":"recipient","type":"address"},{"name":"amountIn","type":"uint256"},
   {"name":"amountOutMinimum","type":"uint256"},{"name":"sqrtPriceLimitX96","type":"uint160"}]}],
  "outputs":[{"name":"amountOut","type":"uint256"}]},
 {"type":"function","name":"multicall","stateMutability":"payable",
  "inputs":[{"name":"deadline","type":"uint256"},{"name":"data","type":"bytes[]"}],
  "outputs":[{"name":"","type":"bytes[]"}]}
]`

const positionManagerJSON = `[
 {"type":"function","name":"positions","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],
  "outputs":[{"name":"nonce","type":"uint96"},{"name":"operator","type":"address"},{"name":"token0","type":"address"},{"name":"token1","type":"address"},
   {"name":"fee","type":"uint24"},{"name":"tickLower","type":"int24"},{"name":"tickUpper","type":"int24"},{"name":"liquidity","type":"uint128"},
   {"name":"feeGrowthInside0LastX128","type":"uint256"},{"name":"feeGrowthInside1LastX128","type":"uint256"},
   {"name":"tokensOwed0","type":"uint128"},{"name":"tokensOwed1","type":"uint128"}]},
 {"type":"function","name":"mint","stateMutability":"payable",
  "inputs":[{"name":"params","type":"tuple","components":[
   {"name":"token0","type":"address"},{"name":"token1","type":"address"},{"name":"fee","type":"uint24"},
   {"name":"tickLower","type":"int24"},{"name":"tickUpper","type":"int24"},
   {"name":"amount0Desired","type":"uint256"},{"name":"amount1Desired","type":"uint256"},
   {"name":"amount0Min","type":"uint256"},{"name":"amount1Min","type":"uint256"},
   {"name":"recipient","type":"address"},{"name":"deadline","type":"uint256"}]}],
  "outputs":[{"name":"tokenId","type":"uint256"},{"name":"liquidity","type":"uint128"},{"name":"amount0","type":"uint256"},{"name":"amount1","type":"uint256"}]},
 {"type":"event","name":"Transfer","anonymous":false,"inputs":[
   {"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"tokenId","type":"uint256","indexed":true}]}
]`

// Parsed ABIs
var (
	ERC20           = mustParse(erc20JSON)
	WETH            = mustParse(wethJSON)
	QuoterV2        = mustParse(quoterV2JSON)
	SwapRouter      = mustParse(swapRouterJSON)
	SwapRouter02    = mustParse(swapRouter02JSON)
	PositionManager = mustParse(positionManagerJSON)
)

// TransferTopic is topic0 of the ERC-721 Transfer event emitted on mint
var TransferTopic = PositionManager.Events["Transfer"].ID

func mustParse(def string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("contracts: bad abi: %v", err))
	}
	return a
}

// ExactInputSingleParams is the SwapRouter (v1) struct, which carries its own deadline
type ExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// ExactInputSingleParams02 is the SwapRouter02 struct; the deadline moves to multicall
type ExactInputSingleParams02 struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

type MintParams struct {
	Token0         common.Address
	Token1         common.Address
	Fee            *big.Int
	TickLower      *big.Int
	TickUpper      *big.Int
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Recipient      common.Address
	Deadline       *big.Int
}

// PositionInfo is the decoded result of positions(tokenId)
type PositionInfo struct {
	Token0      common.Address
	Token1      common.Address
	Fee         uint32
	TickLower   int32
	TickUpper   int32
	Liquidity   *big.Int
	TokensOwed0 *big.Int
	TokensOwed1 *big.Int
}

// UnpackPosition decodes the return data of positions(tokenId)
func UnpackPosition(data []byte) (PositionInfo, error) {
	vals, err := PositionManager.Unpack("positions", data)
	if err != nil {
		return PositionInfo{}, err
	}
	if len(vals) != 12 {
		return PositionInfo{}, fmt.Errorf("positions: want 12 values, got %d", len(vals))
	}
	return PositionInfo{
		Token0:      vals[2].(common.Address),
		Token1:      vals[3].(common.Address),
		Fee:         uint32(vals[4].(*big.Int).Uint64()),
		TickLower:   int32(vals[5].(*big.Int).Int64()),
		TickUpper:   int32(vals[6].(*big.Int).Int64()),
		Liquidity:   vals[7].(*big.Int),
		TokensOwed0: vals[10].(*big.Int),
		TokensOwed1: vals[11].(*big.Int),
	}, nil
}

// PackPosition encodes a positions(tokenId) return value
func PackPosition(p PositionInfo) ([]byte, error) {
	zero := new(big.Int)
	return PositionManager.Methods["positions"].Outputs.Pack(
		zero, common.Address{}, p.Token0, p.Token1,
		big.NewInt(int64(p.Fee)), big.NewInt(int64(p.TickLower)), big.NewInt(int64(p.TickUpper)),
		p.Liquidity, zero, zero, p.TokensOwed0, p.TokensOwed1,
	)
}

// EncodePath builds a single-hop V3 path: tokenIn(20) | fee(3) | tokenOut(20)
func EncodePath(tokenIn common.Address, fee uint32, tokenOut common.Address) []byte {
	path := make([]byte, 0, 43)
	path = append(path, tokenIn.Bytes()...)
	var f [4]byte
	binary.BigEndian.PutUint32(f[:], fee)
	path = append(path, f[1:]...)
	path = append(path, tokenOut.Bytes()...)
	return path
}

// DecodePath splits a single-hop path
func DecodePath(path []byte) (tokenIn common.Address, fee uint32, tokenOut common.Address, err error) {
	if len(path) != 43 {
		return common.Address{}, 0, common.Address{}, fmt.Errorf("single-hop path must be 43 bytes, got %d", len(path))
	}
	tokenIn = common.BytesToAddress(path[:20])
	fee = uint32(path[20])<<16 | uint32(path[21])<<8 | uint32(path[22])
	tokenOut = common.BytesToAddress(path[23:])
	return tokenIn, fee, tokenOut, nil
}

// MethodByData finds the method a calldata blob invokes across all known ABIs
func MethodByData(data []byte) (*abi.Method, []any, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("calldata too short")
	}
	for _, a := range []abi.ABI{ERC20, WETH, QuoterV2, SwapRouter, SwapRouter02, PositionManager} {
		m, err := a.MethodById(data[:4])
		if err != nil {
			continue
		}
		args, err := m.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", m.Name, err)
		}
		return m, args, nil
	}
	return nil, nil, fmt.Errorf("unknown selector %x", data[:4])
}
