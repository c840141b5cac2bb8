package poolid

import (
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcutil"
)

// CoinbaseSource supplies the coinbase payout addresses and tag bytes for a
// block, and the block's timestamp, without requiring callers to know
// anything about the wire format.
type CoinbaseSource interface {
	CoinbaseInfo(height int64) (addrs []string, tag []byte, err error)
	BlockTimestamp(height int64) (int64, error)
}

// BlockBytesGetter fetches the raw serialized block at height, e.g. from the
// upstream node RPC client.
type BlockBytesGetter func(height int64) ([]byte, error)

// RawBlockCoinbaseSource implements CoinbaseSource over raw block bytes,
// decoding the coinbase transaction's outputs and first input's signature
// script.
type RawBlockCoinbaseSource struct {
	GetBlockBytes BlockBytesGetter
	ChainParams   *chaincfg.Params
}

func NewRawBlockCoinbaseSource(getBlockBytes BlockBytesGetter) *RawBlockCoinbaseSource {
	return &RawBlockCoinbaseSource{GetBlockBytes: getBlockBytes, ChainParams: &chaincfg.MainNetParams}
}

func (s *RawBlockCoinbaseSource) CoinbaseInfo(height int64) (addrs []string, tag []byte, err error) {
	raw, err := s.GetBlockBytes(height)
	if err != nil {
		return nil, nil, err
	}
	block, err := btcutil.NewBlockFromBytes(raw)
	if err != nil {
		return nil, nil, err
	}
	coinbase, err := block.Tx(0)
	if err != nil {
		return nil, nil, err
	}
	msgTx := coinbase.MsgTx()
	tag = msgTx.TxIn[0].SignatureScript

	for _, out := range msgTx.TxOut {
		_, scriptAddrs, _, err := txscript.ExtractPkScriptAddrs(out.PkScript, s.ChainParams)
		if err != nil {
			// Non-standard output script; not an error for our purposes,
			// just nothing to match against.
			continue
		}
		for _, a := range scriptAddrs {
			addrs = append(addrs, a.EncodeAddress())
		}
	}
	return addrs, tag, nil
}

func (s *RawBlockCoinbaseSource) BlockTimestamp(height int64) (int64, error) {
	raw, err := s.GetBlockBytes(height)
	if err != nil {
		return 0, err
	}
	block, err := btcutil.NewBlockFromBytes(raw)
	if err != nil {
		return 0, err
	}
	return block.MsgBlock().Header.Timestamp.Unix(), nil
}
