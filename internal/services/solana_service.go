package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrAssetNotFound   = errors.New("asset not found")
	ErrBroadcastFailed = errors.New("broadcast failed")
	ErrConfirmTimeout  = errors.New("confirm timeout")
	ErrTxNotFound      = errors.New("transaction not found")
	ErrTxFailed        = errors.New("transaction failed on chain")
	ErrWrongFeePayer   = errors.New("fee payer mismatch")
	ErrMintNotInTx     = errors.New("mint not present in transaction")
)

// CollectionRef 资产的集合归属：显式的 Present/Absent 标签类型
// 在 RPC 边界解析一次，内部逻辑不再去分辨字段的各种形态
type CollectionRef struct {
	Present  bool
	Key      string
	Verified bool
}

// BurnedAsset DAS 查询返回的已销毁资产
type BurnedAsset struct {
	Mint       string
	Name       string
	Collection CollectionRef
}

// ChainClient 封装所有 RPC 调用：广播、确认、查交易、查历史
// 进程启动时构造一次，按引用传给需要的组件
type ChainClient struct {
	rpc *rpc.Client
}

func NewChainClient(rpcURL string) *ChainClient {
	return &ChainClient{rpc: rpc.New(rpcURL)}
}

// AssetExists 检查 mint 账户是否还在链上（已销毁或不存在的资产不能再发销毁指令）
func (c *ChainClient) AssetExists(ctx context.Context, mint solana.PublicKey) (bool, error) {
	out, err := c.rpc.GetAccountInfo(ctx, mint)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return out != nil && out.Value != nil, nil
}

// LatestBlockhash 获取最新 blockhash
// 优先 Finalized（更稳定），失败时退回 Confirmed
func (c *ChainClient) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	bh, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		fmt.Printf("[DEBUG] 获取 Finalized blockhash 失败，尝试 Confirmed: %v\n", err)
		bh, err = c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
		if err != nil {
			return solana.Hash{}, fmt.Errorf("%w: get latest blockhash: %v", ErrBroadcastFailed, err)
		}
	}
	return bh.Value.Blockhash, nil
}

// BroadcastTx 广播已签名交易
// 使用底层 RPC 调用以支持 skipPreflight（避免 blockhash 预检误杀稍旧但链上仍有效的交易）
func (c *ChainClient) BroadcastTx(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	enc, err := tx.MarshalBinary()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: serialize: %v", ErrBroadcastFailed, err)
	}

	var sig solana.Signature
	encBase64 := base64.StdEncoding.EncodeToString(enc)
	err = c.rpc.RPCCallForInto(ctx, &sig, "sendTransaction", []interface{}{
		encBase64,
		map[string]interface{}{
			"skipPreflight":       true,
			"preflightCommitment": "confirmed",
			"encoding":            "base64",
		},
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", ErrBroadcastFailed, err)
	}
	if sig.IsZero() {
		return solana.Signature{}, fmt.Errorf("%w: 广播返回的签名为零", ErrBroadcastFailed)
	}
	return sig, nil
}

// WaitConfirmed 轮询签名状态直到 confirmed（或 finalized）
// 交易执行失败返回 ErrTxFailed，超时返回 ErrConfirmTimeout
func (c *ChainClient) WaitConfirmed(ctx context.Context, sig solana.Signature, timeout time.Duration) error {
	return c.waitStatus(ctx, sig, timeout, false)
}

// WaitFinalized 等待 finalized，调用方把超时当作非致命处理
func (c *ChainClient) WaitFinalized(ctx context.Context, sig solana.Signature, timeout time.Duration) error {
	return c.waitStatus(ctx, sig, timeout, true)
}

func (c *ChainClient) waitStatus(ctx context.Context, sig solana.Signature, timeout time.Duration, finalized bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		statuses, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
		if err == nil && statuses != nil && len(statuses.Value) > 0 && statuses.Value[0] != nil {
			st := statuses.Value[0]
			if st.Err != nil {
				return fmt.Errorf("%w: %v", ErrTxFailed, st.Err)
			}
			switch st.ConfirmationStatus {
			case rpc.ConfirmationStatusFinalized:
				return nil
			case rpc.ConfirmationStatusConfirmed:
				if !finalized {
					return nil
				}
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return fmt.Errorf("%w: %s", ErrConfirmTimeout, sig.String())
}

// VerifyBurnTransaction 链上复核一笔销毁交易：
// 1) 交易存在且执行成功 2) fee payer 是声称的钱包 3) 所有声称的 mint 出现在账户列表里
// 防止调用方为一笔没有真实发生的销毁伪造记录
func (c *ChainClient) VerifyBurnTransaction(ctx context.Context, sig solana.Signature, wallet solana.PublicKey, mints []solana.PublicKey) error {
	maxVersion := uint64(0)
	out, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil || out == nil {
		return fmt.Errorf("%w: %s", ErrTxNotFound, sig.String())
	}
	if out.Meta != nil && out.Meta.Err != nil {
		return fmt.Errorf("%w: %s", ErrTxFailed, sig.String())
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(out.Transaction.GetBinary()))
	if err != nil || tx == nil || len(tx.Message.AccountKeys) == 0 {
		return fmt.Errorf("%w: %s", ErrTxNotFound, sig.String())
	}

	// Fee payer 是第一个账户（索引 0）
	if !tx.Message.AccountKeys[0].Equals(wallet) {
		return fmt.Errorf("%w: tx %s", ErrWrongFeePayer, sig.String())
	}

	keySet := make(map[solana.PublicKey]bool, len(tx.Message.AccountKeys))
	for _, k := range tx.Message.AccountKeys {
		keySet[k] = true
	}
	for _, mint := range mints {
		if !keySet[mint] {
			return fmt.Errorf("%w: %s 不在交易 %s 中", ErrMintNotInTx, mint.String(), sig.String())
		}
	}
	return nil
}

// LatestSignatureFor 查询地址最近一笔交易的签名和区块时间
// 找不到历史时返回零值签名；blockTime 可能为 nil（RPC 节点未返回）
func (c *ChainClient) LatestSignatureFor(ctx context.Context, addr solana.PublicKey) (solana.Signature, *time.Time, error) {
	limit := 1
	sigs, err := c.rpc.GetSignaturesForAddressWithOpts(ctx, addr, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, nil, err
	}
	if len(sigs) == 0 {
		return solana.Signature{}, nil, nil
	}
	var bt *time.Time
	if sigs[0].BlockTime != nil {
		t := sigs[0].BlockTime.Time()
		bt = &t
	}
	return sigs[0].Signature, bt, nil
}

// dasAsset DAS getAssetsByGroup 返回的资产条目（只取需要的字段）
type dasAsset struct {
	ID      string `json:"id"`
	Burnt   bool   `json:"burnt"`
	Content struct {
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
	} `json:"content"`
	Grouping []struct {
		GroupKey   string `json:"group_key"`
		GroupValue string `json:"group_value"`
		Verified   *bool  `json:"verified"`
	} `json:"grouping"`
}

type dasAssetList struct {
	Total uint       `json:"total"`
	Limit uint       `json:"limit"`
	Page  uint       `json:"page"`
	Items []dasAsset `json:"items"`
}

const dasPageLimit = 1000

// ListBurnedAssets 分页列出集合内所有已销毁的资产
// getAssetsByGroup 是 DAS 扩展方法，gagliardetto 客户端没有封装，走底层 RPC 调用
// 顺序翻页，返回页小于 limit 时结束
func (c *ChainClient) ListBurnedAssets(ctx context.Context, collection solana.PublicKey) ([]BurnedAsset, error) {
	var burned []BurnedAsset
	for page := 1; ; page++ {
		var list dasAssetList
		err := c.rpc.RPCCallForInto(ctx, &list, "getAssetsByGroup", []interface{}{
			map[string]interface{}{
				"groupKey":   "collection",
				"groupValue": collection.String(),
				"page":       page,
				"limit":      dasPageLimit,
				"displayOptions": map[string]interface{}{
					"showUnverifiedCollections": true,
				},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("getAssetsByGroup page %d: %w", page, err)
		}

		for _, item := range list.Items {
			if !item.Burnt {
				continue
			}
			burned = append(burned, BurnedAsset{
				Mint:       item.ID,
				Name:       item.Content.Metadata.Name,
				Collection: resolveCollectionRef(item),
			})
		}

		if len(list.Items) < dasPageLimit {
			break
		}
	}
	return burned, nil
}

// resolveCollectionRef 在 RPC 边界把 grouping 的可选形态归一成 CollectionRef
func resolveCollectionRef(item dasAsset) CollectionRef {
	for _, g := range item.Grouping {
		if g.GroupKey != "collection" || g.GroupValue == "" {
			continue
		}
		verified := false
		if g.Verified != nil {
			verified = *g.Verified
		}
		return CollectionRef{Present: true, Key: g.GroupValue, Verified: verified}
	}
	return CollectionRef{}
}
