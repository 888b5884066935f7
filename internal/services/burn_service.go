package services

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"BurnUpgrade/utils"
)

var (
	ErrAlreadyRecorded = errors.New("already recorded")
	ErrRecordingFailed = errors.New("recording failed")
)

// BurnTarget 待销毁资产（调用方输入，不落库）
type BurnTarget struct {
	MintAddress string
	DisplayName string
}

// UpgradeClaim 升级认领：一个被销毁的 mint 配对一个升级目标 mint
type UpgradeClaim struct {
	BurnedMint  string
	UpgradeMint string
	UpgradeName string
}

// BatchOutcome 单批销毁的链上结果，跨批累积，后面批次失败也不丢弃
type BatchOutcome struct {
	Signature string
	Burned    []BurnTarget
}

// SplitBatches 把 N 个目标按每批容量 K 切成 ceil(N/K) 组，保持输入顺序
// 纯函数，K<=0 或空输入返回 ErrInvalidRequest
func SplitBatches(targets []BurnTarget, k int) ([][]BurnTarget, error) {
	if k <= 0 || len(targets) == 0 {
		return nil, ErrInvalidRequest
	}
	var batches [][]BurnTarget
	for i := 0; i < len(targets); i += k {
		end := i + k
		if end > len(targets) {
			end = len(targets)
		}
		batches = append(batches, targets[i:end])
	}
	return batches, nil
}

// BurnChain 执行器依赖的链上操作（ChainClient 实现，测试用假实现）
type BurnChain interface {
	AssetExists(ctx context.Context, mint solana.PublicKey) (bool, error)
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	BroadcastTx(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	WaitConfirmed(ctx context.Context, sig solana.Signature, timeout time.Duration) error
	WaitFinalized(ctx context.Context, sig solana.Signature, timeout time.Duration) error
}

// RecordSink 记录落地的出口：CLI 里是提交接口的 HTTP 客户端
// 返回成功写入的条数；冲突用 ErrAlreadyRecorded 区分
type RecordSink interface {
	Record(ctx context.Context, wallet string, outcomes []BatchOutcome, claims []UpgradeClaim) (int, error)
}

// Recorder 把链上已成功的销毁持久化，带重试
// 传输层失败重试 3 次（固定 1 秒间隔）；冲突是永久错误，不重试
type Recorder struct {
	sink   RecordSink
	policy retryPolicy
	log    *utils.Logger
}

func NewRecorder(sink RecordSink) *Recorder {
	return &Recorder{
		sink: sink,
		policy: retryPolicy{
			maxAttempts: 3,
			delay:       time.Second,
			permanent:   []error{ErrAlreadyRecorded},
		},
		log: utils.DefaultLogger,
	}
}

// Record 持久化累积的销毁结果
// 重试耗尽后返回 ErrRecordingFailed，并带上交易签名供人工对账
func (r *Recorder) Record(ctx context.Context, wallet string, outcomes []BatchOutcome, claims []UpgradeClaim) (int, error) {
	if len(outcomes) == 0 {
		return 0, nil
	}

	var recorded int
	err := r.policy.run(ctx, func() error {
		n, err := r.sink.Record(ctx, wallet, outcomes, claims)
		if err != nil {
			r.log.Warn("记录销毁结果失败，准备重试: %v", err)
			return err
		}
		recorded = n
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyRecorded) {
			// 真重复，重试不可能成功，按已记录冲突向上报告
			return 0, fmt.Errorf("%w: %v", ErrAlreadyRecorded, err)
		}
		sigs := make([]string, 0, len(outcomes))
		for _, o := range outcomes {
			sigs = append(sigs, o.Signature)
		}
		// 链上已销毁但未能落库：最严重的一类，带签名交人工处理
		return 0, fmt.Errorf("%w: 资产已在链上销毁但记录失败，请凭签名人工对账 %v: %v", ErrRecordingFailed, sigs, err)
	}
	return recorded, nil
}

// BurnFlow 持有人销毁流程：分批 → 逐批销毁确认 → 统一记录
// 批次严格串行，后一批是否执行取决于前一批的结果
type BurnFlow struct {
	chain          BurnChain
	recorder       *Recorder
	wallet         solana.PublicKey
	signTx         func(*solana.Transaction) error
	batchSize      int
	confirmTimeout time.Duration
	onProgress     func(burned, total int)
	log            *utils.Logger
}

func NewBurnFlow(chain BurnChain, recorder *Recorder, wallet solana.PublicKey, signTx func(*solana.Transaction) error, batchSize int) *BurnFlow {
	return &BurnFlow{
		chain:          chain,
		recorder:       recorder,
		wallet:         wallet,
		signTx:         signTx,
		batchSize:      batchSize,
		confirmTimeout: 60 * time.Second,
		log:            utils.DefaultLogger,
	}
}

// OnProgress 设置进度回调（当前已销毁数 / 总数）
func (f *BurnFlow) OnProgress(fn func(burned, total int)) {
	f.onProgress = fn
}

// RunResult 整个多批销毁流程的最终结果
type RunResult struct {
	Outcomes []BatchOutcome // 链上已成功的部分（可能是请求的子集）
	Burned   int            // 已销毁数量
	Recorded int            // 已落库数量
	Total    int            // 请求总数
}

// Run 执行完整销毁流程
// 某一批失败时立即停止后续批次，但会先把已累积的成功结果送去记录，再向上抛错
// （销毁不可逆，部分成功的进度绝不能因为后面批次失败而丢失）
func (f *BurnFlow) Run(ctx context.Context, targets []BurnTarget, claims []UpgradeClaim) (*RunResult, error) {
	if err := validateClaims(targets, claims); err != nil {
		return nil, err
	}

	batches, err := SplitBatches(targets, f.batchSize)
	if err != nil {
		return nil, err
	}

	result := &RunResult{Total: len(targets)}

	for i, batch := range batches {
		sig, err := f.burnBatch(ctx, batch)
		if err != nil {
			// 先记录已累积的成功部分，再报错
			recorded, recErr := f.recorder.Record(ctx, f.wallet.String(), result.Outcomes, claims)
			if recErr != nil {
				f.log.Error("批次 %d 失败后的补记录也失败了: %v", i+1, recErr)
			}
			result.Recorded = recorded
			remaining := result.Total - result.Burned
			return result, fmt.Errorf("批次 %d/%d 失败: %w（已销毁并记录 %d 个，剩余 %d 个未销毁）",
				i+1, len(batches), err, recorded, remaining)
		}

		result.Outcomes = append(result.Outcomes, BatchOutcome{
			Signature: sig.String(),
			Burned:    batch,
		})
		result.Burned += len(batch)
		if f.onProgress != nil {
			f.onProgress(result.Burned, result.Total)
		}

		// finalized 等待是尽力而为：超时只记日志，不影响流程
		go func(s solana.Signature) {
			fctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
			defer cancel()
			if err := f.chain.WaitFinalized(fctx, s, 90*time.Second); err != nil {
				f.log.Warn("交易 %s 等待 finalized 超时（不影响结果）: %v", s.String(), err)
			}
		}(sig)
	}

	recorded, err := f.recorder.Record(ctx, f.wallet.String(), result.Outcomes, claims)
	result.Recorded = recorded
	if err != nil {
		return result, err
	}
	return result, nil
}

// burnBatch 处理一个批次：逐个确认资产还在链上，构造一笔含全部销毁指令的交易，
// 广播并等待 confirmed
func (f *BurnFlow) burnBatch(ctx context.Context, batch []BurnTarget) (solana.Signature, error) {
	instructions := make([]solana.Instruction, 0, len(batch))
	for _, target := range batch {
		mint, err := solana.PublicKeyFromBase58(target.MintAddress)
		if err != nil {
			return solana.Signature{}, fmt.Errorf("%w: %s", ErrInvalidRequest, target.MintAddress)
		}

		exists, err := f.chain.AssetExists(ctx, mint)
		if err != nil {
			return solana.Signature{}, fmt.Errorf("检查资产 %s 失败: %w", target.MintAddress, err)
		}
		if !exists {
			// 已销毁或已消失的资产绝不能再发销毁指令
			return solana.Signature{}, fmt.Errorf("%w: %s", ErrAssetNotFound, target.MintAddress)
		}

		ins, err := buildBurnInstruction(mint, f.wallet)
		if err != nil {
			return solana.Signature{}, err
		}
		instructions = append(instructions, ins)
	}

	blockhash, err := f.chain.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}

	tx, err := solana.NewTransaction(
		instructions,
		blockhash,
		solana.TransactionPayer(f.wallet),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("构造交易失败: %v", err)
	}

	if err := f.signTx(tx); err != nil {
		return solana.Signature{}, fmt.Errorf("签名失败: %v", err)
	}

	sig, err := f.chain.BroadcastTx(ctx, tx)
	if err != nil {
		return solana.Signature{}, err
	}

	if err := f.chain.WaitConfirmed(ctx, sig, f.confirmTimeout); err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}

// buildBurnInstruction 构造 SPL Token Burn 指令
// Token Burn 指令格式：
// instruction discriminator: 8 (Burn)
// amount: 8 bytes (uint64, little-endian)，NFT 固定为 1
func buildBurnInstruction(mint, owner solana.PublicKey) (solana.Instruction, error) {
	tokenAccount, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("推导 %s 的 token account 失败: %v", mint.String(), err)
	}

	data := make([]byte, 9)
	data[0] = 8 // Burn
	binary.LittleEndian.PutUint64(data[1:9], 1)

	accounts := solana.AccountMetaSlice{
		{PublicKey: tokenAccount, IsSigner: false, IsWritable: true}, // Token account
		{PublicKey: mint, IsSigner: false, IsWritable: true},         // Mint
		{PublicKey: owner, IsSigner: true, IsWritable: false},        // Owner (authority)
	}

	return solana.NewInstruction(solana.TokenProgramID, accounts, data), nil
}

// validateClaims 认领合法性检查（在任何链上调用之前执行）：
// 每个销毁目标必须恰好配对一个认领；升级目标不能同时被销毁；目标不能重复
// 提交接口要求 upgrades 和 burns 等长，这里提前拦住，免得销毁成功后记录被永久拒绝
func validateClaims(targets []BurnTarget, claims []UpgradeClaim) error {
	if len(claims) != len(targets) {
		return fmt.Errorf("%w: 认领数量 %d 与销毁数量 %d 不一致", ErrInvalidRequest, len(claims), len(targets))
	}

	burnSet := make(map[string]bool, len(targets))
	for _, t := range targets {
		burnSet[t.MintAddress] = true
	}

	seenBurned := make(map[string]bool, len(claims))
	seenTargets := make(map[string]bool, len(claims))
	for _, c := range claims {
		if !burnSet[c.BurnedMint] {
			return fmt.Errorf("%w: 认领的 %s 不在销毁列表中", ErrInvalidRequest, c.BurnedMint)
		}
		if seenBurned[c.BurnedMint] {
			return fmt.Errorf("%w: %s 被认领了多次", ErrInvalidRequest, c.BurnedMint)
		}
		seenBurned[c.BurnedMint] = true
		if burnSet[c.UpgradeMint] {
			return fmt.Errorf("%w: 升级目标 %s 不能同时被销毁", ErrInvalidRequest, c.UpgradeMint)
		}
		if seenTargets[c.UpgradeMint] {
			return fmt.Errorf("%w: 升级目标 %s 重复", ErrInvalidRequest, c.UpgradeMint)
		}
		seenTargets[c.UpgradeMint] = true
	}
	return nil
}
