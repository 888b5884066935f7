package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"BurnUpgrade/internal/models"
)

// APIRecordSink 通过提交接口落库的 RecordSink（销毁 CLI 使用）
type APIRecordSink struct {
	baseURL string
	client  *http.Client
}

func NewAPIRecordSink(baseURL string) *APIRecordSink {
	return &APIRecordSink{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Record 把累积的销毁结果 POST 到 /api/burns
// 409 映射为 ErrAlreadyRecorded（永久错误），其余非 200 按可重试失败处理
func (s *APIRecordSink) Record(ctx context.Context, wallet string, outcomes []BatchOutcome, claims []UpgradeClaim) (int, error) {
	claimByMint := make(map[string]UpgradeClaim, len(claims))
	for _, c := range claims {
		claimByMint[c.BurnedMint] = c
	}

	req := models.SubmitBurnsRequest{WalletAddress: wallet}
	for _, o := range outcomes {
		for _, t := range o.Burned {
			req.Burns = append(req.Burns, models.BurnItem{
				MintAddress:          t.MintAddress,
				TransactionSignature: o.Signature,
				Name:                 t.DisplayName,
			})
			// 只带上已成功销毁部分的认领，保持 burns 和 upgrades 等长
			if c, ok := claimByMint[t.MintAddress]; ok {
				req.Upgrades = append(req.Upgrades, models.UpgradeItem{
					BurnedMint:  c.BurnedMint,
					UpgradeMint: c.UpgradeMint,
					UpgradeName: c.UpgradeName,
				})
			}
		}
	}
	if len(req.Upgrades) != len(req.Burns) {
		return 0, fmt.Errorf("%w: 认领数量 %d 与销毁数量 %d 不一致", ErrInvalidRequest, len(req.Upgrades), len(req.Burns))
	}

	body, err := json.Marshal(&req)
	if err != nil {
		return 0, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/burns", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var out models.SubmitBurnsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("解析响应失败 (status %d): %v", resp.StatusCode, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return out.Recorded, nil
	case http.StatusConflict:
		return 0, fmt.Errorf("%w: %s", ErrAlreadyRecorded, out.Error)
	default:
		return 0, fmt.Errorf("提交接口返回 %d: %s", resp.StatusCode, out.Error)
	}
}
