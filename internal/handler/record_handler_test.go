package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"BurnUpgrade/internal/db"
	"BurnUpgrade/internal/models"
)

type fakeVerifier struct {
	err   error
	calls int
}

func (f *fakeVerifier) VerifyBurnTransaction(_ context.Context, _ solana.Signature, _ solana.PublicKey, _ []solana.PublicKey) error {
	f.calls++
	return f.err
}

type testEnv struct {
	router   *gin.Engine
	store    *db.Store
	verifier *fakeVerifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	store := db.NewStore(conn)
	require.NoError(t, store.Migrate())

	verifier := &fakeVerifier{}
	h := New(store, verifier, false)
	router := gin.New()
	RegisterRoutes(router, h, []string{"https://burn.example.com"})
	return &testEnv{router: router, store: store, verifier: verifier}
}

func newMint() string {
	return solana.NewWallet().PublicKey().String()
}

func sigStr(b byte) string {
	var s solana.Signature
	s[0] = b
	return s.String()
}

func (e *testEnv) post(t *testing.T, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/burns", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeResp(t *testing.T, w *httptest.ResponseRecorder) models.SubmitBurnsResponse {
	t.Helper()
	var resp models.SubmitBurnsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSubmitBurnsHappyPath(t *testing.T) {
	env := newTestEnv(t)
	wallet, mintA, mintB := newMint(), newMint(), newMint()
	s1 := sigStr(1)

	w := env.post(t, models.SubmitBurnsRequest{
		WalletAddress: wallet,
		Burns: []models.BurnItem{
			{MintAddress: mintA, TransactionSignature: s1, Name: "NFT A"},
		},
		Upgrades: []models.UpgradeItem{
			{BurnedMint: mintA, UpgradeMint: mintB, UpgradeName: "NFT B"},
		},
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeResp(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Recorded)
	assert.Equal(t, 1, env.verifier.calls)

	recs, err := env.store.AllRecords()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, mintA, recs[0].Mint)
	assert.Equal(t, "NFT A", recs[0].Name)
	assert.Equal(t, wallet, recs[0].BurntBy)
	assert.Equal(t, s1, recs[0].TXSignature)
	require.NotNil(t, recs[0].UpgradeTargetMint)
	assert.Equal(t, mintB, *recs[0].UpgradeTargetMint)
	assert.Equal(t, "NFT B", recs[0].UpgradeTargetName)
}

func TestSubmitBurnsDuplicateIsConflict(t *testing.T) {
	env := newTestEnv(t)
	wallet, mintA, mintB := newMint(), newMint(), newMint()

	req := models.SubmitBurnsRequest{
		WalletAddress: wallet,
		Burns: []models.BurnItem{
			{MintAddress: mintA, TransactionSignature: sigStr(1), Name: "NFT A"},
		},
		Upgrades: []models.UpgradeItem{
			{BurnedMint: mintA, UpgradeMint: mintB, UpgradeName: "NFT B"},
		},
	}

	require.Equal(t, http.StatusOK, env.post(t, req).Code)

	// 同一请求再提交一次：预检发现 mint 已有记录，409，不再尝试写入
	w := env.post(t, req)
	require.Equal(t, http.StatusConflict, w.Code)
	resp := decodeResp(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "Already recorded: "+mintA, resp.Error)

	recs, err := env.store.AllRecords()
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestSubmitBurnsClaimedTargetConflict(t *testing.T) {
	env := newTestEnv(t)
	wallet, target := newMint(), newMint()

	// 先有一条记录把 target 认领走了
	claimed := target
	require.NoError(t, env.store.InsertBurnRecords([]models.BurnRecord{{
		Mint:              newMint(),
		BurntBy:           newMint(),
		TXSignature:       sigStr(7),
		BurntAt:           time.Now(),
		UpgradeTargetMint: &claimed,
	}}))

	mintNew := newMint()
	w := env.post(t, models.SubmitBurnsRequest{
		WalletAddress: wallet,
		Burns: []models.BurnItem{
			{MintAddress: mintNew, TransactionSignature: sigStr(2), Name: "NFT"},
		},
		Upgrades: []models.UpgradeItem{
			{BurnedMint: mintNew, UpgradeMint: target},
		},
	})

	require.Equal(t, http.StatusConflict, w.Code)
	resp := decodeResp(t, w)
	assert.Contains(t, resp.Error, "Already recorded: "+target)

	// 没有产生新记录
	recs, err := env.store.AllRecords()
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestSubmitBurnsSelfClaimRejected(t *testing.T) {
	env := newTestEnv(t)
	wallet, mintA, mintB := newMint(), newMint(), newMint()

	w := env.post(t, models.SubmitBurnsRequest{
		WalletAddress: wallet,
		Burns: []models.BurnItem{
			{MintAddress: mintA, TransactionSignature: sigStr(1)},
			{MintAddress: mintB, TransactionSignature: sigStr(1)},
		},
		Upgrades: []models.UpgradeItem{
			{BurnedMint: mintA, UpgradeMint: mintB}, // 目标同时在销毁列表里
			{BurnedMint: mintB, UpgradeMint: newMint()},
		},
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	// 校验失败必须发生在任何链上或存储调用之前
	assert.Zero(t, env.verifier.calls)
	recs, err := env.store.AllRecords()
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSubmitBurnsValidation(t *testing.T) {
	mintA, mintB := newMint(), newMint()
	wallet := newMint()

	tests := []struct {
		name string
		req  models.SubmitBurnsRequest
	}{
		{"钱包地址不合法", models.SubmitBurnsRequest{
			WalletAddress: "not-an-address",
			Burns:         []models.BurnItem{{MintAddress: mintA, TransactionSignature: sigStr(1)}},
			Upgrades:      []models.UpgradeItem{{BurnedMint: mintA, UpgradeMint: mintB}},
		}},
		{"mint 地址不合法", models.SubmitBurnsRequest{
			WalletAddress: wallet,
			Burns:         []models.BurnItem{{MintAddress: "bogus", TransactionSignature: sigStr(1)}},
			Upgrades:      []models.UpgradeItem{{BurnedMint: "bogus", UpgradeMint: mintB}},
		}},
		{"销毁列表里有重复 mint", models.SubmitBurnsRequest{
			WalletAddress: wallet,
			Burns: []models.BurnItem{
				{MintAddress: mintA, TransactionSignature: sigStr(1)},
				{MintAddress: mintA, TransactionSignature: sigStr(1)},
			},
			Upgrades: []models.UpgradeItem{
				{BurnedMint: mintA, UpgradeMint: mintB},
				{BurnedMint: mintA, UpgradeMint: newMint()},
			},
		}},
		{"upgrades 数量和 burns 不一致", models.SubmitBurnsRequest{
			WalletAddress: wallet,
			Burns:         []models.BurnItem{{MintAddress: mintA, TransactionSignature: sigStr(1)}},
			Upgrades:      nil,
		}},
		{"升级目标重复", models.SubmitBurnsRequest{
			WalletAddress: wallet,
			Burns: []models.BurnItem{
				{MintAddress: mintA, TransactionSignature: sigStr(1)},
				{MintAddress: newMint(), TransactionSignature: sigStr(1)},
			},
			Upgrades: []models.UpgradeItem{
				{BurnedMint: mintA, UpgradeMint: mintB},
				{BurnedMint: mintA, UpgradeMint: mintB},
			},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.post(t, tt.req)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Zero(t, env.verifier.calls)
		})
	}
}

func TestSubmitBurnsChainVerificationFails(t *testing.T) {
	env := newTestEnv(t)
	env.verifier.err = errors.New("fee payer mismatch")
	mintA := newMint()

	w := env.post(t, models.SubmitBurnsRequest{
		WalletAddress: newMint(),
		Burns:         []models.BurnItem{{MintAddress: mintA, TransactionSignature: sigStr(1)}},
		Upgrades:      []models.UpgradeItem{{BurnedMint: mintA, UpgradeMint: newMint()}},
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResp(t, w)
	assert.Contains(t, resp.Error, "transaction verification failed")

	recs, err := env.store.AllRecords()
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSubmitBurnsWrongContentType(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/burns", bytes.NewReader([]byte("mint=abc")))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestSubmitBurnsBodyTooLarge(t *testing.T) {
	env := newTestEnv(t)
	big := bytes.Repeat([]byte("a"), 51*1024)
	req := httptest.NewRequest(http.MethodPost, "/api/burns", bytes.NewReader(big))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestSubmitBurnsOriginRejected(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/burns", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// 白名单里的来源放行（走到后面的校验，不是 403）
	req = httptest.NewRequest(http.MethodPost, "/api/burns", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://burn.example.com")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.NotEqual(t, http.StatusForbidden, w.Code)
}

func TestSubmitBurnsRateLimited(t *testing.T) {
	env := newTestEnv(t)

	// 窗口内前 5 次放行（无论业务结果如何），第 6 次 429
	for i := 0; i < 5; i++ {
		w := env.post(t, models.SubmitBurnsRequest{})
		assert.NotEqual(t, http.StatusTooManyRequests, w.Code, "第 %d 次不应被限流", i+1)
	}
	w := env.post(t, models.SubmitBurnsRequest{})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestGetUpgradeTargets(t *testing.T) {
	env := newTestEnv(t)
	wallet, target := newMint(), newMint()

	claimed := target
	require.NoError(t, env.store.InsertBurnRecords([]models.BurnRecord{{
		Mint:              newMint(),
		BurntBy:           wallet,
		TXSignature:       sigStr(3),
		BurntAt:           time.Now(),
		UpgradeTargetMint: &claimed,
	}}))

	req := httptest.NewRequest(http.MethodGet, "/api/upgrade-targets/"+wallet, nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.UpgradeTargetsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, wallet, resp.Wallet)
	assert.Equal(t, []string{target}, resp.Mints)

	// 不合法的钱包地址
	req = httptest.NewRequest(http.MethodGet, "/api/upgrade-targets/nope", nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
