package db

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"BurnUpgrade/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	store := NewStore(conn)
	require.NoError(t, store.Migrate())
	return store
}

func strPtr(s string) *string { return &s }

func record(mint, wallet, sig string, target *string) models.BurnRecord {
	return models.BurnRecord{
		Mint:              mint,
		Name:              "NFT " + mint,
		BurntBy:           wallet,
		TXSignature:       sig,
		BurntAt:           time.Now(),
		UpgradeTargetMint: target,
	}
}

func TestInsertBurnRecords(t *testing.T) {
	store := newTestStore(t)

	err := store.InsertBurnRecords([]models.BurnRecord{
		record("mintA", "W1", "S1", strPtr("targetB")),
		record("mintC", "W1", "S1", nil),
	})
	require.NoError(t, err)

	recs, err := store.AllRecords()
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestInsertEmpty(t *testing.T) {
	store := newTestStore(t)
	err := store.InsertBurnRecords(nil)
	assert.ErrorIs(t, err, ErrEmptyInsert)
}

func TestDuplicateMintRejected(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.InsertBurnRecords([]models.BurnRecord{
		record("mintA", "W1", "S1", nil),
	}))

	err := store.InsertBurnRecords([]models.BurnRecord{
		record("mintA", "W2", "S2", nil),
	})
	assert.ErrorIs(t, err, ErrDuplicateRecord)

	recs, err := store.AllRecords()
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestDuplicateUpgradeTargetRejected(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.InsertBurnRecords([]models.BurnRecord{
		record("mintA", "W1", "S1", strPtr("targetX")),
	}))

	// 另一个销毁想认领同一个升级目标
	err := store.InsertBurnRecords([]models.BurnRecord{
		record("mintB", "W2", "S2", strPtr("targetX")),
	})
	assert.ErrorIs(t, err, ErrDuplicateRecord)
}

func TestNullUpgradeTargetsDoNotCollide(t *testing.T) {
	store := newTestStore(t)

	// 没有升级目标的记录可以有任意多条（NULL 不参与唯一约束）
	err := store.InsertBurnRecords([]models.BurnRecord{
		record("mintA", "W1", "S1", nil),
		record("mintB", "W1", "S1", nil),
		record("mintC", "W1", "S2", nil),
	})
	require.NoError(t, err)
}

func TestSharedSignatureAllowed(t *testing.T) {
	store := newTestStore(t)

	// 一笔交易可以批量销毁多个资产，签名允许重复
	err := store.InsertBurnRecords([]models.BurnRecord{
		record("mintA", "W1", "S1", nil),
		record("mintB", "W1", "S1", nil),
	})
	require.NoError(t, err)
}

func TestBatchIsAtomic(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.InsertBurnRecords([]models.BurnRecord{
		record("mintA", "W1", "S1", nil),
	}))

	// 批里混进一个重复 mint，整批都不能写入
	err := store.InsertBurnRecords([]models.BurnRecord{
		record("mintB", "W2", "S2", nil),
		record("mintA", "W2", "S2", nil),
		record("mintC", "W2", "S2", nil),
	})
	assert.ErrorIs(t, err, ErrDuplicateRecord)

	recs, err := store.AllRecords()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "mintA", recs[0].Mint)
	assert.Equal(t, "W1", recs[0].BurntBy)
}

func TestFindByMints(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.InsertBurnRecords([]models.BurnRecord{
		record("mintA", "W1", "S1", nil),
		record("mintB", "W1", "S1", nil),
	}))

	recs, err := store.FindByMints([]string{"mintA", "mintX"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "mintA", recs[0].Mint)

	recs, err = store.FindByMints(nil)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestFindClaimedUpgradeTargets(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.InsertBurnRecords([]models.BurnRecord{
		record("mintA", "W1", "S1", strPtr("targetX")),
		record("mintB", "W1", "S1", nil),
	}))

	recs, err := store.FindClaimedUpgradeTargets([]string{"targetX", "targetY"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "mintA", recs[0].Mint)
}

func TestFindUpgradeTargetsForWallet(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.InsertBurnRecords([]models.BurnRecord{
		record("mintA", "W1", "S1", strPtr("targetX")),
		record("mintB", "W1", "S2", nil),
		record("mintC", "W2", "S3", strPtr("targetY")),
	}))

	mints, err := store.FindUpgradeTargetsForWallet("W1")
	require.NoError(t, err)
	assert.Equal(t, []string{"targetX"}, mints)

	mints, err = store.FindUpgradeTargetsForWallet("W3")
	require.NoError(t, err)
	assert.Empty(t, mints)
}

func TestRateLimitTickets(t *testing.T) {
	store := newTestStore(t)

	window := 60 * time.Second
	for i := 0; i < 3; i++ {
		require.NoError(t, store.AddTicket("1.2.3.4", window))
	}
	require.NoError(t, store.AddTicket("5.6.7.8", window))

	n, err := store.CountRecentTickets("1.2.3.4", window)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = store.CountRecentTickets("9.9.9.9", window)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}
