package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"fundcore/core/events"
	"fundcore/core/types"
	"fundcore/crypto"
)

func memoryDSN() string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
}

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(memoryDSN()), &gorm.Config{})
	require.NoError(t, err)
	store, err := NewStore(db)
	require.NoError(t, err)
	return store, db
}

func appendN(t *testing.T, store *Store, n int) []Record {
	t.Helper()
	out := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		rec, err := store.Append(context.Background(), Entry{
			Entity: "FND",
			Kind:   "pool.buy",
			State:  []byte(fmt.Sprintf(`{"i":%d}`, i)),
			At:     uint64(1_700_000_000 + i),
		})
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func TestAppendLinksRecords(t *testing.T) {
	store, _ := newTestStore(t)
	recs := appendN(t, store, 3)

	require.Equal(t, uint64(1), recs[0].Seq)
	require.Empty(t, recs[0].PrevDigest)
	require.Equal(t, recs[0].Digest, recs[1].PrevDigest)
	require.Equal(t, recs[1].Digest, recs[2].PrevDigest)
	require.Len(t, recs[2].Digest, 64)

	seq, head := store.Head()
	require.Equal(t, uint64(3), seq)
	require.Equal(t, recs[2].Digest, head)
	require.NoError(t, store.Verify(context.Background()))
}

func TestVerifyDetectsTampering(t *testing.T) {
	store, db := newTestStore(t)
	appendN(t, store, 4)

	require.NoError(t, db.Model(&Record{}).Where("seq = ?", 2).Update("state", `{"i":99}`).Error)
	err := store.Verify(context.Background())
	require.ErrorIs(t, err, ErrChainBroken)
	require.Contains(t, err.Error(), "seq 2")
}

func TestVerifyDetectsGaps(t *testing.T) {
	store, db := newTestStore(t)
	appendN(t, store, 3)

	require.NoError(t, db.Where("seq = ?", 2).Delete(&Record{}).Error)
	require.ErrorIs(t, store.Verify(context.Background()), ErrChainBroken)
}

func TestReopenResumesFromHead(t *testing.T) {
	store, db := newTestStore(t)
	first := appendN(t, store, 2)

	reopened, err := NewStore(db)
	require.NoError(t, err)
	rec, err := reopened.Append(context.Background(), Entry{Entity: "FND", Kind: "oracle.nav", At: 1})
	require.NoError(t, err)
	require.Equal(t, uint64(3), rec.Seq)
	require.Equal(t, first[1].Digest, rec.PrevDigest)
	require.Equal(t, "null", rec.State)
	require.NoError(t, reopened.Verify(context.Background()))
}

func TestSinceReturnsOrderedTail(t *testing.T) {
	store, _ := newTestStore(t)
	appendN(t, store, 5)

	tail, err := store.Since(context.Background(), 2, 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	require.Equal(t, uint64(3), tail[0].Seq)
	require.Equal(t, uint64(4), tail[1].Seq)
}

func TestOpenRejectsUnknownDSN(t *testing.T) {
	_, err := Open("mysql://localhost/audit")
	require.ErrorIs(t, err, ErrUnsupportedDSN)
	_, err = Open("sqlite://")
	require.ErrorIs(t, err, ErrUnsupportedDSN)
}

func TestOpenSQLite(t *testing.T) {
	store, err := Open("sqlite://" + memoryDSN())
	require.NoError(t, err)
	defer store.Close()
	appendN(t, store, 1)
	require.NoError(t, store.Verify(context.Background()))
}

func TestHubDeliversToSubscribers(t *testing.T) {
	store, _ := newTestStore(t)
	ch, cancel := store.Hub().Subscribe(4)
	defer cancel()

	appendN(t, store, 2)
	for want := uint64(1); want <= 2; want++ {
		select {
		case rec := <-ch:
			require.Equal(t, want, rec.Seq)
		case <-time.After(time.Second):
			t.Fatalf("record %d not delivered", want)
		}
	}
}

func TestHubDropsForSlowSubscribers(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe(1)
	hub.Publish(Record{Seq: 1})
	hub.Publish(Record{Seq: 2})
	require.Equal(t, uint64(1), hub.Dropped())
	require.Equal(t, uint64(1), (<-ch).Seq)

	cancel()
	cancel()
	_, open := <-ch
	require.False(t, open)

	hub.Close()
	late, _ := hub.Subscribe(1)
	_, open = <-late
	require.False(t, open)
}

func TestSinkRecordsOperationsOnly(t *testing.T) {
	store, _ := newTestStore(t)
	sink := NewSink(store, nil)

	sink.Emit(events.Typed{Evt: &types.Event{Type: "pool.bought"}})
	sink.Emit(events.Operation{
		Kind:   "funds.create",
		Entity: "FND",
		Caller: crypto.ModuleAddress("admin"),
		State:  map[string]string{"token": "FND"},
		At:     1_700_000_000,
	})

	recs, err := store.Since(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "funds.create", recs[0].Kind)
	require.JSONEq(t, `{"token":"FND"}`, recs[0].State)
	require.NotEmpty(t, recs[0].Caller)
}
