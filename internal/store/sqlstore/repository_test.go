package sqlstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"billbuddy/internal/core"
	"billbuddy/internal/store"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db", "billbuddy.db")
	repo, err := Open(context.Background(), SQLite, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func pizza() core.EqualSplitEntry {
	return core.EqualSplitEntry{ID: "e1", Label: "Pizza", Amount: 250, Payer: "John", SharedWith: []string{"Alice", "Bob"}}
}

func drinks() core.ItemizedSplitEntry {
	return core.ItemizedSplitEntry{ID: "i1", Label: "Drinks", Amount: 30, Payer: "Alice", Costs: []core.ItemizedCost{
		{Person: "Bob", Label: "soda", Cost: 10}, {Person: "Dan", Label: "mojito", Cost: 20},
	}}
}

func TestRebind(t *testing.T) {
	pg := &Repository{dialect: Postgres}
	if got := pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"); got != "SELECT a FROM t WHERE x = $1 AND y = $2" {
		t.Errorf("postgres rebind = %q", got)
	}
	lite := &Repository{dialect: SQLite}
	if got := lite.rebind("x = ?"); got != "x = ?" {
		t.Errorf("sqlite rebind = %q", got)
	}
}

func TestOpenRejectsUnknownDialect(t *testing.T) {
	if _, err := Open(context.Background(), Dialect("mysql"), "x"); err == nil {
		t.Fatal("expected error for unknown dialect")
	}
}

func TestRepositoryEmptySnapshot(t *testing.T) {
	repo := newTestRepository(t)
	st, err := repo.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if st.Revision != 0 || len(st.Equal) != 0 || len(st.Itemized) != 0 || len(st.People) != 0 {
		t.Fatalf("expected empty state, got %+v", st)
	}
	if st.Equal == nil || st.Itemized == nil || st.People == nil {
		t.Fatal("empty lists should be non-nil")
	}
}

func TestRepositoryAddAndSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	if rev, err := repo.AddEqual(ctx, pizza()); err != nil || rev != 1 {
		t.Fatalf("AddEqual rev=%d err=%v", rev, err)
	}
	if rev, err := repo.AddItemized(ctx, drinks()); err != nil || rev != 2 {
		t.Fatalf("AddItemized rev=%d err=%v", rev, err)
	}
	if _, err := repo.AddEqual(ctx, pizza()); !errors.Is(err, store.ErrDuplicateID) {
		t.Fatalf("expected duplicate id error, got %v", err)
	}

	st, err := repo.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if st.Revision != 2 {
		t.Errorf("revision = %d, want 2", st.Revision)
	}
	if !reflect.DeepEqual(st.Equal, []core.EqualSplitEntry{pizza()}) {
		t.Errorf("equal = %+v", st.Equal)
	}
	if !reflect.DeepEqual(st.Itemized, []core.ItemizedSplitEntry{drinks()}) {
		t.Errorf("itemized = %+v", st.Itemized)
	}
	if want := []string{"John", "Alice", "Bob", "Dan"}; !reflect.DeepEqual(st.People, want) {
		t.Errorf("people = %v, want %v", st.People, want)
	}
}

func TestRepositoryKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	ids := []string{"z", "a", "m"}
	for _, id := range ids {
		e := pizza()
		e.ID = id
		if _, err := repo.AddEqual(ctx, e); err != nil {
			t.Fatalf("AddEqual %s: %v", id, err)
		}
	}

	st, _ := repo.Snapshot(ctx)
	for i, id := range ids {
		if st.Equal[i].ID != id {
			t.Fatalf("entry %d = %s, want %s", i, st.Equal[i].ID, id)
		}
	}
}

func TestRepositorySharersAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	_, _ = repo.AddEqual(ctx, pizza())

	if _, err := repo.AddSharer(ctx, "e1", "Charlie"); err != nil {
		t.Fatalf("AddSharer: %v", err)
	}
	if _, err := repo.AddSharer(ctx, "e1", "Charlie"); !errors.Is(err, store.ErrAlreadySharing) {
		t.Fatalf("expected ErrAlreadySharing for duplicate, got %v", err)
	}
	if _, err := repo.AddSharer(ctx, "e1", "John"); !errors.Is(err, store.ErrAlreadySharing) {
		t.Fatalf("expected ErrAlreadySharing for payer, got %v", err)
	}
	if _, err := repo.AddSharer(ctx, "missing", "Zed"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.RemoveSharer(ctx, "e1", "Alice"); err != nil {
		t.Fatalf("RemoveSharer: %v", err)
	}
	if _, err := repo.RemoveSharer(ctx, "missing", "Alice"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	st, _ := repo.Snapshot(ctx)
	if want := []string{"Bob", "Charlie"}; !reflect.DeepEqual(st.Equal[0].SharedWith, want) {
		t.Fatalf("sharers = %v, want %v", st.Equal[0].SharedWith, want)
	}
	if want := []string{"John", "Alice", "Bob", "Charlie"}; !reflect.DeepEqual(st.People, want) {
		t.Fatalf("roster = %v, want %v", st.People, want)
	}

	if _, err := repo.DeleteEqual(ctx, "e1"); err != nil {
		t.Fatalf("DeleteEqual: %v", err)
	}
	if _, err := repo.DeleteEqual(ctx, "e1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	st, _ = repo.Snapshot(ctx)
	if len(st.Equal) != 0 {
		t.Fatalf("entry not deleted: %+v", st.Equal)
	}
	if len(st.People) != 4 {
		t.Fatalf("delete should leave roster untouched, got %v", st.People)
	}
}

func TestRepositoryDeleteItemizedRemovesCosts(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	_, _ = repo.AddItemized(ctx, drinks())

	if _, err := repo.DeleteItemized(ctx, "i1"); err != nil {
		t.Fatalf("DeleteItemized: %v", err)
	}

	var n int
	if err := repo.db.QueryRow(`SELECT COUNT(*) FROM itemized_costs`).Scan(&n); err != nil {
		t.Fatalf("count costs: %v", err)
	}
	if n != 0 {
		t.Fatalf("orphaned costs: %d", n)
	}
}

func TestRepositoryFailedMutationKeepsRevision(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	_, _ = repo.AddEqual(ctx, pizza())
	_, _ = repo.DeleteEqual(ctx, "missing")
	_, _ = repo.AddSharer(ctx, "e1", "John")

	st, _ := repo.Snapshot(ctx)
	if st.Revision != 1 {
		t.Fatalf("revision = %d, want 1", st.Revision)
	}
}

func TestRepositoryReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "billbuddy.db")

	repo, err := Open(ctx, SQLite, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, _ = repo.AddEqual(ctx, pizza())
	repo.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file missing: %v", err)
	}

	repo, err = Open(ctx, SQLite, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer repo.Close()

	st, _ := repo.Snapshot(ctx)
	if len(st.Equal) != 1 || st.Revision != 1 {
		t.Fatalf("unexpected state after reopen: %+v", st)
	}
}

func TestRepositoryConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := pizza()
			e.ID = string(rune('a' + i))
			if _, err := repo.AddEqual(ctx, e); err != nil {
				t.Errorf("AddEqual: %v", err)
			}
		}(i)
	}
	wg.Wait()

	st, _ := repo.Snapshot(ctx)
	if len(st.Equal) != 10 || st.Revision != 10 {
		t.Fatalf("entries=%d revision=%d", len(st.Equal), st.Revision)
	}
}

func TestRepositoryPostgres(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	repo, err := Open(ctx, Postgres, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer repo.Close()

	e := pizza()
	e.ID = "pg-" + t.Name()
	if _, err := repo.AddEqual(ctx, e); err != nil {
		t.Fatalf("AddEqual: %v", err)
	}
	defer repo.DeleteEqual(ctx, e.ID)

	st, err := repo.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	found := false
	for _, got := range st.Equal {
		if got.ID == e.ID {
			found = reflect.DeepEqual(got, e)
		}
	}
	if !found {
		t.Fatalf("entry %s not found in %+v", e.ID, st.Equal)
	}
}
