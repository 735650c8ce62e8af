package board_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/squares/board"
	"github.com/jacentio/squares/internal/memstore"
	"github.com/jacentio/squares/store"
)

// setupBoard provisions a board on a fresh memstore.
func setupBoard(t *testing.T, in board.ProvisionInput) (*memstore.Store, string) {
	t.Helper()
	repo := memstore.New()
	id, err := board.NewProvisioner(repo, nil, nil).Provision(context.Background(), in)
	require.NoError(t, err)
	return repo, id
}

func intPtr(n int) *int           { return &n }
func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool        { return &b }
func squares(ns ...int) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = fmt.Sprint(n)
	}
	return out
}

func requireKind(t *testing.T, err error, kind error) *board.Error {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, kind)
	var e *board.Error
	require.True(t, errors.As(err, &e), "expected *board.Error, got %T", err)
	return e
}

// assertConsistent checks that taken squares partition cleanly by claim and
// that every claim lists exactly the squares pointing back at it.
func assertConsistent(t *testing.T, repo *memstore.Store, boardID string) {
	t.Helper()
	owners := repo.Owners(boardID)

	fromClaims := make(map[string]string)
	for _, c := range repo.Claims(boardID) {
		if c.Status == board.ClaimVoid {
			assert.Empty(t, c.SquareIDs, "void claim %s lists squares", c.ID)
			continue
		}
		for _, id := range c.SquareIDs {
			prev, dup := fromClaims[id]
			assert.False(t, dup, "square %s listed by claims %s and %s", id, prev, c.ID)
			fromClaims[id] = c.ID
		}
	}
	assert.Equal(t, owners, fromClaims)
}

func TestClaim_Validation(t *testing.T) {
	repo, id := setupBoard(t, board.ProvisionInput{BoardID: "b1", MaxSquaresPerOrder: intPtr(10)})
	c := board.NewClaimer(repo, board.ClaimerOptions{})
	ctx := context.Background()

	t.Run("empty display name", func(t *testing.T) {
		_, err := c.Claim(ctx, board.ClaimRequest{BoardID: id, DisplayName: "  ", Squares: squares(1)})
		e := requireKind(t, err, board.ErrBadRequest)
		assert.Contains(t, e.Message, "displayName")
	})

	t.Run("no squares", func(t *testing.T) {
		_, err := c.Claim(ctx, board.ClaimRequest{BoardID: id, DisplayName: "Alice"})
		requireKind(t, err, board.ErrBadRequest)
	})

	t.Run("only blank squares", func(t *testing.T) {
		_, err := c.Claim(ctx, board.ClaimRequest{BoardID: id, DisplayName: "Alice", Squares: []string{" ", ""}})
		requireKind(t, err, board.ErrBadRequest)
	})

	t.Run("empty board id", func(t *testing.T) {
		_, err := c.Claim(ctx, board.ClaimRequest{DisplayName: "Alice", Squares: squares(1)})
		requireKind(t, err, board.ErrBadRequest)
	})

	t.Run("non-numeric square", func(t *testing.T) {
		_, err := c.Claim(ctx, board.ClaimRequest{BoardID: id, DisplayName: "Alice", Squares: []string{"abc"}})
		requireKind(t, err, board.ErrBadRequest)
	})

	t.Run("missing board", func(t *testing.T) {
		_, err := c.Claim(ctx, board.ClaimRequest{BoardID: "missing-board", DisplayName: "Alice", Squares: squares(1)})
		requireKind(t, err, board.ErrNotFound)
	})

	t.Run("over max per order", func(t *testing.T) {
		_, err := c.Claim(ctx, board.ClaimRequest{
			BoardID:     id,
			DisplayName: "Alice",
			Squares:     squares(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11),
		})
		e := requireKind(t, err, board.ErrBadRequest)
		assert.Contains(t, e.Message, "10")
	})

	t.Run("square outside board", func(t *testing.T) {
		_, err := c.Claim(ctx, board.ClaimRequest{BoardID: id, DisplayName: "Alice", Squares: squares(5, 101)})
		e := requireKind(t, err, board.ErrNotFound)
		assert.Contains(t, e.Message, "101")
	})

	// None of the rejections above may leave anything behind.
	assert.Empty(t, repo.Owners(id))
	assert.Empty(t, repo.Claims(id))
}

func TestClaim_InactiveBoard(t *testing.T) {
	repo, id := setupBoard(t, board.ProvisionInput{BoardID: "closed", Status: board.BoardClosed})
	c := board.NewClaimer(repo, board.ClaimerOptions{})

	_, err := c.Claim(context.Background(), board.ClaimRequest{BoardID: id, DisplayName: "Alice", Squares: squares(1)})
	requireKind(t, err, board.ErrInvalidState)
	assert.Empty(t, repo.Claims(id))
}

func TestClaim_Success(t *testing.T) {
	repo, id := setupBoard(t, board.ProvisionInput{BoardID: "b1"})
	c := board.NewClaimer(repo, board.ClaimerOptions{})

	res, err := c.Claim(context.Background(), board.ClaimRequest{
		BoardID:     id,
		DisplayName: "  Alice ",
		Squares:     []string{"3", "1", "002", "3"},
	})
	require.NoError(t, err)

	assert.Equal(t, "b1", res.BoardID)
	assert.Equal(t, "Alice", res.DisplayName)
	assert.Equal(t, []string{"001", "002", "003"}, res.Squares)
	assert.Equal(t, board.ClaimUnpaid, res.Status)
	assert.Len(t, res.ClaimID, 10)

	owners := repo.Owners(id)
	assert.Equal(t, map[string]string{"001": res.ClaimID, "002": res.ClaimID, "003": res.ClaimID}, owners)

	claims := repo.Claims(id)
	require.Len(t, claims, 1)
	assert.Equal(t, []string{"001", "002", "003"}, claims[0].SquareIDs)
	assert.Equal(t, board.ClaimUnpaid, claims[0].Status)
	assertConsistent(t, repo, id)
}

func TestClaim_ConflictListsTakenSquares(t *testing.T) {
	repo, id := setupBoard(t, board.ProvisionInput{BoardID: "b1"})
	c := board.NewClaimer(repo, board.ClaimerOptions{})
	ctx := context.Background()

	_, err := c.Claim(ctx, board.ClaimRequest{BoardID: id, DisplayName: "Alice", Squares: squares(1, 2, 3)})
	require.NoError(t, err)

	_, err = c.Claim(ctx, board.ClaimRequest{BoardID: id, DisplayName: "Bob", Squares: squares(2, 3, 4)})
	e := requireKind(t, err, board.ErrConflict)
	assert.Equal(t, []string{"002", "003"}, e.Taken)

	// Conflicts found before writing leave no claim behind.
	assert.Len(t, repo.Claims(id), 1)

	// Retrying with the remainder succeeds.
	res, err := c.Claim(ctx, board.ClaimRequest{BoardID: id, DisplayName: "Bob", Squares: squares(4)})
	require.NoError(t, err)
	assert.Equal(t, []string{"004"}, res.Squares)
	assertConsistent(t, repo, id)
}

func TestClaim_LostRaceTransactional(t *testing.T) {
	repo, id := setupBoard(t, board.ProvisionInput{BoardID: "b1"})
	alice := board.NewClaimer(repo, board.ClaimerOptions{Mode: board.ReserveTransactional})
	bob := board.NewClaimer(repo, board.ClaimerOptions{Mode: board.ReserveTransactional})
	ctx := context.Background()

	var fired atomic.Bool
	var bobErr error
	repo.SetHooks(memstore.Hooks{
		BeforeReserve: func(string, []board.Square) {
			// Bob slips in between Alice's read and her write.
			if fired.CompareAndSwap(false, true) {
				_, bobErr = bob.Claim(ctx, board.ClaimRequest{BoardID: id, DisplayName: "Bob", Squares: squares(42)})
			}
		},
	})

	_, err := alice.Claim(ctx, board.ClaimRequest{BoardID: id, DisplayName: "Alice", Squares: squares(41, 42, 43)})
	require.NoError(t, bobErr)
	e := requireKind(t, err, board.ErrConflict)
	assert.Equal(t, []string{"042"}, e.Taken)
	assert.Contains(t, e.Message, "race")

	// Nothing of Alice's claim survives.
	owners := repo.Owners(id)
	assert.Len(t, owners, 1)
	assert.NotEmpty(t, owners["042"])

	var void int
	for _, c := range repo.Claims(id) {
		if c.DisplayName == "Alice" {
			assert.Equal(t, board.ClaimVoid, c.Status)
			void++
		}
	}
	assert.Equal(t, 1, void)
	assertConsistent(t, repo, id)
}

func TestClaim_LostRaceSequential(t *testing.T) {
	repo, id := setupBoard(t, board.ProvisionInput{BoardID: "b1"})
	alice := board.NewClaimer(repo, board.ClaimerOptions{Mode: board.ReserveSequential})
	bob := board.NewClaimer(repo, board.ClaimerOptions{Mode: board.ReserveSequential})
	ctx := context.Background()

	var fired atomic.Bool
	var bobErr error
	repo.SetHooks(memstore.Hooks{
		BeforeReserve: func(_ string, sqs []board.Square) {
			if len(sqs) == 1 && sqs[0].Number == 3 {
				if fired.CompareAndSwap(false, true) {
					_, bobErr = bob.Claim(ctx, board.ClaimRequest{BoardID: id, DisplayName: "Bob", Squares: squares(3)})
				}
			}
		},
	})

	_, err := alice.Claim(ctx, board.ClaimRequest{BoardID: id, DisplayName: "Alice", Squares: squares(1, 2, 3, 4)})
	require.NoError(t, bobErr)
	e := requireKind(t, err, board.ErrConflict)
	assert.Equal(t, []string{"003"}, e.Taken)

	// Squares written before the lost race stay with Alice's claim, and the
	// claim row lists exactly those.
	owners := repo.Owners(id)
	require.Len(t, owners, 3)
	aliceClaim := owners["001"]
	assert.Equal(t, aliceClaim, owners["002"])
	assert.NotEqual(t, aliceClaim, owners["003"])
	assert.NotContains(t, owners, "004")

	for _, c := range repo.Claims(id) {
		if c.ID == aliceClaim {
			assert.Equal(t, []string{"001", "002"}, c.SquareIDs)
			assert.Equal(t, board.ClaimUnpaid, c.Status)
		}
	}
	assertConsistent(t, repo, id)
}

func TestClaim_LostRaceSequentialOnFirstSquare(t *testing.T) {
	repo, id := setupBoard(t, board.ProvisionInput{BoardID: "b1"})
	alice := board.NewClaimer(repo, board.ClaimerOptions{Mode: board.ReserveSequential})
	bob := board.NewClaimer(repo, board.ClaimerOptions{Mode: board.ReserveSequential})
	ctx := context.Background()

	var fired atomic.Bool
	repo.SetHooks(memstore.Hooks{
		BeforeReserve: func(string, []board.Square) {
			if fired.CompareAndSwap(false, true) {
				_, err := bob.Claim(ctx, board.ClaimRequest{BoardID: id, DisplayName: "Bob", Squares: squares(7)})
				require.NoError(t, err)
			}
		},
	})

	_, err := alice.Claim(ctx, board.ClaimRequest{BoardID: id, DisplayName: "Alice", Squares: squares(7, 8)})
	requireKind(t, err, board.ErrConflict)

	for _, c := range repo.Claims(id) {
		if c.DisplayName == "Alice" {
			assert.Equal(t, board.ClaimVoid, c.Status)
		}
	}
	assertConsistent(t, repo, id)
}

func TestClaim_BoardClosedAfterPolicyCheck(t *testing.T) {
	repo, id := setupBoard(t, board.ProvisionInput{BoardID: "b1"})
	c := board.NewClaimer(repo, board.ClaimerOptions{})
	ctx := context.Background()

	// Board status is read once, before any write. Closing the board later
	// does not reach into a claim already past that point.
	repo.SetHooks(memstore.Hooks{
		BeforeReserve: func(boardID string, _ []board.Square) {
			b, err := repo.GetBoard(ctx, boardID)
			require.NoError(t, err)
			b.Status = board.BoardClosed
			require.NoError(t, repo.PutBoard(ctx, b))
		},
	})

	res, err := c.Claim(ctx, board.ClaimRequest{BoardID: id, DisplayName: "Alice", Squares: squares(1)})
	require.NoError(t, err)
	assert.Equal(t, res.ClaimID, repo.Owners(id)["001"])
	assertConsistent(t, repo, id)

	_, err = c.Claim(ctx, board.ClaimRequest{BoardID: id, DisplayName: "Bob", Squares: squares(2)})
	requireKind(t, err, board.ErrInvalidState)
}

// conflictingRepo cancels every transactional reservation as if another
// transaction held one of its rows.
type conflictingRepo struct {
	*memstore.Store
}

func (conflictingRepo) ReserveSquares(context.Context, string, []board.Square, board.Reservation) error {
	return fmt.Errorf("%w: TransactionCanceledException", store.ErrTransactionConflict)
}

func TestClaim_TransactionConflictIsConflict(t *testing.T) {
	repo, id := setupBoard(t, board.ProvisionInput{BoardID: "b1"})
	rec := &fakeRecorder{}
	c := board.NewClaimer(conflictingRepo{repo}, board.ClaimerOptions{Recorder: rec})

	_, err := c.Claim(context.Background(), board.ClaimRequest{BoardID: id, DisplayName: "Alice", Squares: squares(4, 5)})
	e := requireKind(t, err, board.ErrConflict)
	assert.NotErrorIs(t, err, board.ErrInvalidState)
	assert.NotErrorIs(t, err, board.ErrStore)
	assert.Contains(t, e.Message, "retry")
	assert.Equal(t, []recordedClaim{{"conflict", 2}}, rec.claims)

	// Nothing was written, so the claim row is voided.
	assert.Empty(t, repo.Owners(id))
	claims := repo.Claims(id)
	require.Len(t, claims, 1)
	assert.Equal(t, board.ClaimVoid, claims[0].Status)
	assertConsistent(t, repo, id)
}

// countingRepo counts square reads and reports listed squares as missing.
type countingRepo struct {
	*memstore.Store
	missing map[int]bool
	reads   atomic.Int32
}

func (r *countingRepo) GetSquare(ctx context.Context, boardID string, n int) (*board.Square, error) {
	r.reads.Add(1)
	if r.missing[n] {
		return nil, store.ErrNotFound
	}
	return r.Store.GetSquare(ctx, boardID, n)
}

func TestClaim_ProbeStopsEarly(t *testing.T) {
	repo, id := setupBoard(t, board.ProvisionInput{BoardID: "b1"})
	ctx := context.Background()

	t.Run("out of range rejected before reads", func(t *testing.T) {
		counting := &countingRepo{Store: repo}
		c := board.NewClaimer(counting, board.ClaimerOptions{})

		many := make([]int, 10000)
		for i := range many {
			many[i] = i + 1
		}
		_, err := c.Claim(ctx, board.ClaimRequest{BoardID: id, DisplayName: "Alice", Squares: squares(many...)})
		e := requireKind(t, err, board.ErrNotFound)
		assert.Contains(t, e.Message, "101")
		assert.Zero(t, counting.reads.Load())
	})

	t.Run("missing square cancels remaining reads", func(t *testing.T) {
		counting := &countingRepo{Store: repo, missing: map[int]bool{1: true}}
		c := board.NewClaimer(counting, board.ClaimerOptions{ProbeConcurrency: 1})

		_, err := c.Claim(ctx, board.ClaimRequest{BoardID: id, DisplayName: "Alice", Squares: squares(1, 2, 3, 4, 5)})
		e := requireKind(t, err, board.ErrNotFound)
		assert.Contains(t, e.Message, "001")
		assert.Equal(t, int32(1), counting.reads.Load())
	})

	assert.Empty(t, repo.Claims(id))
}

func TestClaim_ConcurrentSameSquare(t *testing.T) {
	for _, mode := range []board.ReservationMode{board.ReserveTransactional, board.ReserveSequential} {
		t.Run(string(mode), func(t *testing.T) {
			repo, id := setupBoard(t, board.ProvisionInput{BoardID: "b1"})
			c := board.NewClaimer(repo, board.ClaimerOptions{Mode: mode})

			const n = 16
			var wg sync.WaitGroup
			errs := make([]error, n)
			start := make(chan struct{})
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					_, errs[i] = c.Claim(context.Background(), board.ClaimRequest{
						BoardID:     id,
						DisplayName: fmt.Sprintf("P%d", i),
						Squares:     squares(42),
					})
				}(i)
			}
			close(start)
			wg.Wait()

			var ok int
			for _, err := range errs {
				if err == nil {
					ok++
					continue
				}
				e := requireKind(t, err, board.ErrConflict)
				assert.Equal(t, []string{"042"}, e.Taken)
			}
			assert.Equal(t, 1, ok)
			assert.Len(t, repo.Owners(id), 1)
			assertConsistent(t, repo, id)
		})
	}
}

func TestClaim_ConcurrentDisjointSquares(t *testing.T) {
	repo, id := setupBoard(t, board.ProvisionInput{BoardID: "b1"})
	c := board.NewClaimer(repo, board.ClaimerOptions{})

	const n = 10
	var wg sync.WaitGroup
	results := make([]*board.ClaimResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			base := i*10 + 1
			results[i], errs[i] = c.Claim(context.Background(), board.ClaimRequest{
				BoardID:     id,
				DisplayName: fmt.Sprintf("P%d", i),
				Squares:     squares(base, base+1, base+2),
			})
		}(i)
	}
	wg.Wait()

	owners := repo.Owners(id)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		for _, sq := range results[i].Squares {
			assert.Equal(t, results[i].ClaimID, owners[sq])
		}
	}
	assert.Len(t, owners, 3*n)
	assertConsistent(t, repo, id)
}

func TestClaim_ConcurrentOverlappingStress(t *testing.T) {
	for _, mode := range []board.ReservationMode{board.ReserveTransactional, board.ReserveSequential} {
		t.Run(string(mode), func(t *testing.T) {
			repo, id := setupBoard(t, board.ProvisionInput{BoardID: "b1"})
			c := board.NewClaimer(repo, board.ClaimerOptions{Mode: mode})

			const n = 40
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					rng := rand.New(rand.NewSource(int64(i)))
					picks := make([]int, 1+rng.Intn(5))
					for j := range picks {
						picks[j] = 1 + rng.Intn(20)
					}
					_, err := c.Claim(context.Background(), board.ClaimRequest{
						BoardID:     id,
						DisplayName: fmt.Sprintf("P%d", i),
						Squares:     squares(picks...),
					})
					if err != nil {
						assert.ErrorIs(t, err, board.ErrConflict)
					}
				}(i)
			}
			wg.Wait()

			assertConsistent(t, repo, id)
		})
	}
}

// failingRepo injects store failures.
type failingRepo struct {
	*memstore.Store
	getSquareErr   error
	createClaimErr error
}

func (f *failingRepo) GetSquare(ctx context.Context, boardID string, n int) (*board.Square, error) {
	if f.getSquareErr != nil {
		return nil, f.getSquareErr
	}
	return f.Store.GetSquare(ctx, boardID, n)
}

func (f *failingRepo) CreateClaim(ctx context.Context, c *board.Claim) error {
	if f.createClaimErr != nil {
		return f.createClaimErr
	}
	return f.Store.CreateClaim(ctx, c)
}

func TestClaim_StoreErrors(t *testing.T) {
	repo, id := setupBoard(t, board.ProvisionInput{BoardID: "b1"})
	ctx := context.Background()
	req := board.ClaimRequest{BoardID: id, DisplayName: "Alice", Squares: squares(1)}

	t.Run("square read fails", func(t *testing.T) {
		c := board.NewClaimer(&failingRepo{Store: repo, getSquareErr: errors.New("connection reset")}, board.ClaimerOptions{})
		_, err := c.Claim(ctx, req)
		e := requireKind(t, err, board.ErrStore)
		assert.Contains(t, e.Error(), "connection reset")
	})

	t.Run("claim create fails", func(t *testing.T) {
		c := board.NewClaimer(&failingRepo{Store: repo, createClaimErr: errors.New("throttled")}, board.ClaimerOptions{})
		_, err := c.Claim(ctx, req)
		requireKind(t, err, board.ErrStore)
		assert.Empty(t, repo.Owners(id))
	})

	t.Run("claim id collision", func(t *testing.T) {
		c := board.NewClaimer(repo, board.ClaimerOptions{
			NewClaimID: func() (string, error) { return "fixedid000", nil },
		})
		_, err := c.Claim(ctx, board.ClaimRequest{BoardID: id, DisplayName: "Alice", Squares: squares(1)})
		require.NoError(t, err)

		_, err = c.Claim(ctx, board.ClaimRequest{BoardID: id, DisplayName: "Bob", Squares: squares(2)})
		e := requireKind(t, err, board.ErrStore)
		assert.Contains(t, e.Message, "collision")
		assert.NotContains(t, repo.Owners(id), "002")
	})
}

type recordedClaim struct {
	outcome string
	squares int
}

type fakeRecorder struct {
	mu     sync.Mutex
	claims []recordedClaim
}

func (f *fakeRecorder) RecordClaim(outcome string, squares int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims = append(f.claims, recordedClaim{outcome, squares})
}

func (f *fakeRecorder) RecordProvision(string) {}

func TestClaim_RecordsOutcomes(t *testing.T) {
	repo, id := setupBoard(t, board.ProvisionInput{BoardID: "b1"})
	rec := &fakeRecorder{}
	c := board.NewClaimer(repo, board.ClaimerOptions{Recorder: rec})
	ctx := context.Background()

	_, _ = c.Claim(ctx, board.ClaimRequest{BoardID: id, DisplayName: "Alice", Squares: squares(1, 2)})
	_, _ = c.Claim(ctx, board.ClaimRequest{BoardID: id, DisplayName: "Bob", Squares: squares(2)})
	_, _ = c.Claim(ctx, board.ClaimRequest{BoardID: id, DisplayName: "", Squares: squares(3)})

	assert.Equal(t, []recordedClaim{
		{"ok", 2},
		{"conflict", 1},
		{"bad_request", 1},
	}, rec.claims)
}

func TestParseReservationMode(t *testing.T) {
	tests := []struct {
		in      string
		want    board.ReservationMode
		wantErr bool
	}{
		{"", board.ReserveTransactional, false},
		{"transactional", board.ReserveTransactional, false},
		{" Sequential ", board.ReserveSequential, false},
		{"batch", "", true},
	}
	for _, tt := range tests {
		got, err := board.ParseReservationMode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
