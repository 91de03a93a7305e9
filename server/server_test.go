package server_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-labs/tabletop/gamedata"
	"github.com/argus-labs/tabletop/metrics"
	"github.com/argus-labs/tabletop/server"
	"github.com/argus-labs/tabletop/server/handler"
	"github.com/argus-labs/tabletop/server/types"
	"github.com/argus-labs/tabletop/snapshot"
)

type standalone struct {
	store    *gamedata.Store
	readOnly bool
}

var _ types.Provider = (*standalone)(nil)

func (s *standalone) WorldID() string        { return "test" }
func (s *standalone) Store() *gamedata.Store { return s.store }
func (s *standalone) Rollback()              { s.store.Rollback() }

func (s *standalone) Commit(context.Context) (types.CommitResult, error) {
	if s.readOnly {
		return types.CommitResult{}, types.ErrReadOnly
	}
	changes, err := s.store.PopAndCommit()
	return types.CommitResult{Changes: changes}, err
}

func (s *standalone) Snapshot() (*snapshot.Snapshot, error) {
	return snapshot.New(s.store, 0, nil)
}

type fixture struct {
	t      *testing.T
	srv    *server.Server
	store  *gamedata.Store
	castle *gamedata.Entity
	gold   *gamedata.Entity
}

func newFixture(t *testing.T, opts ...server.Option) *fixture {
	t.Helper()

	store := gamedata.NewStore(gamedata.NewSession())
	castle := store.CreateEntity()
	require.NoError(t, castle.SetName("Castle"))
	gold := store.CreateEntity()
	require.NoError(t, gold.SetName("Gold"))
	require.NoError(t, gold.SetAttribute("this", "treasure", "yes"))
	require.NoError(t, castle.Add(gold))
	store.SetTracksChanges(true)

	srv, err := server.New(&standalone{store: store}, opts...)
	require.NoError(t, err)
	return &fixture{t: t, srv: srv, store: store, castle: castle, gold: gold}
}

func (f *fixture) do(method, path, body string) (int, []byte) {
	f.t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	res, err := f.srv.App().Test(req, -1)
	require.NoError(f.t, err)
	defer res.Body.Close()

	bz, err := io.ReadAll(res.Body)
	require.NoError(f.t, err)
	return res.StatusCode, bz
}

func decode[T any](t *testing.T, bz []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(bz, &v), string(bz))
	return v
}

func TestHealth(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	code, bz := f.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, code)
	res := decode[handler.GetHealthResponse](t, bz)
	assert.Equal(t, "test", res.WorldID)
	assert.Equal(t, 2, res.Entities)
	assert.True(t, res.Tracking)
}

func TestEntities(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	t.Run("all", func(t *testing.T) {
		code, bz := f.do(http.MethodGet, "/entities", "")
		require.Equal(t, http.StatusOK, code)
		assert.Len(t, decode[handler.GetEntitiesResponse](t, bz).Entities, 2)
	})

	t.Run("query", func(t *testing.T) {
		code, bz := f.do(http.MethodGet, "/entities?query=treasure", "")
		require.Equal(t, http.StatusOK, code)
		res := decode[handler.GetEntitiesResponse](t, bz)
		require.Len(t, res.Entities, 1)
		assert.Equal(t, "Gold", res.Entities[0].Name)
		assert.Equal(t, int64(f.castle.ID()), res.Entities[0].HeldBy)
	})

	t.Run("where", func(t *testing.T) {
		code, bz := f.do(http.MethodGet, "/entities?where="+url.QueryEscape("len(hold) > 0"), "")
		require.Equal(t, http.StatusOK, code)
		res := decode[handler.GetEntitiesResponse](t, bz)
		require.Len(t, res.Entities, 1)
		assert.Equal(t, "Castle", res.Entities[0].Name)
	})

	t.Run("bad query", func(t *testing.T) {
		code, bz := f.do(http.MethodGet, "/entities?query="+url.QueryEscape("=gold"), "")
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, decode[server.ErrorResponse](t, bz).Error.Message, "invalid query")
	})

	t.Run("bad where", func(t *testing.T) {
		code, _ := f.do(http.MethodGet, "/entities?where="+url.QueryEscape(")("), "")
		assert.Equal(t, http.StatusBadRequest, code)
	})
}

func TestEntity(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	code, bz := f.do(http.MethodGet, "/entities/"+strconv.FormatInt(int64(f.castle.ID()), 10), "")
	require.Equal(t, http.StatusOK, code)
	res := decode[handler.EntityResponse](t, bz)
	assert.Equal(t, "Castle", res.Name)
	assert.Equal(t, []int64{int64(f.gold.ID())}, res.Hold)
	assert.Equal(t, int64(gamedata.NoID), res.HeldBy)

	code, _ = f.do(http.MethodGet, "/entities/999", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(http.MethodGet, "/entities/castle", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTransaction(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	require.NoError(t, f.gold.SetAttribute("this", "weight", "3"))

	code, bz := f.do(http.MethodGet, "/pending", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[handler.GetPendingResponse](t, bz).Changes, 1)

	code, bz = f.do(http.MethodPost, "/rollback", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, decode[handler.PostRollbackResponse](t, bz).Discarded)
	assert.False(t, f.gold.HasAttribute("this", "weight"))

	require.NoError(t, f.gold.SetAttribute("this", "weight", "4"))
	code, bz = f.do(http.MethodPost, "/commit", "")
	require.Equal(t, http.StatusOK, code)
	res := decode[types.CommitResult](t, bz)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, gamedata.ChangeSetAttribute, res.Changes[0].Kind)

	weight, err := f.gold.Attribute("this", "weight")
	require.NoError(t, err)
	assert.Equal(t, "4", weight)
	assert.Empty(t, f.store.Pending())
}

func TestCommitReadOnly(t *testing.T) {
	t.Parallel()

	srv, err := server.New(&standalone{store: gamedata.NewStore(gamedata.NewSession()), readOnly: true})
	require.NoError(t, err)

	res, err := srv.App().Test(httptest.NewRequest(http.MethodPost, "/commit", nil), -1)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusConflict, res.StatusCode)
}

func TestSnapshotAndReconcile(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	code, bz := f.do(http.MethodGet, "/snapshot", "")
	require.Equal(t, http.StatusOK, code)
	snap := decode[snapshot.Snapshot](t, bz)
	require.NoError(t, snap.Verify())
	assert.Len(t, snap.Document.Objects, 2)

	code, bz = f.do(http.MethodPost, "/reconcile", `{"version":1,"objects":[]}`)
	require.Equal(t, http.StatusOK, code)
	changes := decode[handler.PostReconcileResponse](t, bz).Changes
	require.NotEmpty(t, changes)

	empty := gamedata.NewStore(gamedata.NewSession())
	require.NoError(t, empty.ApplyChanges(changes))
	want, err := snapshot.Digest(snapshot.Capture(f.store))
	require.NoError(t, err)
	got, err := snapshot.Digest(snapshot.Capture(empty))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	code, _ = f.do(http.MethodPost, "/reconcile", `{"objects":[]}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	store := gamedata.NewStore(gamedata.NewSession())
	store.CreateEntity()
	reg, err := metrics.NewRegistry(store, "test")
	require.NoError(t, err)

	srv, err := server.New(&standalone{store: store}, server.WithGatherer(reg))
	require.NoError(t, err)

	res, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	bz, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(bz), `tabletop_store_entities{world="test"} 1`)
}
