package layout_test

import (
	"context"
	"testing"

	"github.com/solatis/segmentkeeper/internal/layout"
	"github.com/solatis/segmentkeeper/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestStore_Lookups(t *testing.T) {
	ctx := context.Background()
	store := layout.NewStore(testutil.OpenQueries(t))

	home, err := store.AddLayout(ctx, layout.Layout{
		GroupID:     20,
		CompanyID:   10,
		FriendlyURL: "home",
		Titles:      map[string]string{"en-US": "Home", "es-ES": "Inicio"},
	})
	require.NoError(t, err)
	require.NotZero(t, home.Plid)
	assert.NotEmpty(t, home.UUID)
	assert.Equal(t, "/home", home.FriendlyURL)

	private, err := store.AddLayout(ctx, layout.Layout{
		GroupID:       20,
		CompanyID:     10,
		PrivateLayout: true,
		FriendlyURL:   "/intranet",
	})
	require.NoError(t, err)

	t.Run("by plid", func(t *testing.T) {
		got, err := store.FetchLayout(ctx, home.Plid)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, home.UUID, got.UUID)
		assert.Equal(t, "Inicio", got.Title(language.MustParse("es-ES")))
		assert.Equal(t, "Home", got.Title(language.German))
	})

	t.Run("by uuid and company", func(t *testing.T) {
		got, err := store.FetchLayoutByUUIDAndCompanyID(ctx, private.UUID, 10)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, private.Plid, got.Plid)
		assert.True(t, got.PrivateLayout)

		other, err := store.FetchLayoutByUUIDAndCompanyID(ctx, private.UUID, 11)
		require.NoError(t, err)
		assert.Nil(t, other, "uuid lookup must stay within the company")
	})

	t.Run("by friendly url", func(t *testing.T) {
		got, err := store.FetchLayoutByFriendlyURL(ctx, 20, false, "/home")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, home.Plid, got.Plid)

		got, err = store.FetchLayoutByFriendlyURL(ctx, 20, false, "/intranet")
		require.NoError(t, err)
		assert.Nil(t, got, "private page is not in the public tree")

		got, err = store.FetchLayoutByFriendlyURL(ctx, 20, true, "intranet")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, private.Plid, got.Plid)
	})

	t.Run("absent is not an error", func(t *testing.T) {
		got, err := store.FetchLayout(ctx, 999999)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestGroupFriendlyURL(t *testing.T) {
	store := layout.NewStore(nil)
	public, err := store.GroupFriendlyURL(context.Background(), 20, false)
	require.NoError(t, err)
	assert.Equal(t, "/web/20", public)

	private, err := store.GroupFriendlyURL(context.Background(), 20, true)
	require.NoError(t, err)
	assert.Equal(t, "/group/20", private)
}

func TestNormalizeFriendlyURL(t *testing.T) {
	assert.Equal(t, "", layout.NormalizeFriendlyURL("  "))
	assert.Equal(t, "/a/b", layout.NormalizeFriendlyURL("a/b"))
	assert.Equal(t, "/a", layout.NormalizeFriendlyURL("//a"))
}
