package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/pantry/internal/testutil"
	"github.com/Veraticus/pantry/internal/testutil/catalog"
)

func TestBuilder_Build(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)

	products := catalog.NewBuilder(t).
		WithBasicProducts().
		WithCategory("Laticínios").
		WithProduct(catalog.ProductParmesan, "parmesao").
		WithProduct(catalog.ProductParmesan, "queijo parm").
		MustBuild(ctx, db.Storage)

	require.Len(t, products, 5)
	assert.Equal(t, catalog.ProductTomato.String(), products[0].Name)

	parmesan := products.MustFind(t, catalog.ProductParmesan)
	assert.Equal(t, "Laticínios", parmesan.CategoryName())
	assert.ElementsMatch(t, []string{"parmesao", "queijo parm"}, parmesan.Aliases)

	tomato := products.MustFind(t, catalog.ProductTomato)
	assert.Equal(t, catalog.DefaultCategory, tomato.CategoryName())

	assert.Nil(t, products.Find(catalog.ProductOliveOil))
	assert.Len(t, products.IDs(), 5)

	stored, err := db.Storage.GetProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 5)
}

func TestBuilder_Empty(t *testing.T) {
	db := testutil.SetupTestDB(t)

	products, err := catalog.NewBuilder(t).Build(context.Background(), db.Storage)
	require.NoError(t, err)
	assert.Empty(t, products)
}
