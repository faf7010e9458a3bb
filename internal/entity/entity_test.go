package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueKinds(t *testing.T) {
	assert.Equal(t, KindString, String("a").Kind())
	assert.Equal(t, KindInt, Int(5).Kind())
	assert.Equal(t, KindReal, Real(1.5).Kind())
	assert.Equal(t, KindBool, Bool(true).Kind())
	assert.Equal(t, KindJSON, JSON(json.RawMessage(`[1,2]`)).Kind())
}

func TestValueText(t *testing.T) {
	assert.Equal(t, "hello", String("hello").Text())
	assert.Equal(t, "42", Int(42).Text())
	assert.Equal(t, "1.5", Real(1.5).Text())
	assert.Equal(t, "true", Bool(true).Text())
	assert.Equal(t, `["a"]`, JSON(json.RawMessage(`["a"]`)).Text())
}

func TestValueCoerce(t *testing.T) {
	v, err := Bool(true).Coerce(KindInt)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.Int())

	v, err = Int(0).Coerce(KindBool)
	require.NoError(t, err)
	assert.False(t, v.Bool())

	v, err = String("12").Coerce(KindInt)
	require.NoError(t, err)
	assert.Equal(t, int64(12), v.Int())

	_, err = String("not a number").Coerce(KindInt)
	assert.Error(t, err)
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(7)
	require.NoError(t, err)
	assert.Equal(t, KindInt, v.Kind())

	v, err = FromAny([]string{"diffuse", "normal"})
	require.NoError(t, err)
	assert.Equal(t, KindJSON, v.Kind())
	assert.JSONEq(t, `["diffuse","normal"]`, string(v.Raw()))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindInt, KindOf("integer"))
	assert.Equal(t, KindReal, KindOf("real"))
	assert.Equal(t, KindBool, KindOf("boolean"))
	assert.Equal(t, KindJSON, KindOf("json"))
	assert.Equal(t, KindString, KindOf("string"))
	assert.Equal(t, KindString, KindOf("something else"))
}

func TestEntityFieldRouting(t *testing.T) {
	e := New(AssetDefinition(), map[string]Value{
		"uuid": String("uuid-1"),
		"name": String("Hero"),
	})

	// Core field goes to core data.
	e.Set("name", String("Hero_Rig"))
	assert.Equal(t, "Hero_Rig", e.CoreData()["name"].Str())
	assert.NotContains(t, e.DynamicData(), "name")

	// Non-core field goes to dynamic metadata.
	e.Set("bone_count", Int(120))
	assert.Equal(t, int64(120), e.DynamicData()["bone_count"].Int())
	assert.NotContains(t, e.CoreData(), "bone_count")

	assert.True(t, e.IsDirty())
	assert.ElementsMatch(t, []string{"name", "bone_count"}, e.DirtyFields())

	e.MarkClean()
	assert.False(t, e.IsDirty())
}

func TestEntityDynamicPrecedence(t *testing.T) {
	e := New(AssetDefinition(), map[string]Value{
		"uuid": String("uuid-1"),
	})
	e.LoadDynamic(map[string]Value{"polygon_count": Int(5000)})

	v, ok := e.Get("polygon_count")
	require.True(t, ok)
	assert.Equal(t, int64(5000), v.Int())

	// LoadDynamic must not mark the entity dirty.
	assert.False(t, e.IsDirty())
}

func TestAssetAccessors(t *testing.T) {
	a := NewAsset(map[string]Value{
		"uuid":          String("uuid-1"),
		"name":          String("Hero"),
		"variant_name":  String("Heavy_Armor"),
		"version_label": String("v003"),
		"is_latest":     Int(1),
		"is_cold":       Int(0),
	})

	assert.Equal(t, "Hero", a.Name())
	assert.Equal(t, "Heavy_Armor", a.VariantName())
	assert.False(t, a.IsBaseVariant())
	assert.Equal(t, "Hero [Heavy_Armor]", a.DisplayName())
	assert.Equal(t, "v003", a.VersionLabel())
	assert.True(t, a.IsLatest())
	assert.False(t, a.IsCold())

	// Defaults for unset fields.
	assert.Equal(t, "mesh", a.AssetType())
	assert.Equal(t, "wip", a.Status())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(AssetDefinition()))

	def, ok := r.Definition("asset")
	require.True(t, ok)
	assert.True(t, def.HasBehavior(BehaviorVersionable))
	assert.True(t, r.IsRegistered("asset"))

	assert.Equal(t, []string{"asset"}, r.TypesWithBehavior(BehaviorVariantable))
	assert.Empty(t, r.TypesWithBehavior(Behavior("renderable")))

	e, err := r.New("asset", map[string]Value{"uuid": String("u")})
	require.NoError(t, err)
	assert.Equal(t, "asset", e.Type())

	_, err = r.New("task", nil)
	assert.Error(t, err)

	assert.True(t, r.Unregister("asset"))
	assert.False(t, r.Unregister("asset"))
}

func TestRegistryRejectsInvalidDefinitions(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&Definition{Name: "x"}))
}
