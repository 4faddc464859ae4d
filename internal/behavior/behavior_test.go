package behavior

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/conneroisu/shroot/internal/dom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func host(t *testing.T) (*dom.Document, *html.Node) {
	t.Helper()
	doc, err := dom.ParseString(`<html><body><x-card class="base"></x-card></body></html>`)
	require.NoError(t, err)
	return doc, doc.Body().FirstChild
}

func TestFuture(t *testing.T) {
	f := NewFuture()
	assert.False(t, f.Ready())

	f.Resolve(Func(func(Context) error { return nil }), nil)
	f.Resolve(nil, errors.New("ignored"))

	assert.True(t, f.Ready())
	b, err := f.Result()
	assert.NoError(t, err)
	assert.NotNil(t, b)
}

func TestFuture_WaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFuture().Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCatalog_Builtins(t *testing.T) {
	catalog := NewCatalog()
	assert.Equal(t, []string{"hidden", "mark-upgraded", "noop"}, catalog.Names())

	doc, el := host(t)
	b, ok := catalog.Lookup(" Mark-Upgraded ")
	require.True(t, ok)
	require.NoError(t, b.Connected(Context{Document: doc, Element: el, TypeID: "x-card"}))

	v, _ := dom.Attr(el, UpgradedAttr)
	assert.Equal(t, "x-card", v)
}

func TestStaticLoader(t *testing.T) {
	catalog := NewCatalog()
	catalog.Register("Counter", Func(func(Context) error { return nil }))
	loader := NewStaticLoader(catalog)

	f := loader.Load(context.Background(), "counter")
	require.True(t, f.Ready())
	_, err := f.Result()
	assert.NoError(t, err)

	_, err = loader.Load(context.Background(), "missing").Result()
	assert.ErrorIs(t, err, ErrUnknownBehavior)
}

func TestAsyncLoader_ResolvesLater(t *testing.T) {
	loader := NewAsyncLoader(NewStaticLoader(NewCatalog()), WithDelay(20*time.Millisecond))

	f := loader.Load(context.Background(), "noop")
	assert.False(t, f.Ready())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b, err := f.Wait(ctx)
	require.NoError(t, err)
	assert.NotNil(t, b)
}

func TestAsyncLoader_Timeout(t *testing.T) {
	loader := NewAsyncLoader(NewStaticLoader(NewCatalog()),
		WithDelay(time.Second),
		WithTimeout(10*time.Millisecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := loader.Load(context.Background(), "noop").Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFirstLoader(t *testing.T) {
	empty := NewStaticLoader(&Catalog{behaviors: map[string]Behavior{}})
	loader := FirstLoader{empty, NewStaticLoader(NewCatalog())}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	b, err := loader.Load(ctx, "hidden").Wait(ctx)
	require.NoError(t, err)
	assert.NotNil(t, b)

	_, err = loader.Load(ctx, "missing").Wait(ctx)
	assert.ErrorIs(t, err, ErrUnknownBehavior)
}

func TestChain_StopsAtFirstError(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	chain := Chain(
		Func(func(Context) error { calls = append(calls, "a"); return nil }),
		nil,
		Func(func(Context) error { calls = append(calls, "b"); return boom }),
		Func(func(Context) error { calls = append(calls, "c"); return nil }),
	)

	assert.ErrorIs(t, chain.Connected(Context{}), boom)
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "card.yml"), []byte(`
attributes:
  role: region
remove_attributes: [draggable]
classes: [ready, base]
text: Loaded
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"classes": [`), 0644))

	loader := NewFileLoader(dir)
	b, err := loader.Load(context.Background(), "card").Result()
	require.NoError(t, err)

	doc, el := host(t)
	dom.SetAttr(el, "draggable", "true")
	root, err := doc.AttachShadow(el, dom.ShadowRootInit{Mode: dom.ShadowOpen})
	require.NoError(t, err)
	require.NoError(t, doc.AppendHTML(root.Fragment(), `<span part="label">…</span>`))

	require.NoError(t, b.Connected(Context{Document: doc, Element: el, Root: root, TypeID: "x-card"}))

	role, _ := dom.Attr(el, "role")
	class, _ := dom.Attr(el, "class")
	assert.Equal(t, "region", role)
	assert.Equal(t, "base ready", class)
	assert.False(t, dom.HasAttr(el, "draggable"))
	assert.Equal(t, "Loaded", dom.TextContent(root.Fragment()))

	_, err = loader.Load(context.Background(), "broken").Result()
	assert.Error(t, err)
	_, err = loader.Load(context.Background(), "../etc/passwd").Result()
	assert.ErrorIs(t, err, ErrUnknownBehavior)
	_, err = loader.Load(context.Background(), "absent").Result()
	assert.ErrorIs(t, err, ErrUnknownBehavior)
}
