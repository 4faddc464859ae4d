package dom

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func mustParse(t *testing.T, markup string) *Document {
	t.Helper()
	doc, err := ParseString(markup)
	require.NoError(t, err)
	return doc
}

func element(tag string) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: tag}
}

func TestDocument_RecordsAreDeliveredOnFlush(t *testing.T) {
	doc := mustParse(t, "<body></body>")

	var batches [][]MutationRecord
	_, err := doc.Subscribe(doc.DocumentElement(), ObserveOptions{ChildList: true, Subtree: true},
		func(records []MutationRecord, _ *MutationObserver) {
			batches = append(batches, records)
		})
	require.NoError(t, err)

	a, b := element("x-a"), element("x-b")
	require.NoError(t, doc.AppendChild(doc.Body(), a))
	require.NoError(t, doc.AppendChild(doc.Body(), b))

	assert.Empty(t, batches, "records must not be delivered synchronously")
	assert.True(t, doc.Pending())

	doc.Flush()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	assert.Equal(t, a, batches[0][0].AddedNodes[0])
	assert.Equal(t, b, batches[0][1].AddedNodes[0])
	assert.Equal(t, a, batches[0][1].PreviousSibling)
	assert.False(t, doc.Pending())
}

func TestDocument_ObserverWithoutSubtreeSeesOnlyTarget(t *testing.T) {
	doc := mustParse(t, "<body><div id=outer></div></body>")
	outer := GetElementByID(doc.Root(), "outer")

	count := 0
	_, err := doc.Subscribe(doc.Body(), ObserveOptions{ChildList: true},
		func(records []MutationRecord, _ *MutationObserver) { count += len(records) })
	require.NoError(t, err)

	require.NoError(t, doc.AppendChild(outer, element("span")))
	require.NoError(t, doc.AppendChild(doc.Body(), element("span")))
	doc.Flush()

	assert.Equal(t, 1, count)
}

func TestDocument_DisconnectDropsUndeliveredRecords(t *testing.T) {
	doc := mustParse(t, "<body></body>")

	count := 0
	sub, err := doc.Subscribe(doc.Root(), ObserveOptions{ChildList: true, Subtree: true},
		func(records []MutationRecord, _ *MutationObserver) { count += len(records) })
	require.NoError(t, err)

	require.NoError(t, doc.AppendChild(doc.Body(), element("p")))
	sub.Disconnect()
	sub.Disconnect()
	doc.Flush()

	assert.Zero(t, count)
}

func TestDocument_RecordsFromCallbacksDeliveredInSameFlush(t *testing.T) {
	doc := mustParse(t, "<body></body>")

	var seen []string
	_, err := doc.Subscribe(doc.Root(), ObserveOptions{ChildList: true, Subtree: true},
		func(records []MutationRecord, _ *MutationObserver) {
			for _, r := range records {
				for _, n := range r.AddedNodes {
					seen = append(seen, n.Data)
					if n.Data == "first" {
						require.NoError(t, doc.AppendChild(doc.Body(), element("second")))
					}
				}
			}
		})
	require.NoError(t, err)

	require.NoError(t, doc.AppendChild(doc.Body(), element("first")))
	doc.Flush()

	assert.Equal(t, []string{"first", "second"}, seen)
}

func TestDocument_MoveProducesRemovalThenInsertion(t *testing.T) {
	doc := mustParse(t, "<body><div id=a><span id=s></span></div><div id=b></div></body>")
	span := GetElementByID(doc.Root(), "s")
	b := GetElementByID(doc.Root(), "b")

	var records []MutationRecord
	_, err := doc.Subscribe(doc.Root(), ObserveOptions{ChildList: true, Subtree: true},
		func(rs []MutationRecord, _ *MutationObserver) { records = append(records, rs...) })
	require.NoError(t, err)

	require.NoError(t, doc.AppendChild(b, span))
	doc.Flush()

	require.Len(t, records, 2)
	assert.Equal(t, []*html.Node{span}, records[0].RemovedNodes)
	assert.Equal(t, []*html.Node{span}, records[1].AddedNodes)
	assert.Equal(t, b, records[1].Target)
}

func TestDocument_InsertRejectsCycles(t *testing.T) {
	doc := mustParse(t, "<body><div id=a><div id=b></div></div></body>")
	a := GetElementByID(doc.Root(), "a")
	b := GetElementByID(doc.Root(), "b")

	err := doc.AppendChild(b, a)
	assert.ErrorIs(t, err, ErrHierarchy)

	err = doc.RemoveChild(b, a)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocument_StreamHTMLInsertsNodeByNode(t *testing.T) {
	doc := mustParse(t, "<body></body>")

	var added []string
	_, err := doc.Subscribe(doc.Root(), ObserveOptions{ChildList: true, Subtree: true},
		func(rs []MutationRecord, _ *MutationObserver) {
			for _, r := range rs {
				require.Len(t, r.AddedNodes, 1)
				n := r.AddedNodes[0]
				if n.Type == html.ElementNode {
					added = append(added, n.Data)
				} else {
					added = append(added, "#text")
				}
			}
		})
	require.NoError(t, err)

	require.NoError(t, doc.StreamHTML(doc.Body(), "<section><p>hi</p></section>\n<x-a></x-a>"))
	doc.Flush()

	assert.Equal(t, []string{"section", "p", "#text", "#text", "x-a"}, added)
}

func TestDocument_AppendHTMLIsOneRecord(t *testing.T) {
	doc := mustParse(t, "<body></body>")

	var records []MutationRecord
	_, err := doc.Subscribe(doc.Root(), ObserveOptions{ChildList: true, Subtree: true},
		func(rs []MutationRecord, _ *MutationObserver) { records = append(records, rs...) })
	require.NoError(t, err)

	require.NoError(t, doc.AppendHTML(doc.Body(), "<x-a></x-a><x-b></x-b>"))
	doc.Flush()

	require.Len(t, records, 1)
	assert.Len(t, records[0].AddedNodes, 2)
}

func TestShadowRoot_AttachAndRender(t *testing.T) {
	doc := mustParse(t, "<body><greeting-box></greeting-box></body>")
	host := ElementsByTag(doc.Root(), "greeting-box")[0]

	sr, err := doc.AttachShadow(host, ShadowRootInit{Mode: ShadowOpen})
	require.NoError(t, err)

	nodes, err := ParseFragment("<p>Hi</p>", nil)
	require.NoError(t, err)
	require.NoError(t, sr.Append(nodes...))

	assert.Same(t, sr, doc.ShadowRoot(host))
	assert.Equal(t,
		`<greeting-box><template shadowrootmode="open"><p>Hi</p></template></greeting-box>`,
		doc.OuterHTML(host))

	_, err = doc.AttachShadow(host, ShadowRootInit{Mode: ShadowOpen})
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestShadowRoot_ClosedRootIsHidden(t *testing.T) {
	doc := mustParse(t, "<body><x-secret></x-secret></body>")
	host := ElementsByTag(doc.Root(), "x-secret")[0]

	sr, err := doc.AttachShadow(host, ShadowRootInit{Mode: ShadowClosed})
	require.NoError(t, err)

	assert.Nil(t, doc.ShadowRoot(host))
	assert.Same(t, sr, doc.AttachedShadowRoot(host))
	assert.Contains(t, doc.OuterHTML(host), `shadowrootmode="closed"`)
}

func TestShadowRoot_MutationsAreNotObservedFromLightTree(t *testing.T) {
	doc := mustParse(t, "<body><x-a></x-a></body>")
	host := ElementsByTag(doc.Root(), "x-a")[0]

	count := 0
	_, err := doc.Subscribe(doc.Root(), ObserveOptions{ChildList: true, Subtree: true},
		func(rs []MutationRecord, _ *MutationObserver) { count += len(rs) })
	require.NoError(t, err)

	sr, err := doc.AttachShadow(host, ShadowRootInit{Mode: ShadowOpen})
	require.NoError(t, err)
	require.NoError(t, sr.Append(element("x-b")))
	doc.Flush()

	assert.Zero(t, count)
}

func TestAttachShadow_UnsupportedHost(t *testing.T) {
	doc := mustParse(t, "<body><img><button></button></body>")

	for _, tag := range []string{"img", "button"} {
		host := ElementsByTag(doc.Root(), tag)[0]
		_, err := doc.AttachShadow(host, ShadowRootInit{Mode: ShadowOpen})
		assert.ErrorIs(t, err, ErrNotSupported, tag)
	}
}

func TestCanHostShadow(t *testing.T) {
	doc := mustParse(t, "<body><card></card><x-card></x-card><div></div><img><font-face></font-face></body>")

	for tag, want := range map[string]bool{
		"card":      true,
		"x-card":    true,
		"div":       true,
		"img":       false,
		"font-face": false,
	} {
		host := ElementsByTag(doc.Root(), tag)[0]
		assert.Equal(t, want, CanHostShadow(host), tag)
	}
}

func TestParse_AdoptsDeclarativeShadowRoots(t *testing.T) {
	markup := `<body><x-card><template shadowrootmode="closed"><b>x</b></template><i>light</i></x-card></body>`
	doc := mustParse(t, markup)
	host := ElementsByTag(doc.Root(), "x-card")[0]

	sr := doc.AttachedShadowRoot(host)
	require.NotNil(t, sr)
	assert.Equal(t, ShadowClosed, sr.Mode())
	assert.Equal(t, "<b>x</b>", RenderNodes(sr.Children()))
	assert.Empty(t, ElementsByTag(host, "template"))

	var b strings.Builder
	require.NoError(t, doc.Render(&b))
	assert.Contains(t, b.String(), `<x-card><template shadowrootmode="closed"><b>x</b></template><i>light</i></x-card>`)
}

func TestIsCustomElementName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"greeting-box", true},
		{"x-a", true},
		{"div", false},
		{"Greeting-Box", false},
		{"1-box", false},
		{"font-face", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsCustomElementName(tt.name))
		})
	}
}

func TestCloneNode_IsIndependent(t *testing.T) {
	nodes, err := ParseFragment(`<p class="a">text</p>`, nil)
	require.NoError(t, err)
	original := nodes[0]

	clone := CloneNode(original, true)
	SetAttr(clone, "class", "b")
	clone.FirstChild.Data = "changed"

	v, _ := Attr(original, "class")
	assert.Equal(t, "a", v)
	assert.Equal(t, "text", original.FirstChild.Data)
}

func TestLoop_DoFlushesAfterTask(t *testing.T) {
	doc := mustParse(t, "<body></body>")
	loop := NewLoop(doc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()

	delivered := make(chan int, 1)
	err := loop.Do(ctx, func(doc *Document) error {
		_, err := doc.Subscribe(doc.Root(), ObserveOptions{ChildList: true, Subtree: true},
			func(rs []MutationRecord, _ *MutationObserver) { delivered <- len(rs) })
		if err != nil {
			return err
		}
		return doc.AppendChild(doc.Body(), element("x-a"))
	})
	require.NoError(t, err)

	select {
	case n := <-delivered:
		assert.Equal(t, 1, n)
	default:
		t.Fatal("records should be delivered before Do returns")
	}

	err = loop.Do(ctx, func(*Document) error { panic("boom") })
	assert.Error(t, err)

	cancel()
	select {
	case <-loop.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	assert.ErrorIs(t, loop.Do(context.Background(), func(*Document) error { return nil }), ErrLoopClosed)
	assert.False(t, loop.Post(func() { t.Error("task ran after the loop stopped") }))
}
