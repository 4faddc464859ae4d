package behavior

import (
	"github.com/conneroisu/shroot/internal/dom"
)

// UpgradedAttr is set on hosts by the mark-upgraded behavior.
const UpgradedAttr = "data-upgraded"

func builtins() map[string]Behavior {
	return map[string]Behavior{
		"noop": Func(func(Context) error { return nil }),
		"hidden": Func(func(c Context) error {
			dom.SetAttr(c.Element, "hidden", "")
			return nil
		}),
		"mark-upgraded": Func(func(c Context) error {
			dom.SetAttr(c.Element, UpgradedAttr, c.TypeID)
			return nil
		}),
	}
}
