package browser

import (
	_ "embed"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/renewbot/api/schemas"
)

//go:embed dom_helpers.js
var domHelpers string

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// bodyTextExpr reads the rendered text of the page.
const bodyTextExpr = `document.body ? document.body.innerText : ''`

const healthExpr = `document.readyState`

type roleArgs struct {
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Index    int    `json:"index"`
	Depth    int    `json:"depth,omitempty"`
	Selector string `json:"selector,omitempty"`
	Scroll   bool   `json:"scroll,omitempty"`
}

func newRoleArgs(role schemas.Role) roleArgs {
	return roleArgs{Kind: role.Kind, Name: role.Name}
}

type textArgs struct {
	Selector string   `json:"selector,omitempty"`
	Tag      string   `json:"tag,omitempty"`
	Needles  []string `json:"needles,omitempty"`
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type labelResult struct {
	OK   bool   `json:"ok"`
	Text string `json:"text"`
}

type textResult struct {
	Text string `json:"text"`
}

// domCall renders an invocation of the helper bundle. Arguments are JSON
// encoded so selectors and patterns never need escaping by hand.
func domCall(op string, args interface{}) (string, error) {
	b, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s arguments: %w", op, err)
	}
	return fmt.Sprintf("%s(%q, %s)", domHelpers, op, b), nil
}
