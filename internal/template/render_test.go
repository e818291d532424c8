package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderSubstitutesFields(t *testing.T) {
	fields := map[string]string{"name": "Ada", "city": "London"}

	got := Render("Hi {name} from {city}!", fields)
	assert.Equal(t, "Hi Ada from London!", got)
}

func TestRenderUnsetFieldIsEmpty(t *testing.T) {
	fields := map[string]string{"name": "Ada", "brokerage": ""}

	got := Render("Hi {name}, re {brokerage}", fields)
	assert.Equal(t, "Hi Ada, re ", got)
}

func TestRenderLeavesUnknownTokens(t *testing.T) {
	got := Render("Hi {nmae}", map[string]string{"name": "Ada"})
	assert.Equal(t, "Hi {nmae}", got)
}

func TestRenderPreservesWhitespace(t *testing.T) {
	got := Render("line one\nline two", nil)
	assert.Equal(t, "line one<br>line two", got)

	got = Render("a  b", nil)
	assert.Equal(t, "a&nbsp;&nbsp;b", got)

	// four spaces collapse into two non-breaking pairs
	got = Render("a    b", nil)
	assert.Equal(t, "a&nbsp;&nbsp;&nbsp;&nbsp;b", got)
}

func TestRenderSubjectStaysPlainText(t *testing.T) {
	got := RenderSubject("Quick question, {name}\n", map[string]string{"name": "Ada"})
	assert.Equal(t, "Quick question, Ada\n", got)
}
