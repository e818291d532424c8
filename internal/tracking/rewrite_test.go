package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteReplacesHrefs(t *testing.T) {
	r := NewRewriter("https://mail.example.com/")

	body := `<p><a href="https://example.com/x">click</a></p>`
	got := r.Rewrite(body, 7, 3, "01ARZ")

	assert.Equal(t,
		`<p><a href="https://mail.example.com/track/7/3?url=https%3A%2F%2Fexample.com%2Fx&eqid=01ARZ">click</a></p>`,
		got)
}

func TestRewriteSkipsMailto(t *testing.T) {
	r := NewRewriter("https://mail.example.com")

	body := `<a href="https://example.com/x">a</a> <a href="mailto:a@b.com">b</a>`
	got := r.Rewrite(body, 1, 2, "id")

	assert.Contains(t, got, `href="https://mail.example.com/track/1/2?url=https%3A%2F%2Fexample.com%2Fx&eqid=id"`)
	assert.Contains(t, got, `href="mailto:a@b.com"`)
}

func TestRewriteIsIdempotent(t *testing.T) {
	r := NewRewriter("https://mail.example.com")

	body := `<a href="https://example.com/x?q=1&w=2">x</a>`
	once := r.Rewrite(body, 1, 2, "id")
	twice := r.Rewrite(once, 1, 2, "id")

	assert.Equal(t, once, twice)
}

func TestRewriteWithoutQueueItemID(t *testing.T) {
	r := NewRewriter("https://mail.example.com")

	got := r.Rewrite(`<a href="https://example.com">x</a>`, 1, 2, "")
	assert.Equal(t, `<a href="https://mail.example.com/track/1/2?url=https%3A%2F%2Fexample.com">x</a>`, got)
}

func TestRewriteMultipleLinks(t *testing.T) {
	r := NewRewriter("https://mail.example.com")

	body := `<a href="https://a.test">1</a><a href="https://b.test">2</a>`
	got := r.Rewrite(body, 5, 6, "q")

	assert.Contains(t, got, "url=https%3A%2F%2Fa.test")
	assert.Contains(t, got, "url=https%3A%2F%2Fb.test")
	assert.NotContains(t, got, `href="https://a.test"`)
}
