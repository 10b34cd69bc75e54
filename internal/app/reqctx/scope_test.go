package reqctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopeTracker_AmbientIsPerTracker(t *testing.T) {
	a := &scopeTracker{}
	b := &scopeTracker{}
	sub := New("corr-1", "child")

	ctx := a.with(context.Background(), sub)

	assert.Same(t, sub, a.ambient(ctx))
	assert.Nil(t, b.ambient(ctx))
}

func TestScopeTracker_InnermostWins(t *testing.T) {
	tr := &scopeTracker{}
	outer := New("corr-1", "outer")
	inner := New("corr-1", "inner")

	outerCtx := tr.with(context.Background(), outer)
	innerCtx := tr.with(outerCtx, inner)

	assert.Same(t, inner, tr.ambient(innerCtx))
	assert.Same(t, outer, tr.ambient(outerCtx))
}

func TestScopeTracker_Empty(t *testing.T) {
	tr := &scopeTracker{}

	assert.Nil(t, tr.ambient(context.Background()))
	assert.Zero(t, tr.Active())
}
