package util_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chathub-io/chathub/pkg/util"
)

func TestPtrVal(t *testing.T) {
	t.Parallel()

	p := util.Ptr(7)
	assert.Equal(t, 7, util.Val(p))
	assert.Equal(t, 0, util.Val[int](nil))
}

func TestSliceIncludes(t *testing.T) {
	t.Parallel()

	assert.True(t, util.SliceIncludes([]string{"a", "b"}, "b"))
	assert.False(t, util.SliceIncludes([]string{"a", "b"}, "c"))
	assert.False(t, util.SliceIncludes(nil, "c"))
}

func TestConvertList(t *testing.T) {
	t.Parallel()

	got := util.ConvertList([]int{1, 2, 3}, strconv.Itoa)
	assert.Equal(t, []string{"1", "2", "3"}, got)
}
