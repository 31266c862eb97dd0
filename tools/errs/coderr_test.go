package errs

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeErrorIsMatchesByCode(t *testing.T) {
	err := ErrSendFailed.WrapMsg("both paths failed", "ticket", "T1")
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrSendFailed))
	assert.False(t, errors.Is(err, ErrArgs))
	assert.Equal(t, SendFailedError, Code(err))
	assert.Contains(t, err.Error(), "ticket=T1")
}

func TestWithDetailKeepsOriginal(t *testing.T) {
	d := ErrArgs.WithDetail("empty content")
	assert.Equal(t, "1001 ArgsError empty content", d.Error())
	assert.Empty(t, ErrArgs.Detail)

	dd := d.WithDetail("no ticket")
	assert.Equal(t, "empty content, no ticket", dd.Detail)
}

func TestWrapMsgPlainError(t *testing.T) {
	assert.Nil(t, WrapMsg(nil, "x"))

	base := fmt.Errorf("dial refused")
	err := WrapMsg(base, "connect", "url", "ws://x", "odd")
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "connect, url=ws://x, odd=MISSING: dial refused", err.Error())
}

func TestErrPanic(t *testing.T) {
	assert.Nil(t, ErrPanic(nil))
	err := ErrPanic("boom")
	assert.Equal(t, ServerInternalError, Code(err))
	assert.Contains(t, err.Error(), "boom")
}
