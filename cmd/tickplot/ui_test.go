package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTerminal struct {
	initErr error
	closed  int
}

func (f *fakeTerminal) Init() error { return f.initErr }

func (f *fakeTerminal) Close() { f.closed++ }

func TestOpenUI(t *testing.T) {
	ok := &fakeTerminal{}
	require.NoError(t, openUI(ok))
	assert.Zero(t, ok.closed, "the caller closes a working ui")

	broken := &fakeTerminal{initErr: errors.New("write /dev/stdout: broken pipe")}
	err := openUI(broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ui init")
	assert.Equal(t, 1, broken.closed, "a half-initialised ui is restored")
}

func TestInPlaceUI_CloseWithoutInit(t *testing.T) {
	ui := NewInPlaceUI(zap.NewNop())
	assert.NotPanics(t, ui.Close)
	assert.NoError(t, ui.Draw("ignored"))
}
