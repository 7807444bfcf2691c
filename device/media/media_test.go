package media_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/losdos/motionglove/device/media"
	"github.com/losdos/motionglove/usbip"
)

func TestBuildReportLittleEndian(t *testing.T) {
	assert.Equal(t, []byte{0xCD, 0x00}, media.Report{UsageID: media.UsagePlayPause}.BuildReport())
	assert.Equal(t, []byte{0x23, 0x02}, media.Report{UsageID: media.UsageBrowserHome}.BuildReport())
}

func TestUnmarshal(t *testing.T) {
	var r media.Report
	require.NoError(t, r.UnmarshalBinary([]byte{0xE9, 0x00}))
	assert.Equal(t, uint16(media.UsageVolumeUp), r.UsageID)
	assert.ErrorIs(t, r.UnmarshalBinary([]byte{1}), io.ErrUnexpectedEOF)
}

func TestString(t *testing.T) {
	assert.Equal(t, "Mute", media.Report{UsageID: media.UsageMute}.String())
	assert.Equal(t, "None", media.Release.String())
	assert.Equal(t, "0x0abc", media.Report{UsageID: 0x0ABC}.String())
}

func TestHandleTransfer(t *testing.T) {
	k := media.New(nil)
	require.NoError(t, k.Push(media.Report{UsageID: media.UsageMute}))
	require.NoError(t, k.Push(media.Release))

	assert.Equal(t, []byte{0xE2, 0}, k.HandleTransfer(1, usbip.DirIn, nil))
	assert.Equal(t, []byte{0, 0}, k.HandleTransfer(1, usbip.DirIn, nil))
	assert.Equal(t, []byte{0, 0}, k.HandleTransfer(1, usbip.DirIn, nil))
	assert.Nil(t, k.HandleTransfer(1, usbip.DirOut, nil))
}
