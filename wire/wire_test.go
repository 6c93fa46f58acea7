package wire_test

import (
	"bytes"
	"testing"

	"github.com/copyd/copyd/common"
	"github.com/copyd/copyd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	a := assert.New(t)
	var buf bytes.Buffer

	req := &wire.Request{
		Kind:        wire.ERequestKind.CreateJob(),
		Sources:     []string{"/tmp/a", "/tmp/b"},
		Destination: "/tmp/dest",
		Recursive:   true,
		Verify:      common.EVerifyMode.Sha256(),
		Priority:    5,
	}
	require.NoError(t, wire.WriteFrame(&buf, req.Encode()))

	payload, err := wire.ReadFrame(&buf)
	require.NoError(t, err)

	decoded, err := wire.DecodeRequest(payload)
	require.NoError(t, err)

	a.Equal(req.Kind, decoded.Kind)
	a.Equal(req.Sources, decoded.Sources)
	a.Equal(req.Destination, decoded.Destination)
	a.True(decoded.Recursive)
	a.Equal(common.EVerifyMode.Sha256(), decoded.Verify)
	a.EqualValues(5, decoded.Priority)
}

func TestFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	oversized := make([]byte, wire.MaxFrameSize+1)
	err := wire.WriteFrame(&buf, oversized)
	assert.ErrorIs(t, err, wire.ErrFrameTooLarge)
}

func TestResponseRoundTripListJobs(t *testing.T) {
	resp := &wire.Response{
		Kind: wire.ERequestKind.ListJobs(),
		Jobs: []wire.JobSummary{
			{JobID: "j1", Sources: []string{"/a"}, Destination: "/b", State: common.EJobState.Running(), Priority: 1, BytesCopied: 10, TotalBytes: 100},
			{JobID: "j2", Sources: []string{"/c"}, Destination: "/d", State: common.EJobState.Completed()},
		},
	}
	decoded, err := wire.DecodeResponse(resp.Encode())
	require.NoError(t, err)
	require.Len(t, decoded.Jobs, 2)
	assert.Equal(t, "j1", decoded.Jobs[0].JobID)
	assert.Equal(t, common.EJobState.Running(), decoded.Jobs[0].State)
	assert.EqualValues(t, 100, decoded.Jobs[0].TotalBytes)
	assert.Equal(t, "j2", decoded.Jobs[1].JobID)
}

func TestResponseRoundTripError(t *testing.T) {
	resp := &wire.Response{
		Kind:      wire.ERequestKind.CreateJob(),
		Error:     "source not found",
		ErrorKind: common.EErrorKind.NotFound(),
	}
	decoded, err := wire.DecodeResponse(resp.Encode())
	require.NoError(t, err)
	assert.Equal(t, "source not found", decoded.Error)
	assert.Equal(t, common.EErrorKind.NotFound(), decoded.ErrorKind)
}
