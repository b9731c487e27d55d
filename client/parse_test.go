package client

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_ParseCommand_Get(t *testing.T) {
	cmd, err := ParseCommand("get dungeons")
	require.NoError(t, err)
	require.NotNil(t, cmd.Get)
	require.Equal(t, "dungeons", cmd.Get.Key.Value())
}

func Test_ParseCommand_Put(t *testing.T) {
	cmd, err := ParseCommand("put dungeons dragons")
	require.NoError(t, err)
	require.NotNil(t, cmd.Put)
	require.Equal(t, "dungeons", cmd.Put.Key.Value())
	require.Equal(t, "dragons", cmd.Put.Val.Value())
}

func Test_ParseCommand_QuotedStrings(t *testing.T) {
	cmd, err := ParseCommand(`put "hello world" "with spaces"`)
	require.NoError(t, err)
	require.NotNil(t, cmd.Put)
	require.Equal(t, "hello world", cmd.Put.Key.Value())
	require.Equal(t, "with spaces", cmd.Put.Val.Value())
}

func Test_ParseCommand_Del(t *testing.T) {
	cmd, err := ParseCommand("del dungeons")
	require.NoError(t, err)
	require.NotNil(t, cmd.Del)
	require.Equal(t, "dungeons", cmd.Del.Key.Value())
}

func Test_ParseCommand_KeywordAsArgument(t *testing.T) {
	cmd, err := ParseCommand("get get")
	require.NoError(t, err)
	require.NotNil(t, cmd.Get)
	require.Equal(t, "get", cmd.Get.Key.Value())
}

func Test_ParseCommand_Invalid(t *testing.T) {
	for _, line := range []string{"", "bogus x", "put onlykey", "get"} {
		_, err := ParseCommand(line)
		require.Error(t, err, line)
	}
}
