package sweettracker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveCourierCode(t *testing.T) {
	require.Equal(t, "04", ResolveCourierCode("CJ"))
	require.Equal(t, "04", ResolveCourierCode("cj"))
	require.Equal(t, "05", ResolveCourierCode("HANJIN"))
	require.Equal(t, "04", ResolveCourierCode("04"))
	require.Equal(t, "04", ResolveCourierCode("4"))
	require.Equal(t, "08", ResolveCourierCode(" lotte "))
	require.Equal(t, "01", ResolveCourierCode("우체국"))

	require.Equal(t, "", ResolveCourierCode(""))
	require.Equal(t, "", ResolveCourierCode("   "))
	require.Equal(t, "", ResolveCourierCode("NO_SUCH_CARRIER"))
	require.Equal(t, "", ResolveCourierCode("0"))
	require.Equal(t, "", ResolveCourierCode("100"))
}

func TestResolveTrackingNumber(t *testing.T) {
	require.Equal(t, "123456", ResolveTrackingNumber(" 123456 "))
	require.Equal(t, "", ResolveTrackingNumber("   "))
	require.Equal(t, "", ResolveTrackingNumber(""))
}
