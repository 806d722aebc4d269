package cookies

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetCookieStringPathScoping(t *testing.T) {
	jar, err := New()
	require.NoError(t, err)

	require.NoError(t, jar.SetCookieString("http://localhost/cookies", "c3=v3; path=/cookies"))
	require.NoError(t, jar.SetCookieString("http://localhost/cookies", "c4=v4; path=/cookies"))

	u, _ := url.Parse("http://localhost/cookies")
	got := jar.Cookies(u)
	require.Len(t, got, 2)
	assert.Equal(t, "c3", got[0].Name)
	assert.Equal(t, "c4", got[1].Name)

	other, _ := url.Parse("http://localhost/headers")
	assert.Empty(t, jar.Cookies(other))
}

func TestSetCookieStringErrors(t *testing.T) {
	jar, err := New()
	require.NoError(t, err)

	assert.Error(t, jar.SetCookieString("/no-host", "a=b"))
	assert.Error(t, jar.SetCookieString("http://localhost", ""))
}
