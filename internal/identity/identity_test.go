package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserAgentShape(t *testing.T) {
	r := require.New(t)
	agent := UserAgent("dev")
	r.Regexp(`^hanzo\([a-z0-9]+\)/dev/(\d+|-{12})$`, agent)
}

func TestClientIDStable(t *testing.T) {
	r := require.New(t)
	id := ClientID()
	r.Regexp(`^(\d+|-{12})$`, id)
	r.Equal(id, ClientID())
}
