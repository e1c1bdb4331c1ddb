package instance

import (
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveIDPrefersEnv(t *testing.T) {
	t.Setenv("STOREFRONT_INSTANCE_ID", "cron-a")
	assert.Equal(t, "cron-a", resolveID())
}

func TestResolveIDFallsBackToHostAndPid(t *testing.T) {
	t.Setenv("STOREFRONT_INSTANCE_ID", "")
	id := resolveID()
	assert.True(t, strings.HasSuffix(id, "-"+strconv.Itoa(os.Getpid())), id)
	assert.Equal(t, GetID(), GetID())
}
