package instance

import (
	"fmt"
	"os"
	"sync"

	"github.com/angelmondragon/storefront/pkg/env"
)

// GetID names this process in logs and as the cron lock holder. STOREFRONT_INSTANCE_ID
// wins; otherwise hostname and pid keep two workers on one host apart.
var GetID = sync.OnceValue(resolveID)

func resolveID() string {
	if id := env.Get("STOREFRONT_INSTANCE_ID", ""); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "instance"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
