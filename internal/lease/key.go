// Package lease parses KV lease keys and watches a JetStream KV bucket
// for the TTL-driven delete/purge events that drive soft-state lease
// cleanup against the subscription index.
package lease

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseLeaseKey splits a lease key of the form "{id}.{client_id}" into
// its id and client id. The key must contain exactly one dot, with a
// non-empty numeric prefix and a non-empty suffix; anything else is
// rejected so a malformed key is logged and dropped rather than
// silently misinterpreted.
func ParseLeaseKey(key string) (id uint64, clientID string, err error) {
	if strings.Count(key, ".") != 1 {
		return 0, "", fmt.Errorf("lease: key %q must contain exactly one dot", key)
	}

	prefix, suffix, _ := strings.Cut(key, ".")
	if prefix == "" || suffix == "" {
		return 0, "", fmt.Errorf("lease: key %q has an empty id or client id", key)
	}

	id, err = strconv.ParseUint(prefix, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("lease: key %q has a non-numeric id: %w", key, err)
	}

	return id, suffix, nil
}

// MakeLeaseKey formats the lease key a client is expected to create
// and refresh in the KV bucket after a successful subscribe.
func MakeLeaseKey(id uint64, clientID string) string {
	return fmt.Sprintf("%d.%s", id, clientID)
}
