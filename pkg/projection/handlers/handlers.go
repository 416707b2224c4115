// Package handlers contains the projections that materialize the read
// models served by the query layer. Handlers run inside the engine's
// transaction and must be idempotent per event (upsert semantics).
package handlers

import (
	"github.com/goccy/go-json"
)

func marshalStrings(values []string) string {
	if values == nil {
		values = []string{}
	}
	data, _ := json.Marshal(values)
	return string(data)
}
