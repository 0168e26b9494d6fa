// Package gatehttp provides framework-free net/http helpers for serving
// entitlement snapshots.
package gatehttp

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/open-rails/gatekit/entitlements"
)

// ServeEntitlements writes the entitlement context as JSON with an ETag so
// polling clients can cheaply revalidate. GeneratedAt is excluded from the
// ETag input: two assemblies with identical verdicts should revalidate as
// unchanged.
func ServeEntitlements(w http.ResponseWriter, r *http.Request, ec entitlements.Context) {
	tagSrc := struct {
		ActorID   string          `json:"actor_id"`
		Anonymous bool            `json:"anonymous"`
		Tier      string          `json:"tier"`
		Features  map[string]bool `json:"features"`
	}{ec.ActorID, ec.Anonymous, ec.Tier.String(), ec.Features}

	tagBytes, _ := json.Marshal(tagSrc)
	sum := sha256.Sum256(tagBytes)
	etag := "\"" + hex.EncodeToString(sum[:]) + "\""

	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	b, _ := json.Marshal(ec)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "private, max-age=30, must-revalidate")
	w.Header().Set("ETag", etag)
	_, _ = w.Write(b)
}

// Handler adapts an assembler into an http.Handler.
type Handler struct {
	Assembler *entitlements.Assembler
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ServeEntitlements(w, r, h.Assembler.Assemble(r.Context()))
}
