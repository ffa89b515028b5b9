// Package schemas embeds the lanyards record schemas.
package schemas

import (
	"embed"

	"github.com/jacentio/lanyards/lexicon"
	"github.com/jacentio/lanyards/record"
)

// Collections defined by the embedded schema sources.
const (
	Profile     record.CollectionName = "app.lanyards.actor.profile"
	Status      record.CollectionName = "app.lanyards.actor.status"
	Affiliation record.CollectionName = "app.lanyards.actor.biography.affiliation"
	Link        record.CollectionName = "app.lanyards.actor.biography.link"
)

//go:embed *.cue *.yaml
var sources embed.FS

// Load builds a registry from the embedded schema sources.
func Load() (*lexicon.Registry, error) {
	return lexicon.NewRegistryFS(sources)
}

// MustLoad is like Load but panics on error. The embedded sources are fixed at
// build time, so an error here is a programming mistake.
func MustLoad() *lexicon.Registry {
	r, err := Load()
	if err != nil {
		panic(err)
	}
	return r
}
