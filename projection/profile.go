package projection

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/jacentio/lanyards/record"
)

// Profile is the denormalized view of an actor.
type Profile struct {
	Actor        record.ActorIdentity
	Record       ProfileRecord
	Status       *Status // nil when the actor has not set one
	Affiliations []Affiliation
	Links        []Link

	// Commits holds the commit of every record the profile was built from.
	Commits map[record.ID]record.CommitRef `json:"-"`
	BuiltAt time.Time
}

// ProfileRecord is the root profile record.
type ProfileRecord struct {
	DisplayName string    `mapstructure:"displayName"`
	Description string    `mapstructure:"description"`
	Website     string    `mapstructure:"website"`
	Pronouns    string    `mapstructure:"pronouns"`
	Languages   []string  `mapstructure:"languages"`
	CreatedAt   time.Time `mapstructure:"createdAt"`

	// Revision is the schema revision the record was written under.
	Revision int `mapstructure:"-"`
}

// Status is the actor's current availability.
type Status struct {
	Kind      string    `mapstructure:"kind"`
	Text      string    `mapstructure:"text"`
	ExpiresAt time.Time `mapstructure:"expiresAt"`
}

// Affiliation is one biography affiliation.
type Affiliation struct {
	Key         record.RecordKey `mapstructure:"-"`
	Institution string           `mapstructure:"institution"`
	Role        string           `mapstructure:"role"`
	Department  string           `mapstructure:"department"`
	StartYear   int              `mapstructure:"startYear"`
	EndYear     int              `mapstructure:"endYear"`
	Current     bool             `mapstructure:"current"`
	URL         string           `mapstructure:"url"`
	CreatedAt   time.Time        `mapstructure:"createdAt"`
}

// Link is one biography link.
type Link struct {
	Key       record.RecordKey `mapstructure:"-"`
	URL       string           `mapstructure:"url"`
	Label     string           `mapstructure:"label"`
	Kind      string           `mapstructure:"kind"`
	CreatedAt time.Time        `mapstructure:"createdAt"`
}

// decodeSection maps a validated record value onto a section struct.
func decodeSection(rec record.Record, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		Result:     out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(rec.Value); err != nil {
		return fmt.Errorf("decode %s: %w", rec.ID, err)
	}
	return nil
}
