// Package connection persists the customer database connection records,
// each carrying its mapping document.
package connection

import (
	"strings"
	"time"

	"github.com/koustreak/schemabridge/internal/database"
)

// Status is the outcome of the last liveness test.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusError    Status = "error"
)

// SecretMask replaces secrets in every response. Sending it back in an
// update means "keep the stored secret".
const SecretMask = "***"

// Record is one stored connection.
type Record struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	database.Config

	IsDefault    bool       `json:"isDefault"`
	Status       Status     `json:"status"`
	LastTestedAt *time.Time `json:"lastTestedAt,omitempty"`
	LastError    string     `json:"lastError,omitempty"`

	// Mappings is the raw mapping document. Empty until first edited.
	Mappings string `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Masked returns a copy safe to send to clients.
func (r Record) Masked() Record {
	if r.Secret != "" {
		r.Secret = SecretMask
	}
	return r
}

// Patch describes an update. Nil fields are left unchanged, and so are
// empty strings for required fields. Changing Engine without a Port resets
// the port, and a database left at the old engine's default, to the new
// engine's defaults. Optional fields (AlternateHost,
// Schema) are cleared by an empty string. Secret is only replaced when
// non-empty and not SecretMask.
type Patch struct {
	Name          *string `json:"name"`
	Engine        *string `json:"engine"`
	Host          *string `json:"host"`
	AlternateHost *string `json:"alternateHost"`
	Port          *int    `json:"port"`
	Database      *string `json:"database"`
	Schema        *string `json:"schema"`
	Username      *string `json:"username"`
	Secret        *string `json:"secret"`
	IsDefault     *bool   `json:"isDefault"`
}

func (p Patch) apply(r *Record) error {
	setRequired := func(dst *string, src *string) {
		if src != nil && strings.TrimSpace(*src) != "" {
			*dst = strings.TrimSpace(*src)
		}
	}

	setRequired(&r.Name, p.Name)
	setRequired(&r.Host, p.Host)
	setRequired(&r.Database, p.Database)
	setRequired(&r.Username, p.Username)

	if p.Engine != nil && strings.TrimSpace(*p.Engine) != "" {
		e, err := database.ParseEngine(*p.Engine)
		if err != nil {
			return err
		}
		if e != r.Engine {
			// Engine defaults do not carry over; normalize refills them.
			r.Port = 0
			if p.Database == nil && r.Database == r.Engine.DefaultDatabase() {
				r.Database = ""
			}
		}
		r.Engine = e
	}
	if p.AlternateHost != nil {
		r.AlternateHost = strings.TrimSpace(*p.AlternateHost)
	}
	if p.Schema != nil {
		r.Schema = strings.TrimSpace(*p.Schema)
	}
	if p.Port != nil && *p.Port > 0 {
		r.Port = *p.Port
	}
	if p.Secret != nil && *p.Secret != "" && *p.Secret != SecretMask {
		r.Secret = *p.Secret
	}
	if p.IsDefault != nil {
		r.IsDefault = *p.IsDefault
	}
	return nil
}
