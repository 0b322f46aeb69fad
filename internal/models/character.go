package models

import "time"

// CharacterCard is at most one per project (§3).
type CharacterCard struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Persona         string    `json:"persona"`
	Scenario        string    `json:"scenario"`
	FirstMessage    string    `json:"first_message"`
	ExampleMessages string    `json:"example_messages"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Field returns the named card field's current value, used by
// regenerate_character_field (§4.8.6) to build its context bundle and to
// know which field to patch.
func (c *CharacterCard) Field(name string) string {
	switch name {
	case "name":
		return c.Name
	case "description":
		return c.Description
	case "persona":
		return c.Persona
	case "scenario":
		return c.Scenario
	case "first_message":
		return c.FirstMessage
	case "example_messages":
		return c.ExampleMessages
	}
	return ""
}

// SetField patches the named card field in place.
func (c *CharacterCard) SetField(name, value string) {
	switch name {
	case "name":
		c.Name = value
	case "description":
		c.Description = value
	case "persona":
		c.Persona = value
	case "scenario":
		c.Scenario = value
	case "first_message":
		c.FirstMessage = value
	case "example_messages":
		c.ExampleMessages = value
	}
}

// Credential is an encrypted opaque key/value bundle; the encryption
// primitive itself is out of scope (§1) — this model stores whatever
// opaque ciphertext string the primitive produces.
type Credential struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	EncryptedValue string    `json:"encrypted_value"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// GlobalTemplate is a process-wide reusable prompt fragment (§3).
type GlobalTemplate struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
