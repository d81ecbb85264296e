package aireply

import (
	"fmt"

	"github.com/mbeoliero/unichat/internal/config"
)

const defaultSystemPrompt = "You are %s, a friendly companion on a platform for international students. " +
	"Answer in the language the student writes in, keep replies short and conversational, " +
	"and be honest when you do not know something."

// Persona is an AI character a student can chat with
type Persona struct {
	Id           string
	Name         string
	Avatar       string
	SystemPrompt string
}

// Registry holds the configured personas
type Registry struct {
	personas map[string]*Persona
}

// NewRegistry builds a registry from config. Entries without an id are skipped.
func NewRegistry(cfgs []config.PersonaConfig) *Registry {
	r := &Registry{personas: make(map[string]*Persona, len(cfgs))}
	for _, c := range cfgs {
		if c.Id == "" {
			continue
		}
		p := &Persona{
			Id:           c.Id,
			Name:         c.Name,
			Avatar:       c.Avatar,
			SystemPrompt: c.SystemPrompt,
		}
		if p.Name == "" {
			p.Name = c.Id
		}
		if p.SystemPrompt == "" {
			p.SystemPrompt = fmt.Sprintf(defaultSystemPrompt, p.Name)
		}
		r.personas[c.Id] = p
	}
	return r
}

// Lookup returns the persona for characterId, or a default persona named after it
func (r *Registry) Lookup(characterId string) *Persona {
	if p, ok := r.personas[characterId]; ok {
		cp := *p
		return &cp
	}
	return &Persona{
		Id:           characterId,
		Name:         characterId,
		SystemPrompt: fmt.Sprintf(defaultSystemPrompt, characterId),
	}
}

// LookupPersona reports the display identity of a configured persona
func (r *Registry) LookupPersona(characterId string) (string, string, bool) {
	p, ok := r.personas[characterId]
	if !ok {
		return "", "", false
	}
	return p.Name, p.Avatar, true
}
