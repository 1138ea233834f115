package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// UserLabel is the transcript label for the local speaker.
const UserLabel = "You"

// Persona is the character the remote endpoint plays: its voice, model,
// system instruction, and the label its turns carry in the transcript.
type Persona struct {
	Name        string `yaml:"name"`
	Voice       string `yaml:"voice"`
	Model       string `yaml:"model"`
	Instruction string `yaml:"instruction"`
}

// ResolvePersona builds the persona from the LIVE_* values, then applies any
// non-empty fields from PERSONA_FILE on top.
func ResolvePersona(cfg *Config) (Persona, error) {
	p := Persona{
		Name:        DefaultPersonaName,
		Voice:       cfg.LiveVoice,
		Model:       cfg.LiveModel,
		Instruction: cfg.LiveInstruction,
	}
	if p.Voice == "" {
		p.Voice = DefaultVoice
	}
	if p.Model == "" {
		p.Model = DefaultModel
	}
	if p.Instruction == "" {
		p.Instruction = DefaultInstruction
	}

	if cfg.PersonaFile == "" {
		return p, nil
	}

	file, err := LoadPersonaFile(cfg.PersonaFile)
	if err != nil {
		return Persona{}, err
	}
	return p.merge(file), nil
}

// LoadPersonaFile parses a YAML persona definition.
func LoadPersonaFile(path string) (Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Persona{}, fmt.Errorf("failed to read persona file: %w", err)
	}

	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Persona{}, fmt.Errorf("failed to parse persona file %s: %w", path, err)
	}
	return p, nil
}

func (p Persona) merge(o Persona) Persona {
	if o.Name != "" {
		p.Name = o.Name
	}
	if o.Voice != "" {
		p.Voice = o.Voice
	}
	if o.Model != "" {
		p.Model = o.Model
	}
	if o.Instruction != "" {
		p.Instruction = o.Instruction
	}
	return p
}
