package persona

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Persona is a named role that can produce conversational turns: a system
// prompt plus the provider backing it. Conversational personas are the
// visible participants; helper personas (moderator, topic generator,
// detectors) share the same shape but are never listed as participants.
type Persona struct {
	Name          string `yaml:"name"`
	SystemMessage string `yaml:"system_message"`
	Provider      string `yaml:"provider"`
	Model         string `yaml:"model,omitempty"`
	Color         string `yaml:"color,omitempty"`
	Character     string `yaml:"character,omitempty"`
}

// Well-known helper persona names.
const (
	HelperTopicGenerator   = "TopicGenerator"
	HelperResponseDetector = "ResponseDetector"
	HelperContextDetector  = "ContextDetector"
	HelperModerator        = "Moderator"
)

var ErrUnknownPersona = errors.New("unknown persona")

// MasterMessages holds the group-conversation framing shared by every
// participant. The templates use literal {user_name} and {participants}
// placeholders, matching the on-disk configuration format.
type MasterMessages struct {
	SystemMessage       string `yaml:"system_message"`
	SystemMessageNoCode string `yaml:"system_message_no_code"`
}

// Registry is the static table of personas loaded at startup. The
// orchestration core only ever reads a snapshot; there is no mutation after
// load.
type Registry struct {
	personas map[string]Persona
	helpers  map[string]Persona
	master   MasterMessages
	userName string
	greeting string
}

func NewRegistry(personas []Persona, helpers []Persona, master MasterMessages, userName string) *Registry {
	ret := &Registry{
		personas: map[string]Persona{},
		helpers:  map[string]Persona{},
		master:   master,
		userName: userName,
	}
	for _, p := range personas {
		ret.personas[p.Name] = p
	}
	for _, p := range helpers {
		ret.helpers[p.Name] = p
	}
	return ret
}

func (r *Registry) UserName() string {
	return r.userName
}

func (r *Registry) Greeting() string {
	return r.greeting
}

// Lookup resolves a persona by name, conversational personas first, then
// helpers. Unknown names are a configuration error.
func (r *Registry) Lookup(name string) (Persona, error) {
	if p, ok := r.personas[name]; ok {
		return p, nil
	}
	if p, ok := r.helpers[name]; ok {
		return p, nil
	}
	return Persona{}, errors.Wrap(ErrUnknownPersona, name)
}

func (r *Registry) Helper(name string) (Persona, error) {
	if p, ok := r.helpers[name]; ok {
		return p, nil
	}
	return Persona{}, errors.Wrap(ErrUnknownPersona, name)
}

func (r *Registry) IsParticipant(name string) bool {
	_, ok := r.personas[name]
	return ok
}

// ParticipantNames lists the conversational personas in alphabetical order,
// the order the presentation layer shows them in.
func (r *Registry) ParticipantNames() []string {
	names := make([]string, 0, len(r.personas))
	for name := range r.personas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RenderMaster substitutes the user name and the list of other participants
// into the master system message. When codeAware is false the no-code
// variant is used if configured.
func (r *Registry) RenderMaster(exclude string, codeAware bool) string {
	others := make([]string, 0, len(r.personas))
	for _, name := range r.ParticipantNames() {
		if name != exclude {
			others = append(others, name)
		}
	}

	tmpl := r.master.SystemMessage
	if !codeAware && r.master.SystemMessageNoCode != "" {
		tmpl = r.master.SystemMessageNoCode
	}

	return strings.NewReplacer(
		"{user_name}", r.userName,
		"{participants}", strings.Join(others, ", "),
	).Replace(tmpl)
}
