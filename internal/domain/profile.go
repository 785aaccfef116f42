package domain

// TimelineEntry is a single tagged, timestamped note in a profile timeline.
type TimelineEntry struct {
	ID        string    `json:"id"`
	Timestamp Timestamp `json:"timestamp"`
	Text      string    `json:"text"`
	Agent     AgentID   `json:"agent"`
	Tags      []string  `json:"tags"`
}

// Timeline is append-only outside of an administrative clear.
type Timeline struct {
	Entries     []TimelineEntry `json:"timeline"`
	LastUpdated Timestamp       `json:"lastUpdated"`
}

func (t *Timeline) Append(e TimelineEntry) {
	t.Entries = append(t.Entries, e)
	t.LastUpdated = e.Timestamp
}

// Profile is the per-user record of identity, consent and the two timelines.
type Profile struct {
	Name     string   `json:"name"`
	Pronouns string   `json:"pronouns"`
	Consent  bool     `json:"consent"`
	Progress Timeline `json:"progress"`
	Memory   Timeline `json:"memory"`
}

// NewProfile returns the empty default profile.
func NewProfile(now Timestamp) *Profile {
	return &Profile{
		Progress: Timeline{Entries: []TimelineEntry{}, LastUpdated: now},
		Memory:   Timeline{Entries: []TimelineEntry{}, LastUpdated: now},
	}
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	out := *p
	out.Progress.Entries = cloneEntries(p.Progress.Entries)
	out.Memory.Entries = cloneEntries(p.Memory.Entries)
	return &out
}

func cloneEntries(in []TimelineEntry) []TimelineEntry {
	out := make([]TimelineEntry, len(in))
	for i, e := range in {
		tags := make([]string, len(e.Tags))
		copy(tags, e.Tags)
		e.Tags = tags
		out[i] = e
	}
	return out
}

// IdentityUpdate is a partial identity change; nil fields are left untouched.
type IdentityUpdate struct {
	Name     *string `json:"name,omitempty"`
	Pronouns *string `json:"pronouns,omitempty"`
	Consent  *bool   `json:"consent,omitempty"`
}

// Apply merges the update into p.
func (u IdentityUpdate) Apply(p *Profile) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Pronouns != nil {
		p.Pronouns = *u.Pronouns
	}
	if u.Consent != nil {
		p.Consent = *u.Consent
	}
}
