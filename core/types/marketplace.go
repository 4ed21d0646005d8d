package types

// Request lifecycle statuses relevant to settlement. Intake owns any
// richer workflow; the settlement core only distinguishes open requests
// from matched ones.
const (
	RequestStatusOpen    = "open"
	RequestStatusMatched = "matched"
)

// Request is a unit of work seeking a provider match. Field validation of
// tags and titles happens at intake; the settlement core treats the record
// as given.
type Request struct {
	ID      uint64   `json:"id"`
	Creator [20]byte `json:"creator"`
	Tags    []string `json:"tags"`
	Urgency int64    `json:"urgency"`
	Status  string   `json:"status"`
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Tags = append([]string(nil), r.Tags...)
	return &clone
}

// Provider is an entity offering a skill set to open requests.
type Provider struct {
	Address [20]byte `json:"address"`
	Skills  []string `json:"skills"`
	Active  bool     `json:"active"`
}

// Clone returns a deep copy of the provider.
func (p *Provider) Clone() *Provider {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Skills = append([]string(nil), p.Skills...)
	return &clone
}
