package domain

// Provider describes a healthcare provider shown in the comparison
type Provider struct {
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	Website string `json:"website,omitempty"`
}

// DefaultProviders is the empty-state placeholder set. It is scaffolding for display,
// not a guarantee that these providers have data.
var DefaultProviders = []Provider{
	{Name: "Regina Maria", Slug: "reginamaria", Website: "https://www.reginamaria.ro"},
	{Name: "Medlife", Slug: "medlife", Website: "https://www.medlife.ro"},
	{Name: "Synevo", Slug: "synevo", Website: "https://www.synevo.ro"},
	{Name: "Medicover", Slug: "medicover", Website: "https://www.medicover.ro"},
}

// DefaultProviderSlugs returns the slugs of DefaultProviders in order
func DefaultProviderSlugs() []string {
	out := make([]string, len(DefaultProviders))
	for i, p := range DefaultProviders {
		out[i] = p.Slug
	}
	return out
}
