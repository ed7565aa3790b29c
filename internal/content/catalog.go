package content

import "facegate/internal/core/models"

// MinLevel is the authorization level required to browse the research
// catalog.
const MinLevel = models.LevelBoard

// Entry is the metadata for one research document. Payload rendering is
// handled elsewhere; the catalog only carries metadata.
type Entry struct {
	Slug     string `json:"slug"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Origin   string `json:"origin"`
	Summary  string `json:"summary"`
	Report   string `json:"report"`
}

// Catalog is the fixed set of research documents.
type Catalog struct {
	entries []Entry
	bySlug  map[string]Entry
}

// NewCatalog builds the catalog with the built-in document set.
func NewCatalog() *Catalog {
	return newCatalog(defaultEntries)
}

func newCatalog(entries []Entry) *Catalog {
	bySlug := make(map[string]Entry, len(entries))
	for _, e := range entries {
		bySlug[e.Slug] = e
	}
	return &Catalog{entries: entries, bySlug: bySlug}
}

// List returns all entries in catalog order.
func (c *Catalog) List() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// BySlug looks up a single entry.
func (c *Catalog) BySlug(slug string) (Entry, bool) {
	e, ok := c.bySlug[slug]
	return e, ok
}

var defaultEntries = []Entry{
	{
		Slug:     "saxitoxina",
		Title:    "Saxitoxin",
		Category: "Natural Toxins",
		Origin:   "Marine microalgae (red tide)",
		Summary:  "Marine neurotoxin studied in ion-channel and synaptic transmission research.",
		Report:   "reports/saxitoxina.pdf",
	},
	{
		Slug:     "tetrodotoxina",
		Title:    "Tetrodotoxin",
		Category: "Natural Toxins",
		Origin:   "Pufferfish and other marine animals",
		Summary:  "High-potency toxin used as a tool in neuronal physiology and experimental analgesia.",
		Report:   "reports/tetrodotoxina.pdf",
	},
	{
		Slug:     "ricina",
		Title:    "Ricin",
		Category: "Natural Toxins",
		Origin:   "Castor bean seeds",
		Summary:  "Protein toxin investigated as an immunotoxin component in oncology research.",
		Report:   "reports/ricina.pdf",
	},
	{
		Slug:     "dioxinas",
		Title:    "Dioxins",
		Category: "Industrial Chemical Agents",
		Origin:   "By-products of industrial processes and incineration",
		Summary:  "Persistent contaminants; research focus is containment and environmental monitoring.",
		Report:   "reports/dioxinas.pdf",
	},
	{
		Slug:     "mercurio-metilado",
		Title:    "Methylmercury",
		Category: "Industrial Chemical Agents",
		Origin:   "Methylation of inorganic mercury in aquatic ecosystems",
		Summary:  "Bioaccumulating contaminant driving surveillance and control-policy research.",
		Report:   "reports/mercurio-metilado.pdf",
	},
	{
		Slug:     "nicotinoides-sinteticos",
		Title:    "Synthetic Nicotinoids",
		Category: "Industrial Chemical Agents",
		Origin:   "Agricultural insecticides",
		Summary:  "Studied for pollinator and biodiversity impact; regulation-oriented research.",
		Report:   "reports/nicotinoides-sinteticos.pdf",
	},
	{
		Slug:     "h5n1-modificado",
		Title:    "Modified H5N1",
		Category: "Modified Pathogens",
		Origin:   "Laboratory-altered avian influenza variant",
		Summary:  "High-containment research supporting vaccine development and pandemic preparedness.",
		Report:   "reports/h5n1-modificado.pdf",
	},
	{
		Slug:     "bacillus-anthracis-resistente",
		Title:    "Resistant Bacillus anthracis",
		Category: "Modified Pathogens",
		Origin:   "Multi-resistant anthrax strain",
		Summary:  "Antidote and vaccine R&D under maximum biosafety and traceability.",
		Report:   "reports/bacillus-anthracis-resistente.pdf",
	},
	{
		Slug:     "candida-auris-termotolerante",
		Title:    "Thermotolerant Candida auris",
		Category: "Modified Pathogens",
		Origin:   "Emerging heat-tolerant hospital fungus",
		Summary:  "Research into resistance mechanisms and new therapies for infection control.",
		Report:   "reports/candida-auris-termotolerante.pdf",
	},
	{
		Slug:     "biologia-sintetica",
		Title:    "Synthetic Biology",
		Category: "Sensitive Topic",
		Origin:   "Advanced genetic engineering",
		Summary:  "Gene therapies, safe bioengineering and bioremediation; dual-use governance focus.",
		Report:   "reports/biologia-sintetica.pdf",
	},
}
