package catalog

import "sort"

// Product is an immutable catalog entry. Price is in minor units (USD cents).
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"nombre"`
	Price       int64  `json:"precio"`
	DownloadURL string `json:"-"`
}

func (p Product) PriceMajor() float64 {
	return float64(p.Price) / 100
}

type Catalog struct {
	products map[string]Product
}

func New(products ...Product) *Catalog {
	c := &Catalog{products: make(map[string]Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

// Default returns the store's product lineup.
func Default() *Catalog {
	return New(
		Product{ID: "drumkit-essential", Name: "DRUMKIT ESSENTIAL", Price: 2500, DownloadURL: "https://drive.google.com/tu-enlace-drumkit"},
		Product{ID: "vocal-template", Name: "VOCAL CHAIN TEMPLATE", Price: 1700, DownloadURL: "https://drive.google.com/tu-enlace-vocal"},
		Product{ID: "plantillas-fl", Name: "PLANTILLAS FL STUDIO", Price: 2900, DownloadURL: "https://drive.google.com/tu-enlace-plantillas"},
		Product{ID: "cumbia-420", Name: "CUMBIA 420 - DRUMKIT", Price: 1800, DownloadURL: "https://drive.google.com/tu-enlace-cumbia"},
		Product{ID: "reggaeton-hits", Name: "REGGAETON HITS - DRUMKIT", Price: 2000, DownloadURL: "https://drive.google.com/tu-enlace-reggaeton"},
		Product{ID: "trap-essentials", Name: "TRAP ESSENTIALS - PACK", Price: 2200, DownloadURL: "https://drive.google.com/tu-enlace-trap"},
		Product{ID: "synthwave-pop", Name: "SYNTHWAVE & POP - PACK", Price: 2500, DownloadURL: "https://drive.google.com/tu-enlace-synthwave"},
		Product{ID: "bundle-generos", Name: "BUNDLE DE GÉNEROS", Price: 6500, DownloadURL: "https://drive.google.com/tu-enlace-bundle-generos"},
		Product{ID: "bundle-completo", Name: "BUNDLE COMPLETO", Price: 9900, DownloadURL: "https://drive.google.com/tu-enlace-bundle-completo"},
	)
}

func (c *Catalog) Lookup(id string) (Product, bool) {
	p, ok := c.products[id]
	return p, ok
}

func (c *Catalog) All() []Product {
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) Len() int {
	return len(c.products)
}
