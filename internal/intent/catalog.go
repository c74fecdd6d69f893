package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Item is one priced offering in the catalog.
type Item struct {
	Name  string `json:"name"`
	Price string `json:"price"`
	Note  string `json:"note,omitempty"`
}

// Catalog holds the price list and the keywords that trigger it.
type Catalog struct {
	Keywords []string `json:"keywords"`
	Intro    string   `json:"intro"`
	Items    []Item   `json:"items"`
	Footer   string   `json:"footer"`
}

// DefaultKeywords are the price-intent terms matched when a catalog does not
// define its own.
var DefaultKeywords = []string{
	"precio",
	"precios",
	"cuánto cuesta",
	"cuanto cuesta",
	"cuánto vale",
	"cuanto vale",
	"tarifa",
	"tarifas",
	"presupuesto",
	"coste",
	"costo",
}

// DefaultCatalog is the compiled-in price list.
func DefaultCatalog() Catalog {
	return Catalog{
		Keywords: append([]string(nil), DefaultKeywords...),
		Intro:    "💸 ¡Claro! Estos son nuestros precios de lanzamiento:",
		Items: []Item{
			{Name: "Web corporativa", Price: "desde 490 €"},
			{Name: "Tienda online", Price: "desde 890 €"},
			{Name: "Contenido para redes", Price: "desde 190 €/mes"},
			{Name: "Automatizaciones con IA", Price: "desde 350 €", Note: "chatbots, asistentes y flujos"},
		},
		Footer: "🎁 Aprovecha el descuento de lanzamiento. ¿Te preparo un presupuesto a medida? 😉",
	}
}

// Getter reads a named parameter, e.g. from SSM Parameter Store.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// LoadCatalog fetches a JSON catalog through getter. Missing keywords fall
// back to DefaultKeywords.
func LoadCatalog(ctx context.Context, getter Getter, name string) (Catalog, error) {
	if getter == nil {
		return Catalog{}, errors.New("intent: catalog getter must not be nil")
	}
	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return Catalog{}, fmt.Errorf("intent: fetch catalog: %w", err)
	}
	return ParseCatalog([]byte(raw))
}

// ParseCatalog decodes and validates a JSON catalog.
func ParseCatalog(raw []byte) (Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(raw, &c); err != nil {
		return Catalog{}, fmt.Errorf("intent: decode catalog: %w", err)
	}
	if len(c.Items) == 0 {
		return Catalog{}, errors.New("intent: catalog has no items")
	}
	keywords := c.Keywords[:0]
	for _, k := range c.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	c.Keywords = keywords
	if len(c.Keywords) == 0 {
		c.Keywords = append([]string(nil), DefaultKeywords...)
	}
	return c, nil
}
