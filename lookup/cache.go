// Package lookup holds the natural-code to surrogate-id mappings loaded once per
// run from the target store and used to resolve foreign keys.
package lookup

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// MoldKeyLength is how many trailing characters of a mold code identify the mold.
// Legacy codes carry a longer, inconsistent prefix.
const MoldKeyLength = 9

// MissPolicy says what happens to a record whose foreign key does not resolve.
type MissPolicy string

const (
	MissKeep MissPolicy = "keep"
	MissDrop MissPolicy = "drop"
)

func ParsePolicy(s string) MissPolicy {
	if strings.EqualFold(strings.TrimSpace(s), string(MissDrop)) {
		return MissDrop
	}
	return MissKeep
}

type Press struct {
	Code string
	ID   int64
}

type Mold struct {
	Code    string
	ID      int64
	OwnerID *int64
	Cycle   *float64
}

type Article struct {
	Code       string
	ID         int64
	CustomerID *int64
	// MoldRefs are the idMold..idMold4 columns, in column order.
	MoldRefs [4]*int64
}

type WorkOrderRef struct {
	Code string
	ID   int64
}

// Loader reads the dimension tables of one plant.
type Loader interface {
	Presses(ctx context.Context, plant string) ([]Press, error)
	Molds(ctx context.Context, plant string) ([]Mold, error)
	Articles(ctx context.Context, plant string) ([]Article, error)
	WorkOrders(ctx context.Context, plant string) ([]WorkOrderRef, error)
}

type Snapshot struct {
	Presses    []Press
	Molds      []Mold
	Articles   []Article
	WorkOrders []WorkOrderRef
}

// Cache is read-only after construction.
type Cache struct {
	plant        string
	presses      map[string]int64
	molds        map[string]Mold
	articles     map[string]Article
	articlesByID map[int64]Article
	moldFallback map[int64]int64
	workOrders   map[string]int64
}

// Load reads every dimension concurrently. Work orders are only loaded when withWorkOrders is set.
func Load(ctx context.Context, l Loader, plant string, withWorkOrders bool) (*Cache, error) {
	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := l.Presses(gctx, plant)
		if err != nil {
			return fmt.Errorf("load presses: %w", err)
		}
		snap.Presses = rows
		return nil
	})
	g.Go(func() error {
		rows, err := l.Molds(gctx, plant)
		if err != nil {
			return fmt.Errorf("load molds: %w", err)
		}
		snap.Molds = rows
		return nil
	})
	g.Go(func() error {
		rows, err := l.Articles(gctx, plant)
		if err != nil {
			return fmt.Errorf("load articles: %w", err)
		}
		snap.Articles = rows
		return nil
	})
	if withWorkOrders {
		g.Go(func() error {
			rows, err := l.WorkOrders(gctx, plant)
			if err != nil {
				return fmt.Errorf("load work orders: %w", err)
			}
			snap.WorkOrders = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return New(plant, snap), nil
}

// New indexes a snapshot. On duplicate codes the first row wins.
func New(plant string, snap Snapshot) *Cache {
	c := &Cache{
		plant:        plant,
		presses:      make(map[string]int64, len(snap.Presses)),
		molds:        make(map[string]Mold, len(snap.Molds)),
		articles:     make(map[string]Article, len(snap.Articles)),
		articlesByID: make(map[int64]Article, len(snap.Articles)),
		moldFallback: map[int64]int64{},
		workOrders:   make(map[string]int64, len(snap.WorkOrders)),
	}
	for _, p := range snap.Presses {
		k := strings.TrimSpace(p.Code)
		if _, ok := c.presses[k]; !ok && k != "" {
			c.presses[k] = p.ID
		}
	}
	for _, m := range snap.Molds {
		k := MoldKey(m.Code)
		if _, ok := c.molds[k]; !ok && k != "" {
			c.molds[k] = m
		}
	}
	for _, a := range snap.Articles {
		k := strings.TrimSpace(a.Code)
		if _, ok := c.articles[k]; !ok && k != "" {
			c.articles[k] = a
		}
		if _, ok := c.articlesByID[a.ID]; !ok {
			c.articlesByID[a.ID] = a
		}
	}
	// Column-major: every article's idMold is considered before any idMold2, and so on.
	for col := 0; col < len(Article{}.MoldRefs); col++ {
		for _, a := range snap.Articles {
			ref := a.MoldRefs[col]
			if ref == nil {
				continue
			}
			if _, ok := c.moldFallback[*ref]; !ok {
				c.moldFallback[*ref] = a.ID
			}
		}
	}
	for _, w := range snap.WorkOrders {
		k := strings.TrimSpace(w.Code)
		if _, ok := c.workOrders[k]; !ok && k != "" {
			c.workOrders[k] = w.ID
		}
	}
	return c
}

func (c *Cache) Plant() string { return c.plant }

// MoldKey trims code and keeps its last MoldKeyLength characters.
func MoldKey(code string) string {
	code = strings.TrimSpace(code)
	n := utf8.RuneCountInString(code)
	if n <= MoldKeyLength {
		return code
	}
	r := []rune(code)
	return string(r[n-MoldKeyLength:])
}

func (c *Cache) Press(code string) (int64, bool) {
	id, ok := c.presses[strings.TrimSpace(code)]
	return id, ok
}

func (c *Cache) Mold(code string) (Mold, bool) {
	m, ok := c.molds[MoldKey(code)]
	return m, ok
}

func (c *Cache) Article(code string) (Article, bool) {
	a, ok := c.articles[strings.TrimSpace(code)]
	return a, ok
}

// ArticleByMold resolves an article through the alternate mold-reference columns.
func (c *Cache) ArticleByMold(moldID int64) (Article, bool) {
	id, ok := c.moldFallback[moldID]
	if !ok {
		return Article{}, false
	}
	a, ok := c.articlesByID[id]
	return a, ok
}

func (c *Cache) WorkOrder(code string) (int64, bool) {
	id, ok := c.workOrders[strings.TrimSpace(code)]
	return id, ok
}

// Sizes reports how many entries each dimension holds.
func (c *Cache) Sizes() map[string]int {
	return map[string]int{
		"presses":    len(c.presses),
		"molds":      len(c.molds),
		"articles":   len(c.articles),
		"workOrders": len(c.workOrders),
	}
}
