package lookup

import "strings"

// Source says how an article id was found.
type Source int

const (
	NotFound Source = iota
	ByCode
	ByMoldReference
)

// ResolveArticle tries the article code first and falls back to the resolved
// mold's id against the alternate mold references.
func (c *Cache) ResolveArticle(code string, moldID *int64) (Article, Source) {
	if strings.TrimSpace(code) != "" {
		if a, ok := c.Article(code); ok {
			return a, ByCode
		}
	}
	if moldID != nil {
		if a, ok := c.ArticleByMold(*moldID); ok {
			return a, ByMoldReference
		}
	}
	return Article{}, NotFound
}

// Customer prefers the article's owning customer over the mold's owner.
func Customer(article *Article, mold *Mold) *int64 {
	if article != nil && article.CustomerID != nil {
		v := *article.CustomerID
		return &v
	}
	if mold != nil && mold.OwnerID != nil {
		v := *mold.OwnerID
		return &v
	}
	return nil
}
